package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fbkclanna/lockscan/internal/output"
	"github.com/fbkclanna/lockscan/internal/scan"
)

func newGenerateEnvCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate-env <output-dir>",
		Short: "Print the build environment recorded by a scan",
		Args:  cobra.ExactArgs(1),
		RunE:  runGenerateEnv,
	}
	cmd.Flags().String("format", "env", "Output format: env or json")
	cmd.Flags().String("for-output-dir", "", "Directory the output will live in at build time (default: <output-dir>)")
	cmd.Flags().StringP("output", "o", "", "Write to a file instead of stdout")
	return cmd
}

func runGenerateEnv(cmd *cobra.Command, args []string) (err error) {
	formatName, _ := cmd.Flags().GetString("format")
	forDir, _ := cmd.Flags().GetString("for-output-dir")
	outPath, _ := cmd.Flags().GetString("output")

	format, err := output.ParseEnvFormat(formatName)
	if err != nil {
		return err
	}
	dir, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolving output directory: %w", err)
	}
	vars, err := output.ReadEnvFile(filepath.Join(dir, scan.EnvFileName))
	if err != nil {
		return err
	}
	if forDir == "" {
		forDir = dir
	}

	var w io.Writer = cmd.OutOrStdout()
	if outPath != "" {
		f, err := os.Create(outPath) //nolint:gosec // path chosen by the user
		if err != nil {
			return fmt.Errorf("creating %s: %w", outPath, err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		w = f
	}
	return output.RenderEnv(w, vars, forDir, format)
}
