package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/fbkclanna/lockscan/internal/lockfile"
	"github.com/fbkclanna/lockscan/internal/ui"
)

func newParseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Parse a lockfile or manifest and print its contents",
		Long: `Parse detects the format of a lockfile or manifest from its name (and, for
yarn.lock, its content) and prints the parsed structure.

Recognised files: go.sum, go.mod, go.work, vendor/modules.txt, requirements files,
yarn.lock (v1 and berry), package.json, .yarnrc.yml and pyproject.toml.`,
		Args: cobra.ExactArgs(1),
		RunE: runParse,
	}
	cmd.Flags().String("format", "json", "Output format: json or table")
	cmd.Flags().String("as", "", "Parse as this kind instead of detecting it")
	return cmd
}

func runParse(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	as, _ := cmd.Flags().GetString("as")
	out := cmd.OutOrStdout()

	if format != "json" && format != "table" {
		return fmt.Errorf("unknown format %q (must be json or table)", format)
	}

	var (
		res *lockfile.Result
		err error
	)
	if as != "" {
		if !slices.Contains(lockfile.Kinds, lockfile.Kind(as)) {
			return fmt.Errorf("unknown kind %q (must be one of %v)", as, lockfile.Kinds)
		}
		res, err = lockfile.ParseAs(args[0], lockfile.Kind(as))
	} else {
		res, err = lockfile.Parse(args[0])
	}
	if err != nil {
		return err
	}
	slog.Debug("parsed file", "path", res.Path, "kind", res.Kind)

	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	switch res.Kind {
	case lockfile.KindGoWork, lockfile.KindYarnRc, lockfile.KindPyProject:
		return fmt.Errorf("%s files carry no package list; use --format json", res.Kind)
	}
	tbl := ui.NewTable(out, "NAME", "VERSION", "SOURCE")
	for _, p := range res.Packages() {
		tbl.Row(p.Name, p.Version, p.Source)
	}
	if err := tbl.Flush(); err != nil {
		return err
	}
	if tbl.Len() == 0 {
		_, _ = fmt.Fprintln(out, "No packages.")
	}
	return nil
}
