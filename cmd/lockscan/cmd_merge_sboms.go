package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/fbkclanna/lockscan/internal/sbom"
)

func newMergeSBOMsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge-sboms <sbom> <sbom>...",
		Short: "Merge SBOMs produced by separate scans",
		Long: `Merge-sboms combines CycloneDX SBOMs written by lockscan. Components with the
same purl are merged into one and their properties are combined.`,
		Args: cobra.MinimumNArgs(2),
		RunE: runMergeSBOMs,
	}
	cmd.Flags().StringP("output", "o", "", "Write to a file instead of stdout; a .zst suffix compresses it")
	return cmd
}

func runMergeSBOMs(cmd *cobra.Command, args []string) error {
	outPath, _ := cmd.Flags().GetString("output")

	docs := make([]*sbom.Document, 0, len(args))
	for _, p := range args {
		doc, err := sbom.ReadFile(p)
		if err != nil {
			return fmt.Errorf("reading %s: %w", p, err)
		}
		docs = append(docs, doc)
	}
	merged := sbom.Merge(version, docs...)
	slog.Debug("merged sboms", "inputs", len(docs), "components", len(merged.Components))

	if outPath == "" {
		return merged.Encode(cmd.OutOrStdout())
	}
	if err := sbom.WriteFile(outPath, merged); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d components)\n", outPath, len(merged.Components))
	return nil
}
