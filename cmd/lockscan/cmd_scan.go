package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fbkclanna/lockscan/internal/apperr"
	"github.com/fbkclanna/lockscan/internal/config"
	"github.com/fbkclanna/lockscan/internal/lock"
	"github.com/fbkclanna/lockscan/internal/request"
	"github.com/fbkclanna/lockscan/internal/rootedpath"
	"github.com/fbkclanna/lockscan/internal/scan"
	"github.com/fbkclanna/lockscan/internal/ui"
	"github.com/fbkclanna/lockscan/internal/workspace"
)

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [input]",
		Short: "Resolve the packages of a request and write the SBOM and build environment",
		Long: `Scan reads the request file (or the inline input) and resolves every package
from the manifests and lockfiles on disk. It writes a CycloneDX SBOM and env.json
to the output directory.

The inline input is a package type ("gomod"), a JSON package object
('{"type": "pip", "path": "api"}'), a JSON array of those, or a full JSON request.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runScan,
	}
	cmd.Flags().String("request", "", "Request file (default <source>/lockscan.yaml)")
	cmd.Flags().StringP("output", "o", "lockscan-output", "Output directory")
	cmd.Flags().String("mode", "", "Validation mode: strict or permissive (default from request, then config)")
	cmd.Flags().IntP("jobs", "j", 0, "Number of packages resolved in parallel (default from config)")
	cmd.Flags().Bool("update-lock", false, "Record input digests in "+lock.FileName)
	cmd.Flags().String("sbom-name", scan.DefaultSBOMName, "SBOM file name; a .zst suffix compresses it")
	return cmd
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	outputDir, _ := cmd.Flags().GetString("output")
	modeFlag, _ := cmd.Flags().GetString("mode")
	jobs, _ := cmd.Flags().GetInt("jobs")
	updateLock, _ := cmd.Flags().GetBool("update-lock")
	sbomName, _ := cmd.Flags().GetString("sbom-name")

	src, req, lockPath, err := scanInput(cmd, cfg, args)
	if err != nil {
		return err
	}

	if jobs == 0 {
		jobs = cfg.Jobs
	}
	opts := scan.Options{
		OutputDir:    outputDir,
		SBOMName:     sbomName,
		Jobs:         jobs,
		PipIndexURL:  cfg.PipIndexURL,
		YarnRegistry: cfg.YarnRegistry,
		ToolVersion:  version,
		Progress:     ui.NewProgress(cmd.ErrOrStderr(), len(req.Packages)),
		Logger:       slog.Default(),
	}
	if modeFlag == "" && req.Mode == "" {
		modeFlag = cfg.Mode
	}
	if modeFlag != "" {
		if opts.Mode, err = workspace.ParseMode(modeFlag); err != nil {
			return err
		}
	}
	if updateLock {
		opts.LockPath = lockPath
	}

	res, err := scan.Run(cmd.Context(), src, req, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Wrote %s (%d components)\n", res.SBOMPath, len(res.Output.Components))
	_, _ = fmt.Fprintf(out, "Wrote %s (%d environment variables)\n", res.EnvPath, len(res.Output.EnvironmentVariables))
	if opts.LockPath != "" {
		_, _ = fmt.Fprintf(out, "Updated %s\n", opts.LockPath)
	}
	return nil
}

// scanInput returns the source directory, the request to scan and where its
// lock state lives.
func scanInput(cmd *cobra.Command, cfg *config.Config, args []string) (rootedpath.RootedPath, *request.Request, string, error) {
	if len(args) == 1 {
		source, _ := cmd.Flags().GetString("source")
		src, err := rootedpath.New(source)
		if err != nil {
			return rootedpath.RootedPath{}, nil, "", fmt.Errorf("resolving source directory: %w", err)
		}
		if !src.IsDir() {
			return rootedpath.RootedPath{}, nil, "", fmt.Errorf("source directory does not exist: %s", src.Path())
		}
		req, err := request.ParseInline(args[0])
		if err != nil {
			return rootedpath.RootedPath{}, nil, "", err
		}
		return src, req, filepath.Join(src.Path(), lock.FileName), nil
	}

	ctx, err := loadWorkspace(cmd, cfg)
	if err != nil {
		return rootedpath.RootedPath{}, nil, "", err
	}
	if ctx.Request == nil {
		return rootedpath.RootedPath{}, nil, "", apperr.InvalidInput(
			fmt.Sprintf("No request file found at %s", ctx.RequestPath),
			apperr.WithSolution("Create one with 'lockscan init', or pass the packages inline, e.g. 'lockscan scan gomod'."),
		)
	}
	return ctx.Source, ctx.Request, ctx.LockPath, nil
}
