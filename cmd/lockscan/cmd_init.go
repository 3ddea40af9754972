package main

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fbkclanna/lockscan/internal/lockfile"
	"github.com/fbkclanna/lockscan/internal/request"
	"github.com/fbkclanna/lockscan/internal/rootedpath"
	"github.com/fbkclanna/lockscan/internal/workspace"
)

// detectDepth is how many directory levels below the source are searched.
const detectDepth = 2

// markerKinds maps lockfile kinds to the package type they indicate.
var markerKinds = map[lockfile.Kind]request.PackageType{
	lockfile.KindGoMod:           request.TypeGomod,
	lockfile.KindRequirements:    request.TypePip,
	lockfile.KindYarnLock:        request.TypeYarn,
	lockfile.KindYarnClassicLock: request.TypeYarnClassic,
}

var markerFiles = map[string]bool{"go.mod": true, "requirements.txt": true, "yarn.lock": true}

var skipDirs = map[string]bool{"node_modules": true, "vendor": true, "testdata": true}

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a request file interactively or from flags",
		Long: `Init writes a request file listing the packages to scan.

With --type (and optionally --path, paired by position) the packages are taken
from the flags. With --detect they are found by looking for go.mod,
requirements.txt and yarn.lock files. Otherwise init asks interactively, which
requires a terminal.`,
		Args: cobra.NoArgs,
		RunE: runInit,
	}
	cmd.Flags().String("request", "", "Request file to write (default <source>/lockscan.yaml)")
	cmd.Flags().StringSlice("type", nil, "Package type (repeatable): gomod, pip, yarn, yarn-classic")
	cmd.Flags().StringSlice("path", nil, "Package path for the --type at the same position (default .)")
	cmd.Flags().Bool("detect", false, "Detect packages from the files in the source directory")
	cmd.Flags().String("mode", "", "Validation mode recorded in the request: strict or permissive")
	cmd.Flags().Bool("force", false, "Overwrite an existing request file")
	return cmd
}

func runInit(cmd *cobra.Command, _ []string) error {
	source, _ := cmd.Flags().GetString("source")
	requestPath, _ := cmd.Flags().GetString("request")
	types, _ := cmd.Flags().GetStringSlice("type")
	paths, _ := cmd.Flags().GetStringSlice("path")
	detect, _ := cmd.Flags().GetBool("detect")
	mode, _ := cmd.Flags().GetString("mode")
	force, _ := cmd.Flags().GetBool("force")

	src, err := rootedpath.New(source)
	if err != nil {
		return fmt.Errorf("resolving source directory: %w", err)
	}
	if !src.IsDir() {
		return fmt.Errorf("source directory does not exist: %s", src.Path())
	}
	if requestPath == "" {
		requestPath = workspace.DefaultRequestFile
	}
	if !filepath.IsAbs(requestPath) {
		requestPath = filepath.Join(src.Path(), requestPath)
	}
	if _, err := os.Stat(requestPath); err == nil && !force {
		return fmt.Errorf("request file %s already exists (use --force to overwrite)", requestPath)
	}

	// Build the request before writing so a failed prompt leaves nothing behind.
	var pkgs []request.Package
	switch {
	case len(types) > 0:
		if pkgs, err = packagesFromFlags(types, paths); err != nil {
			return err
		}
	case detect:
		if pkgs, err = detectPackages(src); err != nil {
			return err
		}
		if len(pkgs) == 0 {
			return fmt.Errorf("no go.mod, requirements.txt or yarn.lock found in %s", src.Path())
		}
	default:
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return fmt.Errorf("interactive init requires a TTY; use --type or --detect")
		}
		detected, err := detectPackages(src)
		if err != nil {
			return err
		}
		if pkgs, err = interactivePackages(src, detected); err != nil {
			return fmt.Errorf("interactive setup: %w", err)
		}
	}

	req := &request.Request{Version: 1, Mode: mode, Packages: pkgs}
	if err := request.Save(requestPath, req); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Request written to %s\n", requestPath)
	for _, p := range pkgs {
		_, _ = fmt.Fprintf(out, "  %s\n", p.Key())
	}
	return nil
}

func packagesFromFlags(types, paths []string) ([]request.Package, error) {
	if len(paths) > len(types) {
		return nil, fmt.Errorf("got %d --path values for %d --type values", len(paths), len(types))
	}
	pkgs := make([]request.Package, len(types))
	for i, t := range types {
		pkgs[i].Type = request.PackageType(t)
		if i < len(paths) {
			pkgs[i].Path = cleanPackagePath(paths[i])
		}
	}
	return pkgs, nil
}

// detectPackages looks for package manager files in src and the directories
// below it, skipping hidden and vendored trees.
func detectPackages(src rootedpath.RootedPath) ([]request.Package, error) {
	root := src.Path()
	var pkgs []request.Package
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") || skipDirs[d.Name()] || strings.Count(rel, string(filepath.Separator)) >= detectDepth {
				return filepath.SkipDir
			}
			return nil
		}
		if !markerFiles[d.Name()] {
			return nil
		}
		kind, err := lockfile.Detect(path)
		if err != nil {
			slog.Debug("skipping file", "path", rel, "error", err)
			return nil
		}
		typ, ok := markerKinds[kind]
		if !ok {
			return nil
		}
		pkgs = append(pkgs, request.Package{Type: typ, Path: cleanPackagePath(filepath.Dir(rel))})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	sort.Slice(pkgs, func(i, j int) bool {
		if pkgs[i].Path != pkgs[j].Path {
			return pkgs[i].Path < pkgs[j].Path
		}
		return pkgs[i].Type < pkgs[j].Type
	})
	return pkgs, nil
}
