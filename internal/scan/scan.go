package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fbkclanna/lockscan/internal/lock"
	"github.com/fbkclanna/lockscan/internal/output"
	"github.com/fbkclanna/lockscan/internal/request"
	"github.com/fbkclanna/lockscan/internal/rootedpath"
	"github.com/fbkclanna/lockscan/internal/sbom"
	"github.com/fbkclanna/lockscan/internal/ui"
	"github.com/fbkclanna/lockscan/internal/workspace"
)

const (
	// DefaultSBOMName is the SBOM file name inside the output directory.
	DefaultSBOMName = "bom.json"
	// EnvFileName is the environment file name inside the output directory.
	EnvFileName = "env.json"
)

// Options control a scan.
type Options struct {
	OutputDir    string
	SBOMName     string
	Jobs         int
	Mode         workspace.Mode
	PipIndexURL  string
	YarnRegistry string
	ToolVersion  string
	// LockPath is written when set.
	LockPath  string
	Resolvers Registry
	Progress  *ui.Progress
	Logger    *slog.Logger
}

// Result is the outcome of a scan.
type Result struct {
	Output   *output.RequestOutput
	SBOMPath string
	EnvPath  string
	Lock     *lock.File
}

// packageResult is the output of one package.
type packageResult struct {
	pkg request.Package
	out *output.RequestOutput
}

// Run resolves every package of req in parallel and writes the results to
// opts.OutputDir. The first failing package aborts the scan.
func Run(ctx context.Context, source rootedpath.RootedPath, req *request.Request, opts Options) (*Result, error) {
	if opts.Jobs < 1 {
		return nil, fmt.Errorf("jobs must be >= 1 (got %d)", opts.Jobs)
	}
	if opts.OutputDir == "" {
		return nil, errors.New("output directory is required")
	}
	if opts.SBOMName == "" {
		opts.SBOMName = DefaultSBOMName
	}
	if opts.Resolvers == nil {
		opts.Resolvers = DefaultRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Progress == nil {
		opts.Progress = ui.NewProgress(io.Discard, len(req.Packages))
	}
	mode := opts.Mode
	if mode == "" {
		m, err := workspace.ParseMode(req.Mode)
		if err != nil {
			return nil, err
		}
		mode = m
	}

	opts.Progress.Log("Resolving %d packages (%s mode, %d jobs)", len(req.Packages), mode, opts.Jobs)
	results, err := resolveAll(ctx, source, req, mode, opts)
	if err != nil {
		return nil, err
	}

	outs := make([]*output.RequestOutput, 0, len(results))
	for _, r := range results {
		outs = append(outs, r.out)
	}
	merged, err := output.Merge(outs...)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil { //nolint:gosec // build output is world-readable
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	res := &Result{
		Output:   merged,
		SBOMPath: filepath.Join(opts.OutputDir, opts.SBOMName),
		EnvPath:  filepath.Join(opts.OutputDir, EnvFileName),
	}
	if err := sbom.WriteFile(res.SBOMPath, sbom.New(merged.Components, opts.ToolVersion)); err != nil {
		return nil, err
	}
	if err := output.WriteJSON(res.EnvPath, merged.EnvironmentVariables); err != nil {
		return nil, err
	}

	res.Lock, err = lockState(source, results, opts.ToolVersion)
	if err != nil {
		return nil, err
	}
	if opts.LockPath != "" {
		if err := lock.Save(opts.LockPath, res.Lock); err != nil {
			return nil, err
		}
	}
	opts.Logger.Info("scan complete", "packages", len(req.Packages), "components", len(merged.Components), "sbom", res.SBOMPath)
	return res, nil
}

func resolveAll(ctx context.Context, source rootedpath.RootedPath, req *request.Request, mode workspace.Mode, opts Options) ([]packageResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	resolvers := make([]Resolver, len(req.Packages))
	for i, pkg := range req.Packages {
		r, err := opts.Resolvers.Lookup(pkg.Type)
		if err != nil {
			return nil, err
		}
		resolvers[i] = r
	}

	results := make([]packageResult, len(req.Packages))
	sem := make(chan struct{}, opts.Jobs)
	var wg sync.WaitGroup
	errCh := make(chan error, len(req.Packages))

	for i, pkg := range req.Packages {
		wg.Add(1)
		go func(i int, pkg request.Package, resolver Resolver) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			label := pkg.Key()
			if err := ctx.Err(); err != nil {
				errCh <- err
				return
			}
			in := workspace.Input{
				Source:       source,
				Package:      pkg,
				Mode:         mode,
				Flags:        req.Flags,
				PipIndexURL:  opts.PipIndexURL,
				YarnRegistry: opts.YarnRegistry,
				Logger:       opts.Logger.With("package", label),
			}
			out, err := resolver.Resolve(ctx, in)
			if err != nil {
				opts.Progress.Fail(label, err)
				errCh <- fmt.Errorf("package %s: %w", label, err)
				cancel()
				return
			}
			opts.Progress.Done(label, len(out.Components))
			if len(out.Components) == 0 {
				opts.Progress.Warn("%s: no components found", label)
			}
			results[i] = packageResult{pkg: pkg, out: out}
		}(i, pkg, resolvers[i])
	}

	wg.Wait()
	close(errCh)

	var first error
	for e := range errCh {
		if first == nil || errors.Is(first, context.Canceled) {
			first = e
		}
	}
	if first != nil {
		return nil, first
	}
	return results, nil
}

// lockState records the digests of every input file per package.
func lockState(source rootedpath.RootedPath, results []packageResult, toolVersion string) (*lock.File, error) {
	lf := &lock.File{
		Version:     1,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		ToolVersion: toolVersion,
		Packages:    map[string]*lock.Package{},
	}
	for _, r := range results {
		files, err := lock.DigestFiles(source.Path(), r.out.InputFiles)
		if err != nil {
			return nil, err
		}
		key := r.pkg.Key()
		if existing, ok := lf.Packages[key]; ok {
			for f, d := range files {
				existing.Files[f] = d
			}
			existing.Components += len(r.out.Components)
			continue
		}
		lf.Packages[key] = &lock.Package{Files: files, Components: len(r.out.Components)}
	}
	return lf, nil
}

// CurrentState recomputes the digests of the files recorded in prev for the
// packages of req. Packages of req that prev does not know have no files.
func CurrentState(source rootedpath.RootedPath, req *request.Request, prev *lock.File) (*lock.File, error) {
	cur := &lock.File{Version: 1, Packages: map[string]*lock.Package{}}
	for i := range req.Packages {
		key := req.Packages[i].Key()
		p := &lock.Package{Files: map[string]string{}}
		if prev != nil {
			if old, ok := prev.Packages[key]; ok {
				rels := make([]string, 0, len(old.Files))
				for f := range old.Files {
					rels = append(rels, f)
				}
				files, err := lock.DigestFiles(source.Path(), rels)
				if err != nil {
					return nil, err
				}
				p.Files = files
				p.Components = old.Components
			}
		}
		cur.Packages[key] = p
	}
	return cur, nil
}
