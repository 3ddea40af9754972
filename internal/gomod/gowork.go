package gomod

import (
	"fmt"
	"path/filepath"

	"golang.org/x/mod/modfile"

	"github.com/fbkclanna/lockscan/internal/rootedpath"
)

// GoWork is a parsed go.work file.
type GoWork struct {
	Path      rootedpath.RootedPath
	Dir       rootedpath.RootedPath
	Go        string
	Toolchain string
	Use       []string
	Replace   []ParsedModule
}

// FindGoWork looks for go.work in appDir and its parents, stopping at the
// source root. It returns nil when there is none.
func FindGoWork(appDir rootedpath.RootedPath) (*GoWork, error) {
	dir := appDir.Path()
	for {
		rp, err := appDir.Join(filepath.Join(dir, "go.work"))
		if err != nil {
			return nil, err
		}
		if rp.IsFile() {
			return ParseGoWork(rp)
		}
		if dir == appDir.Root() {
			return nil, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// ParseGoWork parses the go.work file at path.
func ParseGoWork(goWorkPath rootedpath.RootedPath) (*GoWork, error) {
	data, err := goWorkPath.ReadFile()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", goWorkPath.Subpath(), err)
	}
	wf, err := modfile.ParseWork(goWorkPath.Path(), data, nil)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", goWorkPath.Subpath(), err)
	}
	dir, err := goWorkPath.Join(filepath.Dir(goWorkPath.Path()))
	if err != nil {
		return nil, err
	}

	gw := &GoWork{Path: goWorkPath, Dir: dir}
	if wf.Go != nil {
		gw.Go = wf.Go.Version
	}
	if wf.Toolchain != nil {
		gw.Toolchain = wf.Toolchain.Name
	}
	for _, u := range wf.Use {
		gw.Use = append(gw.Use, u.Path)
	}
	for _, r := range wf.Replace {
		gw.Replace = append(gw.Replace, ParsedModule{
			Path:    r.Old.Path,
			Version: r.Old.Version,
			Replace: &ParsedModule{Path: r.New.Path, Version: r.New.Version},
		})
	}
	return gw, nil
}

// WorkspacePaths returns the directories listed in use directives. Each must
// stay inside the source root.
func (w *GoWork) WorkspacePaths() ([]rootedpath.RootedPath, error) {
	out := make([]rootedpath.RootedPath, 0, len(w.Use))
	for _, u := range w.Use {
		p, err := w.Dir.Join(u)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// SumFile returns the go.work.sum path next to go.work.
func (w *GoWork) SumFile() (rootedpath.RootedPath, error) {
	return w.Dir.Join("go.work.sum")
}
