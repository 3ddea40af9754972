package yarnclassic

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/fbkclanna/lockscan/internal/apperr"
	"github.com/fbkclanna/lockscan/internal/rootedpath"
	"github.com/fbkclanna/lockscan/internal/yarn"
)

// Workspace is a package of a workspaces project.
type Workspace struct {
	Path        rootedpath.RootedPath
	PackageJSON *yarn.PackageJSON
}

// Name is the package name of the workspace.
func (w Workspace) Name() string { return w.PackageJSON.String("name") }

// workspaceGlobs reads the "workspaces" field, either a list of globs or an
// object with a "packages" list.
func workspaceGlobs(pj *yarn.PackageJSON) []string {
	raw := pj.Get("workspaces")
	if obj, ok := raw.(map[string]any); ok {
		raw = obj["packages"]
	}
	list, _ := raw.([]any)
	globs := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			globs = append(globs, s)
		}
	}
	return globs
}

// workspacePaths expands globs relative to dir into existing directories.
// Every match must stay inside the source root.
func workspacePaths(dir rootedpath.RootedPath, globs []string) ([]rootedpath.RootedPath, error) {
	seen := map[string]bool{}
	var paths []rootedpath.RootedPath
	for _, g := range globs {
		matches, err := doublestar.FilepathGlob(filepath.Join(dir.Path(), filepath.FromSlash(g)))
		if err != nil {
			return nil, apperr.InvalidInput(fmt.Sprintf("Invalid workspace glob '%s'", g), apperr.Wrap(err))
		}
		sort.Strings(matches)
		for _, m := range matches {
			rel, err := filepath.Rel(dir.Path(), m)
			if err != nil {
				return nil, fmt.Errorf("relativizing workspace %s: %w", m, err)
			}
			p, err := dir.Join(rel)
			if err != nil {
				return nil, err
			}
			if !p.IsDir() || seen[p.Path()] {
				continue
			}
			seen[p.Path()] = true
			paths = append(paths, p)
		}
	}
	return paths, nil
}

// ExtractWorkspaces returns the workspaces of the package in dir. Matched
// directories without a package.json are skipped with a warning.
func ExtractWorkspaces(dir rootedpath.RootedPath, pj *yarn.PackageJSON, log *slog.Logger) ([]Workspace, error) {
	if log == nil {
		log = slog.Default()
	}
	paths, err := workspacePaths(dir, workspaceGlobs(pj))
	if err != nil {
		return nil, err
	}
	var workspaces []Workspace
	for _, p := range paths {
		pjPath, err := p.Join("package.json")
		if err != nil {
			return nil, err
		}
		if !pjPath.IsFile() {
			log.Warn("the yarn workspace does not contain a package.json and will be ignored", "workspace", p.Subpath())
			continue
		}
		wpj, err := yarn.LoadPackageJSON(pjPath)
		if err != nil {
			return nil, err
		}
		if wpj.String("name") == "" {
			return nil, apperr.PackageRejected(
				fmt.Sprintf("The workspace at %s has no 'name' in its package.json", p.Subpath()),
				apperr.WithSolution("Workspaces must contain 'name' field."),
			)
		}
		workspaces = append(workspaces, Workspace{Path: p, PackageJSON: wpj})
	}
	return workspaces, nil
}
