package lockfile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/pelletier/go-toml/v2"

	"github.com/fbkclanna/lockscan/internal/apperr"
	"github.com/fbkclanna/lockscan/internal/gomod"
	"github.com/fbkclanna/lockscan/internal/pip"
	"github.com/fbkclanna/lockscan/internal/rootedpath"
	"github.com/fbkclanna/lockscan/internal/yarn"
	"github.com/fbkclanna/lockscan/internal/yarnclassic"
)

// Result is a parsed file.
type Result struct {
	Kind Kind   `json:"kind"`
	Path string `json:"path"`
	Data any    `json:"data"`
}

// Package is one dependency listed by a parsed file.
type Package struct {
	Name    string
	Version string
	Source  string
}

// GoWork is the JSON view of a go.work file.
type GoWork struct {
	Go        string               `json:"go,omitempty"`
	Toolchain string               `json:"toolchain,omitempty"`
	Use       []string             `json:"use"`
	Replace   []gomod.ParsedModule `json:"replace,omitempty"`
}

// Parse detects the kind of the file at path and parses it.
func Parse(path string) (*Result, error) {
	kind, err := Detect(path)
	if err != nil {
		return nil, err
	}
	return ParseAs(path, kind)
}

// ParseAs parses the file at path as the given kind.
func ParseAs(path string, kind Kind) (*Result, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	dir, err := rootedpath.New(filepath.Dir(abs))
	if err != nil {
		return nil, err
	}
	file, err := dir.Join(filepath.Base(abs))
	if err != nil {
		return nil, err
	}
	if !file.IsFile() {
		return nil, apperr.InvalidInput(fmt.Sprintf("%s is not a file", path))
	}

	var data any
	switch kind {
	case KindGoSum:
		set, err := gomod.ParseGoSum(file, nil)
		if err != nil {
			return nil, err
		}
		ids := make([]gomod.ModuleID, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			if ids[i].Path != ids[j].Path {
				return ids[i].Path < ids[j].Path
			}
			return ids[i].Version < ids[j].Version
		})
		data = ids
	case KindGoMod:
		data, err = withContent(file, func(b []byte) (any, error) { return gomod.ParseManifest(file.Subpath(), b) })
	case KindGoWork:
		gw, perr := gomod.ParseGoWork(file)
		if perr != nil {
			return nil, apperr.UnexpectedFormat(fmt.Sprintf("%s could not be parsed", path), apperr.Wrap(perr))
		}
		data = &GoWork{Go: gw.Go, Toolchain: gw.Toolchain, Use: append([]string{}, gw.Use...), Replace: gw.Replace}
	case KindModulesTxt:
		data, err = withContent(file, func(b []byte) (any, error) {
			mods, err := gomod.ParseModulesTxt(b)
			if mods == nil {
				mods = []gomod.ParsedModule{}
			}
			return mods, err
		})
	case KindRequirements:
		data, err = withContent(file, func(b []byte) (any, error) { return pip.ParseRequirements(b) })
	case KindYarnLock:
		data, err = withContent(file, func(b []byte) (any, error) { return yarn.ParseLockfile(b) })
	case KindYarnClassicLock:
		data, err = withContent(file, func(b []byte) (any, error) { return yarnclassic.ParseLockfile(b) })
	case KindPackageJSON:
		pj, perr := yarn.LoadPackageJSON(file)
		if perr != nil {
			return nil, perr
		}
		data = pj.Data
	case KindYarnRc:
		rc, perr := yarn.LoadYarnRc(file)
		if perr != nil {
			return nil, perr
		}
		data = rc.Data
	case KindPyProject:
		data, err = withContent(file, func(b []byte) (any, error) {
			m := map[string]any{}
			if err := toml.Unmarshal(b, &m); err != nil {
				return nil, apperr.UnexpectedFormat("Can't parse the pyproject.toml file", apperr.Wrap(err))
			}
			return m, nil
		})
	default:
		return nil, apperr.UnsupportedFeature(fmt.Sprintf("Unsupported kind '%s'", kind))
	}
	if err != nil {
		return nil, err
	}
	return &Result{Kind: kind, Path: path, Data: data}, nil
}

func withContent(file rootedpath.RootedPath, parse func([]byte) (any, error)) (any, error) {
	b, err := os.ReadFile(file.Path())
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", file.Subpath(), err)
	}
	return parse(b)
}

// Packages lists the dependencies of the parsed file, sorted by name.
// Kinds that carry no dependency list yield nil.
func (r *Result) Packages() []Package {
	var out []Package
	switch d := r.Data.(type) {
	case []gomod.ModuleID:
		for _, m := range d {
			out = append(out, Package{Name: m.Path, Version: m.Version, Source: "go.sum"})
		}
	case *gomod.Manifest:
		for _, m := range d.Require {
			src := "require"
			if m.Indirect {
				src = "require (indirect)"
			}
			out = append(out, Package{Name: m.Path, Version: m.Version, Source: src})
		}
	case []gomod.ParsedModule:
		for _, m := range d {
			out = append(out, Package{Name: m.Path, Version: m.Version, Source: "vendor"})
		}
	case *pip.RequirementsFile:
		for _, req := range d.Requirements {
			v := ""
			if len(req.VersionSpecs) > 0 {
				v = req.VersionSpecs[0].Op + req.VersionSpecs[0].Version
			}
			out = append(out, Package{Name: req.Package, Version: v, Source: string(req.Kind)})
		}
	case *yarn.Lockfile:
		for _, e := range d.Entries {
			l, err := yarn.ParseLocator(e.Resolution)
			if err != nil {
				slog.Debug("unparsable yarn resolution", "resolution", e.Resolution, "err", err)
				out = append(out, Package{Name: e.Resolution, Version: e.Version, Source: e.Resolution})
				continue
			}
			out = append(out, Package{Name: l.FullName(), Version: e.Version, Source: string(l.Protocol)})
		}
	case *yarnclassic.Lockfile:
		for _, e := range d.Entries {
			out = append(out, Package{Name: e.Name, Version: e.Version, Source: e.Resolved})
		}
	case map[string]any:
		if r.Kind != KindPackageJSON {
			return nil
		}
		pj := &yarn.PackageJSON{Data: d}
		for _, field := range []string{"dependencies", "devDependencies", "optionalDependencies", "peerDependencies"} {
			for name, rng := range pj.Dependencies(field) {
				out = append(out, Package{Name: name, Version: rng, Source: field})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
