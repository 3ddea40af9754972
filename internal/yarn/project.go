package yarn

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fbkclanna/lockscan/internal/apperr"
	"github.com/fbkclanna/lockscan/internal/rootedpath"
)

const (
	defaultCacheFolder = "./.yarn/cache"
	defaultLockfile    = "yarn.lock"
	// DefaultRegistry is the registry yarn uses when npmRegistryServer is unset.
	DefaultRegistry = "https://registry.yarnpkg.com"
)

// PackageJSON is a parsed package.json.
type PackageJSON struct {
	Path rootedpath.RootedPath
	Data map[string]any
}

// LoadPackageJSON reads and parses package.json at path.
func LoadPackageJSON(path rootedpath.RootedPath) (*PackageJSON, error) {
	data, err := path.ReadFile()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path.Subpath(), err)
	}
	pj := &PackageJSON{Path: path, Data: map[string]any{}}
	if err := json.Unmarshal(data, &pj.Data); err != nil {
		return nil, apperr.PackageRejected(
			"Can't parse the package.json file",
			apperr.WithSolution("The package.json file must contain valid JSON. Refer to the parser error and fix the contents of the file."),
			apperr.Wrap(err),
		)
	}
	if pj.Data == nil {
		pj.Data = map[string]any{}
	}
	return pj, nil
}

// Get returns the top-level value for key, or nil.
func (p *PackageJSON) Get(key string) any { return p.Data[key] }

// String returns the top-level string value for key, or "".
func (p *PackageJSON) String(key string) string {
	s, _ := p.Data[key].(string)
	return s
}

// Dependencies returns the name to range map of a dependency field such as
// "dependencies" or "devDependencies".
func (p *PackageJSON) Dependencies(field string) map[string]string {
	raw, _ := p.Data[field].(map[string]any)
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// YarnRc is a parsed .yarnrc.yml. A missing file has no data.
type YarnRc struct {
	Path rootedpath.RootedPath
	Data map[string]any
}

// LoadYarnRc reads .yarnrc.yml at path. A missing file yields an empty
// configuration.
func LoadYarnRc(path rootedpath.RootedPath) (*YarnRc, error) {
	rc := &YarnRc{Path: path, Data: map[string]any{}}
	data, err := path.ReadFile()
	if os.IsNotExist(err) {
		return rc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path.Subpath(), err)
	}
	if err := yaml.Unmarshal(data, &rc.Data); err != nil {
		return nil, apperr.PackageRejected(
			"Can't parse the .yarnrc.yml file",
			apperr.WithSolution("The .yarnrc.yml file must contain a valid YAML mapping. Refer to the parser error and fix the contents of the file."),
			apperr.Wrap(err),
		)
	}
	if rc.Data == nil {
		rc.Data = map[string]any{}
	}
	return rc, nil
}

// Write saves the configuration back to its path.
func (rc *YarnRc) Write() error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(rc.Data); err != nil {
		return fmt.Errorf("encoding %s: %w", rc.Path.Subpath(), err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encoding %s: %w", rc.Path.Subpath(), err)
	}
	if err := os.WriteFile(rc.Path.Path(), buf.Bytes(), 0644); err != nil { //nolint:gosec // config file, not secret
		return fmt.Errorf("writing %s: %w", rc.Path.Subpath(), err)
	}
	return nil
}

func (rc *YarnRc) str(key string) string {
	s, _ := rc.Data[key].(string)
	return s
}

// CacheFolder is cacheFolder, or "" if unset.
func (rc *YarnRc) CacheFolder() string { return rc.str("cacheFolder") }

// LockfileFilename is lockfileFilename, defaulting to yarn.lock.
func (rc *YarnRc) LockfileFilename() string {
	if s := rc.str("lockfileFilename"); s != "" {
		return s
	}
	return defaultLockfile
}

// NodeLinker is nodeLinker, or "" if unset.
func (rc *YarnRc) NodeLinker() string { return rc.str("nodeLinker") }

// YarnPath is yarnPath, or "" if unset.
func (rc *YarnRc) YarnPath() string { return rc.str("yarnPath") }

// Registry is npmRegistryServer, defaulting to the public yarn registry.
func (rc *YarnRc) Registry() string {
	if s := rc.str("npmRegistryServer"); s != "" {
		return s
	}
	return DefaultRegistry
}

// ScopeRegistry is the registry configured for an npm scope (without "@"),
// falling back to Registry.
func (rc *YarnRc) ScopeRegistry(scope string) string {
	scopes, _ := rc.Data["npmScopes"].(map[string]any)
	if cfg, ok := scopes[scope].(map[string]any); ok {
		if s, ok := cfg["npmRegistryServer"].(string); ok && s != "" {
			return s
		}
	}
	return rc.Registry()
}

// Plugins returns the spec of every configured plugin.
func (rc *YarnRc) Plugins() []string {
	list, _ := rc.Data["plugins"].([]any)
	var out []string
	for _, p := range list {
		switch v := p.(type) {
		case map[string]any:
			if s, ok := v["spec"].(string); ok {
				out = append(out, s)
			} else if s, ok := v["path"].(string); ok {
				out = append(out, s)
			}
		case string:
			out = append(out, v)
		}
	}
	return out
}

// Project is a yarn project rooted at a source directory.
type Project struct {
	SourceDir   rootedpath.RootedPath
	PackageJSON *PackageJSON
	YarnRc      *YarnRc
}

// NewProject loads package.json and .yarnrc.yml from dir.
func NewProject(dir rootedpath.RootedPath) (*Project, error) {
	pjPath, err := dir.Join("package.json")
	if err != nil {
		return nil, err
	}
	if !pjPath.IsFile() {
		return nil, apperr.PackageRejected(
			"The package.json file must be present for the yarn package manager",
			apperr.WithSolution("Please verify that the package path is correct and that the project uses yarn."),
		)
	}
	pj, err := LoadPackageJSON(pjPath)
	if err != nil {
		return nil, err
	}
	rcPath, err := dir.Join(".yarnrc.yml")
	if err != nil {
		return nil, err
	}
	rc, err := LoadYarnRc(rcPath)
	if err != nil {
		return nil, err
	}
	return &Project{SourceDir: dir, PackageJSON: pj, YarnRc: rc}, nil
}

// YarnCache is the cache directory. It fails if cacheFolder points outside
// the source root.
func (p *Project) YarnCache() (rootedpath.RootedPath, error) {
	folder := p.YarnRc.CacheFolder()
	if folder == "" {
		folder = defaultCacheFolder
	}
	return p.SourceDir.Join(folder)
}

// Lockfile is the path of the lockfile named by .yarnrc.yml.
func (p *Project) Lockfile() (rootedpath.RootedPath, error) {
	return p.SourceDir.Join(p.YarnRc.LockfileFilename())
}

// IsPnP reports whether the project installs with Plug'n'Play, yarn's
// default linker.
func (p *Project) IsPnP() bool {
	linker := p.YarnRc.NodeLinker()
	return linker == "" || linker == "pnp"
}

// IsZeroInstalls reports whether dependencies are committed: a populated
// cache for PnP projects, a node_modules directory otherwise.
func (p *Project) IsZeroInstalls() bool {
	if !p.IsPnP() {
		nm, err := p.SourceDir.Join("node_modules")
		return err == nil && nm.IsDir()
	}
	cache, err := p.YarnCache()
	if err != nil || !cache.IsDir() {
		return false
	}
	entries, err := os.ReadDir(cache.Path())
	return err == nil && len(entries) > 0
}
