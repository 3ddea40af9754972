package pip

import (
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hashicorp/go-version"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/ini.v1"

	"github.com/fbkclanna/lockscan/internal/apperr"
	"github.com/fbkclanna/lockscan/internal/git"
	"github.com/fbkclanna/lockscan/internal/rootedpath"
)

// Metadata is the name and version of the package being scanned. Version is
// empty when none of the project files declare one.
type Metadata struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// ReadMetadata looks for the package name and version in pyproject.toml,
// setup.py and setup.cfg, in that order, and falls back to a name derived
// from the origin remote of the repository.
func ReadMetadata(dir rootedpath.RootedPath, log *slog.Logger) (Metadata, error) {
	if log == nil {
		log = slog.Default()
	}
	meta, err := metadataFromConfigFiles(dir, log)
	if err != nil {
		return Metadata{}, err
	}
	if meta.Name == "" {
		name, err := nameFromOrigin(dir)
		if err != nil {
			return Metadata{}, err
		}
		meta.Name = name
	}
	log.Info("resolved package name", "name", meta.Name, "path", dir.Subpath())
	if meta.Version != "" {
		log.Info("resolved package version", "version", meta.Version, "path", dir.Subpath())
	} else {
		log.Warn("could not resolve version for package", "path", dir.Subpath())
	}
	return meta, nil
}

type metadataSource struct {
	file string
	read func(rootedpath.RootedPath, *slog.Logger) (Metadata, error)
}

var metadataSources = []metadataSource{
	{"pyproject.toml", readPyProject},
	{"setup.py", readSetupPy},
	{"setup.cfg", readSetupCfg},
}

func metadataFromConfigFiles(dir rootedpath.RootedPath, log *slog.Logger) (Metadata, error) {
	for _, src := range metadataSources {
		p, err := dir.Join(src.file)
		if err != nil {
			return Metadata{}, err
		}
		if !p.IsFile() {
			continue
		}
		log.Debug("checking " + src.file + " for metadata")
		meta, err := src.read(p, log)
		if err != nil {
			return Metadata{}, err
		}
		if meta.Name != "" {
			return meta, nil
		}
	}
	return Metadata{}, nil
}

func readPyProject(p rootedpath.RootedPath, log *slog.Logger) (Metadata, error) {
	data, err := p.ReadFile()
	if err != nil {
		return Metadata{}, fmt.Errorf("reading %s: %w", p.Subpath(), err)
	}
	var doc struct {
		Project struct {
			Name    string `toml:"name"`
			Version string `toml:"version"`
		} `toml:"project"`
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		log.Error("failed to parse pyproject.toml", "err", err)
		return Metadata{}, nil
	}
	if doc.Project.Name == "" {
		log.Warn("no project.name in pyproject.toml")
	}
	if doc.Project.Version == "" {
		log.Warn("no project.version in pyproject.toml")
	}
	return Metadata{Name: doc.Project.Name, Version: doc.Project.Version}, nil
}

var (
	setupCall   = regexp.MustCompile(`(?m)^[^#\n]*?\b(?:setuptools\.)?setup\s*\(`)
	identifier  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	pyNameRe    = regexp.MustCompile(`^[^\W\d]\w*$`)
	literalExpr = regexp.MustCompile(`^(?:"([^"\\]*)"|'([^'\\]*)'|([0-9][0-9.]*))$`)
)

// readSetupPy extracts literal name= and version= arguments of the setup()
// call. An argument that is a plain variable is looked up among the module's
// top-level assignments. setup.py is never executed.
func readSetupPy(p rootedpath.RootedPath, log *slog.Logger) (Metadata, error) {
	data, err := p.ReadFile()
	if err != nil {
		return Metadata{}, fmt.Errorf("reading %s: %w", p.Subpath(), err)
	}
	src := string(data)
	loc := setupCall.FindStringIndex(src)
	if loc == nil {
		log.Debug("no setup() call found in setup.py")
		return Metadata{}, nil
	}
	args, ok := callArguments(src[loc[1]:])
	if !ok {
		log.Debug("setup() call in setup.py is not closed")
		return Metadata{}, nil
	}
	kwargs := keywordArguments(args)

	var meta Metadata
	for _, field := range []string{"name", "version"} {
		expr, ok := kwargs[field]
		if !ok {
			log.Debug("setup() has no " + field + " argument")
			continue
		}
		val, ok := literalValue(expr)
		if !ok && identifier.MatchString(expr) {
			val, ok = topLevelAttr(src, expr)
		}
		if !ok {
			log.Debug("setup() argument is not a literal", "arg", field, "expr", expr)
			continue
		}
		if field == "name" {
			meta.Name = val
		} else {
			meta.Version = canonicalVersion(val, log)
		}
	}
	return meta, nil
}

// callArguments returns the text up to the parenthesis closing the call
// whose opening parenthesis precedes s.
func callArguments(s string) (string, bool) {
	depth := 1
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '#':
			for i < len(s) && s[i] != '\n' {
				i++
			}
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			depth--
			if depth == 0 {
				return s[:i], true
			}
		}
	}
	return "", false
}

// keywordArguments splits top-level "key=value" arguments.
func keywordArguments(args string) map[string]string {
	out := map[string]string{}
	depth := 0
	var quote byte
	start := 0
	flush := func(end int) {
		k, v, ok := strings.Cut(args[start:end], "=")
		if !ok {
			return
		}
		k = strings.TrimSpace(k)
		if identifier.MatchString(k) {
			out[k] = strings.TrimSpace(v)
		}
	}
	for i := 0; i < len(args); i++ {
		c := args[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			depth--
		case c == ',' && depth == 0:
			flush(i)
			start = i + 1
		}
	}
	flush(len(args))
	return out
}

// literalValue evaluates a string or number literal, or a tuple or list of
// them joined with dots.
func literalValue(expr string) (string, bool) {
	expr = strings.TrimSpace(expr)
	if m := literalExpr.FindStringSubmatch(expr); m != nil {
		return m[1] + m[2] + m[3], true
	}
	if len(expr) >= 2 && (expr[0] == '(' && expr[len(expr)-1] == ')' || expr[0] == '[' && expr[len(expr)-1] == ']') {
		var parts []string
		for _, item := range strings.Split(expr[1:len(expr)-1], ",") {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			v, ok := literalValue(item)
			if !ok {
				return "", false
			}
			parts = append(parts, v)
		}
		if len(parts) == 0 {
			return "", false
		}
		return strings.Join(parts, "."), true
	}
	return "", false
}

// topLevelAttr finds the last unindented "name = <literal>" assignment.
func topLevelAttr(src, name string) (string, bool) {
	assign := regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(name) + `\s*(?::[^=]+)?=\s*(.+?)\s*(?:#.*)?$`)
	matches := assign.FindAllStringSubmatch(src, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		if v, ok := literalValue(matches[i][1]); ok {
			return v, true
		}
	}
	return "", false
}

func readSetupCfg(p rootedpath.RootedPath, log *slog.Logger) (Metadata, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		AllowPythonMultilineValues: true,
		InsensitiveKeys:            true,
	}, p.Path())
	if err != nil {
		log.Error("failed to parse setup.cfg", "err", err)
		return Metadata{}, nil
	}
	get := func(section, key string) string {
		s, err := cfg.GetSection(section)
		if err != nil || !s.HasKey(key) {
			return ""
		}
		return strings.TrimSpace(s.Key(key).String())
	}

	var meta Metadata
	meta.Name = get("metadata", "name")
	if meta.Name == "" {
		log.Info("no metadata.name in setup.cfg")
	}
	raw := get("metadata", "version")
	if raw == "" {
		log.Info("no metadata.version in setup.cfg")
		return meta, nil
	}

	dir, err := p.Join("..")
	if err != nil {
		return Metadata{}, err
	}

	var v string
	switch {
	case strings.HasPrefix(raw, "file:"):
		v, err = versionFromFile(dir, strings.TrimSpace(strings.TrimPrefix(raw, "file:")), log)
	case strings.HasPrefix(raw, "attr:"):
		v, err = versionFromAttr(dir, strings.TrimSpace(strings.TrimPrefix(raw, "attr:")), packageDirs(get("options", "package_dir")), log)
	default:
		v = raw
	}
	if err != nil {
		return Metadata{}, err
	}
	if v == "" {
		log.Info("failed to resolve metadata.version in setup.cfg")
		return meta, nil
	}
	meta.Version = canonicalVersion(v, log)
	return meta, nil
}

func versionFromFile(dir rootedpath.RootedPath, file string, log *slog.Logger) (string, error) {
	p, err := dir.Join(file)
	if err != nil {
		return "", err
	}
	if !p.IsFile() {
		log.Error("version file does not exist or is not a file", "file", file)
		return "", nil
	}
	data, err := p.ReadFile()
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", p.Subpath(), err)
	}
	return strings.TrimSpace(string(data)), nil
}

// versionFromAttr resolves "attr: pkg.module.__version__" by reading the
// module source and finding a literal top-level assignment.
func versionFromAttr(dir rootedpath.RootedPath, spec string, pkgDirs map[string]string, log *slog.Logger) (string, error) {
	module, attr := "__init__", spec
	if i := strings.LastIndex(spec, "."); i >= 0 {
		module, attr = spec[:i], spec[i+1:]
		if module == "" {
			module = "__init__"
		}
	}
	file, err := findModule(dir, module, pkgDirs)
	if err != nil {
		return "", err
	}
	if file == nil {
		log.Error("module not found", "module", module)
		return "", nil
	}
	data, err := file.ReadFile()
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", file.Subpath(), err)
	}
	v, ok := topLevelAttr(string(data), attr)
	if !ok {
		log.Error("could not find attribute in module", "attr", attr, "module", module)
		return "", nil
	}
	return v, nil
}

func findModule(dir rootedpath.RootedPath, module string, pkgDirs map[string]string) (*rootedpath.RootedPath, error) {
	parts := strings.Split(module, ".")
	if parts[0] == "" {
		parts = parts[1:]
	}
	for _, part := range parts {
		if !pyNameRe.MatchString(part) {
			return nil, apperr.PackageRejected(fmt.Sprintf("'%s' is not an accepted module name", module))
		}
	}
	modPath := path.Join(parts...)
	if custom, ok := pkgDirs[parts[0]]; ok {
		modPath = path.Join(append([]string{custom}, parts[1:]...)...)
	} else if custom, ok := pkgDirs[""]; ok {
		modPath = path.Join(custom, modPath)
	}

	for _, candidate := range []string{path.Join(modPath, "__init__.py"), modPath + ".py"} {
		p, err := dir.Join(candidate)
		if err != nil {
			return nil, err
		}
		if p.IsFile() {
			return &p, nil
		}
	}
	return nil, nil
}

// packageDirs parses options.package_dir: "pkg = dir" items separated by
// newlines or commas.
func packageDirs(value string) map[string]string {
	if value == "" {
		return nil
	}
	var items []string
	if strings.Contains(value, "\n") {
		items = strings.Split(value, "\n")
	} else {
		items = strings.Split(value, ",")
	}
	out := map[string]string{}
	for _, item := range items {
		k, v, ok := strings.Cut(strings.TrimSpace(item), "=")
		if ok {
			out[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return out
}

// canonicalVersion drops a leading "v" and logs versions that do not parse.
func canonicalVersion(v string, log *slog.Logger) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(strings.TrimPrefix(v, "v"), "V")
	if _, err := version.NewVersion(v); err != nil {
		log.Warn("package version is not a valid version", "version", v, "err", err)
	}
	return v
}

// nameFromOrigin derives a name from the origin repository name and the
// package subpath, e.g. "repo-sub-dir".
func nameFromOrigin(dir rootedpath.RootedPath) (string, error) {
	rejected := apperr.PackageRejected(
		"Unable to infer package name from origin URL",
		apperr.WithSolution("Provide valid metadata in the package files or ensure the git repository has an 'origin' remote with a valid URL."),
	)
	id, err := git.GetRepoID(dir.Root())
	if err != nil {
		return "", rejected
	}
	u, err := id.ParsedOriginURL()
	if err != nil {
		return "", rejected
	}
	base := path.Base(strings.TrimRight(u.Path, "/"))
	stem := strings.TrimSuffix(base, path.Ext(base))
	name := stem
	if sub := dir.Subpath(); sub != "." {
		name = path.Join(stem, filepath.ToSlash(sub))
	}
	return strings.Trim(CanonicalizeName(strings.ReplaceAll(name, "/", "-")), "-."), nil
}
