package yarn

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fbkclanna/lockscan/internal/apperr"
)

// Lockfile is a parsed Berry yarn.lock.
type Lockfile struct {
	Version  string  `json:"version"`
	CacheKey string  `json:"cacheKey,omitempty"`
	Entries  []Entry `json:"entries"`
}

// Entry is one resolved package of the lockfile.
type Entry struct {
	Descriptors      []string          `json:"descriptors"`
	Version          string            `json:"version"`
	Resolution       string            `json:"resolution"`
	Checksum         string            `json:"checksum,omitempty"`
	LanguageName     string            `json:"languageName,omitempty"`
	LinkType         string            `json:"linkType,omitempty"`
	Dependencies     map[string]string `json:"dependencies,omitempty"`
	PeerDependencies map[string]string `json:"peerDependencies,omitempty"`
	DependenciesMeta map[string]any    `json:"dependenciesMeta,omitempty"`
	Bin              map[string]string `json:"bin,omitempty"`
	Conditions       string            `json:"conditions,omitempty"`
}

type rawEntry struct {
	Version          string            `yaml:"version"`
	Resolution       string            `yaml:"resolution"`
	Checksum         string            `yaml:"checksum"`
	LanguageName     string            `yaml:"languageName"`
	LinkType         string            `yaml:"linkType"`
	Dependencies     map[string]string `yaml:"dependencies"`
	PeerDependencies map[string]string `yaml:"peerDependencies"`
	DependenciesMeta map[string]any    `yaml:"dependenciesMeta"`
	Bin              map[string]string `yaml:"bin"`
	Conditions       string            `yaml:"conditions"`
}

// ParseLockfile parses Berry lockfile content. Entries are sorted by
// resolution.
func ParseLockfile(data []byte) (*Lockfile, error) {
	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, apperr.UnexpectedFormat("Can't parse the yarn.lock file", apperr.Wrap(err))
	}
	meta, ok := raw["__metadata"]
	if !ok {
		return nil, apperr.UnexpectedFormat("yarn.lock has no __metadata section; is it a Yarn v1 lockfile?")
	}
	var m struct {
		Version  string `yaml:"version"`
		CacheKey string `yaml:"cacheKey"`
	}
	if err := meta.Decode(&m); err != nil {
		return nil, apperr.UnexpectedFormat("Can't parse the yarn.lock __metadata section", apperr.Wrap(err))
	}

	lf := &Lockfile{Version: m.Version, CacheKey: m.CacheKey, Entries: []Entry{}}
	for key, node := range raw {
		if key == "__metadata" {
			continue
		}
		var re rawEntry
		if err := node.Decode(&re); err != nil {
			return nil, apperr.UnexpectedFormat(fmt.Sprintf("Can't parse the yarn.lock entry '%s'", key), apperr.Wrap(err))
		}
		if re.Resolution == "" {
			return nil, apperr.UnexpectedFormat(fmt.Sprintf("yarn.lock entry '%s' has no resolution", key))
		}
		descriptors := strings.Split(key, ",")
		for i := range descriptors {
			descriptors[i] = strings.TrimSpace(descriptors[i])
		}
		lf.Entries = append(lf.Entries, Entry{
			Descriptors:      descriptors,
			Version:          re.Version,
			Resolution:       re.Resolution,
			Checksum:         re.Checksum,
			LanguageName:     re.LanguageName,
			LinkType:         re.LinkType,
			Dependencies:     re.Dependencies,
			PeerDependencies: re.PeerDependencies,
			DependenciesMeta: re.DependenciesMeta,
			Bin:              re.Bin,
			Conditions:       re.Conditions,
		})
	}
	sort.Slice(lf.Entries, func(i, j int) bool { return lf.Entries[i].Resolution < lf.Entries[j].Resolution })
	return lf, nil
}

// Protocol names a locator protocol.
type Protocol string

const (
	ProtocolNPM       Protocol = "npm"
	ProtocolWorkspace Protocol = "workspace"
	ProtocolPatch     Protocol = "patch"
	ProtocolFile      Protocol = "file"
	ProtocolLink      Protocol = "link"
	ProtocolPortal    Protocol = "portal"
	ProtocolGit       Protocol = "git"
	ProtocolHTTPS     Protocol = "https"
	ProtocolExec      Protocol = "exec"
)

// Locator is a parsed resolution, e.g. "@scope/name@npm:1.0.0".
type Locator struct {
	Scope     string
	Name      string
	Protocol  Protocol
	Reference string
}

// FullName is the package name including its scope.
func (l Locator) FullName() string {
	if l.Scope != "" {
		return "@" + l.Scope + "/" + l.Name
	}
	return l.Name
}

// ParseLocator parses a lockfile resolution.
func ParseLocator(resolution string) (Locator, error) {
	if len(resolution) < 2 {
		return Locator{}, apperr.UnexpectedFormat(fmt.Sprintf("Can't parse the locator '%s'", resolution))
	}
	at := strings.Index(resolution[1:], "@") + 1
	if at == 0 {
		return Locator{}, apperr.UnexpectedFormat(fmt.Sprintf("Can't parse the locator '%s'", resolution))
	}
	ident, ref := resolution[:at], resolution[at+1:]

	var l Locator
	if strings.HasPrefix(ident, "@") {
		scope, name, ok := strings.Cut(ident[1:], "/")
		if !ok || scope == "" || name == "" {
			return Locator{}, apperr.UnexpectedFormat(fmt.Sprintf("Can't parse the locator '%s'", resolution))
		}
		l.Scope, l.Name = scope, name
	} else {
		l.Name = ident
	}
	if l.Name == "" || ref == "" {
		return Locator{}, apperr.UnexpectedFormat(fmt.Sprintf("Can't parse the locator '%s'", resolution))
	}
	l.Reference = ref
	l.Protocol = protocolOf(ref)
	return l, nil
}

func protocolOf(ref string) Protocol {
	scheme, _, ok := strings.Cut(ref, ":")
	if !ok {
		return ""
	}
	switch scheme {
	case "npm", "workspace", "patch", "file", "link", "portal", "exec":
		return Protocol(scheme)
	case "git", "git+ssh", "git+https", "git+http", "github", "ssh":
		return ProtocolGit
	case "https", "http":
		if isGitReference(ref) {
			return ProtocolGit
		}
		return ProtocolHTTPS
	}
	return Protocol(scheme)
}

// isGitReference reports whether an http(s) reference is a git checkout,
// written by yarn as "<repo>.git#commit=<sha>" or "<repo>#commit=<sha>".
func isGitReference(ref string) bool {
	base, fragment, _ := strings.Cut(ref, "#")
	return strings.HasSuffix(base, ".git") || strings.Contains(fragment, "commit=")
}

// NPMVersion is the version of an npm: locator.
func (l Locator) NPMVersion() string {
	return strings.TrimPrefix(l.Reference, "npm:")
}

// Path is the source-relative path of a workspace, file, link or portal
// locator, without any "::" bindings.
func (l Locator) Path() string {
	_, p, _ := strings.Cut(l.Reference, ":")
	p, _, _ = strings.Cut(p, "::")
	p, _, _ = strings.Cut(p, "#")
	if unq, err := url.PathUnescape(p); err == nil {
		p = unq
	}
	return p
}

// PatchedLocator returns the locator a patch: reference applies to.
func (l Locator) PatchedLocator() (Locator, error) {
	inner := strings.TrimPrefix(l.Reference, "patch:")
	inner, _, _ = strings.Cut(inner, "#")
	if unq, err := url.PathUnescape(inner); err == nil {
		inner = unq
	}
	return ParseLocator(inner)
}

// GitSource splits a git reference into a repository URL and commit.
func (l Locator) GitSource() (repo, commit string) {
	base, fragment, _ := strings.Cut(l.Reference, "#")
	for _, part := range strings.Split(fragment, "&") {
		k, v, ok := strings.Cut(part, "=")
		switch {
		case ok && k == "commit":
			commit = v
		case !ok && part != "":
			commit = part
		}
	}
	if strings.HasPrefix(base, "github:") {
		base = "https://github.com/" + strings.TrimPrefix(base, "github:") + ".git"
	}
	return base, commit
}
