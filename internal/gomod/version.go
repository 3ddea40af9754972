package gomod

import (
	"bufio"
	"bytes"
	"fmt"
	"path"
	"regexp"
	"strings"

	"golang.org/x/mod/module"
	"golang.org/x/mod/semver"

	"github.com/fbkclanna/lockscan/internal/git"
	"github.com/fbkclanna/lockscan/internal/rootedpath"
)

var (
	goDirective        = regexp.MustCompile(`^\s*go\s+(\d+\.\d+(?:\.\d+)?(?:(?:rc|beta)\d+)?)\s*(?://.*)?$`)
	toolchainDirective = regexp.MustCompile(`^\s*toolchain\s+go(\d+\.\d+(?:\.\d+)?(?:(?:rc|beta)\d+)?)\s*(?://.*)?$`)
)

// GoModVersions returns the go and toolchain versions declared in a go.mod
// file. A directive that does not have the expected form yields "".
func GoModVersions(goMod rootedpath.RootedPath) (goVersion, toolchain string, err error) {
	data, err := goMod.ReadFile()
	if err != nil {
		return "", "", fmt.Errorf("reading %s: %w", goMod.Subpath(), err)
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := sc.Text()
		if m := goDirective.FindStringSubmatch(line); m != nil && goVersion == "" {
			goVersion = m[1]
		}
		if m := toolchainDirective.FindStringSubmatch(line); m != nil && toolchain == "" {
			toolchain = m[1]
		}
	}
	return goVersion, toolchain, sc.Err()
}

// VersionResolver derives module versions from the tags of the repository
// that holds the source directory.
type VersionResolver struct {
	repo *git.RepoID
	tags []git.Tag
}

// NewVersionResolver reads the repository metadata for dir.
func NewVersionResolver(dir string) (*VersionResolver, error) {
	id, err := git.GetRepoID(dir)
	if err != nil {
		return nil, err
	}
	tags, err := git.ReachableTags(dir)
	if err != nil {
		return nil, err
	}
	return &VersionResolver{repo: id, tags: tags}, nil
}

// Repo returns the repository the resolver reads from.
func (r *VersionResolver) Repo() *git.RepoID { return r.repo }

// GolangVersion returns the version the go command would give the module
// named moduleName rooted at moduleDir: a semver tag on HEAD if one matches
// the module's major version, otherwise a pseudo-version built on the highest
// matching tag reachable from HEAD.
func (r *VersionResolver) GolangVersion(moduleName, moduleDir string) string {
	major := majorVersion(moduleName)
	prefix := r.repo.Subpath(moduleDir)
	if prefix != "" {
		prefix += "/"
	}

	var atHead, reachable string
	for _, t := range r.tags {
		v, ok := moduleTagVersion(t.Name, prefix, major)
		if !ok {
			continue
		}
		if t.AtHead && semver.Compare(v, atHead) > 0 {
			atHead = v
		}
		if !t.AtHead && semver.Compare(v, reachable) > 0 {
			reachable = v
		}
	}
	if atHead != "" {
		return atHead
	}

	pseudoMajor := ""
	if major > 1 {
		pseudoMajor = fmt.Sprintf("v%d", major)
	}
	rev := r.repo.Commit
	if len(rev) > 12 {
		rev = rev[:12]
	}
	return module.PseudoVersion(pseudoMajor, reachable, r.repo.CommitTime, rev)
}

// RealPath is the repository-qualified path of dir, e.g.
// github.com/org/repo/sub for the sub directory.
func (r *VersionResolver) RealPath(dir string) (string, error) {
	name, err := git.RepositoryName(r.repo.OriginURL)
	if err != nil {
		return "", err
	}
	return path.Join(name, r.repo.Subpath(dir)), nil
}

func majorVersion(moduleName string) int {
	_, pathMajor, ok := module.SplitPathVersion(moduleName)
	if !ok || pathMajor == "" {
		return 0
	}
	var n int
	if _, err := fmt.Sscanf(strings.TrimLeft(pathMajor, "/."), "v%d", &n); err != nil {
		return 0
	}
	return n
}

func moduleTagVersion(tag, prefix string, major int) (string, bool) {
	if !strings.HasPrefix(tag, prefix) {
		return "", false
	}
	v := strings.TrimPrefix(tag, prefix)
	if strings.Contains(v, "/") || semver.Canonical(v) != v {
		return "", false
	}
	var tagMajor int
	if _, err := fmt.Sscanf(semver.Major(v), "v%d", &tagMajor); err != nil {
		return "", false
	}
	if major <= 1 {
		return v, tagMajor <= 1
	}
	return v, tagMajor == major
}
