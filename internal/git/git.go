package git

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/fbkclanna/lockscan/internal/apperr"
)

// RepoID identifies the commit a source directory was checked out at.
type RepoID struct {
	Root       string
	OriginURL  string
	Commit     string
	CommitTime time.Time
}

// ParsedOriginURL returns the origin URL with scp-like syntax rewritten to
// ssh://.
func (r RepoID) ParsedOriginURL() (*url.URL, error) {
	return ParseOriginURL(r.OriginURL)
}

// VCSURLQualifier renders the vcs_url purl qualifier: git+<origin>@<commit>.
func (r RepoID) VCSURLQualifier() string {
	origin := r.OriginURL
	if u, err := r.ParsedOriginURL(); err == nil {
		origin = u.String()
	}
	return "git+" + origin + "@" + r.Commit
}

// Subpath returns dir relative to the repository root in slash form, or ""
// for the root itself.
func (r RepoID) Subpath(dir string) string {
	rel, err := filepath.Rel(r.Root, dir)
	if err != nil || rel == "." {
		return ""
	}
	return filepath.ToSlash(rel)
}

// Open opens the repository enclosing dir.
func Open(dir string) (*git.Repository, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, apperr.InvalidInput(
			fmt.Sprintf("%s is not a git repository", dir),
			apperr.WithSolution("Please make sure the source directory is a git checkout."),
			apperr.Wrap(err),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("opening repository at %s: %w", dir, err)
	}
	return repo, nil
}

// IsRepo reports whether dir is inside a git repository.
func IsRepo(dir string) bool {
	_, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	return err == nil
}

// GetRepoID reads the origin URL and HEAD commit of the repository enclosing
// dir.
func GetRepoID(dir string) (*RepoID, error) {
	repo, err := Open(dir)
	if err != nil {
		return nil, err
	}

	remote, err := repo.Remote("origin")
	if err != nil || len(remote.Config().URLs) == 0 {
		return nil, apperr.UnsupportedFeature(
			"Cannot get the remote 'origin' URL of the repository",
			apperr.WithSolution("Please add an 'origin' remote pointing to the canonical location of the source."),
		)
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("reading HEAD commit: %w", err)
	}

	root, err := worktreeRoot(repo)
	if err != nil {
		return nil, err
	}

	return &RepoID{
		Root:       root,
		OriginURL:  remote.Config().URLs[0],
		Commit:     head.Hash().String(),
		CommitTime: commit.Committer.When.UTC(),
	}, nil
}

var scpLike = regexp.MustCompile(`^(?:([^@/]+)@)?([^:/]+):(.*)$`)

// ParseOriginURL parses a remote URL. scp-like "user@host:path" becomes
// "ssh://user@host/path".
func ParseOriginURL(raw string) (*url.URL, error) {
	if !strings.Contains(raw, "://") {
		if m := scpLike.FindStringSubmatch(raw); m != nil {
			u := &url.URL{Scheme: "ssh", Host: m[2], Path: "/" + strings.TrimPrefix(m[3], "/")}
			if m[1] != "" {
				u.User = url.User(m[1])
			}
			return u, nil
		}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing origin URL %q: %w", raw, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("origin URL %q has no host", raw)
	}
	return u, nil
}

// RepositoryName returns "host/path" for an origin URL, without the .git
// suffix or trailing slashes.
func RepositoryName(raw string) (string, error) {
	u, err := ParseOriginURL(raw)
	if err != nil {
		return "", err
	}
	p := strings.TrimSuffix(strings.TrimRight(u.Path, "/"), ".git")
	return u.Hostname() + p, nil
}

// Tag is a tag and the commit it points at.
type Tag struct {
	Name   string
	Commit string
	AtHead bool
}

// ReachableTags returns tags whose commit is HEAD or one of its ancestors,
// sorted by name.
func ReachableTags(dir string) ([]Tag, error) {
	repo, err := Open(dir)
	if err != nil {
		return nil, err
	}
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}
	headCommit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("reading HEAD commit: %w", err)
	}

	iter, err := repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}

	var tags []Tag
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		c, err := peelToCommit(repo, ref.Hash())
		if err != nil {
			return nil
		}
		atHead := c.Hash == headCommit.Hash
		if !atHead {
			ok, err := c.IsAncestor(headCommit)
			if err != nil || !ok {
				return nil
			}
		}
		tags = append(tags, Tag{Name: ref.Name().Short(), Commit: c.Hash.String(), AtHead: atHead})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags, nil
}

// HeadTags returns the names of tags pointing at HEAD.
func HeadTags(dir string) ([]string, error) {
	tags, err := ReachableTags(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, t := range tags {
		if t.AtHead {
			names = append(names, t.Name)
		}
	}
	return names, nil
}

func peelToCommit(repo *git.Repository, h plumbing.Hash) (*object.Commit, error) {
	if tagObj, err := repo.TagObject(h); err == nil {
		return tagObj.Commit()
	}
	return repo.CommitObject(h)
}

// FileChange is a path that differs from HEAD. Status is "A", "M" or "D".
type FileChange struct {
	Status string
	Path   string
}

func (c FileChange) String() string { return c.Status + "\t" + c.Path }

// VendorChanges compares the vendor directory of appDir with its content at
// HEAD. Paths are relative to the repository root. .gitignore rules are not
// applied and empty directories are not reported.
func VendorChanges(appDir string) ([]FileChange, error) {
	repo, err := Open(appDir)
	if err != nil {
		return nil, err
	}
	root, err := worktreeRoot(repo)
	if err != nil {
		return nil, err
	}
	if resolved, err := filepath.EvalSymlinks(appDir); err == nil {
		appDir = resolved
	}
	rel, err := filepath.Rel(root, filepath.Join(appDir, "vendor"))
	if err != nil {
		return nil, fmt.Errorf("locating vendor directory: %w", err)
	}
	vendorPath := filepath.ToSlash(rel)

	tracked, err := trackedFiles(repo, vendorPath)
	if err != nil {
		return nil, err
	}

	var changes []FileChange
	seen := make(map[string]bool, len(tracked))
	walkErr := filepath.WalkDir(filepath.Join(root, filepath.FromSlash(vendorPath)), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		r, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(r)
		h, err := blobHash(p, d)
		if err != nil {
			return err
		}
		seen[name] = true
		want, ok := tracked[name]
		switch {
		case !ok:
			changes = append(changes, FileChange{Status: "A", Path: name})
		case want != h:
			changes = append(changes, FileChange{Status: "M", Path: name})
		}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walking vendor directory: %w", walkErr)
	}
	for name := range tracked {
		if !seen[name] {
			changes = append(changes, FileChange{Status: "D", Path: name})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes, nil
}

func trackedFiles(repo *git.Repository, dir string) (map[string]plumbing.Hash, error) {
	out := map[string]plumbing.Hash{}
	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("reading HEAD commit: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("reading HEAD tree: %w", err)
	}
	sub, err := tree.Tree(dir)
	if errors.Is(err, object.ErrDirectoryNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s at HEAD: %w", dir, err)
	}
	err = sub.Files().ForEach(func(f *object.File) error {
		out[path.Join(dir, f.Name)] = f.Hash
		return nil
	})
	return out, err
}

func blobHash(p string, d fs.DirEntry) (plumbing.Hash, error) {
	var data []byte
	var err error
	if d.Type()&fs.ModeSymlink != 0 {
		var target string
		target, err = os.Readlink(p)
		data = []byte(target)
	} else {
		data, err = os.ReadFile(p) //nolint:gosec // walking the vendor directory
	}
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return plumbing.ComputeHash(plumbing.BlobObject, data), nil
}

func worktreeRoot(repo *git.Repository) (string, error) {
	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("opening worktree: %w", err)
	}
	root := wt.Filesystem.Root()
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	return root, nil
}

// IsGitInstalled returns true if git is available on the system PATH.
func IsGitInstalled() bool {
	_, err := exec.LookPath("git")
	return err == nil
}
