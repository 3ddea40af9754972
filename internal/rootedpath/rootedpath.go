// Package rootedpath provides paths that are guaranteed to stay inside a
// root directory, even when symlinks are involved.
package rootedpath

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fbkclanna/lockscan/internal/apperr"
)

// PathOutsideRootError is returned when a joined path escapes its root.
type PathOutsideRootError struct {
	Root string
	Path string
}

func (e *PathOutsideRootError) Error() string {
	return fmt.Sprintf("joining path %q to %q: target is outside %q", e.Path, e.Root, e.Root)
}

// RootedPath is an absolute path together with the root it must not leave.
type RootedPath struct {
	root string
	path string
}

// New returns a RootedPath that points at root itself.
func New(root string) (RootedPath, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return RootedPath{}, fmt.Errorf("resolving root %s: %w", root, err)
	}
	abs, err = resolveExisting(abs)
	if err != nil {
		return RootedPath{}, err
	}
	return RootedPath{root: abs, path: abs}, nil
}

// MustNew is New for roots known to be valid, such as test directories.
func MustNew(root string) RootedPath {
	rp, err := New(root)
	if err != nil {
		panic(err)
	}
	return rp
}

// Root returns the root directory.
func (r RootedPath) Root() string { return r.root }

// Path returns the absolute path.
func (r RootedPath) Path() string { return r.path }

// String returns the absolute path.
func (r RootedPath) String() string { return r.path }

// Subpath returns the path relative to the root, "." for the root itself.
func (r RootedPath) Subpath() string {
	rel, err := filepath.Rel(r.root, r.path)
	if err != nil {
		return "."
	}
	return filepath.ToSlash(rel)
}

// Join appends parts to the path. Symlinks in the existing part of the result
// are resolved, and the result must still be inside the root. An absolute
// part discards everything before it, as with a shell cd.
func (r RootedPath) Join(parts ...string) (RootedPath, error) {
	joined := r.path
	for _, p := range parts {
		if filepath.IsAbs(p) {
			joined = p
			continue
		}
		joined = filepath.Join(joined, p)
	}
	resolved, err := resolveExisting(filepath.Clean(joined))
	if err != nil {
		return RootedPath{}, err
	}
	if !within(r.root, resolved) {
		rel := filepath.Join(parts...)
		return RootedPath{}, apperr.PathOutsideRoot(
			fmt.Sprintf("path %s leads outside the source directory", rel),
			apperr.WithSolution("Make sure all paths point inside the source directory and do not follow symlinks out of it."),
			apperr.Wrap(&PathOutsideRootError{Root: r.root, Path: rel}),
		)
	}
	return RootedPath{root: r.root, path: resolved}, nil
}

// Exists reports whether the path exists.
func (r RootedPath) Exists() bool {
	_, err := os.Stat(r.path)
	return err == nil
}

// IsFile reports whether the path is a regular file.
func (r RootedPath) IsFile() bool {
	info, err := os.Stat(r.path)
	return err == nil && info.Mode().IsRegular()
}

// IsDir reports whether the path is a directory.
func (r RootedPath) IsDir() bool {
	info, err := os.Stat(r.path)
	return err == nil && info.IsDir()
}

// ReadFile reads the file at the path.
func (r RootedPath) ReadFile() ([]byte, error) {
	return os.ReadFile(r.path)
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// maxLinks bounds the symlinks followed while resolving a dangling chain.
const maxLinks = 255

// resolveExisting evaluates symlinks for the longest existing prefix of p and
// appends the non-existent remainder unchanged. A dangling symlink is followed
// to its target so that the result reflects where a write would land.
func resolveExisting(p string) (string, error) {
	return resolveLinks(p, 0)
}

func resolveLinks(p string, depth int) (string, error) {
	if depth > maxLinks {
		return "", fmt.Errorf("resolving %s: too many levels of symbolic links", p)
	}
	existing := p
	var rest []string
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return p, nil
		}
		rest = append([]string{filepath.Base(existing)}, rest...)
		existing = parent
	}
	if resolved, err := filepath.EvalSymlinks(existing); err == nil {
		return filepath.Join(append([]string{resolved}, rest...)...), nil
	}

	// Only the last element of existing can be a broken link: nothing below a
	// broken link can be lstat'ed.
	target, err := os.Readlink(existing)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", existing, err)
	}
	if !filepath.IsAbs(target) {
		dir, err := resolveLinks(filepath.Dir(existing), depth+1)
		if err != nil {
			return "", err
		}
		target = filepath.Join(dir, target)
	}
	return resolveLinks(filepath.Join(append([]string{target}, rest...)...), depth+1)
}
