package lock

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// Load reads a lockscan.lock.yaml file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is the lock file path
	if err != nil {
		return nil, fmt.Errorf("reading lock file: %w", err)
	}
	return Parse(data)
}

// Parse parses lockscan.lock.yaml content.
func Parse(data []byte) (*File, error) {
	var lf File
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("parsing lock YAML: %w", err)
	}
	if lf.Version != 0 && lf.Version != 1 {
		return nil, fmt.Errorf("unsupported lock version: %d", lf.Version)
	}
	if lf.Packages == nil {
		lf.Packages = map[string]*Package{}
	}
	return &lf, nil
}

// Save writes the lock file to disk.
func Save(path string, lf *File) error {
	data, err := yaml.Marshal(lf)
	if err != nil {
		return fmt.Errorf("marshaling lock file: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil { //nolint:gosec // lock file needs to be readable
		return fmt.Errorf("writing lock file: %w", err)
	}
	return nil
}

// Digest returns the hex blake3 digest of the file at path.
func Digest(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // caller passes paths inside the source dir
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DigestFiles hashes each relpath under root. Missing files are skipped.
func DigestFiles(root string, relpaths []string) (map[string]string, error) {
	out := make(map[string]string, len(relpaths))
	for _, rel := range relpaths {
		d, err := Digest(filepath.Join(root, filepath.FromSlash(rel)))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[rel] = d
	}
	return out, nil
}

// ChangeKind classifies a difference between two lock states.
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeRemoved ChangeKind = "removed"
	ChangeChanged ChangeKind = "changed"
)

// Change is one difference found by Diff. File is empty when the whole
// package was added or removed.
type Change struct {
	Kind    ChangeKind `json:"kind"`
	Package string     `json:"package"`
	File    string     `json:"file,omitempty"`
}

// Diff compares two lock states. Either may be nil.
func Diff(old, cur *File) []Change {
	oldPkgs := packagesOf(old)
	curPkgs := packagesOf(cur)

	var changes []Change
	for key, op := range oldPkgs {
		cp, ok := curPkgs[key]
		if !ok {
			changes = append(changes, Change{Kind: ChangeRemoved, Package: key})
			continue
		}
		changes = append(changes, diffFiles(key, op, cp)...)
	}
	for key := range curPkgs {
		if _, ok := oldPkgs[key]; !ok {
			changes = append(changes, Change{Kind: ChangeAdded, Package: key})
		}
	}

	sort.Slice(changes, func(i, j int) bool {
		if changes[i].Package != changes[j].Package {
			return changes[i].Package < changes[j].Package
		}
		return changes[i].File < changes[j].File
	})
	return changes
}

func diffFiles(key string, old, cur *Package) []Change {
	var changes []Change
	for f, d := range old.Files {
		cd, ok := cur.Files[f]
		switch {
		case !ok:
			changes = append(changes, Change{Kind: ChangeRemoved, Package: key, File: f})
		case cd != d:
			changes = append(changes, Change{Kind: ChangeChanged, Package: key, File: f})
		}
	}
	for f := range cur.Files {
		if _, ok := old.Files[f]; !ok {
			changes = append(changes, Change{Kind: ChangeAdded, Package: key, File: f})
		}
	}
	return changes
}

func packagesOf(f *File) map[string]*Package {
	if f == nil || f.Packages == nil {
		return map[string]*Package{}
	}
	return f.Packages
}
