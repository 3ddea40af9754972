package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// DefaultOrigin is the origin URL given to repositories made by NewRepo.
const DefaultOrigin = "https://github.com/org/project.git"

var commitTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// WriteFileTree writes files (relative path to content) under root, creating
// parent directories as needed.
func WriteFileTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil { //nolint:gosec // test file
			t.Fatal(err)
		}
	}
}

// InitRepo creates an empty repository on branch main in dir.
func InitRepo(t *testing.T, dir string) *git.Repository {
	t.Helper()
	repo, err := git.PlainInitWithOptions(dir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName("main")},
	})
	if err != nil {
		t.Fatalf("init repo: %v", err)
	}
	return repo
}

// CommitAll stages every change in the worktree and commits it.
func CommitAll(t *testing.T, repo *git.Repository, message string) plumbing.Hash {
	t.Helper()
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		t.Fatalf("add: %v", err)
	}
	sig := &object.Signature{Name: "Test", Email: "test@example.com", When: commitTime}
	h, err := wt.Commit(message, &git.CommitOptions{Author: sig, Committer: sig, AllowEmptyCommits: true})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	return h
}

// AddOrigin sets the origin remote URL.
func AddOrigin(t *testing.T, repo *git.Repository, url string) {
	t.Helper()
	if _, err := repo.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{url}}); err != nil {
		t.Fatalf("create remote: %v", err)
	}
}

// Tag creates a lightweight tag.
func Tag(t *testing.T, repo *git.Repository, name string, h plumbing.Hash) {
	t.Helper()
	if _, err := repo.CreateTag(name, h, nil); err != nil {
		t.Fatalf("create tag %s: %v", name, err)
	}
}

// NewRepo writes files into a fresh temp directory, commits them and adds
// DefaultOrigin. It returns the directory, the repository and the commit.
func NewRepo(t *testing.T, files map[string]string) (string, *git.Repository, plumbing.Hash) {
	t.Helper()
	dir := t.TempDir()
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}
	repo := InitRepo(t, dir)
	WriteFileTree(t, dir, files)
	h := CommitAll(t, repo, "initial commit")
	AddOrigin(t, repo, DefaultOrigin)
	return dir, repo, h
}
