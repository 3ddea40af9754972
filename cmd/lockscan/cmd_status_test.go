package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/fbkclanna/lockscan/internal/apperr"
	"github.com/fbkclanna/lockscan/internal/lock"
)

func scanWithLock(t *testing.T, dir string) {
	t.Helper()
	if _, err := execute(t, "--source", dir, "scan", "-o", t.TempDir(), "--update-lock"); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
}

func TestRunStatus_upToDate(t *testing.T) {
	dir := setupProject(t)
	scanWithLock(t, dir)

	out, err := execute(t, "--source", dir, "status", "--check")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(out, "Up to date: yarn-classic:.") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestRunStatus_changed(t *testing.T) {
	dir := setupProject(t)
	scanWithLock(t, dir)

	if err := os.WriteFile(filepath.Join(dir, "yarn.lock"), []byte(yarnLock+"\n"), 0o644); err != nil { //nolint:gosec // test file
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "lockscan.yaml"),
		[]byte("version: 1\npackages:\n  - type: yarn-classic\n  - type: pip\n"), 0o644); err != nil { //nolint:gosec // test file
		t.Fatal(err)
	}

	out, err := execute(t, "--source", dir, "status", "--json")
	if err != nil {
		t.Fatalf("status --json failed: %v", err)
	}
	var changes []lock.Change
	if err := json.Unmarshal([]byte(out), &changes); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	want := []lock.Change{
		{Kind: lock.ChangeAdded, Package: "pip:."},
		{Kind: lock.ChangeChanged, Package: "yarn-classic:.", File: "yarn.lock"},
	}
	if diff := cmp.Diff(want, changes); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}

	table, err := execute(t, "--source", dir, "status")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(table, "yarn.lock") || !strings.Contains(table, "changed") {
		t.Errorf("table missing change:\n%s", table)
	}

	if _, err := execute(t, "--source", dir, "status", "--check"); err == nil {
		t.Error("status --check should fail when inputs changed")
	}
}

func TestRunStatus_noLockState(t *testing.T) {
	dir := setupProject(t)
	_, err := execute(t, "--source", dir, "status")
	if !apperr.Is(err, apperr.KindInvalidInput) {
		t.Fatalf("err = %v, want invalid input", err)
	}
}
