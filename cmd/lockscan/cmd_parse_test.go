package main

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fbkclanna/lockscan/internal/apperr"
	"github.com/fbkclanna/lockscan/internal/testutil"
)

func TestRunParse_json(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFileTree(t, dir, map[string]string{"yarn.lock": yarnLock})

	out, err := execute(t, "parse", filepath.Join(dir, "yarn.lock"))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	var res struct {
		Kind string `json:"kind"`
		Data struct {
			Entries []struct {
				Name    string `json:"name"`
				Version string `json:"version"`
			} `json:"entries"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	if res.Kind != "yarn.lock/v1" {
		t.Errorf("kind = %q, want yarn.lock/v1", res.Kind)
	}
}

func TestRunParse_table(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFileTree(t, dir, map[string]string{
		"go.sum": "golang.org/x/mod v0.31.0 h1:abc=\ngolang.org/x/mod v0.31.0/go.mod h1:def=\n",
	})

	out, err := execute(t, "parse", "--format", "table", filepath.Join(dir, "go.sum"))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got:\n%s", out)
	}
	if !strings.Contains(lines[1], "golang.org/x/mod") || !strings.Contains(lines[1], "v0.31.0") {
		t.Errorf("unexpected row: %q", lines[1])
	}
}

func TestRunParse_as(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFileTree(t, dir, map[string]string{"deps.lst": "requests==2.31.0\n"})

	out, err := execute(t, "parse", "--as", "requirements", "--format", "table", filepath.Join(dir, "deps.lst"))
	if err != nil {
		t.Fatalf("parse --as failed: %v", err)
	}
	if !strings.Contains(out, "requests") {
		t.Errorf("missing requirement in output:\n%s", out)
	}
}

func TestRunParse_errors(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFileTree(t, dir, map[string]string{
		"Cargo.lock": "",
		"go.work":    "go 1.24\n",
		"go.sum":     "",
	})

	tests := []struct {
		name string
		args []string
		kind apperr.Kind
	}{
		{"unsupported file", []string{"parse", filepath.Join(dir, "Cargo.lock")}, apperr.KindUnsupportedFeature},
		{"missing file", []string{"parse", filepath.Join(dir, "go.mod")}, apperr.KindInvalidInput},
		{"no package list", []string{"parse", "--format", "table", filepath.Join(dir, "go.work")}, ""},
		{"unknown format", []string{"parse", "--format", "xml", filepath.Join(dir, "go.sum")}, ""},
		{"unknown kind", []string{"parse", "--as", "Gemfile.lock", filepath.Join(dir, "go.sum")}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.kind != "" && !apperr.Is(err, tt.kind) {
				t.Errorf("error kind: got %v, want %s", err, tt.kind)
			}
		})
	}
}
