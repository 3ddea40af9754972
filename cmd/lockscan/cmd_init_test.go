package main

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/fbkclanna/lockscan/internal/request"
	"github.com/fbkclanna/lockscan/internal/rootedpath"
	"github.com/fbkclanna/lockscan/internal/testutil"
)

func TestRunInit_flags(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "--source", dir, "init", "--type", "gomod", "--type", "pip", "--path", ".", "--path", "./api/", "--mode", "permissive")
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if !strings.Contains(out, "pip:api") {
		t.Errorf("unexpected output:\n%s", out)
	}

	req, err := request.Load(filepath.Join(dir, "lockscan.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	want := []request.Package{{Type: request.TypeGomod, Path: "."}, {Type: request.TypePip, Path: "api"}}
	if diff := cmp.Diff(want, req.Packages); diff != "" {
		t.Errorf("packages mismatch (-want +got):\n%s", diff)
	}
	if req.Mode != "permissive" {
		t.Errorf("mode = %q, want permissive", req.Mode)
	}
}

func TestRunInit_detect(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFileTree(t, dir, map[string]string{
		"go.mod":                      "module example.com/app\n",
		"web/package.json":            packageJSON,
		"web/yarn.lock":               yarnLock,
		"ui/yarn.lock":                "__metadata:\n  version: 6\n",
		"py/requirements.txt":         "requests==2.31.0\n",
		"web/node_modules/x/go.mod":   "module x\n",
		"a/b/c/requirements.txt":      "flask==3.0.0\n",
		".hidden/requirements.txt":    "flask==3.0.0\n",
		"vendor/example.com/x/go.mod": "module x\n",
	})

	if _, err := execute(t, "--source", dir, "init", "--detect"); err != nil {
		t.Fatalf("init --detect failed: %v", err)
	}
	req, err := request.Load(filepath.Join(dir, "lockscan.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	want := []request.Package{
		{Type: request.TypeGomod, Path: "."},
		{Type: request.TypePip, Path: "py"},
		{Type: request.TypeYarn, Path: "ui"},
		{Type: request.TypeYarnClassic, Path: "web"},
	}
	if diff := cmp.Diff(want, req.Packages); diff != "" {
		t.Errorf("packages mismatch (-want +got):\n%s", diff)
	}
}

func TestRunInit_errors(t *testing.T) {
	existing := t.TempDir()
	testutil.WriteFileTree(t, existing, map[string]string{"lockscan.yaml": "version: 1\n"})

	tests := []struct {
		name string
		args []string
	}{
		{"already exists", []string{"--source", existing, "init", "--type", "gomod"}},
		{"unknown type", []string{"--source", t.TempDir(), "init", "--type", "cargo"}},
		{"too many paths", []string{"--source", t.TempDir(), "init", "--type", "gomod", "--path", "a", "--path", "b"}},
		{"nothing detected", []string{"--source", t.TempDir(), "init", "--detect"}},
		{"escaping path", []string{"--source", t.TempDir(), "init", "--type", "gomod", "--path", "../x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.args...); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestRunInit_force(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFileTree(t, dir, map[string]string{"lockscan.yaml": "version: 1\n"})

	if _, err := execute(t, "--source", dir, "init", "--type", "pip", "--force"); err != nil {
		t.Fatalf("init --force failed: %v", err)
	}
	req, err := request.Load(filepath.Join(dir, "lockscan.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if len(req.Packages) != 1 || req.Packages[0].Type != request.TypePip {
		t.Errorf("unexpected packages: %+v", req.Packages)
	}
}

func TestPackagePathValidator(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFileTree(t, dir, map[string]string{"api/setup.py": "", "README.md": ""})
	seen := map[string]bool{"pip:api": true}
	check := packagePathValidator(rootedpath.MustNew(dir), request.TypePip, seen)

	tests := []struct {
		path    string
		wantErr bool
	}{
		{".", false},
		{"api", true},
		{"./api/", true},
		{"README.md", true},
		{"missing", true},
		{"../outside", true},
		{"/abs", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if err := check(tt.path); (err != nil) != tt.wantErr {
				t.Errorf("validator(%q) = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestCleanPackagePath(t *testing.T) {
	tests := map[string]string{".": "", "./": "", "api/": "api", "./a/../b": "b", "web/app": "web/app"}
	for in, want := range tests {
		if got := cleanPackagePath(in); got != want {
			t.Errorf("cleanPackagePath(%q) = %q, want %q", in, got, want)
		}
	}
}
