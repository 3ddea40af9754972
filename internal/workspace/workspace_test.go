package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fbkclanna/lockscan/internal/request"
	"github.com/fbkclanna/lockscan/internal/testutil"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		input string
		want  Mode
		err   bool
	}{
		{"strict", ModeStrict, false},
		{"permissive", ModePermissive, false},
		{"", ModeStrict, false},
		{"lenient", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMode(tt.input)
			if (err != nil) != tt.err {
				t.Errorf("ParseMode(%q) error = %v, wantErr %v", tt.input, err, tt.err)
			}
			if got != tt.want {
				t.Errorf("ParseMode(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFileTree(t, dir, map[string]string{
		"lockscan.yaml": "version: 1\npackages:\n  - type: gomod\n  - type: pip\n    path: api\n",
	})

	ctx, err := Load(dir, "")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if ctx.Request == nil || len(ctx.Request.Packages) != 2 {
		t.Fatalf("Request = %+v, want 2 packages", ctx.Request)
	}
	if ctx.Lock != nil {
		t.Error("Lock should be nil when no lock file exists")
	}
	if ctx.RequestPath != filepath.Join(ctx.Source.Path(), "lockscan.yaml") {
		t.Errorf("RequestPath = %q, unexpected", ctx.RequestPath)
	}
	if ctx.LockPath != filepath.Join(ctx.Source.Path(), "lockscan.lock.yaml") {
		t.Errorf("LockPath = %q, unexpected", ctx.LockPath)
	}
}

func TestLoad_withLock(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFileTree(t, dir, map[string]string{
		"lockscan.yaml": "version: 1\npackages:\n  - type: gomod\n",
		"lockscan.lock.yaml": `version: 1
generated_at: "2026-02-15T00:00:00Z"
tool_version: "0.1.0"
packages:
  gomod:.:
    files:
      go.mod: "abc1234"
    components: 2
`,
	})

	ctx, err := Load(dir, "")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if ctx.Lock == nil {
		t.Fatal("Lock should not be nil when lock file exists")
	}
	pkg, ok := ctx.Lock.Packages["gomod:."]
	if !ok {
		t.Fatal("Lock should contain gomod:.")
	}
	if pkg.Files["go.mod"] != "abc1234" {
		t.Errorf("go.mod digest = %q, want %q", pkg.Files["go.mod"], "abc1234")
	}
}

func TestLoad_missingDefaultRequest(t *testing.T) {
	ctx, err := Load(t.TempDir(), "")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if ctx.Request != nil {
		t.Error("Request should be nil without a request file")
	}
}

func TestLoad_missingExplicitRequest(t *testing.T) {
	if _, err := Load(t.TempDir(), "nope.yaml"); err == nil {
		t.Fatal("Load() should fail when the named request file is missing")
	}
}

func TestLoad_invalidRequest(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "lockscan.yaml"), []byte(":::invalid"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir, ""); err == nil {
		t.Fatal("Load() should fail with invalid YAML")
	}
}

func TestLoad_missingSource(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing"), ""); err == nil {
		t.Fatal("Load() should fail for a missing source directory")
	}
}

func TestPackageDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "api"), 0o755); err != nil {
		t.Fatal(err)
	}

	ctx, err := Load(dir, "")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	got, err := ctx.PackageDir(request.Package{Type: request.TypePip, Path: "api"})
	if err != nil {
		t.Fatalf("PackageDir() error: %v", err)
	}
	if got.Subpath() != "api" {
		t.Errorf("Subpath() = %q, want %q", got.Subpath(), "api")
	}

	if _, err := ctx.PackageDir(request.Package{Type: request.TypePip, Path: "../elsewhere"}); err == nil {
		t.Error("PackageDir() should reject paths outside the source")
	}
}

func TestInput(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFileTree(t, dir, map[string]string{"web/package.json": "{}"})
	ctx, err := Load(dir, "")
	if err != nil {
		t.Fatal(err)
	}

	in := Input{
		Source:  ctx.Source,
		Package: request.Package{Type: request.TypeYarn, Path: "web"},
		Flags:   []request.Flag{request.FlagGomodVendorCheck},
	}
	d, err := in.Dir()
	if err != nil {
		t.Fatal(err)
	}
	if d.Subpath() != "web" {
		t.Errorf("Dir().Subpath() = %q, want web", d.Subpath())
	}
	if !in.HasFlag(request.FlagGomodVendorCheck) || in.HasFlag("other") {
		t.Error("HasFlag() returned unexpected results")
	}
	if in.Log() == nil {
		t.Error("Log() should fall back to the default logger")
	}
}
