package lock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse_valid(t *testing.T) {
	data := []byte(`
version: 1
generated_at: "2026-02-15T12:34:56+09:00"
tool_version: "0.1.0"
packages:
  gomod:.:
    files:
      go.mod: "aa11"
      go.sum: "bb22"
    components: 12
  pip:api:
    files:
      api/requirements.txt: "cc33"
    components: 3
`)
	lf, err := Parse(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lf.Version != 1 {
		t.Errorf("version = %d, want 1", lf.Version)
	}
	if len(lf.Packages) != 2 {
		t.Errorf("packages count = %d, want 2", len(lf.Packages))
	}
	gm := lf.Packages["gomod:."]
	if gm == nil {
		t.Fatal("gomod package not found")
	}
	if gm.Components != 12 || gm.Files["go.sum"] != "bb22" {
		t.Errorf("unexpected gomod entry: %+v", gm)
	}
	if diff := cmp.Diff([]string{"gomod:.", "pip:api"}, lf.PackageKeys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_badVersion(t *testing.T) {
	if _, err := Parse([]byte("version: 7\n")); err == nil {
		t.Fatal("expected error for unsupported version")
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)

	lf := &File{
		Version:     1,
		GeneratedAt: "2026-01-01T00:00:00Z",
		ToolVersion: "dev",
		Packages: map[string]*Package{
			"yarn:web": {Files: map[string]string{"web/yarn.lock": "abc123"}, Components: 4},
		},
	}

	if err := Save(path, lf); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal("file should exist after save")
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(lf, loaded); diff != "" {
		t.Errorf("roundtrip mismatch (-want +got):\n%s", diff)
	}
}

func TestDigest(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	if err := os.WriteFile(a, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("hello!"), 0644); err != nil {
		t.Fatal(err)
	}

	da, err := Digest(a)
	if err != nil {
		t.Fatal(err)
	}
	if len(da) != 64 {
		t.Errorf("digest length = %d, want 64", len(da))
	}
	da2, _ := Digest(a)
	db, _ := Digest(b)
	if da != da2 {
		t.Error("digest is not stable")
	}
	if da == db {
		t.Error("different content produced the same digest")
	}

	files, err := DigestFiles(dir, []string{"a", "missing"})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files["a"] != da {
		t.Errorf("DigestFiles = %v", files)
	}
}

func TestDiff(t *testing.T) {
	old := &File{Packages: map[string]*Package{
		"gomod:.":  {Files: map[string]string{"go.mod": "1", "go.sum": "2"}},
		"pip:old":  {Files: map[string]string{"old/requirements.txt": "3"}},
		"yarn:web": {Files: map[string]string{"web/yarn.lock": "4"}},
	}}
	cur := &File{Packages: map[string]*Package{
		"gomod:.":  {Files: map[string]string{"go.mod": "1", "go.sum": "changed", "go.work": "5"}},
		"yarn:web": {Files: map[string]string{}},
		"pip:new":  {Files: map[string]string{"new/requirements.txt": "6"}},
	}}

	want := []Change{
		{Kind: ChangeChanged, Package: "gomod:.", File: "go.sum"},
		{Kind: ChangeAdded, Package: "gomod:.", File: "go.work"},
		{Kind: ChangeAdded, Package: "pip:new"},
		{Kind: ChangeRemoved, Package: "pip:old"},
		{Kind: ChangeRemoved, Package: "yarn:web", File: "web/yarn.lock"},
	}
	if diff := cmp.Diff(want, Diff(old, cur)); diff != "" {
		t.Errorf("diff mismatch (-want +got):\n%s", diff)
	}

	if got := Diff(nil, nil); len(got) != 0 {
		t.Errorf("Diff(nil, nil) = %v", got)
	}
}
