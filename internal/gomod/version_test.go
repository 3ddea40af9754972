package gomod

import (
	"path/filepath"
	"testing"

	"github.com/fbkclanna/lockscan/internal/rootedpath"
	"github.com/fbkclanna/lockscan/internal/testutil"
)

func TestGoModVersions(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		goVersion string
		toolchain string
	}{
		{"go_minor", "go 1.21", "1.21", ""},
		{"go_micro", "go 1.21.0", "1.21.0", ""},
		{"go_spaces", "    go    1.21.4    ", "1.21.4", ""},
		{"go_minor_rc", "go 1.21rc4", "1.21rc4", ""},
		{"go_micro_rc", "go 1.21.0rc4", "1.21.0rc4", ""},
		{"go_commentary", "go 1.21.0  // comment", "1.21.0", ""},
		{"go_commentary_no_spaces", "go 1.21.0//commentary", "1.21.0", ""},
		{"go_rc_commentary", "go 1.21.0beta2//comment", "1.21.0beta2", ""},
		{"toolchain_spaces", "   toolchain   go1.21.4  ", "", "1.21.4"},
		{"go_and_toolchain", "go 1.21\ntoolchain go1.21.6", "1.21", "1.21.6"},
		{"missing_space", "go1.21", "", ""},
		{"too_many_parts", "go 1.21.0.100", "", ""},
		{"missing_go", "1.21", "", ""},
		{"trailing_text", "go 1.21 foo", "", ""},
		{"prerelease_no_number", "go 1.21prerelease", "", ""},
		{"prerelease_bad_char", "go 1.21prerelease_4", "", ""},
		{"toolchain_missing_go", "toolchain 1.21", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			testutil.WriteFileTree(t, dir, map[string]string{"go.mod": tt.content})
			goMod, err := rootedpath.MustNew(dir).Join("go.mod")
			if err != nil {
				t.Fatal(err)
			}
			gv, tc, err := GoModVersions(goMod)
			if err != nil {
				t.Fatal(err)
			}
			if gv != tt.goVersion || tc != tt.toolchain {
				t.Errorf("GoModVersions() = (%q, %q), want (%q, %q)", gv, tc, tt.goVersion, tt.toolchain)
			}
		})
	}
}

func TestGolangVersion(t *testing.T) {
	dir, repo, first := testutil.NewRepo(t, map[string]string{"a.txt": "1", "sub/go.mod": "module x/sub\n"})

	vr, err := NewVersionResolver(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := vr.GolangVersion("github.com/org/project", dir), "v0.0.0-"+stamp+"-"+first.String()[:12]; got != want {
		t.Errorf("untagged = %q, want %q", got, want)
	}

	testutil.Tag(t, repo, "v1", first)
	testutil.Tag(t, repo, "v1.0.0", first)
	testutil.Tag(t, repo, "sub/v0.3.0", first)
	vr, err = NewVersionResolver(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got := vr.GolangVersion("github.com/org/project", dir); got != "v1.0.0" {
		t.Errorf("tagged HEAD = %q, want v1.0.0", got)
	}
	if got := vr.GolangVersion("github.com/org/project/sub", filepath.Join(dir, "sub")); got != "v0.3.0" {
		t.Errorf("submodule tag = %q, want v0.3.0", got)
	}
	if got, want := vr.GolangVersion("github.com/org/project/v2", dir), "v2.0.0-"+stamp+"-"+first.String()[:12]; got != want {
		t.Errorf("v2 module without v2 tag = %q, want %q", got, want)
	}

	testutil.WriteFileTree(t, dir, map[string]string{"a.txt": "2"})
	second := testutil.CommitAll(t, repo, "second")
	testutil.Tag(t, repo, "v2.2.0-alpha", second)
	testutil.Tag(t, repo, "not-semver", second)
	vr, err = NewVersionResolver(dir)
	if err != nil {
		t.Fatal(err)
	}
	rev := second.String()[:12]
	if got, want := vr.GolangVersion("github.com/org/project", dir), "v1.0.1-0."+stamp+"-"+rev; got != want {
		t.Errorf("after v1.0.0 = %q, want %q", got, want)
	}
	if got := vr.GolangVersion("github.com/org/project/v2", dir); got != "v2.2.0-alpha" {
		t.Errorf("v2 prerelease tag = %q, want v2.2.0-alpha", got)
	}

	testutil.WriteFileTree(t, dir, map[string]string{"a.txt": "3"})
	third := testutil.CommitAll(t, repo, "third")
	vr, err = NewVersionResolver(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := vr.GolangVersion("github.com/org/project/v2", dir), "v2.2.0-alpha.0."+stamp+"-"+third.String()[:12]; got != want {
		t.Errorf("after prerelease = %q, want %q", got, want)
	}

	realPath, err := vr.RealPath(filepath.Join(dir, "sub"))
	if err != nil {
		t.Fatal(err)
	}
	if realPath != "github.com/org/project/sub" {
		t.Errorf("RealPath = %q", realPath)
	}
}
