package yarnclassic

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/package-url/packageurl-go"

	"github.com/fbkclanna/lockscan/internal/apperr"
	"github.com/fbkclanna/lockscan/internal/output"
	"github.com/fbkclanna/lockscan/internal/request"
	"github.com/fbkclanna/lockscan/internal/rootedpath"
	"github.com/fbkclanna/lockscan/internal/sbom"
	"github.com/fbkclanna/lockscan/internal/testutil"
	"github.com/fbkclanna/lockscan/internal/workspace"
)

func input(dir, path string) workspace.Input {
	return workspace.Input{
		Source:  rootedpath.MustNew(dir),
		Package: request.Package{Type: request.TypeYarnClassic, Path: path},
		Mode:    workspace.ModeStrict,
	}
}

func byName(out *output.RequestOutput) map[string]sbom.Component {
	m := make(map[string]sbom.Component, len(out.Components))
	for _, c := range out.Components {
		m[c.Name] = c
	}
	return m
}

func mustPURL(t *testing.T, s string) packageurl.PackageURL {
	t.Helper()
	p, err := packageurl.FromString(s)
	if err != nil {
		t.Fatalf("parsing purl %q: %v", s, err)
	}
	return p
}

const resolveLockfile = `# yarn lockfile v1


left-pad@^1.3.0:
  version "1.3.0"
  resolved "https://registry.yarnpkg.com/left-pad/-/left-pad-1.3.0.tgz#5b8a3a7765dfe001261dde915589e782f8c94d1e"
  integrity sha512-XI5MPzVNApjAyhQzphX8BkmKsKUxD4LdyK24iZeQEtoO+mWAKw5tPx6EbQ/4NZBiwHxdCzTVWgCLSLl9rkEa8A==

jest@^29.0.0:
  version "29.7.0"
  resolved "https://registry.yarnpkg.com/jest/-/jest-29.7.0.tgz#a6ef"
  integrity sha512-abc
  dependencies:
    jest-cli "^29.7.0"

jest-cli@^29.7.0:
  version "29.7.0"
  resolved "https://registry.yarnpkg.com/jest-cli/-/jest-cli-29.7.0.tgz#a6ef"
  dependencies:
    left-pad "^1.3.0"

"@corp/util@^2.0.0":
  version "2.0.0"
  resolved "https://npm.corp.example.com/@corp/util/-/util-2.0.0.tgz#0f0f"
  integrity sha512-def

holy-grail@org/holy-grail#v2:
  version "2.0.0"
  resolved "https://codeload.github.com/org/holy-grail.git#0123456789abcdef0123456789abcdef01234567"

fecha@https://example.org/fecha-4.2.3.tgz:
  version "4.2.3"
  resolved "https://example.org/fecha-4.2.3.tgz#abcdef"

local-pkg@file:./local:
  version "1.0.0"
`

func TestResolve(t *testing.T) {
	dir, _, h := testutil.NewRepo(t, map[string]string{
		"web/package.json": `{
  "name": "camelot",
  "version": "1.0.0",
  "workspaces": ["packages/*"],
  "dependencies": {"left-pad": "^1.3.0", "@corp/util": "^2.0.0", "holy-grail": "org/holy-grail#v2",
    "fecha": "https://example.org/fecha-4.2.3.tgz", "local-pkg": "file:./local"}
}`,
		"web/packages/lancelot/package.json": `{"name": "lancelot", "version": "0.1.0", "devDependencies": {"jest": "^29.0.0"}}`,
		"web/local/package.json":             `{"name": "local-pkg", "version": "1.0.0"}`,
		"web/yarn.lock":                      resolveLockfile,
	})

	out, err := Resolve(context.Background(), input(dir, "web"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	wantInputs := []string{"web/package.json", "web/packages/lancelot/package.json", "web/yarn.lock"}
	if diff := cmp.Diff(wantInputs, out.InputFiles); diff != "" {
		t.Errorf("input files mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Environment(), out.EnvironmentVariables); diff != "" {
		t.Errorf("env mismatch (-want +got):\n%s", diff)
	}

	comps := byName(out)
	if len(comps) != 9 {
		t.Fatalf("got %d components: %+v", len(comps), out.Components)
	}
	vcsURL := "git+" + testutil.DefaultOrigin + "@" + h.String()

	root := mustPURL(t, comps["camelot"].PURL)
	if root.Version != "1.0.0" || root.Subpath != "web" || root.Qualifiers.Map()["vcs_url"] != vcsURL {
		t.Errorf("root purl = %s", comps["camelot"].PURL)
	}
	if ws := mustPURL(t, comps["lancelot"].PURL); ws.Subpath != "web/packages/lancelot" {
		t.Errorf("workspace purl = %s", comps["lancelot"].PURL)
	}

	t.Run("development flags", func(t *testing.T) {
		for name, want := range map[string]bool{"jest": true, "jest-cli": true, "left-pad": false} {
			if got := sbom.ParseProperties(comps[name].Properties).Development; got != want {
				t.Errorf("%s development = %v, want %v", name, got, want)
			}
		}
	})

	t.Run("missing integrity", func(t *testing.T) {
		props := sbom.ParseProperties(comps["jest-cli"].Properties)
		if diff := cmp.Diff([]string{"web/yarn.lock"}, props.MissingHashInFile); diff != "" {
			t.Errorf("missing hash mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("custom registry", func(t *testing.T) {
		p := mustPURL(t, comps["@corp/util"].PURL)
		if p.Namespace != "@corp" || p.Name != "util" || p.Qualifiers.Map()["repository_url"] != "https://npm.corp.example.com" {
			t.Errorf("purl = %s", comps["@corp/util"].PURL)
		}
	})

	t.Run("git", func(t *testing.T) {
		p := mustPURL(t, comps["holy-grail"].PURL)
		want := "git+https://codeload.github.com/org/holy-grail.git@0123456789abcdef0123456789abcdef01234567"
		if got := p.Qualifiers.Map()["vcs_url"]; got != want {
			t.Errorf("vcs_url = %q, want %q", got, want)
		}
	})

	t.Run("https", func(t *testing.T) {
		p := mustPURL(t, comps["fecha"].PURL)
		if got := p.Qualifiers.Map()["download_url"]; got != "https://example.org/fecha-4.2.3.tgz" {
			t.Errorf("download_url = %q", got)
		}
	})

	t.Run("file", func(t *testing.T) {
		p := mustPURL(t, comps["local-pkg"].PURL)
		if p.Subpath != "web/local" || p.Qualifiers.Map()["vcs_url"] != vcsURL {
			t.Errorf("purl = %s", comps["local-pkg"].PURL)
		}
	})
}

func TestResolve_rejected(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		kind  apperr.Kind
		msg   string
	}{
		{
			name:  "no package.json",
			files: map[string]string{"yarn.lock": resolveLockfile},
			kind:  apperr.KindPackageRejected,
			msg:   "The package.json file must be present",
		},
		{
			name:  "no lockfile",
			files: map[string]string{"package.json": `{"name": "app"}`},
			kind:  apperr.KindPackageRejected,
			msg:   "Yarn lockfile 'yarn.lock' missing",
		},
		{
			name:  "berry lockfile",
			files: map[string]string{"package.json": `{"name": "app"}`, "yarn.lock": "__metadata:\n  version: 6\n"},
			kind:  apperr.KindPackageRejected,
			msg:   "is not a Yarn v1 lockfile",
		},
		{
			name:  "berry packageManager",
			files: map[string]string{"package.json": `{"name": "app", "packageManager": "yarn@3.6.1"}`, "yarn.lock": resolveLockfile},
			kind:  apperr.KindPackageRejected,
			msg:   "requires yarn 3.6.1",
		},
		{
			name: "file dependency outside root",
			files: map[string]string{
				"package.json": `{"name": "app"}`,
				"yarn.lock":    "# yarn lockfile v1\n\nx@file:../x:\n  version \"1.0.0\"\n",
			},
			kind: apperr.KindPathOutsideRoot,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			testutil.WriteFileTree(t, dir, tt.files)
			_, err := Resolve(context.Background(), input(dir, "."))
			if !apperr.Is(err, tt.kind) || !strings.Contains(err.Error(), tt.msg) {
				t.Fatalf("err = %v, want %s containing %q", err, tt.kind, tt.msg)
			}
		})
	}
}
