package yarn

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
		Package: request.Package{Type: request.TypeYarn, Path: path},
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

const resolveLockfile = `__metadata:
  version: 6
  cacheKey: 8

"@babel/code-frame@npm:^7.22.5":
  version: 7.22.5
  resolution: "@babel/code-frame@npm:7.22.5"
  checksum: cfe804f518
  languageName: node
  linkType: hard

"@private/tool@npm:^1.0.0":
  version: 1.0.0
  resolution: "@private/tool@npm:1.0.0"
  languageName: node
  linkType: hard

"camelot@workspace:.":
  version: 0.0.0-use.local
  resolution: "camelot@workspace:."
  languageName: unknown
  linkType: soft

"lancelot@workspace:packages/lancelot":
  version: 0.0.0-use.local
  resolution: "lancelot@workspace:packages/lancelot"
  languageName: unknown
  linkType: soft

"fecha@https://example.org/fecha-4.2.3.tgz":
  version: 4.2.3
  resolution: "fecha@https://example.org/fecha-4.2.3.tgz"
  languageName: node
  linkType: hard

"holy-grail@https://github.com/org/holy-grail.git#commit=0123456789abcdef0123456789abcdef01234567":
  version: 2.0.0
  resolution: "holy-grail@https://github.com/org/holy-grail.git#commit=0123456789abcdef0123456789abcdef01234567"
  languageName: node
  linkType: hard

"resolve@patch:resolve@npm%3A^1.22.2#optional!builtin<compat/resolve>":
  version: 1.22.2
  resolution: "resolve@patch:resolve@npm%3A1.22.2#optional!builtin<compat/resolve>::version=1.22.2&hash=c3c19d"
  languageName: node
  linkType: hard
`

func TestResolve(t *testing.T) {
	dir, _, h := testutil.NewRepo(t, map[string]string{
		"web/package.json": `{"name": "camelot", "packageManager": "yarn@3.6.1", "workspaces": ["packages/*"]}`,
		"web/.yarnrc.yml": "nodeLinker: node-modules\n" +
			"npmScopes:\n  private:\n    npmRegistryServer: https://npm.example.com\n",
		"web/packages/lancelot/package.json": `{"name": "lancelot", "version": "1.2.3"}`,
		"web/yarn.lock":                      resolveLockfile,
	})

	out, err := Resolve(context.Background(), input(dir, "web"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if diff := cmp.Diff([]string{"web/package.json", "web/.yarnrc.yml", "web/yarn.lock"}, out.InputFiles); diff != "" {
		t.Errorf("input files mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Environment(), out.EnvironmentVariables); diff != "" {
		t.Errorf("env mismatch (-want +got):\n%s", diff)
	}

	comps := byName(out)
	if len(comps) != 7 {
		t.Fatalf("got %d components: %+v", len(comps), out.Components)
	}
	vcsURL := "git+" + testutil.DefaultOrigin + "@" + h.String()

	t.Run("npm", func(t *testing.T) {
		c := comps["@babel/code-frame"]
		p := mustPURL(t, c.PURL)
		if p.Namespace != "@babel" || p.Name != "code-frame" || p.Version != "7.22.5" || len(p.Qualifiers) != 0 {
			t.Errorf("purl = %s", c.PURL)
		}
		if props := sbom.ParseProperties(c.Properties); len(props.MissingHashInFile) != 0 {
			t.Errorf("checksummed package marked missing hash: %+v", props)
		}
	})

	t.Run("scoped registry and missing checksum", func(t *testing.T) {
		c := comps["@private/tool"]
		p := mustPURL(t, c.PURL)
		if got := p.Qualifiers.Map()["repository_url"]; got != "https://npm.example.com" {
			t.Errorf("repository_url = %q", got)
		}
		props := sbom.ParseProperties(c.Properties)
		if diff := cmp.Diff([]string{"web/yarn.lock"}, props.MissingHashInFile); diff != "" {
			t.Errorf("missing hash mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("workspaces", func(t *testing.T) {
		root := mustPURL(t, comps["camelot"].PURL)
		if root.Version != "" || root.Subpath != "web" || root.Qualifiers.Map()["vcs_url"] != vcsURL {
			t.Errorf("root purl = %s", comps["camelot"].PURL)
		}
		ws := comps["lancelot"]
		p := mustPURL(t, ws.PURL)
		if ws.Version != "1.2.3" || p.Subpath != "web/packages/lancelot" {
			t.Errorf("workspace = %+v", ws)
		}
	})

	t.Run("https", func(t *testing.T) {
		c := comps["fecha"]
		p := mustPURL(t, c.PURL)
		if p.Qualifiers.Map()["download_url"] != "https://example.org/fecha-4.2.3.tgz" || p.Version != "" {
			t.Errorf("purl = %s", c.PURL)
		}
		if props := sbom.ParseProperties(c.Properties); len(props.MissingHashInFile) != 1 {
			t.Errorf("https package without checksum not marked: %+v", props)
		}
	})

	t.Run("git", func(t *testing.T) {
		p := mustPURL(t, comps["holy-grail"].PURL)
		want := "git+https://github.com/org/holy-grail.git@0123456789abcdef0123456789abcdef01234567"
		if got := p.Qualifiers.Map()["vcs_url"]; got != want {
			t.Errorf("vcs_url = %q, want %q", got, want)
		}
	})

	t.Run("patch", func(t *testing.T) {
		c := comps["resolve"]
		if c.Version != "1.22.2" || mustPURL(t, c.PURL).Name != "resolve" {
			t.Errorf("patched component = %+v", c)
		}
	})
}

func TestResolve_registryOverride(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFileTree(t, dir, map[string]string{
		"package.json": `{"name": "app", "packageManager": "yarn@4.0.2"}`,
		"yarn.lock":    "__metadata:\n  version: 8\n\"left-pad@npm:1.3.0\":\n  version: 1.3.0\n  resolution: \"left-pad@npm:1.3.0\"\n  checksum: abc\n",
	})
	in := input(dir, ".")
	in.YarnRegistry = "https://mirror.example.com"

	out, err := Resolve(context.Background(), in)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	p := mustPURL(t, byName(out)["left-pad"].PURL)
	if got := p.Qualifiers.Map()["repository_url"]; got != "https://mirror.example.com" {
		t.Errorf("repository_url = %q", got)
	}
}

func TestResolve_rejected(t *testing.T) {
	const pj = `{"name": "app", "packageManager": "yarn@3.6.1"}`
	tests := []struct {
		name  string
		files map[string]string
		kind  apperr.Kind
		msg   string
	}{
		{
			name:  "no package.json",
			files: map[string]string{"yarn.lock": "__metadata:\n  version: 6\n"},
			kind:  apperr.KindPackageRejected,
			msg:   "The package.json file must be present",
		},
		{
			name:  "yarn classic version",
			files: map[string]string{"package.json": `{"packageManager": "yarn@1.22.19"}`},
			kind:  apperr.KindPackageRejected,
			msg:   "Unsupported Yarn version '1.22.19' detected",
		},
		{
			name:  "zero installs",
			files: map[string]string{"package.json": pj, ".yarn/cache/left-pad.zip": "", "yarn.lock": "__metadata:\n  version: 6\n"},
			kind:  apperr.KindPackageRejected,
			msg:   "Yarn zero install detected",
		},
		{
			name:  "missing lockfile",
			files: map[string]string{"package.json": pj},
			kind:  apperr.KindPackageRejected,
			msg:   "Yarn lockfile 'yarn.lock' missing",
		},
		{
			name: "exec protocol",
			files: map[string]string{
				"package.json": pj,
				"yarn.lock":    "__metadata:\n  version: 6\n\"gen@exec:./gen.js\":\n  version: 0.0.0\n  resolution: \"gen@exec:./gen.js#./gen.js::hash=1\"\n",
			},
			kind: apperr.KindUnsupportedFeature,
			msg:  "Found 'exec' protocol",
		},
		{
			name: "file outside root",
			files: map[string]string{
				"package.json": pj,
				"yarn.lock":    "__metadata:\n  version: 6\n\"x@file:../x\":\n  version: 0.0.0\n  resolution: \"x@file:../x::locator=app%40workspace%3A.\"\n",
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
