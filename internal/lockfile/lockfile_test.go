package lockfile

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/fbkclanna/lockscan/internal/apperr"
	"github.com/fbkclanna/lockscan/internal/testutil"
)

var fixtures = map[string]string{
	"go.sum": "golang.org/x/mod v0.31.0 h1:abc=\n" +
		"golang.org/x/mod v0.31.0/go.mod h1:def=\n" +
		"github.com/google/go-cmp v0.7.0 h1:ghi=\n",
	"go.mod":               "module example.com/app\n\ngo 1.24\n\nrequire golang.org/x/mod v0.31.0\n",
	"go.work":              "go 1.24\n\nuse (\n\t./a\n\t./b\n)\n",
	"vendor/modules.txt":   "# golang.org/x/mod v0.31.0\n## explicit\ngolang.org/x/mod/semver\n",
	"requirements.txt":     "requests==2.31.0\nflask>=3.0\n",
	"requirements/dev.txt": "pytest==8.0.0\n",
	"berry/yarn.lock":      "__metadata:\n  version: 6\n\n\"left-pad@npm:^1.3.0\":\n  version: 1.3.0\n  resolution: \"left-pad@npm:1.3.0\"\n",
	"odd/yarn.lock":        "__metadata:\n  version: 6\n\n\"thing@whatever\":\n  version: 0.1.0\n  resolution: \"thing\"\n",
	"classic/yarn.lock":    "# yarn lockfile v1\n\nleft-pad@^1.3.0:\n  version \"1.3.0\"\n  resolved \"https://registry.yarnpkg.com/left-pad/-/left-pad-1.3.0.tgz#5b8a\"\n",
	"package.json":         `{"name": "app", "dependencies": {"left-pad": "^1.3.0"}, "devDependencies": {"jest": "^29.0.0"}}`,
	".yarnrc.yml":          "nodeLinker: node-modules\n",
	"pyproject.toml":       "[project]\nname = \"app\"\nversion = \"1.0.0\"\n",
	"Cargo.lock":           "",
	"notes.md":             "",
}

func writeFixtures(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteFileTree(t, dir, fixtures)
	return dir
}

func TestDetect(t *testing.T) {
	dir := writeFixtures(t)
	tests := []struct {
		file string
		want Kind
	}{
		{"go.sum", KindGoSum},
		{"go.mod", KindGoMod},
		{"go.work", KindGoWork},
		{"vendor/modules.txt", KindModulesTxt},
		{"requirements.txt", KindRequirements},
		{"requirements/dev.txt", KindRequirements},
		{"berry/yarn.lock", KindYarnLock},
		{"classic/yarn.lock", KindYarnClassicLock},
		{"package.json", KindPackageJSON},
		{".yarnrc.yml", KindYarnRc},
		{"pyproject.toml", KindPyProject},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			got, err := Detect(filepath.Join(dir, tt.file))
			if err != nil {
				t.Fatalf("Detect: %v", err)
			}
			if got != tt.want {
				t.Errorf("Detect = %q, want %q", got, tt.want)
			}
		})
	}

	for _, f := range []string{"Cargo.lock", "notes.md"} {
		if _, err := Detect(filepath.Join(dir, f)); !apperr.Is(err, apperr.KindUnsupportedFeature) {
			t.Errorf("Detect(%s) err = %v, want unsupported", f, err)
		}
	}
}

func TestParse_packages(t *testing.T) {
	dir := writeFixtures(t)
	tests := []struct {
		file string
		want []Package
	}{
		{"go.sum", []Package{
			{Name: "github.com/google/go-cmp", Version: "v0.7.0", Source: "go.sum"},
			{Name: "golang.org/x/mod", Version: "v0.31.0", Source: "go.sum"},
		}},
		{"go.mod", []Package{{Name: "golang.org/x/mod", Version: "v0.31.0", Source: "require"}}},
		{"vendor/modules.txt", []Package{{Name: "golang.org/x/mod", Version: "v0.31.0", Source: "vendor"}}},
		{"requirements.txt", []Package{
			{Name: "flask", Version: ">=3.0", Source: "pypi"},
			{Name: "requests", Version: "==2.31.0", Source: "pypi"},
		}},
		{"berry/yarn.lock", []Package{{Name: "left-pad", Version: "1.3.0", Source: "npm"}}},
		{"odd/yarn.lock", []Package{{Name: "thing", Version: "0.1.0", Source: "thing"}}},
		{"classic/yarn.lock", []Package{{
			Name: "left-pad", Version: "1.3.0", Source: "https://registry.yarnpkg.com/left-pad/-/left-pad-1.3.0.tgz#5b8a",
		}}},
		{"package.json", []Package{
			{Name: "jest", Version: "^29.0.0", Source: "devDependencies"},
			{Name: "left-pad", Version: "^1.3.0", Source: "dependencies"},
		}},
		{".yarnrc.yml", nil},
		{"pyproject.toml", nil},
		{"go.work", nil},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			res, err := Parse(filepath.Join(dir, tt.file))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if diff := cmp.Diff(tt.want, res.Packages()); diff != "" {
				t.Errorf("packages mismatch (-want +got):\n%s", diff)
			}
			if _, err := json.Marshal(res); err != nil {
				t.Errorf("result is not JSON-encodable: %v", err)
			}
		})
	}
}

func TestParse_goWork(t *testing.T) {
	dir := writeFixtures(t)
	res, err := Parse(filepath.Join(dir, "go.work"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := &GoWork{Go: "1.24", Use: []string{"./a", "./b"}}
	if diff := cmp.Diff(want, res.Data); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_pyproject(t *testing.T) {
	dir := writeFixtures(t)
	res, err := Parse(filepath.Join(dir, "pyproject.toml"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := map[string]any{"project": map[string]any{"name": "app", "version": "1.0.0"}}
	if diff := cmp.Diff(want, res.Data); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_errors(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFileTree(t, dir, map[string]string{
		"bad/yarn.lock":    "__metadata:\n  version: 6\n\"x@npm:1\":\n  version: 1\n",
		"pyproject.toml":   "[project\n",
		"dir/go.mod/.keep": "",
		"requirements.txt": "--bogus-option\n",
	})
	tests := []struct {
		file string
		kind apperr.Kind
	}{
		{"bad/yarn.lock", apperr.KindUnexpectedFormat},
		{"pyproject.toml", apperr.KindUnexpectedFormat},
		{"dir/go.mod", apperr.KindInvalidInput},
		{"requirements.txt", apperr.KindUnexpectedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			if _, err := Parse(filepath.Join(dir, tt.file)); !apperr.Is(err, tt.kind) {
				t.Fatalf("err = %v, want %s", err, tt.kind)
			}
		})
	}
}
