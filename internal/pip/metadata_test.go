package pip

import (
	"testing"

	"github.com/fbkclanna/lockscan/internal/apperr"
	"github.com/fbkclanna/lockscan/internal/rootedpath"
	"github.com/fbkclanna/lockscan/internal/testutil"
)

const setupPy = `from setuptools import setup

__version__ = "1.2.3"  # bumped by release tooling

setup(
    name="setup-py-pkg",
    version=__version__,
    packages=["a", "b"],
    install_requires=["requests>=2"],
)
`

func TestReadMetadata(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  Metadata
	}{
		{
			name: "pyproject",
			files: map[string]string{
				"pyproject.toml": "[project]\nname = \"toml-pkg\"\nversion = \"0.1.0\"\n",
				"setup.py":       setupPy,
			},
			want: Metadata{Name: "toml-pkg", Version: "0.1.0"},
		},
		{
			name: "pyproject without name falls back to setup.py",
			files: map[string]string{
				"pyproject.toml": "[build-system]\nrequires = [\"setuptools\"]\n",
				"setup.py":       setupPy,
			},
			want: Metadata{Name: "setup-py-pkg", Version: "1.2.3"},
		},
		{
			name: "setup.py tuple version",
			files: map[string]string{
				"setup.py": "VERSION = (2, 0, 1)\nsetup(name='tuple-pkg', version=VERSION)\n",
			},
			want: Metadata{Name: "tuple-pkg", Version: "2.0.1"},
		},
		{
			name: "setup.cfg plain",
			files: map[string]string{
				"setup.cfg": "[metadata]\nname = cfg-pkg\nversion = v3.1\n",
			},
			want: Metadata{Name: "cfg-pkg", Version: "3.1"},
		},
		{
			name: "setup.cfg file directive",
			files: map[string]string{
				"setup.cfg": "[metadata]\nname = cfg-pkg\nversion = file: VERSION\n",
				"VERSION":   "4.0.0\n",
			},
			want: Metadata{Name: "cfg-pkg", Version: "4.0.0"},
		},
		{
			name: "setup.cfg attr directive with package_dir",
			files: map[string]string{
				"setup.cfg":              "[metadata]\nname = cfg-pkg\nversion = attr: mypkg.__version__\n\n[options]\npackage_dir = =src\n",
				"src/mypkg/__init__.py":  "__version__ = '5.0.0'\n",
				"src/mypkg/submodule.py": "x = 1\n",
			},
			want: Metadata{Name: "cfg-pkg", Version: "5.0.0"},
		},
		{
			name: "setup.cfg attr directive with missing module",
			files: map[string]string{
				"setup.cfg": "[metadata]\nname = cfg-pkg\nversion = attr: nowhere.__version__\n",
			},
			want: Metadata{Name: "cfg-pkg"},
		},
		{
			name:  "origin fallback",
			files: map[string]string{"requirements.txt": ""},
			want:  Metadata{Name: "project"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, _, _ := testutil.NewRepo(t, tt.files)
			got, err := ReadMetadata(rootedpath.MustNew(dir), nil)
			if err != nil {
				t.Fatalf("ReadMetadata: %v", err)
			}
			if got != tt.want {
				t.Errorf("ReadMetadata = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestReadMetadata_originSubpath(t *testing.T) {
	dir := t.TempDir()
	repo := testutil.InitRepo(t, dir)
	testutil.WriteFileTree(t, dir, map[string]string{"sub/dir/requirements.txt": ""})
	testutil.CommitAll(t, repo, "initial")
	testutil.AddOrigin(t, repo, "git@github.com:user/repo.git")

	tests := []struct {
		path string
		want string
	}{
		{".", "repo"},
		{"sub/dir", "repo-sub-dir"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			pkgDir, err := rootedpath.MustNew(dir).Join(tt.path)
			if err != nil {
				t.Fatal(err)
			}
			got, err := ReadMetadata(pkgDir, nil)
			if err != nil {
				t.Fatalf("ReadMetadata: %v", err)
			}
			if got.Name != tt.want || got.Version != "" {
				t.Errorf("ReadMetadata = %+v, want name %q", got, tt.want)
			}
		})
	}
}

func TestReadMetadata_noOrigin(t *testing.T) {
	dir := t.TempDir()
	repo := testutil.InitRepo(t, dir)
	testutil.CommitAll(t, repo, "initial")

	_, err := ReadMetadata(rootedpath.MustNew(dir), nil)
	if !apperr.Is(err, apperr.KindPackageRejected) {
		t.Fatalf("expected package rejected, got %v", err)
	}
	if err.Error() != "Unable to infer package name from origin URL" {
		t.Errorf("error = %q", err)
	}
}

func TestReadMetadata_badModuleName(t *testing.T) {
	dir, _, _ := testutil.NewRepo(t, map[string]string{
		"setup.cfg": "[metadata]\nname = cfg-pkg\nversion = attr: 1bad.__version__\n",
	})
	_, err := ReadMetadata(rootedpath.MustNew(dir), nil)
	if !apperr.Is(err, apperr.KindPackageRejected) {
		t.Fatalf("expected package rejected, got %v", err)
	}
}

func TestLiteralValue(t *testing.T) {
	tests := []struct {
		expr string
		want string
		ok   bool
	}{
		{`"1.0"`, "1.0", true},
		{`'1.0'`, "1.0", true},
		{`(1, 2, "3rc1")`, "1.2.3rc1", true},
		{`[1, 0]`, "1.0", true},
		{`get_version()`, "", false},
		{`VERSION`, "", false},
	}
	for _, tt := range tests {
		got, ok := literalValue(tt.expr)
		if got != tt.want || ok != tt.ok {
			t.Errorf("literalValue(%s) = %q, %v; want %q, %v", tt.expr, got, ok, tt.want, tt.ok)
		}
	}
}
