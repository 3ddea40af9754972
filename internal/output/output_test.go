package output

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/fbkclanna/lockscan/internal/sbom"
)

func TestMerge(t *testing.T) {
	a := &RequestOutput{
		Components: []sbom.Component{sbom.NewComponent("x", "1", "pkg:npm/x@1", sbom.PropertySet{})},
		EnvironmentVariables: []EnvironmentVariable{
			{"GOPROXY", "file://${output_dir}/deps/gomod"},
			{"GOFLAGS", "-mod=mod"},
		},
	}
	b := &RequestOutput{
		Components:           []sbom.Component{sbom.NewComponent("x", "1", "pkg:npm/x@1", sbom.PropertySet{})},
		EnvironmentVariables: []EnvironmentVariable{{"GOFLAGS", "-mod=mod"}},
	}

	got, err := Merge(a, nil, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Components) != 1 {
		t.Errorf("components = %d, want 1", len(got.Components))
	}
	wantVars := []EnvironmentVariable{
		{"GOFLAGS", "-mod=mod"},
		{"GOPROXY", "file://${output_dir}/deps/gomod"},
	}
	if diff := cmp.Diff(wantVars, got.EnvironmentVariables); diff != "" {
		t.Errorf("env mismatch (-want +got):\n%s", diff)
	}
}

func TestMerge_conflictingEnv(t *testing.T) {
	a := &RequestOutput{EnvironmentVariables: []EnvironmentVariable{{"GOFLAGS", "-mod=mod"}}}
	b := &RequestOutput{EnvironmentVariables: []EnvironmentVariable{{"GOFLAGS", "-mod=vendor"}}}
	if _, err := Merge(a, b); err == nil {
		t.Fatal("expected conflict")
	}
}

func TestRenderEnv(t *testing.T) {
	vars := []EnvironmentVariable{
		{"GOMODCACHE", "${output_dir}/deps/gomod/pkg/mod"},
		{"GOFLAGS", "-mod=mod -trimpath"},
		{"QUOTE", "it's"},
	}

	t.Run("env", func(t *testing.T) {
		var buf bytes.Buffer
		if err := RenderEnv(&buf, vars, "/tmp/out", EnvFormatEnv); err != nil {
			t.Fatal(err)
		}
		want := "export GOMODCACHE=/tmp/out/deps/gomod/pkg/mod\n" +
			"export GOFLAGS='-mod=mod -trimpath'\n" +
			"export QUOTE='it'\\''s'\n"
		if buf.String() != want {
			t.Errorf("got:\n%s\nwant:\n%s", buf.String(), want)
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := RenderEnv(&buf, vars[:1], "/tmp/out", EnvFormatJSON); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), `"value": "/tmp/out/deps/gomod/pkg/mod"`) {
			t.Errorf("unexpected json: %s", buf.String())
		}
	})
}

func TestParseEnvFormat(t *testing.T) {
	if f, err := ParseEnvFormat(""); err != nil || f != EnvFormatEnv {
		t.Errorf("default = %q, %v", f, err)
	}
	if _, err := ParseEnvFormat("yaml"); err == nil {
		t.Error("expected error for yaml")
	}
}

func TestWriteAndReadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.json")
	vars := []EnvironmentVariable{{"PIP_NO_INDEX", "true"}}
	if err := WriteJSON(path, vars); err != nil {
		t.Fatal(err)
	}
	got, err := ReadEnvFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(vars, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}
