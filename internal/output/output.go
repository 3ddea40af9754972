// Package output holds the result of resolving one or more package inputs:
// the components found and the environment a hermetic build needs.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/fbkclanna/lockscan/internal/sbom"
	"github.com/fbkclanna/lockscan/internal/validate"
)

// OutputDirPlaceholder is replaced with the real output directory when the
// environment is rendered.
const OutputDirPlaceholder = "${output_dir}"

// EnvironmentVariable is a variable the build must export.
type EnvironmentVariable struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// RequestOutput is what a resolver returns.
type RequestOutput struct {
	Components           []sbom.Component      `json:"components"`
	EnvironmentVariables []EnvironmentVariable `json:"environment_variables"`

	// InputFiles are the source-relative files the resolver read, recorded
	// in the lock state.
	InputFiles []string `json:"-"`
}

// Merge combines outputs. Components are merged by PURL; environment
// variables must agree on their values.
func Merge(outputs ...*RequestOutput) (*RequestOutput, error) {
	var comps []sbom.Component
	var vars []EnvironmentVariable
	var files []string
	for _, o := range outputs {
		if o == nil {
			continue
		}
		comps = append(comps, o.Components...)
		vars = append(vars, o.EnvironmentVariables...)
		files = append(files, o.InputFiles...)
	}
	uniqVars, err := validate.UniqueSorted(vars, func(v EnvironmentVariable) string { return v.Name }, true)
	if err != nil {
		return nil, fmt.Errorf("environment variables: %w", err)
	}
	merged := sbom.MergeComponents(comps)
	if merged == nil {
		merged = []sbom.Component{}
	}
	if uniqVars == nil {
		uniqVars = []EnvironmentVariable{}
	}
	slices.Sort(files)
	return &RequestOutput{Components: merged, EnvironmentVariables: uniqVars, InputFiles: slices.Compact(files)}, nil
}

// EnvFormat is the rendering of environment variables.
type EnvFormat string

const (
	EnvFormatEnv  EnvFormat = "env"
	EnvFormatJSON EnvFormat = "json"
)

// ParseEnvFormat parses a format name, defaulting to env.
func ParseEnvFormat(s string) (EnvFormat, error) {
	switch EnvFormat(s) {
	case EnvFormatEnv, "":
		return EnvFormatEnv, nil
	case EnvFormatJSON:
		return EnvFormatJSON, nil
	default:
		return "", fmt.Errorf("unknown env format: %q (must be env or json)", s)
	}
}

// Resolve substitutes the output directory into each value.
func Resolve(vars []EnvironmentVariable, outputDir string) []EnvironmentVariable {
	out := make([]EnvironmentVariable, len(vars))
	for i, v := range vars {
		out[i] = EnvironmentVariable{Name: v.Name, Value: strings.ReplaceAll(v.Value, OutputDirPlaceholder, outputDir)}
	}
	return out
}

// RenderEnv writes vars in the requested format.
func RenderEnv(w io.Writer, vars []EnvironmentVariable, outputDir string, format EnvFormat) error {
	resolved := Resolve(vars, outputDir)
	switch format {
	case EnvFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resolved)
	default:
		for _, v := range resolved {
			if _, err := fmt.Fprintf(w, "export %s=%s\n", v.Name, shellQuote(v.Value)); err != nil {
				return err
			}
		}
		return nil
	}
}

// WriteJSON writes o to path as indented JSON.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil { //nolint:gosec // build output is world-readable
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ReadEnvFile reads the env.json written by a scan.
func ReadEnvFile(path string) ([]EnvironmentVariable, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path inside the scan output dir
	if err != nil {
		return nil, fmt.Errorf("reading env file: %w", err)
	}
	var vars []EnvironmentVariable
	if err := json.Unmarshal(data, &vars); err != nil {
		return nil, fmt.Errorf("parsing env file: %w", err)
	}
	return vars, nil
}

func shellQuote(s string) string {
	if s != "" && strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./:=@+,%", r))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
