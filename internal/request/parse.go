package request

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/fbkclanna/lockscan/internal/apperr"
	"github.com/fbkclanna/lockscan/internal/validate"
)

// Format is the serialization of a request file.
type Format int

const (
	FormatYAML Format = iota
	FormatJSON
)

// FormatFor picks the format from a file extension.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return FormatJSON
	}
	return FormatYAML
}

// Load reads and validates a request file.
func Load(path string) (*Request, error) {
	data, err := os.ReadFile(path) //nolint:gosec // request path chosen by the user
	if err != nil {
		return nil, fmt.Errorf("reading request: %w", err)
	}
	return Parse(data, FormatFor(path))
}

// Parse parses and validates request content.
func Parse(data []byte, format Format) (*Request, error) {
	var req Request
	switch format {
	case FormatJSON:
		if err := decodeJSON(data, &req); err != nil {
			return nil, apperr.InvalidInput("parsing request JSON", apperr.Wrap(err))
		}
	default:
		if err := yaml.Unmarshal(data, &req); err != nil {
			return nil, apperr.InvalidInput("parsing request YAML", apperr.Wrap(err))
		}
	}
	if err := normalize(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// ParseInline accepts the short forms allowed on the command line: a bare
// package type ("gomod"), a JSON package object, a JSON array of package
// objects, or a full JSON request.
func ParseInline(arg string) (*Request, error) {
	arg = strings.TrimSpace(arg)
	req := &Request{Version: 1}

	switch {
	case strings.HasPrefix(arg, "["):
		if err := decodeJSON([]byte(arg), &req.Packages); err != nil {
			return nil, apperr.InvalidInput("parsing package list", apperr.Wrap(err))
		}
	case strings.HasPrefix(arg, "{"):
		data := jsonc.ToJSON([]byte(arg))
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(data, &probe); err != nil {
			return nil, apperr.InvalidInput("parsing package input", apperr.Wrap(err))
		}
		if _, ok := probe["packages"]; ok {
			return Parse(data, FormatJSON)
		}
		var pkg Package
		if err := decodeJSON(data, &pkg); err != nil {
			return nil, apperr.InvalidInput("parsing package input", apperr.Wrap(err))
		}
		req.Packages = []Package{pkg}
	default:
		req.Packages = []Package{{Type: PackageType(arg)}}
	}

	if err := normalize(req); err != nil {
		return nil, err
	}
	return req, nil
}

// Save validates and writes a request as YAML.
func Save(path string, req *Request) error {
	if err := Validate(req); err != nil {
		return err
	}
	data, err := yaml.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // request file is meant to be committed
		return fmt.Errorf("writing request: %w", err)
	}
	return nil
}

func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// Validate checks the request and reports every problem at once.
func Validate(req *Request) error {
	var result *multierror.Error

	if req.Version != 1 {
		result = multierror.Append(result, fmt.Errorf("unsupported request version: %d (expected 1)", req.Version))
	}
	switch req.Mode {
	case "", "strict", "permissive":
	default:
		result = multierror.Append(result, fmt.Errorf("unknown mode %q (must be strict or permissive)", req.Mode))
	}
	for _, f := range req.Flags {
		if !knownFlags[f] {
			result = multierror.Append(result, fmt.Errorf("unknown flag %q", f))
		}
	}
	if len(req.Packages) == 0 {
		result = multierror.Append(result, fmt.Errorf("at least one package is required"))
	}
	for i, p := range req.Packages {
		for _, err := range validatePackage(i, p) {
			result = multierror.Append(result, err)
		}
	}
	if _, err := validate.Unique(req.Packages, func(p Package) string { return p.Key() }, true); err != nil {
		result = multierror.Append(result, fmt.Errorf("packages: %w", err))
	}

	if err := result.ErrorOrNil(); err != nil {
		return apperr.InvalidInput("invalid request", apperr.Wrap(err),
			apperr.WithSolution("Fix the listed problems in the request and try again."))
	}
	return nil
}

func validatePackage(i int, p Package) []error {
	var errs []error
	label := fmt.Sprintf("packages[%d]", i)

	switch p.Type {
	case TypeGomod, TypePip, TypeYarn, TypeYarnClassic:
	case "":
		errs = append(errs, fmt.Errorf("%s.type is required", label))
	default:
		errs = append(errs, fmt.Errorf("%s: unknown package type %q", label, p.Type))
	}
	if err := validate.CheckSaneRelpath(p.EffectivePath()); err != nil {
		errs = append(errs, fmt.Errorf("%s.path: %w", label, err))
	}
	if p.Type != TypePip && (p.RequirementsFiles != nil || p.RequirementsBuildFiles != nil || p.AllowBinary) {
		errs = append(errs, fmt.Errorf("%s: requirements_files, requirements_build_files and allow_binary only apply to pip", label))
	}
	for _, f := range append(append([]string{}, p.RequirementsFiles...), p.RequirementsBuildFiles...) {
		if err := validate.CheckSaneRelpath(f); err != nil {
			errs = append(errs, fmt.Errorf("%s requirements file: %w", label, err))
		}
	}
	return errs
}

// normalize fills in default paths and cleans sane ones so that equivalent
// packages compare equal, then validates and drops identical duplicates.
func normalize(req *Request) error {
	for i := range req.Packages {
		p := &req.Packages[i]
		if validate.CheckSaneRelpath(p.EffectivePath()) == nil {
			p.Path = path.Clean(filepath.ToSlash(p.EffectivePath()))
		}
	}
	if err := Validate(req); err != nil {
		return err
	}
	deduped, _ := validate.Unique(req.Packages, func(p Package) string { return p.Key() }, true)
	req.Packages = deduped
	return nil
}
