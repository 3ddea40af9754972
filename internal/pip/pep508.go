package pip

import (
	"fmt"
	"regexp"
	"strings"
)

// VersionSpec is one clause of a version specifier, e.g. {">=", "1.0"}.
type VersionSpec struct {
	Op      string `json:"op"`
	Version string `json:"version"`
}

// dependencySpec is the parsed form of a PEP 508 dependency specifier.
type dependencySpec struct {
	name   string
	extras []string
	specs  []VersionSpec
	url    string
	marker string
}

var (
	pepName    = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?`)
	pepVersion = regexp.MustCompile(`^[A-Za-z0-9_.*+!-]+`)
	pepOps     = []string{"===", "==", "!=", "<=", ">=", "~=", "<", ">"}
)

// parseDependencySpec parses name[extras] (@ url | specifiers) [; marker].
func parseDependencySpec(s string) (dependencySpec, error) {
	var spec dependencySpec
	rest := strings.TrimLeft(s, " \t")

	name := pepName.FindString(rest)
	if name == "" {
		return spec, fmt.Errorf("expected package name at the start of dependency specifier")
	}
	spec.name = name
	rest = strings.TrimLeft(rest[len(name):], " \t")

	if strings.HasPrefix(rest, "[") {
		end := strings.Index(rest, "]")
		if end < 0 {
			return spec, fmt.Errorf("expected closing bracket for extras")
		}
		for _, e := range strings.Split(rest[1:end], ",") {
			e = strings.TrimSpace(e)
			if e == "" {
				continue
			}
			if pepName.FindString(e) != e {
				return spec, fmt.Errorf("invalid extra %q", e)
			}
			spec.extras = append(spec.extras, e)
		}
		rest = strings.TrimLeft(rest[end+1:], " \t")
	}

	switch {
	case strings.HasPrefix(rest, "@"):
		rest = strings.TrimLeft(rest[1:], " \t")
		end := strings.IndexAny(rest, " \t")
		if end < 0 {
			end = len(rest)
		}
		spec.url = rest[:end]
		if spec.url == "" {
			return spec, fmt.Errorf("expected URL after @")
		}
		rest = rest[end:]
		// a marker after a URL needs whitespace before the semicolon
		if trimmed := strings.TrimLeft(rest, " \t"); trimmed != "" && !strings.HasPrefix(trimmed, ";") {
			return spec, fmt.Errorf("expected end or semicolon (after URL and whitespace)")
		}
		rest = strings.TrimLeft(rest, " \t")
	case strings.HasPrefix(rest, "("):
		end := strings.Index(rest, ")")
		if end < 0 {
			return spec, fmt.Errorf("expected closing parenthesis for version specifier")
		}
		specs, leftover, err := parseSpecifiers(rest[1:end])
		if err != nil {
			return spec, err
		}
		if strings.TrimSpace(leftover) != "" {
			return spec, fmt.Errorf("unexpected text in version specifier: %q", leftover)
		}
		spec.specs = specs
		rest = strings.TrimLeft(rest[end+1:], " \t")
	default:
		specs, leftover, err := parseSpecifiers(rest)
		if err != nil {
			return spec, err
		}
		spec.specs = specs
		rest = strings.TrimLeft(leftover, " \t")
	}

	if rest == "" {
		return spec, nil
	}
	if !strings.HasPrefix(rest, ";") {
		return spec, fmt.Errorf("expected end or semicolon (after version specifier), got %q", rest)
	}
	spec.marker = strings.TrimSpace(rest[1:])
	if spec.marker == "" {
		return spec, fmt.Errorf("expected marker after semicolon")
	}
	if err := checkMarker(spec.marker); err != nil {
		return spec, err
	}
	return spec, nil
}

// parseSpecifiers reads comma-separated version clauses from the start of s
// and returns whatever follows them.
func parseSpecifiers(s string) ([]VersionSpec, string, error) {
	var specs []VersionSpec
	rest := strings.TrimLeft(s, " \t")
	for {
		op := ""
		for _, o := range pepOps {
			if strings.HasPrefix(rest, o) {
				op = o
				break
			}
		}
		if op == "" {
			if len(specs) > 0 {
				return nil, "", fmt.Errorf("expected version operator after comma")
			}
			return nil, rest, nil
		}
		rest = strings.TrimLeft(rest[len(op):], " \t")
		v := pepVersion.FindString(rest)
		if v == "" {
			return nil, "", fmt.Errorf("expected version after %s", op)
		}
		specs = append(specs, VersionSpec{Op: op, Version: v})
		rest = strings.TrimLeft(rest[len(v):], " \t")
		if !strings.HasPrefix(rest, ",") {
			return specs, rest, nil
		}
		rest = strings.TrimLeft(rest[1:], " \t")
	}
}

var nameSeparators = regexp.MustCompile(`[-_.]+`)

// CanonicalizeName normalizes a Python distribution name: lowercase with
// runs of "-", "_" and "." collapsed to a single "-".
func CanonicalizeName(name string) string {
	return strings.ToLower(nameSeparators.ReplaceAllString(name, "-"))
}
