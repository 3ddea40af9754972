package pip

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/fbkclanna/lockscan/internal/apperr"
	"github.com/fbkclanna/lockscan/internal/rootedpath"
)

// Kind tells where a requirement is fetched from.
type Kind string

const (
	KindPyPI Kind = "pypi"
	KindURL  Kind = "url"
	KindVCS  Kind = "vcs"
)

// requirementsFileOptions maps each option allowed in a requirements file to
// whether it takes a value.
var requirementsFileOptions = map[string]bool{
	"--constraint":      true,
	"--editable":        false,
	"--extra-index-url": true,
	"--find-links":      true,
	"--index-url":       true,
	"--no-binary":       true,
	"--no-index":        false,
	"--only-binary":     true,
	"--pre":             false,
	"--prefer-binary":   false,
	"--require-hashes":  false,
	"--requirement":     true,
	"--trusted-host":    true,
	"--use-feature":     true,
	"-c":                true,
	"-e":                false,
	"-f":                true,
	"--hash":            true,
	"-i":                true,
	"-r":                true,
}

// Options that apply to the requirement on the same line rather than the
// whole file.
var requirementOptions = map[string]bool{
	"-e":         true,
	"--editable": true,
	"--hash":     true,
}

var (
	urlSchemes = map[string]bool{"http": true, "https": true, "ftp": true}
	vcsSchemes = map[string]bool{
		"bzr": true, "bzr+ftp": true, "bzr+http": true, "bzr+https": true,
		"git": true, "git+ftp": true, "git+http": true, "git+https": true,
		"hg":  true, "hg+ftp": true, "hg+http": true, "hg+https": true,
		"svn": true, "svn+ftp": true, "svn+http": true, "svn+https": true,
	}

	lineComment   = regexp.MustCompile(`(^|\s)#.*$`)
	namedDirectRe = regexp.MustCompile(`@.+://`)
)

// RequirementsFile is a parsed requirements file.
type RequirementsFile struct {
	Path         rootedpath.RootedPath `json:"-"`
	Options      []string              `json:"options"`
	Requirements []Requirement         `json:"requirements"`
}

// Requirement is one requirement line.
type Requirement struct {
	Package      string            `json:"package"`
	RawPackage   string            `json:"raw_package"`
	Kind         Kind              `json:"kind"`
	DownloadLine string            `json:"download_line"`
	URL          string            `json:"url,omitempty"`
	Extras       []string          `json:"extras,omitempty"`
	VersionSpecs []VersionSpec     `json:"version_specs,omitempty"`
	Marker       string            `json:"environment_marker,omitempty"`
	Hashes       []string          `json:"hashes,omitempty"`
	Options      []string          `json:"options,omitempty"`
	Qualifiers   map[string]string `json:"qualifiers,omitempty"`
}

// String renders the requirement the way it would be written back to a
// requirements file.
func (r Requirement) String() string {
	parts := append([]string{}, r.Options...)
	parts = append(parts, r.DownloadLine)
	for _, h := range r.Hashes {
		parts = append(parts, "--hash="+h)
	}
	return strings.Join(parts, " ")
}

// ReadRequirementsFile parses the requirements file at path.
func ReadRequirementsFile(path rootedpath.RootedPath) (*RequirementsFile, error) {
	data, err := path.ReadFile()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path.Subpath(), err)
	}
	f, err := ParseRequirements(data)
	if err != nil {
		return nil, err
	}
	f.Path = path
	return f, nil
}

// ParseRequirements parses requirements file content.
func ParseRequirements(data []byte) (*RequirementsFile, error) {
	f := &RequirementsFile{Options: []string{}, Requirements: []Requirement{}}
	for _, line := range logicalLines(string(data)) {
		global, reqOpts, reqLine, err := splitOptions(line)
		if err != nil {
			return nil, err
		}
		f.Options = append(f.Options, global...)
		if reqLine == "" {
			continue
		}
		req, err := ParseRequirement(reqLine, reqOpts)
		if err != nil {
			return nil, err
		}
		f.Requirements = append(f.Requirements, req)
	}
	return f, nil
}

// logicalLines joins continued lines and drops comments and blank lines. A
// trailing continuation is returned as is.
func logicalLines(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	var lines []string
	var buf []string
	physical := strings.Split(content, "\n")
	if n := len(physical); n > 0 && physical[n-1] == "" {
		physical = physical[:n-1]
	}
	for _, line := range physical {
		if strings.HasSuffix(line, `\`) {
			buf = append(buf, strings.TrimRight(line, `\`))
			continue
		}
		buf = append(buf, line)
		joined := strings.TrimSpace(lineComment.ReplaceAllString(strings.Join(buf, ""), ""))
		if joined != "" {
			lines = append(lines, joined)
		}
		buf = nil
	}
	if len(buf) > 0 {
		lines = append(lines, strings.Join(buf, ""))
	}
	return lines
}

// splitOptions separates file-wide options, per-requirement options and the
// requirement itself.
func splitOptions(line string) (global, perReq []string, requirement string, err error) {
	var reqParts []string
	requireValue := false
	ctx := &global
	for _, part := range strings.Fields(line) {
		switch {
		case requireValue:
			*ctx = append(*ctx, part)
			requireValue = false
		case strings.HasPrefix(part, "-"):
			option, value, hasValue := strings.Cut(part, "=")
			takesValue, known := requirementsFileOptions[option]
			if !known {
				return nil, nil, "", apperr.UnexpectedFormat(fmt.Sprintf("Unknown requirements file option '%s'", part))
			}
			if requirementOptions[option] {
				ctx = &perReq
			} else {
				ctx = &global
			}
			if hasValue && value != "" && !takesValue {
				return nil, nil, "", apperr.UnexpectedFormat(fmt.Sprintf("Unexpected value for requirements file option '%s'", part))
			}
			requireValue = takesValue
			*ctx = append(*ctx, option)
			if hasValue && value != "" {
				*ctx = append(*ctx, value)
				requireValue = false
			}
		default:
			reqParts = append(reqParts, part)
		}
	}
	if requireValue {
		last := (*ctx)[len(*ctx)-1]
		return nil, nil, "", apperr.UnexpectedFormat(fmt.Sprintf("Requirements file option '%s' requires a value", last))
	}
	if len(perReq) > 0 && len(reqParts) == 0 {
		quoted := make([]string, len(perReq))
		for i, o := range perReq {
			quoted[i] = "'" + o + "'"
		}
		return nil, nil, "", apperr.UnexpectedFormat(fmt.Sprintf(
			"Requirements file option(s) [%s] can only be applied to a requirement", strings.Join(quoted, ", ")))
	}
	return global, perReq, strings.Join(reqParts, " "), nil
}

// ParseRequirement parses a single requirement line with the options that
// were given on it.
func ParseRequirement(line string, options []string) (Requirement, error) {
	req := Requirement{Kind: KindPyPI}
	toParse := line

	kind, err := directAccessKind(line)
	if err != nil {
		return req, err
	}
	if kind != "" {
		req.Kind = kind
		toParse, req.Qualifiers, err = adjustDirectAccess(line)
		if err != nil {
			return req, err
		}
	}

	spec, err := parseDependencySpec(toParse)
	if err != nil {
		return req, apperr.UnexpectedFormat(fmt.Sprintf("Unable to parse the requirement '%s': %v", toParse, err))
	}

	req.DownloadLine = toParse
	req.Hashes, req.Options = splitHashes(options)
	req.Package = CanonicalizeName(spec.name)
	req.RawPackage = spec.name
	req.Extras = spec.extras
	req.VersionSpecs = spec.specs
	req.Marker = spec.marker
	req.URL = spec.url
	return req, nil
}

func directAccessKind(line string) (Kind, error) {
	before, _, found := strings.Cut(line, ":")
	if !found {
		return "", nil
	}
	parts := strings.Split(before, "@")
	if len(parts) > 2 {
		return "", apperr.UnexpectedFormat(fmt.Sprintf("Unable to extract scheme from direct access requirement '%s'", line))
	}
	scheme := strings.TrimSpace(strings.ToLower(parts[len(parts)-1]))
	switch {
	case urlSchemes[scheme]:
		return KindURL, nil
	case vcsSchemes[scheme]:
		return KindVCS, nil
	default:
		return "", apperr.UnsupportedFeature(fmt.Sprintf("Direct references with '%s' scheme are not supported, '%s'", scheme, line))
	}
}

// adjustDirectAccess rewrites a direct reference to "name @ url [; marker]"
// and returns the URL fragment's key=value pairs. An egg= fragment names the
// package even when a name precedes the URL.
func adjustDirectAccess(line string) (string, map[string]string, error) {
	var name string
	rawURL := line
	if namedDirectRe.MatchString(line) {
		name, rawURL, _ = strings.Cut(line, "@")
	}
	var marker string
	if u, m, ok := strings.Cut(rawURL, "; "); ok {
		rawURL, marker = u, m
	}

	qualifiers := map[string]string{}
	if _, fragment, ok := strings.Cut(rawURL, "#"); ok && fragment != "" {
		for _, section := range strings.Split(fragment, "&") {
			attr, value, ok := strings.Cut(section, "=")
			if !ok {
				continue
			}
			if unq, err := url.PathUnescape(value); err == nil {
				value = unq
			}
			qualifiers[attr] = value
			if attr == "egg" {
				name = value
			}
		}
	}

	if strings.TrimSpace(name) == "" {
		return "", nil, apperr.UnsupportedFeature(
			fmt.Sprintf("Dependency name could not be determined from the requirement '%s' (lockscan needs the name to be explicitly declared)", line),
			apperr.WithSolution("Please specify the name of the dependency: <name> @ <url>"),
		)
	}

	parts := []string{strings.TrimSpace(name), "@", strings.TrimSpace(rawURL)}
	if marker != "" {
		parts = append(parts, ";", strings.TrimSpace(marker))
	}
	if len(qualifiers) == 0 {
		qualifiers = nil
	}
	return strings.Join(parts, " "), qualifiers, nil
}

func splitHashes(options []string) (hashes, rest []string) {
	isHash := false
	for _, o := range options {
		switch {
		case isHash:
			hashes = append(hashes, o)
			isHash = false
		case o == "--hash":
			isHash = true
		default:
			rest = append(rest, o)
		}
	}
	return hashes, rest
}
