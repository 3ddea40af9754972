package pip

import (
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/fbkclanna/lockscan/internal/apperr"
)

// DefaultIndexURL is the index used when neither the request nor the
// requirements file names one.
const DefaultIndexURL = "https://pypi.org/simple/"

const wheelExtension = ".whl"

var (
	sdistExtensions = []string{".zip", ".tar.gz", ".tar.bz2", ".tar.xz", ".tar.Z", ".tar"}
	allExtensions   = append(append([]string{}, sdistExtensions...), wheelExtension)

	gitRefInPath = regexp.MustCompile(`@[a-fA-F0-9]{40}$`)
)

// FileOptions are the global options of a requirements file that lockscan
// acts on.
type FileOptions struct {
	RequireHashes bool
	TrustedHosts  []string
	IndexURL      string
}

// ProcessOptions interprets the global options of a requirements file.
// Options that only matter at install time are logged and ignored; options
// that point pip at other sources are rejected.
func ProcessOptions(options []string, log *slog.Logger) (FileOptions, error) {
	rejected := map[string]bool{
		"--extra-index-url": true,
		"--no-index":        true,
		"-f":                true,
		"--find-links":      true,
		"--only-binary":     true,
	}
	var opts FileOptions
	var ignored, rejects []string
	for i := 0; i < len(options); i++ {
		o := options[i]
		switch {
		case o == "--require-hashes":
			opts.RequireHashes = true
		case o == "--trusted-host" && i+1 < len(options):
			opts.TrustedHosts = append(opts.TrustedHosts, options[i+1])
			i++
		case (o == "-i" || o == "--index-url") && i+1 < len(options):
			opts.IndexURL = options[i+1]
			i++
		case rejected[o]:
			rejects = append(rejects, o)
		case strings.HasPrefix(o, "-"):
			ignored = append(ignored, o)
		}
	}
	if len(ignored) > 0 && log != nil {
		log.Info("lockscan will ignore the following options: " + strings.Join(ignored, ", "))
	}
	if len(rejects) > 0 {
		return opts, apperr.UnsupportedFeature("lockscan does not support the following options: " + strings.Join(rejects, ", "))
	}
	return opts, nil
}

// ValidateRequirements checks that every requirement is pinned.
func ValidateRequirements(reqs []Requirement, allowBinary bool) error {
	for _, req := range reqs {
		switch req.Kind {
		case KindPyPI:
			if len(req.VersionSpecs) != 1 || (req.VersionSpecs[0].Op != "==" && req.VersionSpecs[0].Op != "===") {
				return apperr.PackageRejected(
					"Requirement must be pinned to an exact version: "+req.DownloadLine,
					apperr.WithSolution("Please pin all packages as <name>==<version>\n"+
						"You may wish to use a tool such as pip-compile to pin automatically."),
				)
			}
		case KindVCS:
			u, err := url.Parse(req.URL)
			if err != nil {
				return apperr.UnexpectedFormat(fmt.Sprintf("Invalid URL in %s", req.DownloadLine), apperr.Wrap(err))
			}
			if !strings.HasPrefix(u.Scheme, "git") {
				return apperr.UnsupportedFeature(fmt.Sprintf("Unsupported VCS for %s: %s (only git is supported)", req.DownloadLine, u.Scheme))
			}
			if !gitRefInPath.MatchString(u.Path) {
				return apperr.PackageRejected(
					fmt.Sprintf("No git ref in %s (expected 40 hexadecimal characters)", req.DownloadLine),
					apperr.WithSolution("Please specify the full commit hash for git URLs or switch to https URLs."),
				)
			}
		case KindURL:
			n := len(req.Hashes)
			if req.Qualifiers["cachito_hash"] != "" {
				n++
			}
			if n != 1 {
				return apperr.PackageRejected(
					fmt.Sprintf("URL requirement must specify exactly one hash, but specifies %d: %s.", n, req.DownloadLine),
					apperr.WithSolution("Please specify the expected hashes for all plain URLs using --hash options (one --hash for each)"),
				)
			}
			allowed := sdistExtensions
			if allowBinary {
				allowed = allExtensions
			}
			if fileExtension(req.URL, allowed) == "" {
				return apperr.PackageRejected(fmt.Sprintf(
					"URL for requirement does not contain any recognized file extension: %s (expected one of %s)",
					req.DownloadLine, strings.Join(allowed, ", ")))
			}
		}
	}
	return nil
}

// ValidateHashes checks that hashes are present where required and have the
// algorithm:digest form.
func ValidateHashes(reqs []Requirement, requireHashes bool) error {
	for _, req := range reqs {
		hashes := req.Hashes
		if req.Kind == KindURL && len(hashes) == 0 {
			if h := req.Qualifiers["cachito_hash"]; h != "" {
				hashes = []string{h}
			}
		}
		if requireHashes && len(hashes) == 0 {
			return apperr.PackageRejected(
				"Hash is required, dependency does not specify any: "+req.DownloadLine,
				apperr.WithSolution("Please specify the expected hashes for all dependencies"),
			)
		}
		for _, h := range hashes {
			if _, digest, _ := strings.Cut(h, ":"); digest == "" {
				return apperr.PackageRejected(fmt.Sprintf("Not a valid hash specifier: '%s' (expected 'algorithm:digest')", h))
			}
		}
	}
	return nil
}

// requiresHashes reports whether hashes are mandatory for every requirement
// of the file: either --require-hashes is set or some requirement uses
// --hash.
func requiresHashes(f *RequirementsFile, opts FileOptions) bool {
	if opts.RequireHashes {
		return true
	}
	for _, r := range f.Requirements {
		if len(r.Hashes) > 0 {
			return true
		}
	}
	return false
}

// fileExtension returns the first of exts the URL path ends with.
func fileExtension(rawURL string, exts []string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	for _, ext := range exts {
		if strings.HasSuffix(p, ext) {
			return ext
		}
	}
	return ""
}
