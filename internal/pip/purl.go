package pip

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/package-url/packageurl-go"
)

// gitInfo is a git requirement URL split into its parts.
type gitInfo struct {
	URL       string
	Host      string
	Namespace string
	Repo      string
	Ref       string
}

// parseGitURL splits "git+<scheme>://host/namespace/repo[.git]@ref[#...]".
func parseGitURL(raw string) (gitInfo, error) {
	u, err := url.Parse(strings.TrimPrefix(raw, "git+"))
	if err != nil {
		return gitInfo{}, fmt.Errorf("parsing git URL %q: %w", raw, err)
	}
	at := strings.LastIndex(u.Path, "@")
	if at < 0 {
		return gitInfo{}, fmt.Errorf("git URL %q has no ref", raw)
	}
	repoPath, ref := u.Path[:at], u.Path[at+1:]
	dir, base := path.Split(strings.TrimSuffix(repoPath, "/"))
	clean := url.URL{Scheme: u.Scheme, User: u.User, Host: u.Host, Path: repoPath}
	return gitInfo{
		URL:       clean.String(),
		Host:      u.Hostname(),
		Namespace: strings.Trim(dir, "/"),
		Repo:      strings.TrimSuffix(base, ".git"),
		Ref:       ref,
	}, nil
}

// ExternalRequirementPath is where a URL or VCS requirement's artifact lives
// under deps/pip/, e.g. external-foo/foo-external-sha256-abc.tar.gz or
// github.com/org/repo/repo-external-gitcommit-<ref>.tar.gz. Wheels keep their
// file name.
func ExternalRequirementPath(req Requirement) (string, error) {
	switch req.Kind {
	case KindURL:
		hash := req.Qualifiers["cachito_hash"]
		if len(req.Hashes) > 0 {
			hash = req.Hashes[0]
		}
		algorithm, digest, _ := strings.Cut(hash, ":")
		ext := fileExtension(req.URL, allExtensions)
		if ext == wheelExtension {
			u, err := url.Parse(req.URL)
			if err != nil {
				return "", fmt.Errorf("parsing %q: %w", req.URL, err)
			}
			return path.Base(u.Path), nil
		}
		return path.Join(
			"external-"+req.Package,
			fmt.Sprintf("%s-external-%s-%s%s", req.Package, algorithm, digest, ext),
		), nil
	case KindVCS:
		info, err := parseGitURL(req.URL)
		if err != nil {
			return "", err
		}
		return path.Join(info.Host, info.Namespace, info.Repo,
			fmt.Sprintf("%s-external-gitcommit-%s.tar.gz", info.Repo, info.Ref)), nil
	default:
		return "", fmt.Errorf("%s requirement %s has no external path", req.Kind, req.Package)
	}
}

// purlName applies the pypi purl name normalization.
func purlName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "_", "-")
}

func pypiPURL(name, version string, qualifiers map[string]string, subpath string) string {
	var q packageurl.Qualifiers
	if len(qualifiers) > 0 {
		q = packageurl.QualifiersFromMap(qualifiers)
	}
	return packageurl.NewPackageURL(packageurl.TypePyPi, "", purlName(name), version, q, subpath).ToString()
}

// mainPURL is the purl of the package being scanned. vcsURL may be empty
// when the source is not a git checkout.
func mainPURL(name, version, vcsURL, subpath string) string {
	q := map[string]string{}
	if vcsURL != "" {
		q["vcs_url"] = vcsURL
	}
	if subpath == "." {
		subpath = ""
	}
	return pypiPURL(name, version, q, subpath)
}

// dependencyPURL is the purl of a resolved dependency.
func dependencyPURL(d dependency) string {
	switch d.Kind {
	case KindPyPI:
		var q map[string]string
		if strings.TrimRight(d.IndexURL, "/") != strings.TrimRight(DefaultIndexURL, "/") {
			q = map[string]string{"repository_url": d.IndexURL}
		}
		return pypiPURL(d.Name, d.Version, q, "")
	case KindVCS:
		return pypiPURL(d.Name, "", map[string]string{"vcs_url": d.Version}, "")
	default:
		download, fragment, _ := strings.Cut(d.Version, "#")
		checksum := ""
		if values, err := url.ParseQuery(fragment); err == nil {
			checksum = values.Get("cachito_hash")
		}
		return pypiPURL(d.Name, "", map[string]string{"download_url": download, "checksum": checksum}, "")
	}
}
