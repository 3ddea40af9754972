package yarn

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/hashicorp/go-version"

	"github.com/fbkclanna/lockscan/internal/apperr"
)

// strict X.Y.Z with optional prerelease and build metadata
const semverPattern = `(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)(?:-((?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*)(?:\.(?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*))*))?(?:\+([0-9a-zA-Z-]+(?:\.[0-9a-zA-Z-]+)*))?`

var (
	strictSemver = regexp.MustCompile(`^` + semverPattern + `$`)
	yarnPathName = regexp.MustCompile(`^yarn-(` + semverPattern + `)\.cjs$`)

	supportedVersions = version.MustConstraints(version.NewConstraint(">= 3.0.0, < 5.0.0"))
)

// SemverFromPackageManager parses the packageManager field of package.json.
// An empty field yields nil.
func SemverFromPackageManager(spec string) (*version.Version, error) {
	if spec == "" {
		return nil, nil
	}
	name, ver, ok := strings.Cut(spec, "@")
	if !ok || name == "" || ver == "" {
		return nil, apperr.UnexpectedFormat("could not parse packageManager spec in package.json (expected name@semver)")
	}
	if !strictSemver.MatchString(ver) {
		return nil, apperr.UnexpectedFormat(fmt.Sprintf("%s is not a valid semver for packageManager in package.json", ver))
	}
	if name != "yarn" {
		return nil, apperr.UnexpectedFormat("packageManager in package.json must be yarn")
	}
	return version.NewSemver(ver)
}

// SemverFromYarnPath extracts the version from a yarnPath such as
// .yarn/releases/yarn-3.6.1.cjs. Paths that do not follow that naming yield
// nil.
func SemverFromYarnPath(yarnPath string) *version.Version {
	if yarnPath == "" {
		return nil
	}
	m := yarnPathName.FindStringSubmatch(path.Base(yarnPath))
	if m == nil {
		return nil
	}
	v, err := version.NewSemver(m[1])
	if err != nil {
		return nil
	}
	return v
}

// YarnVersion determines the yarn version the project is pinned to. The
// packageManager field wins over yarnPath; when both are set they must agree.
func (p *Project) YarnVersion() (*version.Version, error) {
	fromPM, err := SemverFromPackageManager(p.PackageJSON.String("packageManager"))
	if err != nil {
		return nil, err
	}
	fromPath := SemverFromYarnPath(p.YarnRc.YarnPath())

	v := fromPM
	switch {
	case fromPM != nil && fromPath != nil && !fromPM.Equal(fromPath):
		return nil, apperr.PackageRejected(
			fmt.Sprintf("Mismatch between the yarn versions specified by yarnPath (yarn@%s) and packageManager (yarn@%s)", fromPath, fromPM),
			apperr.WithSolution("Ensure that the versions of yarn specified by yarnPath in .yarnrc.yml and packageManager in package.json agree."),
		)
	case fromPM == nil:
		v = fromPath
	}
	if v == nil {
		return nil, apperr.PackageRejected(
			"Unable to determine the yarn version to use to process the request",
			apperr.WithSolution("Ensure that either yarnPath is defined in .yarnrc.yml or that packageManager is defined in package.json."),
		)
	}
	core := v.Core()
	if !supportedVersions.Check(core) {
		return nil, apperr.PackageRejected(
			fmt.Sprintf("Unsupported Yarn version '%s' detected", v),
			apperr.WithSolution("Please pick a different version of Yarn (3.0.0 <= Yarn version < 5.0.0); Yarn 1.x projects are handled by the yarn-classic package type."),
		)
	}
	return v, nil
}
