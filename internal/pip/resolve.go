package pip

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fbkclanna/lockscan/internal/apperr"
	"github.com/fbkclanna/lockscan/internal/git"
	"github.com/fbkclanna/lockscan/internal/output"
	"github.com/fbkclanna/lockscan/internal/request"
	"github.com/fbkclanna/lockscan/internal/rootedpath"
	"github.com/fbkclanna/lockscan/internal/sbom"
	"github.com/fbkclanna/lockscan/internal/workspace"
)

const (
	defaultRequirementsFile      = "requirements.txt"
	defaultBuildRequirementsFile = "requirements-build.txt"
)

// Environment returns the variables that point pip at the artifacts under
// the output directory.
func Environment() []output.EnvironmentVariable {
	return []output.EnvironmentVariable{
		{Name: "PIP_FIND_LINKS", Value: output.OutputDirPlaceholder + "/deps/pip"},
		{Name: "PIP_NO_INDEX", Value: "true"},
	}
}

// dependency is a validated requirement ready to become a component.
type dependency struct {
	Name            string
	Version         string
	Kind            Kind
	IndexURL        string
	RequirementFile string
	MissingHash     bool
	Build           bool
}

func (d dependency) component() sbom.Component {
	props := sbom.PropertySet{BuildDependency: d.Build}
	if d.MissingHash {
		props.MissingHashInFile = []string{d.RequirementFile}
	}
	version := ""
	if d.Kind == KindPyPI {
		version = d.Version
	}
	return sbom.NewComponent(d.Name, version, dependencyPURL(d), props)
}

// Resolve reads the package metadata and requirements files in the input's
// directory.
func Resolve(ctx context.Context, in workspace.Input) (*output.RequestOutput, error) {
	log := in.Log().With("type", request.TypePip, "path", in.Package.EffectivePath())

	appDir, err := in.Dir()
	if err != nil {
		return nil, err
	}
	meta, err := ReadMetadata(appDir, log)
	if err != nil {
		return nil, err
	}

	reqFiles, err := requirementFiles(appDir, in.Package.RequirementsFiles, defaultRequirementsFile)
	if err != nil {
		return nil, err
	}
	buildFiles, err := requirementFiles(appDir, in.Package.RequirementsBuildFiles, defaultBuildRequirementsFile)
	if err != nil {
		return nil, err
	}

	indexURL := in.PipIndexURL
	if indexURL == "" {
		indexURL = DefaultIndexURL
	}

	var inputs []string
	for _, name := range []string{"pyproject.toml", "setup.py", "setup.cfg"} {
		if p, err := appDir.Join(name); err == nil && p.IsFile() {
			inputs = append(inputs, p.Subpath())
		}
	}

	var deps []dependency
	for i, files := range [][]rootedpath.RootedPath{reqFiles, buildFiles} {
		for _, p := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			fileDeps, err := resolveFile(p, indexURL, in.Package.AllowBinary, log)
			if err != nil {
				return nil, err
			}
			for j := range fileDeps {
				fileDeps[j].Build = i == 1
			}
			deps = append(deps, fileDeps...)
			inputs = append(inputs, p.Subpath())
		}
	}

	vcsURL := ""
	if id, err := git.GetRepoID(appDir.Root()); err == nil {
		vcsURL = id.VCSURLQualifier()
	} else {
		log.Warn("cannot determine the vcs_url of the package", "err", err)
	}

	out := &output.RequestOutput{
		EnvironmentVariables: Environment(),
		InputFiles:           inputs,
	}
	out.Components = append(out.Components, sbom.NewComponent(
		meta.Name, meta.Version, mainPURL(meta.Name, meta.Version, vcsURL, appDir.Subpath()), sbom.PropertySet{}))
	for _, d := range deps {
		out.Components = append(out.Components, d.component())
	}
	log.Info("resolved pip requirements", "dependencies", len(deps), "files", len(reqFiles)+len(buildFiles))
	return out, nil
}

// requirementFiles resolves the requested files, or the default file if it
// exists when none were requested.
func requirementFiles(appDir rootedpath.RootedPath, requested []string, fallback string) ([]rootedpath.RootedPath, error) {
	if requested == nil {
		p, err := appDir.Join(fallback)
		if err != nil {
			return nil, err
		}
		if p.IsFile() {
			return []rootedpath.RootedPath{p}, nil
		}
		return nil, nil
	}
	files := make([]rootedpath.RootedPath, 0, len(requested))
	for _, r := range requested {
		p, err := appDir.Join(r)
		if err != nil {
			return nil, err
		}
		if !p.Exists() {
			return nil, apperr.PackageRejected(
				fmt.Sprintf("The requirements file does not exist: %s", p.Subpath()),
				apperr.WithSolution("Please check that you have specified correct requirements file paths"),
			)
		}
		files = append(files, p)
	}
	return files, nil
}

func resolveFile(p rootedpath.RootedPath, indexURL string, allowBinary bool, log *slog.Logger) ([]dependency, error) {
	f, err := ReadRequirementsFile(p)
	if err != nil {
		return nil, err
	}
	opts, err := ProcessOptions(f.Options, log)
	if err != nil {
		return nil, err
	}
	if opts.IndexURL != "" {
		indexURL = opts.IndexURL
	}
	if err := ValidateRequirements(f.Requirements, allowBinary); err != nil {
		return nil, err
	}
	if err := ValidateHashes(f.Requirements, requiresHashes(f, opts)); err != nil {
		return nil, err
	}

	deps := make([]dependency, 0, len(f.Requirements))
	for _, req := range f.Requirements {
		d := dependency{
			Name:            req.Package,
			Kind:            req.Kind,
			RequirementFile: p.Subpath(),
		}
		switch req.Kind {
		case KindPyPI:
			d.Version = req.VersionSpecs[0].Version
			d.IndexURL = indexURL
			d.MissingHash = len(req.Hashes) == 0
		case KindVCS:
			info, err := parseGitURL(req.URL)
			if err != nil {
				return nil, apperr.UnexpectedFormat(fmt.Sprintf("Invalid git URL in %s", req.DownloadLine), apperr.Wrap(err))
			}
			d.Version = "git+" + info.URL + "@" + info.Ref
			d.MissingHash = true
		case KindURL:
			d.Version = urlWithHash(req)
		}
		if req.Kind != KindPyPI {
			if ext, err := ExternalRequirementPath(req); err == nil {
				log.Debug("external requirement", "package", req.Package, "path", "deps/pip/"+ext)
			}
		}
		deps = append(deps, d)
	}
	return deps, nil
}

// urlWithHash returns the requirement URL with a cachito_hash fragment,
// added from --hash if the URL does not carry one.
func urlWithHash(req Requirement) string {
	if _, ok := req.Qualifiers["cachito_hash"]; ok || len(req.Hashes) == 0 {
		return req.URL
	}
	base, fragment, _ := strings.Cut(req.URL, "#")
	if fragment != "" {
		fragment += "&"
	}
	return base + "#" + fragment + "cachito_hash=" + req.Hashes[0]
}
