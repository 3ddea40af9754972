package yarn

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

// Environment returns the variables that make yarn install from the
// offline mirror under the output directory.
func Environment() []output.EnvironmentVariable {
	return []output.EnvironmentVariable{
		{Name: "YARN_ENABLE_GLOBAL_CACHE", Value: "false"},
		{Name: "YARN_ENABLE_IMMUTABLE_CACHE", Value: "false"},
		{Name: "YARN_ENABLE_MIRROR", Value: "true"},
		{Name: "YARN_GLOBAL_FOLDER", Value: output.OutputDirPlaceholder + "/deps/yarn"},
	}
}

// resolver turns lockfile entries into components.
type resolver struct {
	project  *Project
	appDir   rootedpath.RootedPath
	lockfile string
	registry string
	vcsURL   string
	log      *slog.Logger
}

// Resolve reads the Berry lockfile of the project in the input's directory.
func Resolve(ctx context.Context, in workspace.Input) (*output.RequestOutput, error) {
	log := in.Log().With("type", request.TypeYarn, "path", in.Package.EffectivePath())

	appDir, err := in.Dir()
	if err != nil {
		return nil, err
	}
	project, err := NewProject(appDir)
	if err != nil {
		return nil, err
	}
	v, err := project.YarnVersion()
	if err != nil {
		return nil, err
	}
	log.Debug("detected yarn version", "version", v.String())

	if _, err := project.YarnCache(); err != nil {
		return nil, err
	}
	if project.IsZeroInstalls() {
		return nil, apperr.PackageRejected(
			"Yarn zero install detected, PnP zero installs are unsupported by lockscan",
			apperr.WithSolution("Please convert your project to a regular install-based one. "+
				"Depending on whether you use PnP or node_modules, remove the cache folder or the node_modules directory."),
			apperr.WithDocs("https://yarnpkg.com/features/caching#zero-installs"),
		)
	}
	if plugins := project.YarnRc.Plugins(); len(plugins) > 0 {
		log.Warn("yarn plugins are configured and will not be evaluated", "plugins", plugins)
	}

	lockPath, err := project.Lockfile()
	if err != nil {
		return nil, err
	}
	data, err := lockPath.ReadFile()
	if err != nil {
		return nil, apperr.PackageRejected(
			fmt.Sprintf("Yarn lockfile '%s' missing, refusing to continue", lockPath.Subpath()),
			apperr.WithSolution("Make sure your repository has a yarn lockfile (e.g. yarn.lock) checked in"),
			apperr.Wrap(err),
		)
	}
	lf, err := ParseLockfile(data)
	if err != nil {
		return nil, err
	}

	r := &resolver{
		project:  project,
		appDir:   appDir,
		lockfile: lockPath.Subpath(),
		registry: in.YarnRegistry,
		log:      log,
	}
	if id, err := git.GetRepoID(appDir.Root()); err == nil {
		r.vcsURL = id.VCSURLQualifier()
	} else {
		log.Warn("cannot determine the vcs_url of the package", "err", err)
	}

	out := &output.RequestOutput{EnvironmentVariables: Environment()}
	for _, e := range lf.Entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := r.component(e)
		if err != nil {
			return nil, err
		}
		out.Components = append(out.Components, c)
	}

	out.InputFiles = append(out.InputFiles, project.PackageJSON.Path.Subpath())
	if project.YarnRc.Path.IsFile() {
		out.InputFiles = append(out.InputFiles, project.YarnRc.Path.Subpath())
	}
	out.InputFiles = append(out.InputFiles, lockPath.Subpath())

	log.Info("resolved yarn lockfile", "entries", len(lf.Entries), "lockfile", lockPath.Subpath())
	return out, nil
}

// registryFor is the registry that serves packages of scope.
func (r *resolver) registryFor(scope string) string {
	reg := r.project.YarnRc.ScopeRegistry(scope)
	if isDefaultRegistry(reg) && r.registry != "" {
		return r.registry
	}
	return reg
}

func (r *resolver) component(e Entry) (sbom.Component, error) {
	l, err := ParseLocator(e.Resolution)
	if err != nil {
		return sbom.Component{}, err
	}
	if l.Protocol == ProtocolPatch {
		inner, err := l.PatchedLocator()
		if err != nil {
			return sbom.Component{}, err
		}
		return r.locatorComponent(inner, e)
	}
	return r.locatorComponent(l, e)
}

func (r *resolver) locatorComponent(l Locator, e Entry) (sbom.Component, error) {
	var props sbom.PropertySet
	missingHash := func() {
		if e.Checksum == "" {
			props.MissingHashInFile = []string{r.lockfile}
		}
	}

	switch l.Protocol {
	case ProtocolNPM:
		missingHash()
		q := map[string]string{}
		if reg := r.registryFor(l.Scope); !isDefaultRegistry(reg) {
			q["repository_url"] = reg
		}
		v := l.NPMVersion()
		return sbom.NewComponent(l.FullName(), v, npmPURL(l, v, q, ""), props), nil

	case ProtocolWorkspace, ProtocolFile, ProtocolLink, ProtocolPortal:
		p, err := r.appDir.Join(l.Path())
		if err != nil {
			return sbom.Component{}, err
		}
		v := e.Version
		if v == "0.0.0-use.local" {
			v = ""
		}
		if l.Protocol == ProtocolWorkspace {
			if pjPath, err := p.Join("package.json"); err == nil && pjPath.IsFile() {
				if pj, err := LoadPackageJSON(pjPath); err == nil && pj.String("version") != "" {
					v = pj.String("version")
				}
			}
		}
		q := map[string]string{"vcs_url": r.vcsURL}
		return sbom.NewComponent(l.FullName(), v, npmPURL(l, v, q, p.Subpath()), props), nil

	case ProtocolGit:
		repo, commit := l.GitSource()
		if commit == "" {
			return sbom.Component{}, apperr.UnexpectedFormat(
				fmt.Sprintf("Git dependency '%s' does not pin a commit", e.Resolution))
		}
		vcs := repo
		if !strings.HasPrefix(vcs, "git+") {
			vcs = "git+" + vcs
		}
		q := map[string]string{"vcs_url": vcs + "@" + commit}
		return sbom.NewComponent(l.FullName(), e.Version, npmPURL(l, "", q, ""), props), nil

	case ProtocolHTTPS:
		missingHash()
		q := map[string]string{"download_url": l.Reference}
		return sbom.NewComponent(l.FullName(), e.Version, npmPURL(l, "", q, ""), props), nil

	case ProtocolExec:
		return sbom.Component{}, apperr.UnsupportedFeature(
			fmt.Sprintf("Found 'exec' protocol in the lockfile entry '%s'", e.Resolution),
			apperr.WithSolution("lockscan does not support packages generated by scripts. "+
				"Replace the dependency with a registry or git reference."),
		)
	}
	return sbom.Component{}, apperr.UnsupportedFeature(
		fmt.Sprintf("Unsupported protocol '%s' in the lockfile entry '%s'", l.Protocol, e.Resolution))
}
