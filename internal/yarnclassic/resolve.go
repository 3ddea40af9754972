package yarnclassic

import (
	"context"
	"fmt"
	"strings"

	"github.com/package-url/packageurl-go"

	"github.com/fbkclanna/lockscan/internal/apperr"
	"github.com/fbkclanna/lockscan/internal/git"
	"github.com/fbkclanna/lockscan/internal/output"
	"github.com/fbkclanna/lockscan/internal/request"
	"github.com/fbkclanna/lockscan/internal/rootedpath"
	"github.com/fbkclanna/lockscan/internal/sbom"
	"github.com/fbkclanna/lockscan/internal/workspace"
	"github.com/fbkclanna/lockscan/internal/yarn"
)

var defaultRegistries = []string{
	"https://registry.yarnpkg.com",
	"https://registry.npmjs.org",
}

// Environment returns the variables that point yarn at the offline mirror
// under the output directory.
func Environment() []output.EnvironmentVariable {
	return []output.EnvironmentVariable{
		{Name: "YARN_YARN_OFFLINE_MIRROR", Value: output.OutputDirPlaceholder + "/deps/yarn-classic"},
		{Name: "YARN_YARN_OFFLINE_MIRROR_PRUNING", Value: "false"},
	}
}

// Resolve reads yarn.lock and the workspaces of the project in the input's
// directory.
func Resolve(ctx context.Context, in workspace.Input) (*output.RequestOutput, error) {
	log := in.Log().With("type", request.TypeYarnClassic, "path", in.Package.EffectivePath())

	appDir, err := in.Dir()
	if err != nil {
		return nil, err
	}
	pjPath, err := appDir.Join("package.json")
	if err != nil {
		return nil, err
	}
	if !pjPath.IsFile() {
		return nil, apperr.PackageRejected(
			"The package.json file must be present for the yarn-classic package manager",
			apperr.WithSolution("Please verify that the package path is correct and that the project uses yarn."),
		)
	}
	pj, err := yarn.LoadPackageJSON(pjPath)
	if err != nil {
		return nil, err
	}
	if err := checkPackageManager(pj); err != nil {
		return nil, err
	}

	lockPath, err := appDir.Join("yarn.lock")
	if err != nil {
		return nil, err
	}
	data, err := lockPath.ReadFile()
	if err != nil {
		return nil, apperr.PackageRejected(
			fmt.Sprintf("Yarn lockfile '%s' missing, refusing to continue", lockPath.Subpath()),
			apperr.WithSolution("Make sure your repository has a yarn.lock checked in"),
			apperr.Wrap(err),
		)
	}
	if !IsV1(data) {
		return nil, apperr.PackageRejected(
			fmt.Sprintf("%s is not a Yarn v1 lockfile", lockPath.Subpath()),
			apperr.WithSolution("Use the 'yarn' package type for Yarn Berry projects."),
		)
	}
	lf, err := ParseLockfile(data)
	if err != nil {
		return nil, err
	}
	if nm, err := appDir.Join("node_modules"); err == nil && nm.IsDir() {
		log.Warn("node_modules is present and will not be inspected", "dir", nm.Subpath())
	}

	workspaces, err := ExtractWorkspaces(appDir, pj, log)
	if err != nil {
		return nil, err
	}

	vcsURL := ""
	if id, err := git.GetRepoID(appDir.Root()); err == nil {
		vcsURL = id.VCSURLQualifier()
	} else {
		log.Warn("cannot determine the vcs_url of the package", "err", err)
	}

	out := &output.RequestOutput{
		EnvironmentVariables: Environment(),
		InputFiles:           []string{pjPath.Subpath()},
	}
	out.Components = append(out.Components, localComponent(pj.String("name"), pj.String("version"), vcsURL, appDir.Subpath()))
	manifests := []*yarn.PackageJSON{pj}
	for _, w := range workspaces {
		out.Components = append(out.Components, localComponent(w.Name(), w.PackageJSON.String("version"), vcsURL, w.Path.Subpath()))
		out.InputFiles = append(out.InputFiles, w.PackageJSON.Path.Subpath())
		manifests = append(manifests, w.PackageJSON)
	}
	out.InputFiles = append(out.InputFiles, lockPath.Subpath())

	dev := devOnly(lf, manifests)
	for _, e := range lf.Entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := entryComponent(e, entryContext{
			appDir:   appDir,
			lockfile: lockPath.Subpath(),
			vcsURL:   vcsURL,
			dev:      dev[e.key()],
		})
		if err != nil {
			return nil, err
		}
		out.Components = append(out.Components, c)
	}

	log.Info("resolved yarn classic lockfile", "entries", len(lf.Entries), "workspaces", len(workspaces))
	return out, nil
}

func checkPackageManager(pj *yarn.PackageJSON) error {
	v, err := yarn.SemverFromPackageManager(pj.String("packageManager"))
	if err != nil {
		return err
	}
	if v != nil && v.Segments()[0] != 1 {
		return apperr.PackageRejected(
			fmt.Sprintf("packageManager in package.json requires yarn %s", v),
			apperr.WithSolution("Use the 'yarn' package type for Yarn Berry projects."),
		)
	}
	return nil
}

func (e Entry) key() string { return e.Name + "@" + e.Version }

type entryContext struct {
	appDir   rootedpath.RootedPath
	lockfile string
	vcsURL   string
	dev      bool
}

func entryComponent(e Entry, ec entryContext) (sbom.Component, error) {
	props := sbom.PropertySet{Development: ec.dev}
	missingHash := func() {
		if e.Integrity == "" {
			props.MissingHashInFile = []string{ec.lockfile}
		}
	}
	rng := patternRange(e.Patterns[0])
	name := e.Name
	if alias, ok := strings.CutPrefix(rng, "npm:"); ok {
		name = packageName(alias)
	}

	switch {
	case strings.HasPrefix(rng, "file:") || strings.HasPrefix(rng, "link:"):
		_, rel, _ := strings.Cut(rng, ":")
		p, err := ec.appDir.Join(rel)
		if err != nil {
			return sbom.Component{}, err
		}
		q := map[string]string{"vcs_url": ec.vcsURL}
		return sbom.NewComponent(e.Name, e.Version, npmPURL(e.Name, e.Version, q, p.Subpath()), props), nil

	case isGit(e.Resolved):
		repo, commit, _ := strings.Cut(e.Resolved, "#")
		if commit == "" {
			return sbom.Component{}, apperr.UnexpectedFormat(
				fmt.Sprintf("Git dependency '%s' does not pin a commit", e.Resolved))
		}
		if !strings.HasPrefix(repo, "git+") {
			repo = "git+" + repo
		}
		q := map[string]string{"vcs_url": repo + "@" + commit}
		return sbom.NewComponent(e.Name, e.Version, npmPURL(e.Name, "", q, ""), props), nil

	case e.Resolved == "":
		return sbom.Component{}, apperr.UnexpectedFormat(
			fmt.Sprintf("yarn.lock entry '%s' has no resolved URL", strings.Join(e.Patterns, ", ")))

	case isRegistryTarball(name, e.Resolved):
		missingHash()
		q := map[string]string{}
		if reg := registryOf(name, e.Resolved); !isDefaultRegistry(reg) {
			q["repository_url"] = reg
		}
		return sbom.NewComponent(name, e.Version, npmPURL(name, e.Version, q, ""), props), nil
	}

	missingHash()
	download, _, _ := strings.Cut(e.Resolved, "#")
	q := map[string]string{"download_url": download}
	return sbom.NewComponent(e.Name, e.Version, npmPURL(e.Name, "", q, ""), props), nil
}

func isGit(resolved string) bool {
	if strings.HasPrefix(resolved, "git+") || strings.HasPrefix(resolved, "git://") {
		return true
	}
	base, _, _ := strings.Cut(resolved, "#")
	return strings.HasSuffix(base, ".git")
}

// isRegistryTarball reports whether resolved has the registry layout
// <registry>/<name>/-/<file>.tgz.
func isRegistryTarball(name, resolved string) bool {
	return strings.Contains(resolved, "/"+name+"/-/")
}

func registryOf(name, resolved string) string {
	reg, _, _ := strings.Cut(resolved, "/"+name+"/-/")
	return strings.TrimRight(reg, "/")
}

func isDefaultRegistry(reg string) bool {
	for _, d := range defaultRegistries {
		if strings.TrimRight(reg, "/") == d {
			return true
		}
	}
	return false
}

// devOnly returns the entries (by name@version) reachable only from
// devDependencies of the given manifests.
func devOnly(lf *Lockfile, manifests []*yarn.PackageJSON) map[string]bool {
	byPattern := map[string]*Entry{}
	for i := range lf.Entries {
		for _, p := range lf.Entries[i].Patterns {
			byPattern[p] = &lf.Entries[i]
		}
	}
	walk := func(roots map[string]string, seen map[string]bool) {
		var queue []*Entry
		push := func(name, rng string) {
			if e, ok := byPattern[name+"@"+rng]; ok && !seen[e.key()] {
				seen[e.key()] = true
				queue = append(queue, e)
			}
		}
		for name, rng := range roots {
			push(name, rng)
		}
		for len(queue) > 0 {
			e := queue[0]
			queue = queue[1:]
			for name, rng := range e.Dependencies {
				push(name, rng)
			}
			for name, rng := range e.OptionalDependencies {
				push(name, rng)
			}
		}
	}

	prod := map[string]bool{}
	dev := map[string]bool{}
	for _, m := range manifests {
		for _, field := range []string{"dependencies", "optionalDependencies", "peerDependencies"} {
			walk(m.Dependencies(field), prod)
		}
		walk(m.Dependencies("devDependencies"), dev)
	}
	for k := range dev {
		if prod[k] {
			delete(dev, k)
		}
	}
	return dev
}

func localComponent(name, version, vcsURL, subpath string) sbom.Component {
	q := map[string]string{"vcs_url": vcsURL}
	return sbom.NewComponent(name, version, npmPURL(name, version, q, subpath), sbom.PropertySet{})
}

// npmPURL builds a pkg:npm purl for a possibly scoped name. Empty qualifier
// values are dropped.
func npmPURL(name, version string, qualifiers map[string]string, subpath string) string {
	namespace := ""
	if strings.HasPrefix(name, "@") {
		namespace, name, _ = strings.Cut(name, "/")
	}
	q := map[string]string{}
	for k, v := range qualifiers {
		if v != "" {
			q[k] = v
		}
	}
	var qs packageurl.Qualifiers
	if len(q) > 0 {
		qs = packageurl.QualifiersFromMap(q)
	}
	if subpath == "." {
		subpath = ""
	}
	return packageurl.NewPackageURL(packageurl.TypeNPM, namespace, name, version, qs, subpath).ToString()
}
