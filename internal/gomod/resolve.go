package gomod

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"golang.org/x/mod/modfile"
	"golang.org/x/mod/semver"

	"github.com/fbkclanna/lockscan/internal/apperr"
	"github.com/fbkclanna/lockscan/internal/git"
	"github.com/fbkclanna/lockscan/internal/output"
	"github.com/fbkclanna/lockscan/internal/request"
	"github.com/fbkclanna/lockscan/internal/rootedpath"
	"github.com/fbkclanna/lockscan/internal/workspace"
)

// Environment returns the variables a build needs to use the module cache
// laid out under the output directory.
func Environment(vendored bool) []output.EnvironmentVariable {
	const modCache = output.OutputDirPlaceholder + "/deps/gomod/pkg/mod"
	vars := []output.EnvironmentVariable{
		{Name: "GOCACHE", Value: output.OutputDirPlaceholder + "/deps/gomod"},
		{Name: "GOMODCACHE", Value: modCache},
		{Name: "GOPATH", Value: output.OutputDirPlaceholder + "/deps/gomod"},
		{Name: "GOPROXY", Value: "file://" + modCache + "/cache/download"},
	}
	if vendored {
		vars = append(vars, output.EnvironmentVariable{Name: "GOFLAGS", Value: "-mod=vendor"})
	}
	return vars
}

// requirement is a module requirement plus the directory its local
// replacement path is relative to.
type requirement struct {
	ParsedModule
	base rootedpath.RootedPath
}

// Resolve reads the Go module in the input's directory and returns one
// component per module.
func Resolve(ctx context.Context, in workspace.Input) (*output.RequestOutput, error) {
	log := in.Log().With("type", request.TypeGomod, "path", in.Package.EffectivePath())

	appDir, err := in.Dir()
	if err != nil {
		return nil, err
	}
	goModPath, err := appDir.Join("go.mod")
	if err != nil {
		return nil, err
	}
	if !goModPath.IsFile() {
		return nil, apperr.PackageRejected(
			fmt.Sprintf("The go.mod file must be present for the Go module(s) at %s", appDir.Subpath()),
			apperr.WithSolution("Please double-check that you have specified correct paths to your Go modules."),
		)
	}
	mainMod, err := parseGoMod(goModPath)
	if err != nil {
		return nil, err
	}
	inputs := []string{goModPath.Subpath()}

	if goVersion, toolchain, err := GoModVersions(goModPath); err == nil {
		log.Debug("go.mod versions", "go", goVersion, "toolchain", toolchain)
	}

	vr, err := NewVersionResolver(appDir.Path())
	if err != nil {
		return nil, err
	}

	goWork, err := findGoWork(appDir)
	if err != nil {
		return nil, err
	}

	sumFiles := []rootedpath.RootedPath{}
	var missingHashFile rootedpath.RootedPath
	var reqs []requirement
	var workspaceMods []requirement

	if goWork != nil {
		inputs = append(inputs, goWork.Path.Subpath())
		dirs, err := goWork.WorkspacePaths()
		if err != nil {
			return nil, err
		}
		var files []*modfile.File
		var bases []rootedpath.RootedPath
		for _, dir := range dirs {
			gm, err := dir.Join("go.mod")
			if err != nil {
				return nil, err
			}
			f, err := parseGoMod(gm)
			if err != nil {
				return nil, err
			}
			files = append(files, f)
			bases = append(bases, dir)
			if gm.Path() != goModPath.Path() {
				inputs = append(inputs, gm.Subpath())
				workspaceMods = append(workspaceMods, requirement{
					ParsedModule: ParsedModule{Path: f.Module.Mod.Path, Replace: &ParsedModule{Path: "./" + dir.Subpath()}},
					base:         rootedpath.MustNew(dir.Root()),
				})
			}
			sum, err := dir.Join("go.sum")
			if err != nil {
				return nil, err
			}
			sumFiles = append(sumFiles, sum)
		}
		workSum, err := goWork.SumFile()
		if err != nil {
			return nil, err
		}
		sumFiles = append(sumFiles, workSum)
		missingHashFile = workSum
		reqs = workspaceRequirements(files, bases, goWork)
	} else {
		sum, err := appDir.Join("go.sum")
		if err != nil {
			return nil, err
		}
		sumFiles = append(sumFiles, sum)
		missingHashFile = sum
		reqs = moduleRequirements(mainMod, appDir)
	}

	vendored := false
	modulesTxt, err := appDir.Join(ModulesTxt)
	if err != nil {
		return nil, err
	}
	if goWork == nil && modulesTxt.IsFile() {
		vendored = true
		inputs = append(inputs, modulesTxt.Subpath())
		if err := checkVendor(appDir, in, log); err != nil {
			return nil, err
		}
		vendoredMods, err := ParseVendor(appDir)
		if err != nil {
			return nil, err
		}
		reqs = reqs[:0]
		for _, m := range vendoredMods {
			reqs = append(reqs, requirement{ParsedModule: m, base: appDir})
		}
	}

	all := append(workspaceMods, reqs...)
	if err := validateRequirements(all); err != nil {
		return nil, err
	}

	sums := ModuleSet{}
	for _, f := range sumFiles {
		set, err := ParseGoSum(f, log)
		if err != nil {
			return nil, err
		}
		if f.IsFile() {
			inputs = append(inputs, f.Subpath())
		}
		for id := range set {
			sums[id] = struct{}{}
		}
	}

	mainName := mainMod.Module.Mod.Path
	modules := []Module{{
		Name:         mainName,
		OriginalName: mainName,
		RealPath:     mainName,
		Version:      vr.GolangVersion(mainName, appDir.Path()),
		Main:         true,
	}}

	for _, r := range all {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, err := toModule(r, vr, sums, missingHashFile.Subpath())
		if err != nil {
			return nil, err
		}
		modules = append(modules, m)
	}

	out := &output.RequestOutput{
		EnvironmentVariables: Environment(vendored),
		InputFiles:           inputs,
	}
	for _, m := range modules {
		out.Components = append(out.Components, m.Component())
	}
	log.Info("resolved go modules", "modules", len(modules), "vendored", vendored)
	return out, nil
}

func toModule(r requirement, vr *VersionResolver, sums ModuleSet, sumFile string) (Module, error) {
	if r.IsLocal() {
		dir, err := r.base.Join(r.Replace.Path)
		if err != nil {
			return Module{}, err
		}
		realPath, err := vr.RealPath(dir.Path())
		if err != nil {
			return Module{}, err
		}
		return Module{
			Name:         r.Path,
			OriginalName: r.Path,
			RealPath:     realPath,
			Version:      vr.GolangVersion(r.Path, dir.Path()),
		}, nil
	}

	name, version := r.Path, r.Version
	if r.Replace != nil {
		name, version = r.Replace.Path, r.Replace.Version
	}
	m := Module{Name: name, OriginalName: r.Path, RealPath: name, Version: version}
	if !sums.Has(name, version) {
		m.MissingHashInFile = sumFile
	}
	return m, nil
}

// ValidateLocalReplacements checks that every directory replacement of
// modules required from appDir stays inside the source directory.
func ValidateLocalReplacements(modules []ParsedModule, appDir rootedpath.RootedPath) error {
	reqs := make([]requirement, len(modules))
	for i, m := range modules {
		reqs[i] = requirement{ParsedModule: m, base: appDir}
	}
	return validateRequirements(reqs)
}

func validateRequirements(reqs []requirement) error {
	for _, r := range reqs {
		if !r.IsLocal() {
			continue
		}
		if _, err := r.base.Join(r.Replace.Path); err != nil {
			return err
		}
	}
	return nil
}

func checkVendor(appDir rootedpath.RootedPath, in workspace.Input, log *slog.Logger) error {
	if !in.HasFlag(request.FlagGomodVendorCheck) {
		return nil
	}
	changes, err := git.VendorChanges(appDir.Path())
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		return nil
	}
	for _, c := range changes {
		log.Warn("vendor directory differs from HEAD", "change", c.String())
	}
	if in.Mode == workspace.ModePermissive {
		log.Warn("The content of the vendor directory is not consistent with go.mod. Continuing in permissive mode.")
		return nil
	}
	return apperr.PackageRejected(
		"The content of the vendor directory is not consistent with go.mod.",
		apperr.WithSolution("Please try running `go mod vendor` and committing the changes.\n"+
			"Note that you may need to `git add --force` ignored files in the vendor/ dir."),
	)
}

func parseGoMod(goMod rootedpath.RootedPath) (*modfile.File, error) {
	data, err := goMod.ReadFile()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", goMod.Subpath(), err)
	}
	f, err := modfile.Parse(goMod.Path(), data, nil)
	if err != nil {
		return nil, apperr.UnexpectedFormat(fmt.Sprintf("%s could not be parsed", goMod.Subpath()), apperr.Wrap(err))
	}
	if f.Module == nil || f.Module.Mod.Path == "" {
		return nil, apperr.UnexpectedFormat(fmt.Sprintf("%s has no module directive", goMod.Subpath()))
	}
	return f, nil
}

func findGoWork(appDir rootedpath.RootedPath) (*GoWork, error) {
	if os.Getenv("GOWORK") == "off" {
		return nil, nil
	}
	return FindGoWork(appDir)
}

func moduleRequirements(f *modfile.File, dir rootedpath.RootedPath) []requirement {
	reqs := make([]requirement, 0, len(f.Require))
	for _, r := range f.Require {
		pm := ParsedModule{Path: r.Mod.Path, Version: r.Mod.Version}
		pm.Replace = findReplace(replacesOf(f), pm)
		reqs = append(reqs, requirement{ParsedModule: pm, base: dir})
	}
	return reqs
}

// workspaceRequirements merges the requirements of all workspace modules,
// keeping the highest version of each path. go.work replacements win over
// go.mod ones.
func workspaceRequirements(files []*modfile.File, dirs []rootedpath.RootedPath, gw *GoWork) []requirement {
	mains := map[string]bool{}
	for _, f := range files {
		mains[f.Module.Mod.Path] = true
	}

	best := map[string]requirement{}
	for i, f := range files {
		for _, r := range f.Require {
			if mains[r.Mod.Path] {
				continue
			}
			cur, ok := best[r.Mod.Path]
			if ok && semver.Compare(cur.Version, r.Mod.Version) >= 0 {
				continue
			}
			pm := ParsedModule{Path: r.Mod.Path, Version: r.Mod.Version}
			base := dirs[i]
			if rep := findReplace(gw.Replace, pm); rep != nil {
				pm.Replace = rep
				base = gw.Dir
			} else {
				pm.Replace = findReplace(replacesOf(f), pm)
			}
			best[r.Mod.Path] = requirement{ParsedModule: pm, base: base}
		}
	}

	paths := make([]string, 0, len(best))
	for p := range best {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	reqs := make([]requirement, 0, len(paths))
	for _, p := range paths {
		reqs = append(reqs, best[p])
	}
	return reqs
}

func replacesOf(f *modfile.File) []ParsedModule {
	out := make([]ParsedModule, 0, len(f.Replace))
	for _, r := range f.Replace {
		out = append(out, ParsedModule{
			Path:    r.Old.Path,
			Version: r.Old.Version,
			Replace: &ParsedModule{Path: r.New.Path, Version: r.New.Version},
		})
	}
	return out
}

// findReplace returns the replacement for m. A versioned replacement takes
// precedence over one for all versions.
func findReplace(replaces []ParsedModule, m ParsedModule) *ParsedModule {
	var wildcard *ParsedModule
	for i := range replaces {
		r := replaces[i]
		if r.Path != m.Path {
			continue
		}
		if r.Version == m.Version {
			rep := *r.Replace
			return &rep
		}
		if r.Version == "" {
			rep := *r.Replace
			wildcard = &rep
		}
	}
	return wildcard
}
