package request

// PackageType names a supported package manager.
type PackageType string

const (
	TypeGomod       PackageType = "gomod"
	TypePip         PackageType = "pip"
	TypeYarn        PackageType = "yarn"
	TypeYarnClassic PackageType = "yarn-classic"
)

// Types lists the supported package types in display order.
var Types = []PackageType{TypeGomod, TypePip, TypeYarn, TypeYarnClassic}

// Flag toggles optional behaviour for a whole request.
type Flag string

const FlagGomodVendorCheck Flag = "gomod-vendor-check"

var knownFlags = map[Flag]bool{
	FlagGomodVendorCheck: true,
}

// Request is the top-level request file.
type Request struct {
	Version  int       `yaml:"version" json:"version"`
	Mode     string    `yaml:"mode,omitempty" json:"mode,omitempty"`
	Flags    []Flag    `yaml:"flags,omitempty" json:"flags,omitempty"`
	Packages []Package `yaml:"packages" json:"packages"`
}

// Package is a single package input.
//
// A nil RequirementsFiles (or RequirementsBuildFiles) means "use the default
// file if it exists"; an empty non-nil list means "no files".
type Package struct {
	Type                   PackageType `yaml:"type" json:"type"`
	Path                   string      `yaml:"path,omitempty" json:"path,omitempty"`
	RequirementsFiles      []string    `yaml:"requirements_files,omitempty" json:"requirements_files,omitempty"`
	RequirementsBuildFiles []string    `yaml:"requirements_build_files,omitempty" json:"requirements_build_files,omitempty"`
	AllowBinary            bool        `yaml:"allow_binary,omitempty" json:"allow_binary,omitempty"`
}

// EffectivePath returns the package path, defaulting to ".".
func (p *Package) EffectivePath() string {
	if p.Path != "" {
		return p.Path
	}
	return "."
}

// Key identifies the package within a request.
func (p *Package) Key() string {
	return string(p.Type) + ":" + p.EffectivePath()
}

// HasFlag reports whether the request enables f.
func (r *Request) HasFlag(f Flag) bool {
	for _, g := range r.Flags {
		if g == f {
			return true
		}
	}
	return false
}
