package gomod

import (
	"path"
	"strings"

	"github.com/package-url/packageurl-go"
	"golang.org/x/mod/modfile"

	"github.com/fbkclanna/lockscan/internal/sbom"
)

// ParsedModule is a module requirement as read from go.mod or
// vendor/modules.txt. Replace is nil unless the module is replaced.
type ParsedModule struct {
	Path    string        `json:"path"`
	Version string        `json:"version,omitempty"`
	Replace *ParsedModule `json:"replace,omitempty"`
}

// IsLocal reports whether the module is replaced by a directory.
func (m ParsedModule) IsLocal() bool {
	return m.Replace != nil && modfile.IsDirectoryPath(m.Replace.Path)
}

// Module is a resolved module ready to become an SBOM component.
type Module struct {
	Name              string
	OriginalName      string
	RealPath          string
	Version           string
	MissingHashInFile string
	Main              bool
}

// PURL renders the module's package URL.
func (m Module) PURL() string {
	return golangPURL(m.RealPath, m.Version)
}

// Component converts the module to an SBOM component.
func (m Module) Component() sbom.Component {
	props := sbom.PropertySet{}
	if m.MissingHashInFile != "" {
		props.MissingHashInFile = []string{m.MissingHashInFile}
	}
	return sbom.NewComponent(m.Name, m.Version, m.PURL(), props)
}

func golangPURL(modulePath, version string) string {
	ns, name := path.Split(modulePath)
	return packageurl.NewPackageURL(
		packageurl.TypeGolang,
		strings.TrimSuffix(ns, "/"),
		name,
		version,
		packageurl.Qualifiers{{Key: "type", Value: "module"}},
		"",
	).ToString()
}
