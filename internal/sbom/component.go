package sbom

import (
	"cmp"
	"slices"
	"strings"
)

// Property names understood by lockscan.
const (
	PropFoundBy         = "lockscan:found_by"
	PropMissingHash     = "lockscan:missing_hash:in_file"
	PropBundled         = "lockscan:bundled"
	PropDevelopment     = "cdx:npm:package:development"
	PropBuildDependency = "cdx:pip:package:build-dependency"
)

// FoundByValue is the value of PropFoundBy on every component.
const FoundByValue = "lockscan"

// Property is a CycloneDX name/value pair.
type Property struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Component is a CycloneDX component.
type Component struct {
	Name       string     `json:"name"`
	Version    string     `json:"version,omitempty"`
	PURL       string     `json:"purl"`
	Type       string     `json:"type"`
	Properties []Property `json:"properties,omitempty"`
}

// NewComponent returns a library component with the found_by property set.
func NewComponent(name, version, purl string, extra PropertySet) Component {
	extra.FoundBy = FoundByValue
	return Component{
		Name:       name,
		Version:    version,
		PURL:       purl,
		Type:       "library",
		Properties: extra.Properties(),
	}
}

// PropertySet is the typed view of a component's properties.
type PropertySet struct {
	FoundBy           string
	MissingHashInFile []string
	Bundled           bool
	Development       bool
	BuildDependency   bool
}

// ParseProperties builds a PropertySet from raw properties. Unknown names are
// dropped.
func ParseProperties(props []Property) PropertySet {
	var ps PropertySet
	for _, p := range props {
		switch p.Name {
		case PropFoundBy:
			ps.FoundBy = p.Value
		case PropMissingHash:
			ps.MissingHashInFile = append(ps.MissingHashInFile, p.Value)
		case PropBundled:
			ps.Bundled = p.Value == "true"
		case PropDevelopment:
			ps.Development = p.Value == "true"
		case PropBuildDependency:
			ps.BuildDependency = p.Value == "true"
		}
	}
	ps.MissingHashInFile = sortedSet(ps.MissingHashInFile)
	return ps
}

// Properties renders the set sorted by name, then value.
func (ps PropertySet) Properties() []Property {
	var props []Property
	if ps.FoundBy != "" {
		props = append(props, Property{PropFoundBy, ps.FoundBy})
	}
	for _, f := range sortedSet(ps.MissingHashInFile) {
		props = append(props, Property{PropMissingHash, f})
	}
	if ps.Bundled {
		props = append(props, Property{PropBundled, "true"})
	}
	if ps.Development {
		props = append(props, Property{PropDevelopment, "true"})
	}
	if ps.BuildDependency {
		props = append(props, Property{PropBuildDependency, "true"})
	}
	slices.SortFunc(props, func(a, b Property) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.Value, b.Value)
	})
	return props
}

// Merge combines two sets describing the same component. found_by keeps the
// first non-empty value, missing-hash files are unioned, and the boolean
// markers stay set only if both sides set them: a package that is a dev
// dependency in one place and a runtime dependency in another is a runtime
// dependency.
func (ps PropertySet) Merge(other PropertySet) PropertySet {
	out := PropertySet{
		FoundBy:           ps.FoundBy,
		MissingHashInFile: sortedSet(append(append([]string{}, ps.MissingHashInFile...), other.MissingHashInFile...)),
		Bundled:           ps.Bundled && other.Bundled,
		Development:       ps.Development && other.Development,
		BuildDependency:   ps.BuildDependency && other.BuildDependency,
	}
	if out.FoundBy == "" {
		out.FoundBy = other.FoundBy
	}
	return out
}

// MergeComponents collapses components with the same PURL and returns them
// sorted by PURL.
func MergeComponents(components []Component) []Component {
	byPURL := make(map[string]int, len(components))
	var out []Component
	for _, c := range components {
		idx, ok := byPURL[c.PURL]
		if !ok {
			byPURL[c.PURL] = len(out)
			c.Properties = ParseProperties(c.Properties).Properties()
			out = append(out, c)
			continue
		}
		merged := ParseProperties(out[idx].Properties).Merge(ParseProperties(c.Properties))
		out[idx].Properties = merged.Properties()
	}
	slices.SortStableFunc(out, func(a, b Component) int { return cmp.Compare(a.PURL, b.PURL) })
	return out
}

func sortedSet(ss []string) []string {
	if len(ss) == 0 {
		return nil
	}
	out := slices.Clone(ss)
	slices.SortFunc(out, strings.Compare)
	return slices.Compact(out)
}
