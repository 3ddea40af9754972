package yarn

import (
	"strings"

	"github.com/package-url/packageurl-go"
)

// npmPURL builds a pkg:npm purl. Empty qualifier values are dropped.
func npmPURL(l Locator, version string, qualifiers map[string]string, subpath string) string {
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
	namespace := ""
	if l.Scope != "" {
		namespace = "@" + l.Scope
	}
	if subpath == "." {
		subpath = ""
	}
	return packageurl.NewPackageURL(packageurl.TypeNPM, namespace, l.Name, version, qs, subpath).ToString()
}

// isDefaultRegistry reports whether registry is one of the public npm
// registries, which purls leave implicit.
func isDefaultRegistry(registry string) bool {
	switch strings.TrimRight(registry, "/") {
	case "", DefaultRegistry, "https://registry.npmjs.org":
		return true
	}
	return false
}
