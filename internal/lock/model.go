package lock

import "sort"

// FileName is the default lock state file name, kept next to the request.
const FileName = "lockscan.lock.yaml"

// File represents lockscan.lock.yaml.
type File struct {
	Version     int                 `yaml:"version"`
	GeneratedAt string              `yaml:"generated_at"`
	ToolVersion string              `yaml:"tool_version"`
	Packages    map[string]*Package `yaml:"packages"`
}

// Package records the inputs consumed for one package of the request, keyed
// by "<type>:<path>".
type Package struct {
	Files      map[string]string `yaml:"files"`
	Components int               `yaml:"components"`
}

// PackageKeys returns the package keys in sorted order.
func (f *File) PackageKeys() []string {
	keys := make([]string, 0, len(f.Packages))
	for k := range f.Packages {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
