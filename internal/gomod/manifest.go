package gomod

import (
	"fmt"

	"golang.org/x/mod/modfile"

	"github.com/fbkclanna/lockscan/internal/apperr"
)

// Requirement is a require directive of go.mod.
type Requirement struct {
	Path     string `json:"path"`
	Version  string `json:"version"`
	Indirect bool   `json:"indirect,omitempty"`
}

// Manifest is the content of a go.mod file.
type Manifest struct {
	Module    string         `json:"module"`
	Go        string         `json:"go,omitempty"`
	Toolchain string         `json:"toolchain,omitempty"`
	Require   []Requirement  `json:"require"`
	Replace   []ParsedModule `json:"replace,omitempty"`
	Exclude   []ParsedModule `json:"exclude,omitempty"`
	Retract   []string       `json:"retract,omitempty"`
}

// ParseManifest parses go.mod content. name is used in error messages.
func ParseManifest(name string, data []byte) (*Manifest, error) {
	f, err := modfile.Parse(name, data, nil)
	if err != nil {
		return nil, apperr.UnexpectedFormat(fmt.Sprintf("%s could not be parsed", name), apperr.Wrap(err))
	}
	m := &Manifest{Require: []Requirement{}, Replace: replacesOf(f)}
	if f.Module != nil {
		m.Module = f.Module.Mod.Path
	}
	if f.Go != nil {
		m.Go = f.Go.Version
	}
	if f.Toolchain != nil {
		m.Toolchain = f.Toolchain.Name
	}
	for _, r := range f.Require {
		m.Require = append(m.Require, Requirement{Path: r.Mod.Path, Version: r.Mod.Version, Indirect: r.Indirect})
	}
	for _, e := range f.Exclude {
		m.Exclude = append(m.Exclude, ParsedModule{Path: e.Mod.Path, Version: e.Mod.Version})
	}
	for _, r := range f.Retract {
		if r.Low == r.High {
			m.Retract = append(m.Retract, r.Low)
		} else {
			m.Retract = append(m.Retract, "["+r.Low+", "+r.High+"]")
		}
	}
	return m, nil
}
