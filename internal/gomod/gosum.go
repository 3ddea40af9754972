package gomod

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fbkclanna/lockscan/internal/rootedpath"
)

// ModuleID is a module path and version.
type ModuleID struct {
	Path    string `json:"path"`
	Version string `json:"version"`
}

// ModuleSet is a set of module IDs.
type ModuleSet map[ModuleID]struct{}

// Has reports whether the set contains path@version.
func (s ModuleSet) Has(path, version string) bool {
	_, ok := s[ModuleID{path, version}]
	return ok
}

// ParseGoSum returns the modules that have a zip checksum in the go.sum file.
// Lines for go.mod checksums are ignored. A missing file yields an empty set.
// On a malformed line a warning is logged and the rest of the file skipped.
func ParseGoSum(goSum rootedpath.RootedPath, log *slog.Logger) (ModuleSet, error) {
	set := ModuleSet{}
	if !goSum.IsFile() {
		return set, nil
	}
	data, err := goSum.ReadFile()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", goSum.Subpath(), err)
	}
	if log == nil {
		log = slog.Default()
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	lineno := 0
	for sc.Scan() {
		lineno++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			log.Warn(fmt.Sprintf("%s:%d: malformed line, skipping the rest of the file: '%s'", goSum.Subpath(), lineno, line))
			break
		}
		if strings.HasSuffix(fields[1], "/go.mod") {
			continue
		}
		set[ModuleID{fields[0], fields[1]}] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", goSum.Subpath(), err)
	}
	return set, nil
}
