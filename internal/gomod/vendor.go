package gomod

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/fbkclanna/lockscan/internal/apperr"
	"github.com/fbkclanna/lockscan/internal/rootedpath"
)

// ModulesTxt is the vendor manifest path relative to the module directory.
const ModulesTxt = "vendor/modules.txt"

// ParseVendor reads vendor/modules.txt in appDir and returns the vendored
// modules in file order.
func ParseVendor(appDir rootedpath.RootedPath) ([]ParsedModule, error) {
	modulesTxt, err := appDir.Join(ModulesTxt)
	if err != nil {
		return nil, err
	}
	data, err := modulesTxt.ReadFile()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", ModulesTxt, err)
	}
	return ParseModulesTxt(data)
}

// ParseModulesTxt parses the content of a vendor/modules.txt file.
func ParseModulesTxt(data []byte) ([]ParsedModule, error) {
	unexpected := func(msg string) error {
		return apperr.UnexpectedFormat(
			fmt.Sprintf("%s: %s", ModulesTxt, msg),
			apperr.WithSolution("Does `go mod vendor` make any changes to modules.txt?"),
		)
	}

	var modules []ParsedModule
	var current *ParsedModule
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
		case strings.HasPrefix(line, "## "):
			// markers such as "## explicit; go 1.21"
		case strings.HasPrefix(line, "# "):
			m, ok := parseModuleLine(strings.TrimPrefix(line, "# "))
			if !ok {
				return nil, unexpected(fmt.Sprintf("unexpected module line format: '%s'", line))
			}
			modules = append(modules, m)
			current = &modules[len(modules)-1]
		case strings.HasPrefix(line, "#"):
			return nil, unexpected(fmt.Sprintf("unexpected format: '%s'", line))
		default:
			if current == nil {
				return nil, unexpected(fmt.Sprintf("package has no parent module: %s", line))
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", ModulesTxt, err)
	}
	return modules, nil
}

// parseModuleLine parses the part of a "# " line after the marker:
//
//	path version
//	path [version] => replacement [version]
func parseModuleLine(line string) (ParsedModule, bool) {
	left, right, replaced := strings.Cut(line, "=>")
	orig, ok := parseModuleRef(strings.Fields(left), replaced)
	if !ok {
		return ParsedModule{}, false
	}
	if !replaced {
		return orig, true
	}
	repl, ok := parseModuleRef(strings.Fields(right), true)
	if !ok {
		return ParsedModule{}, false
	}
	orig.Replace = &repl
	return orig, true
}

func parseModuleRef(fields []string, optionalVersion bool) (ParsedModule, bool) {
	switch {
	case len(fields) == 2:
		return ParsedModule{Path: fields[0], Version: fields[1]}, true
	case len(fields) == 1 && optionalVersion:
		return ParsedModule{Path: fields[0]}, true
	}
	return ParsedModule{}, false
}
