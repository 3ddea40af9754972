package yarnclassic

import (
	"bufio"
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fbkclanna/lockscan/internal/apperr"
)

// Entry is one resolved package of a v1 yarn.lock.
type Entry struct {
	Patterns             []string          `json:"patterns"`
	Name                 string            `json:"name"`
	Version              string            `json:"version"`
	Resolved             string            `json:"resolved,omitempty"`
	Integrity            string            `json:"integrity,omitempty"`
	Dependencies         map[string]string `json:"dependencies,omitempty"`
	OptionalDependencies map[string]string `json:"optionalDependencies,omitempty"`
}

// Lockfile is a parsed v1 yarn.lock.
type Lockfile struct {
	Entries []Entry `json:"entries"`
}

// IsV1 reports whether data looks like a Yarn v1 lockfile rather than a
// Berry one.
func IsV1(data []byte) bool {
	if bytes.Contains(data, []byte("# yarn lockfile v1")) {
		return true
	}
	return !bytes.Contains(data, []byte("__metadata:"))
}

// ParseLockfile parses v1 lockfile content. Entries are sorted by name and
// version.
func ParseLockfile(data []byte) (*Lockfile, error) {
	lf := &Lockfile{Entries: []Entry{}}
	var cur *Entry
	var section map[string]string

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), " \t\r")
		trimmed := strings.TrimLeft(line, " ")
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		indent := len(line) - len(trimmed)

		switch {
		case indent == 0:
			if !strings.HasSuffix(trimmed, ":") {
				return nil, lineError(lineNo, "expected an entry header")
			}
			patterns, err := splitPatterns(strings.TrimSuffix(trimmed, ":"))
			if err != nil {
				return nil, lineError(lineNo, err.Error())
			}
			lf.Entries = append(lf.Entries, Entry{Patterns: patterns, Name: packageName(patterns[0])})
			cur = &lf.Entries[len(lf.Entries)-1]
			section = nil

		case indent == 2 && cur != nil:
			section = nil
			if strings.HasSuffix(trimmed, ":") {
				key, err := unquote(strings.TrimSuffix(trimmed, ":"))
				if err != nil {
					return nil, lineError(lineNo, err.Error())
				}
				switch key {
				case "dependencies":
					cur.Dependencies = map[string]string{}
					section = cur.Dependencies
				case "optionalDependencies":
					cur.OptionalDependencies = map[string]string{}
					section = cur.OptionalDependencies
				default:
					section = map[string]string{}
				}
				continue
			}
			key, value, err := keyValue(trimmed)
			if err != nil {
				return nil, lineError(lineNo, err.Error())
			}
			switch key {
			case "version":
				cur.Version = value
			case "resolved":
				cur.Resolved = value
			case "integrity":
				cur.Integrity = value
			}

		case indent == 4 && section != nil:
			key, value, err := keyValue(trimmed)
			if err != nil {
				return nil, lineError(lineNo, err.Error())
			}
			section[key] = value

		default:
			return nil, lineError(lineNo, "unexpected indentation")
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading yarn.lock: %w", err)
	}

	for _, e := range lf.Entries {
		if e.Version == "" {
			return nil, apperr.UnexpectedFormat(fmt.Sprintf("yarn.lock entry '%s' has no version", strings.Join(e.Patterns, ", ")))
		}
	}
	sort.SliceStable(lf.Entries, func(i, j int) bool {
		if lf.Entries[i].Name != lf.Entries[j].Name {
			return lf.Entries[i].Name < lf.Entries[j].Name
		}
		return lf.Entries[i].Version < lf.Entries[j].Version
	})
	return lf, nil
}

func lineError(n int, msg string) error {
	return apperr.UnexpectedFormat(fmt.Sprintf("Can't parse the yarn.lock file: line %d: %s", n, msg))
}

// splitPatterns splits an entry header such as
// `"@babel/core@^7.0.0", "@babel/core@^7.1.0"`.
func splitPatterns(header string) ([]string, error) {
	var patterns []string
	for _, part := range strings.Split(header, ",") {
		p, err := unquote(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		if p == "" {
			return nil, fmt.Errorf("empty pattern in %q", header)
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

// keyValue splits `key value` where either side may be quoted.
func keyValue(s string) (string, string, error) {
	var keyEnd int
	if strings.HasPrefix(s, `"`) {
		end := closingQuote(s)
		if end < 0 {
			return "", "", fmt.Errorf("unterminated string in %q", s)
		}
		keyEnd = end + 1
	} else {
		keyEnd = strings.IndexAny(s, " \t")
		if keyEnd < 0 {
			return "", "", fmt.Errorf("missing value in %q", s)
		}
	}
	key, err := unquote(s[:keyEnd])
	if err != nil {
		return "", "", err
	}
	value, err := unquote(strings.TrimSpace(s[keyEnd:]))
	if err != nil {
		return "", "", err
	}
	return key, value, nil
}

func closingQuote(s string) int {
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return -1
}

func unquote(s string) (string, error) {
	if strings.HasPrefix(s, `"`) {
		u, err := strconv.Unquote(s)
		if err != nil {
			return "", fmt.Errorf("invalid quoted string %s", s)
		}
		return u, nil
	}
	return s, nil
}

// packageName is the package part of a pattern such as "@scope/pkg@^1.0.0".
func packageName(pattern string) string {
	if len(pattern) < 2 {
		return pattern
	}
	at := strings.Index(pattern[1:], "@")
	if at < 0 {
		return pattern
	}
	return pattern[:at+1]
}

// patternRange is the range part of a pattern, e.g. "^1.0.0" or
// "file:./local".
func patternRange(pattern string) string {
	name := packageName(pattern)
	return strings.TrimPrefix(strings.TrimPrefix(pattern, name), "@")
}
