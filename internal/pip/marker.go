package pip

import (
	"fmt"
	"strings"
)

var markerVariables = map[string]bool{
	"python_version":                 true,
	"python_full_version":            true,
	"os_name":                        true,
	"sys_platform":                   true,
	"platform_release":               true,
	"platform_system":                true,
	"platform_version":               true,
	"platform_machine":               true,
	"platform_python_implementation": true,
	"implementation_name":            true,
	"implementation_version":         true,
	"extra":                          true,
	// legacy spellings still accepted by pip
	"os.name":                        true,
	"sys.platform":                   true,
	"platform.version":               true,
	"platform.machine":               true,
	"platform.python_implementation": true,
	"python_implementation":          true,
}

// markerComparisons is ordered so that longer operators match first.
var markerComparisons = []string{"===", "==", "!=", "<=", ">=", "~=", "<", ">"}

type markerToken struct {
	kind  string // "(", ")", "op", "str", "var", "and", "or", "in", "not"
	value string
}

// checkMarker validates an environment marker against the PEP 508 grammar:
//
//	marker  = and ("or" and)*
//	and     = expr ("and" expr)*
//	expr    = value op value | "(" marker ")"
//	value   = variable | quoted string
//	op      = comparison | "in" | "not" "in"
func checkMarker(s string) error {
	toks, err := tokenizeMarker(s)
	if err != nil {
		return err
	}
	p := &markerParser{toks: toks}
	if err := p.or(); err != nil {
		return err
	}
	if p.pos < len(p.toks) {
		return fmt.Errorf("unexpected %q in marker", p.toks[p.pos].value)
	}
	return nil
}

func tokenizeMarker(s string) ([]markerToken, error) {
	var toks []markerToken
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '(' || c == ')':
			toks = append(toks, markerToken{kind: string(c), value: string(c)})
			i++
		case c == '\'' || c == '"':
			end := strings.IndexByte(s[i+1:], c)
			if end < 0 {
				return nil, fmt.Errorf("unterminated string in marker")
			}
			toks = append(toks, markerToken{kind: "str", value: s[i+1 : i+1+end]})
			i += end + 2
		default:
			if op := matchComparison(s[i:]); op != "" {
				toks = append(toks, markerToken{kind: "op", value: op})
				i += len(op)
				continue
			}
			j := i
			for j < len(s) && (isMarkerWordByte(s[j])) {
				j++
			}
			if j == i {
				return nil, fmt.Errorf("unexpected character %q in marker", c)
			}
			word := s[i:j]
			switch word {
			case "and", "or", "in", "not":
				toks = append(toks, markerToken{kind: word, value: word})
			default:
				if !markerVariables[word] {
					return nil, fmt.Errorf("unknown marker variable %q", word)
				}
				toks = append(toks, markerToken{kind: "var", value: word})
			}
			i = j
		}
	}
	return toks, nil
}

func matchComparison(s string) string {
	for _, op := range markerComparisons {
		if strings.HasPrefix(s, op) {
			return op
		}
	}
	return ""
}

func isMarkerWordByte(c byte) bool {
	return c == '_' || c == '.' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

type markerParser struct {
	toks []markerToken
	pos  int
}

func (p *markerParser) peek() string {
	if p.pos < len(p.toks) {
		return p.toks[p.pos].kind
	}
	return ""
}

func (p *markerParser) or() error {
	if err := p.and(); err != nil {
		return err
	}
	for p.peek() == "or" {
		p.pos++
		if err := p.and(); err != nil {
			return err
		}
	}
	return nil
}

func (p *markerParser) and() error {
	if err := p.expr(); err != nil {
		return err
	}
	for p.peek() == "and" {
		p.pos++
		if err := p.expr(); err != nil {
			return err
		}
	}
	return nil
}

func (p *markerParser) expr() error {
	if p.peek() == "(" {
		p.pos++
		if err := p.or(); err != nil {
			return err
		}
		if p.peek() != ")" {
			return fmt.Errorf("expected closing parenthesis in marker")
		}
		p.pos++
		return nil
	}
	if err := p.value(); err != nil {
		return err
	}
	switch p.peek() {
	case "op", "in":
		p.pos++
	case "not":
		p.pos++
		if p.peek() != "in" {
			return fmt.Errorf("expected 'in' after 'not' in marker")
		}
		p.pos++
	default:
		return fmt.Errorf("expected marker operator")
	}
	return p.value()
}

func (p *markerParser) value() error {
	switch p.peek() {
	case "var", "str":
		p.pos++
		return nil
	case "":
		return fmt.Errorf("expected marker value, got end of marker")
	}
	return fmt.Errorf("expected marker value, got %q", p.toks[p.pos].value)
}
