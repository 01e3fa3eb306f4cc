package recipe

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// Line selectors are trailing `# [expr]` comments that keep or drop
// one line of the recipe. Expressions combine the platform namespace
// below with not/and/or, parentheses, and ==/!= string comparisons.
// Unknown identifiers evaluate falsy, matching permissive rendering.

var selectorRe = regexp.MustCompile(`^(.*?)\s*#\s*\[([^\]]+)\]\s*$`)

// applySelectors drops the lines whose selector evaluates false and
// strips the selector comment from the ones it keeps.
func applySelectors(text string, ns map[string]interface{}) (string, error) {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))

	for _, line := range lines {
		m := selectorRe.FindStringSubmatch(line)
		if m == nil {
			out = append(out, line)
			continue
		}

		keep, err := evalSelector(m[2], ns)
		if err != nil {
			return "", err
		}

		if keep {
			out = append(out, m[1])
		}
	}

	return strings.Join(out, "\n"), nil
}

// selectorNamespace builds the identifier set selectors may use for
// one render: platform booleans plus the build/target platform
// strings cross-compiled recipes compare.
func selectorNamespace(platform, arch, buildPlatform, buildArch string) map[string]interface{} {
	is64 := arch == "64"

	return map[string]interface{}{
		"linux":   platform == "linux",
		"osx":     platform == "osx",
		"win":     platform == "win",
		"unix":    platform == "linux" || platform == "osx",
		"linux32": platform == "linux" && arch == "32",
		"linux64": platform == "linux" && is64,
		"osx64":   platform == "osx" && is64,
		"win32":   platform == "win" && arch == "32",
		"win64":   platform == "win" && is64,
		"x86":     arch == "32" || is64,
		"x86_64":  is64,
		"aarch64": arch == "aarch64",
		"arm64":   arch == "arm64",
		"ppc64le": arch == "ppc64le",
		"armv7l":  arch == "armv7l",

		"build_platform":  buildPlatform + "-" + buildArch,
		"target_platform": platform + "-" + arch,
	}
}

type selToken struct {
	lit bool
	val string
}

func evalSelector(expr string, ns map[string]interface{}) (bool, error) {
	toks, err := tokenizeSelector(expr)
	if err != nil {
		return false, err
	}

	p := &selParser{expr: expr, toks: toks, ns: ns}

	v, err := p.parseOr()
	if err != nil {
		return false, err
	}

	if p.pos != len(p.toks) {
		return false, errors.Errorf("trailing tokens in selector %q", expr)
	}

	return truthy(v), nil
}

func tokenizeSelector(expr string) ([]selToken, error) {
	var toks []selToken

	i := 0
	for i < len(expr) {
		c := expr[i]

		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '(' || c == ')':
			toks = append(toks, selToken{val: string(c)})
			i++
		case c == '=' && i+1 < len(expr) && expr[i+1] == '=':
			toks = append(toks, selToken{val: "=="})
			i += 2
		case c == '!' && i+1 < len(expr) && expr[i+1] == '=':
			toks = append(toks, selToken{val: "!="})
			i += 2
		case c == '"' || c == '\'':
			j := strings.IndexByte(expr[i+1:], c)
			if j < 0 {
				return nil, errors.Errorf("unterminated string in selector %q", expr)
			}

			toks = append(toks, selToken{lit: true, val: expr[i+1 : i+1+j]})
			i += j + 2
		case isIdentChar(c):
			j := i
			for j < len(expr) && isIdentChar(expr[j]) {
				j++
			}

			toks = append(toks, selToken{val: expr[i:j]})
			i = j
		default:
			return nil, errors.Errorf("bad character %q in selector %q", c, expr)
		}
	}

	return toks, nil
}

func isIdentChar(c byte) bool {
	return c == '_' || c == '.' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// selValue is either a boolean or a string; comparisons coerce both
// sides to strings, everything else coerces to truthiness.
type selValue struct {
	str  bool
	sval string
	bval bool
}

func truthy(v selValue) bool {
	if v.str {
		return v.sval != ""
	}

	return v.bval
}

func asSelString(v selValue) string {
	if v.str {
		return v.sval
	}

	if v.bval {
		return "true"
	}

	return ""
}

type selParser struct {
	expr string
	toks []selToken
	ns   map[string]interface{}
	pos  int
}

func (p *selParser) peek() (selToken, bool) {
	if p.pos >= len(p.toks) {
		return selToken{}, false
	}

	return p.toks[p.pos], true
}

func (p *selParser) parseOr() (selValue, error) {
	v, err := p.parseAnd()
	if err != nil {
		return v, err
	}

	for {
		t, ok := p.peek()
		if !ok || t.lit || t.val != "or" {
			return v, nil
		}

		p.pos++

		rhs, err := p.parseAnd()
		if err != nil {
			return v, err
		}

		v = selValue{bval: truthy(v) || truthy(rhs)}
	}
}

func (p *selParser) parseAnd() (selValue, error) {
	v, err := p.parseNot()
	if err != nil {
		return v, err
	}

	for {
		t, ok := p.peek()
		if !ok || t.lit || t.val != "and" {
			return v, nil
		}

		p.pos++

		rhs, err := p.parseNot()
		if err != nil {
			return v, err
		}

		v = selValue{bval: truthy(v) && truthy(rhs)}
	}
}

func (p *selParser) parseNot() (selValue, error) {
	t, ok := p.peek()
	if ok && !t.lit && t.val == "not" {
		p.pos++

		v, err := p.parseNot()
		if err != nil {
			return v, err
		}

		return selValue{bval: !truthy(v)}, nil
	}

	return p.parseCmp()
}

func (p *selParser) parseCmp() (selValue, error) {
	v, err := p.parsePrimary()
	if err != nil {
		return v, err
	}

	t, ok := p.peek()
	if !ok || t.lit || (t.val != "==" && t.val != "!=") {
		return v, nil
	}

	p.pos++

	rhs, err := p.parsePrimary()
	if err != nil {
		return v, err
	}

	eq := asSelString(v) == asSelString(rhs)
	if t.val == "!=" {
		eq = !eq
	}

	return selValue{bval: eq}, nil
}

func (p *selParser) parsePrimary() (selValue, error) {
	t, ok := p.peek()
	if !ok {
		return selValue{}, errors.Errorf("truncated selector %q", p.expr)
	}

	p.pos++

	if t.lit {
		return selValue{str: true, sval: t.val}, nil
	}

	switch t.val {
	case "(":
		v, err := p.parseOr()
		if err != nil {
			return v, err
		}

		nt, ok := p.peek()
		if !ok || nt.lit || nt.val != ")" {
			return selValue{}, errors.Errorf("unbalanced parens in selector %q", p.expr)
		}

		p.pos++

		return v, nil
	case ")", "==", "!=", "and", "or", "not":
		return selValue{}, errors.Errorf("misplaced %q in selector %q", t.val, p.expr)
	}

	switch nv := p.ns[t.val].(type) {
	case bool:
		return selValue{bval: nv}, nil
	case string:
		return selValue{str: true, sval: nv}, nil
	default:
		// unknown identifier
		return selValue{}, nil
	}
}
