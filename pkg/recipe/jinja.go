package recipe

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"lab47.dev/solvent/pkg/spec"
)

// jinja.go renders the template subset feedstock recipes use in
// practice: {% set %} assignments, {{ }} substitution with the
// lower/upper/replace filters, and the conda function namespace
// (compiler, stdlib, pin_subpackage, pin_compatible). Undefined
// variables and unknown functions render empty, the same permissive
// mode the real renderer runs under for pre-flight checks.

type renderContext struct {
	platform string
	arch     string
	vars     map[string]string
	variants map[string][]string
}

func (rc *renderContext) variant(key string) (string, bool) {
	vals, ok := rc.variants[key]
	if !ok || len(vals) == 0 {
		return "", false
	}

	return vals[0], true
}

func (rc *renderContext) lookup(name string) string {
	if v, ok := rc.vars[name]; ok {
		return v
	}

	if v, ok := rc.variant(name); ok {
		return v
	}

	return ""
}

var (
	jinjaCommentRe = regexp.MustCompile(`(?s)\{#.*?#\}`)
	setRe          = regexp.MustCompile(`^\s*\{%-?\s*set\s+([A-Za-z_][A-Za-z0-9_]*)\s*=\s*(.+?)\s*-?%\}\s*$`)
	identRe        = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// renderTemplate runs the jinja pass: comments dropped, {% set %}
// lines consumed into the variable table, {{ }} expressions expanded.
func renderTemplate(text string, rc *renderContext) (string, error) {
	text = jinjaCommentRe.ReplaceAllString(text, "")

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))

	for _, line := range lines {
		if m := setRe.FindStringSubmatch(line); m != nil {
			val, err := rc.evalExpr(m[2])
			if err != nil {
				return "", err
			}

			rc.vars[m[1]] = val
			continue
		}

		sub, err := rc.substitute(line)
		if err != nil {
			return "", err
		}

		out = append(out, sub)
	}

	return strings.Join(out, "\n"), nil
}

// substitute expands every {{ expr }} occurrence in one line.
func (rc *renderContext) substitute(line string) (string, error) {
	if !strings.Contains(line, "{{") {
		return line, nil
	}

	var sb strings.Builder

	for {
		start := strings.Index(line, "{{")
		if start < 0 {
			sb.WriteString(line)
			return sb.String(), nil
		}

		end := strings.Index(line[start:], "}}")
		if end < 0 {
			return "", errors.Errorf("unterminated expression in line %q", line)
		}

		sb.WriteString(line[:start])

		val, err := rc.evalExpr(strings.TrimSpace(line[start+2 : start+end]))
		if err != nil {
			return "", err
		}

		sb.WriteString(val)
		line = line[start+end+2:]
	}
}

func (rc *renderContext) evalExpr(expr string) (string, error) {
	parts, err := splitTop(expr, '|')
	if err != nil {
		return "", err
	}

	val, err := rc.evalBase(strings.TrimSpace(parts[0]))
	if err != nil {
		return "", err
	}

	for _, f := range parts[1:] {
		val, err = applyFilter(val, strings.TrimSpace(f))
		if err != nil {
			return "", err
		}
	}

	return val, nil
}

func (rc *renderContext) evalBase(expr string) (string, error) {
	if expr == "" {
		return "", nil
	}

	if expr[0] == '"' || expr[0] == '\'' {
		if len(expr) < 2 || expr[len(expr)-1] != expr[0] {
			return "", errors.Errorf("unterminated string %q", expr)
		}

		return expr[1 : len(expr)-1], nil
	}

	if _, err := strconv.ParseFloat(expr, 64); err == nil {
		return expr, nil
	}

	if i := strings.IndexByte(expr, '('); i > 0 && strings.HasSuffix(expr, ")") {
		return rc.callFunc(expr[:i], expr[i+1:len(expr)-1])
	}

	if !identRe.MatchString(expr) {
		return "", errors.Errorf("unsupported expression %q", expr)
	}

	return rc.lookup(expr), nil
}

func (rc *renderContext) callFunc(name, rawArgs string) (string, error) {
	args, kwargs, err := parseArgs(rawArgs)
	if err != nil {
		return "", err
	}

	switch name {
	case "compiler":
		return rc.toolchainPackage(first(args), "_compiler"), nil
	case "stdlib":
		return rc.toolchainPackage(first(args), "_stdlib"), nil
	case "pin_subpackage":
		// sibling outputs are stripped as self-deps before solving,
		// so the bare name is enough
		return first(args), nil
	case "pin_compatible":
		if len(args) == 0 {
			return "", errors.New("pin_compatible needs a package name")
		}

		p := spec.PinCompatible{
			MinPin:     kwargs["min_pin"],
			MaxPin:     kwargs["max_pin"],
			LowerBound: kwargs["lower_bound"],
			UpperBound: kwargs["upper_bound"],
		}

		if len(args) > 1 && p.MinPin == "" {
			p.MinPin = args[1]
		}
		if len(args) > 2 && p.MaxPin == "" {
			p.MaxPin = args[2]
		}

		return args[0] + " " + p.Placeholder(), nil
	default:
		// cdt, environ and friends render empty
		return "", nil
	}
}

// toolchainPackage renders compiler('c') and stdlib('c') into the
// platform-suffixed package the variant selects, with the version
// variant appended as a constraint when pinned, e.g. gcc_linux-64 12.
func (rc *renderContext) toolchainPackage(lang, kind string) string {
	if lang == "" {
		return ""
	}

	base, ok := rc.variant(lang + kind)
	if !ok {
		return ""
	}

	pkg := base + "_" + rc.platform + "-" + rc.arch

	if ver, ok := rc.variant(lang + kind + "_version"); ok {
		pkg += " " + ver
	}

	return pkg
}

func applyFilter(val, filter string) (string, error) {
	name := filter

	var rawArgs string

	if i := strings.IndexByte(filter, '('); i > 0 && strings.HasSuffix(filter, ")") {
		name = filter[:i]
		rawArgs = filter[i+1 : len(filter)-1]
	}

	args, _, err := parseArgs(rawArgs)
	if err != nil {
		return "", err
	}

	switch name {
	case "lower":
		return strings.ToLower(val), nil
	case "upper":
		return strings.ToUpper(val), nil
	case "replace":
		if len(args) != 2 {
			return "", errors.Errorf("replace filter needs two arguments, got %d", len(args))
		}

		return strings.ReplaceAll(val, args[0], args[1]), nil
	default:
		// tolerate unknown filters the way undefined variables render
		return val, nil
	}
}

func parseArgs(raw string) ([]string, map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, map[string]string{}, nil
	}

	parts, err := splitTop(raw, ',')
	if err != nil {
		return nil, nil, err
	}

	var args []string

	kwargs := map[string]string{}

	for _, part := range parts {
		part = strings.TrimSpace(part)

		if k, v, ok := splitKwarg(part); ok {
			kwargs[k] = unquote(v)
			continue
		}

		args = append(args, unquote(part))
	}

	return args, kwargs, nil
}

func splitKwarg(s string) (string, string, bool) {
	i := strings.IndexByte(s, '=')
	if i <= 0 || (i+1 < len(s) && s[i+1] == '=') {
		return "", "", false
	}

	k := strings.TrimSpace(s[:i])
	if !identRe.MatchString(k) {
		return "", "", false
	}

	return k, strings.TrimSpace(s[i+1:]), true
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}

	return s
}

// splitTop splits on a delimiter at the top level, leaving quoted
// strings and parenthesized argument lists intact.
func splitTop(s string, delim byte) ([]string, error) {
	var (
		parts []string
		depth int
		start int
		quote byte
	)

	for i := 0; i < len(s); i++ {
		c := s[i]

		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == delim && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}

	if quote != 0 {
		return nil, errors.Errorf("unterminated string in %q", s)
	}

	parts = append(parts, s[start:])

	return parts, nil
}

func first(args []string) string {
	if len(args) == 0 {
		return ""
	}

	return args[0]
}
