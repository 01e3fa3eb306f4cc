package spec

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// PinCompatibleTag marks a version token the renderer emits for a
// pin_compatible() requirement. The token survives as the spec's version
// field until ReplacePinCompatible swaps it for a concrete range derived
// from an already-resolved requirement list.
const PinCompatibleTag = "__pin_compatible__"

// PinCompatible carries the parameters of one pin_compatible placeholder.
type PinCompatible struct {
	MinPin     string
	MaxPin     string
	LowerBound string
	UpperBound string
}

// DefaultMinPin and DefaultMaxPin mirror conda-build's pin_compatible
// defaults: the lower bound keeps the full resolved version, the upper
// bound cuts at the next major release.
const (
	DefaultMinPin = "x.x.x.x.x.x"
	DefaultMaxPin = "x"
)

// Placeholder renders the parameters as a single version token.
func (p PinCompatible) Placeholder() string {
	var sb strings.Builder
	sb.WriteString(PinCompatibleTag)

	pairs := [][2]string{
		{"min_pin", p.MinPin},
		{"max_pin", p.MaxPin},
		{"lower_bound", p.LowerBound},
		{"upper_bound", p.UpperBound},
	}

	for _, kv := range pairs {
		if kv[1] == "" {
			continue
		}

		sb.WriteString(";")
		sb.WriteString(kv[0])
		sb.WriteString("=")
		sb.WriteString(kv[1])
	}

	return sb.String()
}

// ParsePinCompatible decodes a placeholder token. The bool reports
// whether the token is one.
func ParsePinCompatible(token string) (PinCompatible, bool) {
	if !strings.HasPrefix(token, PinCompatibleTag) {
		return PinCompatible{}, false
	}

	p := PinCompatible{MinPin: DefaultMinPin, MaxPin: DefaultMaxPin}

	rest := strings.TrimPrefix(token, PinCompatibleTag)
	for _, kv := range strings.Split(rest, ";") {
		if kv == "" {
			continue
		}

		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}

		switch k {
		case "min_pin":
			p.MinPin = v
		case "max_pin":
			p.MaxPin = v
		case "lower_bound":
			p.LowerBound = v
		case "upper_bound":
			p.UpperBound = v
		}
	}

	return p, true
}

// IsPinCompatible reports whether the spec's version field is a
// pin_compatible placeholder.
func (s Spec) IsPinCompatible() bool {
	return strings.HasPrefix(s.Version, PinCompatibleTag)
}

// ReplacePinCompatible substitutes every pin_compatible placeholder with
// a concrete range built from the matching entry in pinCompat, the
// resolved host (cross builds) or build requirement list. A placeholder
// naming a package absent from pinCompat is an error; the phase that hit
// it is unsolvable, not the process.
func ReplacePinCompatible(reqs, pinCompat List) (List, error) {
	var out List

	for _, s := range reqs {
		if !s.IsPinCompatible() {
			out = append(out, s)
			continue
		}

		p, _ := ParsePinCompatible(s.Version)

		resolved, ok := pinCompat.Find(s.Name)
		if !ok {
			return nil, errors.Errorf(
				"pin_compatible for %q but it is not a resolved host/build dependency", s.Name)
		}

		lower := p.LowerBound
		if lower == "" {
			lower = TrimVersion(resolved.Version, maskSegments(p.MinPin))
		}

		upper := p.UpperBound
		if upper == "" {
			upper = BumpVersion(resolved.Version, maskSegments(p.MaxPin))
		}

		out = append(out, Spec{
			Name:    s.Name,
			Version: ">=" + lower + ",<" + upper,
			Build:   s.Build,
		})
	}

	return out, nil
}

// PinRule pins one package to the version resolved at host/build time,
// masked by conda-style "x.x" expressions.
type PinRule struct {
	MinPin string
	MaxPin string
}

// Pins is a pin_run_as_build table from the variant config.
type Pins map[string]PinRule

// DefaultPins returns the implicit entries conda-build always carries.
func DefaultPins() Pins {
	return Pins{
		"python": {MinPin: "x.x", MaxPin: "x.x"},
		"r-base": {MinPin: "x.x", MaxPin: "x.x"},
	}
}

// Merge lays other's entries over p, returning a new table.
func (p Pins) Merge(other Pins) Pins {
	out := make(Pins, len(p)+len(other))

	for k, v := range p {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}

	return out
}

// PinEnv is the metadata context pin application runs under.
type PinEnv struct {
	IsCross bool
	Noarch  bool
	Pins    Pins
}

// ApplyPins rewrites requirement versions according to the pin table:
// a package with a rule whose version was resolved at host time (build
// time as fallback) gets a ">=lower,<upper" range in place of whatever
// constraint it had. Recipe outputs are left alone, as is python on
// noarch builds. Legacy "x.x" version masks are filled from the resolved
// version.
func ApplyPins(reqs, hostReq, buildReq List, outnames []string, env PinEnv) List {
	skip := make(map[string]struct{}, len(outnames))
	for _, n := range outnames {
		skip[n] = struct{}{}
	}

	resolve := func(name string) (Spec, bool) {
		if s, ok := hostReq.Find(name); ok {
			return s, true
		}
		return buildReq.Find(name)
	}

	var out List

	for _, s := range reqs {
		if _, ok := skip[s.Name]; ok {
			out = append(out, s)
			continue
		}

		resolved, haveResolved := resolve(s.Name)

		if haveResolved && isLegacyMask(s.Version) {
			out = append(out, Spec{
				Name:    s.Name,
				Version: TrimVersion(resolved.Version, maskSegments(s.Version)),
				Build:   s.Build,
			})
			continue
		}

		rule, ok := env.Pins[s.Name]
		if !ok || !haveResolved {
			out = append(out, s)
			continue
		}

		if s.Name == "python" && env.Noarch {
			out = append(out, s)
			continue
		}

		out = append(out, Spec{
			Name: s.Name,
			Version: ">=" + TrimVersion(resolved.Version, maskSegments(rule.MinPin)) +
				",<" + BumpVersion(resolved.Version, maskSegments(rule.MaxPin)),
			Build: s.Build,
		})
	}

	return out
}

// isLegacyMask detects the old "numpy x.x" pin style: a version made of
// nothing but x segments.
func isLegacyMask(v string) bool {
	if v == "" {
		return false
	}

	for _, seg := range strings.Split(v, ".") {
		if seg != "x" {
			return false
		}
	}

	return true
}

func maskSegments(mask string) int {
	n := strings.Count(mask, "x")
	if n == 0 {
		n = 1
	}

	return n
}

// TrimVersion keeps the first n dot-separated segments of a version.
func TrimVersion(v string, n int) string {
	segs := strings.Split(v, ".")
	if n > len(segs) {
		n = len(segs)
	}

	return strings.Join(segs[:n], ".")
}

// BumpVersion increments the nth segment of a version, drops everything
// after it, and appends the ".0a0" floor conda uses so prereleases of
// the bumped version stay outside the range. BumpVersion("3.8.13", 2)
// is "3.9.0a0"; BumpVersion("1.21.5", 1) is "2.0a0".
func BumpVersion(v string, n int) string {
	segs := strings.Split(v, ".")
	if n > len(segs) {
		n = len(segs)
	}

	segs = segs[:n]

	last := segs[len(segs)-1]
	num, _ := splitNumeric(last)

	i, err := strconv.Atoi(num)
	if err != nil {
		i = 0
	}

	segs[len(segs)-1] = strconv.Itoa(i + 1)

	return strings.Join(segs, ".") + ".0a0"
}
