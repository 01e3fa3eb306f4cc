package spec

import (
	"path"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Match reports whether a concrete (version, build) pair satisfies the
// spec. An empty version constraint or build pattern matches anything.
func (s Spec) Match(version, build string) bool {
	if !MatchVersion(s.Version, version) {
		return false
	}

	if s.Build == "" || s.Build == "*" {
		return true
	}

	ok, err := path.Match(s.Build, build)
	return err == nil && ok
}

// MatchVersion evaluates a comma-joined constraint expression against a
// version. Clauses follow conda semantics: ">="/">"/"<="/"<" compare,
// "==" and "!=" are exact, "=x.y" and a bare "x.y" match by version
// prefix, and "x.y.*" is an explicit prefix wildcard.
func MatchVersion(constraint, version string) bool {
	constraint = strings.TrimSpace(constraint)
	if constraint == "" || constraint == "*" {
		return true
	}

	for _, clause := range strings.Split(constraint, ",") {
		if !matchClause(strings.TrimSpace(clause), version) {
			return false
		}
	}

	return true
}

func matchClause(clause, version string) bool {
	switch {
	case clause == "" || clause == "*":
		return true

	case strings.HasPrefix(clause, ">="):
		return CompareVersions(version, clause[2:]) >= 0

	case strings.HasPrefix(clause, "<="):
		return CompareVersions(version, clause[2:]) <= 0

	case strings.HasPrefix(clause, ">"):
		return CompareVersions(version, clause[1:]) > 0

	case strings.HasPrefix(clause, "<"):
		return CompareVersions(version, clause[1:]) < 0

	case strings.HasPrefix(clause, "!="):
		return CompareVersions(version, clause[2:]) != 0

	case strings.HasPrefix(clause, "=="):
		return CompareVersions(version, clause[2:]) == 0

	case strings.HasPrefix(clause, "="):
		return prefixMatch(version, clause[1:])

	case strings.HasSuffix(clause, "*"):
		return prefixMatch(version, strings.TrimSuffix(strings.TrimSuffix(clause, "*"), "."))

	default:
		return prefixMatch(version, clause)
	}
}

// prefixMatch implements conda's "starts with" version semantics: "3.8"
// matches "3.8" itself and anything under it ("3.8.13"), but not "3.80".
func prefixMatch(version, prefix string) bool {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return true
	}

	if version == prefix {
		return true
	}

	return strings.HasPrefix(version, prefix+".")
}

// CompareVersions orders two version strings. It goes through
// Masterminds/semver when both sides coerce cleanly and falls back to a
// conda-flavored segment comparison for the shapes semver cannot carry
// (4+ numeric segments, calendar versions, post releases).
func CompareVersions(a, b string) int {
	av, aok := coerceSemver(a)
	bv, bok := coerceSemver(b)

	if aok && bok {
		return av.Compare(bv)
	}

	return compareSegments(a, b)
}

// coerceSemver maps a conda version onto semver: epoch stripped, padded
// to three numeric segments, a trailing alphanumeric tail ("4.0a0")
// carried as a prerelease so it orders before the release it precedes.
func coerceSemver(v string) (*semver.Version, bool) {
	v = strings.ToLower(strings.TrimSpace(v))

	if i := strings.Index(v, "!"); i >= 0 {
		v = v[i+1:]
	}

	segs := strings.Split(v, ".")
	if len(segs) > 3 {
		return nil, false
	}

	nums := make([]string, 3)
	for i := range nums {
		nums[i] = "0"
	}

	pre := ""

	for i, seg := range segs {
		num, tail := splitNumeric(seg)
		if num == "" {
			return nil, false
		}

		nums[i] = num

		if tail != "" {
			if i != len(segs)-1 {
				return nil, false
			}

			pre = tail
		}
	}

	s := strings.Join(nums, ".")
	if pre != "" {
		s += "-" + pre
	}

	sv, err := semver.NewVersion(s)
	if err != nil {
		return nil, false
	}

	return sv, true
}

func splitNumeric(seg string) (num, tail string) {
	i := 0
	for i < len(seg) && seg[i] >= '0' && seg[i] <= '9' {
		i++
	}

	return seg[:i], seg[i:]
}

// compareSegments is the fallback ordering: numeric segments compare as
// integers, a release outranks its own prereleases, and "post" outranks
// the release.
func compareSegments(a, b string) int {
	as := strings.Split(strings.ToLower(a), ".")
	bs := strings.Split(strings.ToLower(b), ".")

	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}

	for i := 0; i < n; i++ {
		var sa, sb string
		if i < len(as) {
			sa = as[i]
		}
		if i < len(bs) {
			sb = bs[i]
		}

		if c := compareOneSegment(sa, sb); c != 0 {
			return c
		}
	}

	return 0
}

func compareOneSegment(a, b string) int {
	an, atail := splitNumeric(a)
	bn, btail := splitNumeric(b)

	ai, _ := strconv.Atoi(an)
	bi, _ := strconv.Atoi(bn)

	if ai != bi {
		if ai < bi {
			return -1
		}
		return 1
	}

	return compareTails(atail, btail)
}

func compareTails(a, b string) int {
	if a == b {
		return 0
	}

	rank := func(t string) int {
		switch {
		case t == "":
			return 1
		case strings.HasPrefix(t, "post"):
			return 2
		default:
			return 0
		}
	}

	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	if a < b {
		return -1
	}
	return 1
}
