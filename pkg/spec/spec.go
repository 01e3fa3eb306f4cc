package spec

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Spec is one requirement specifier: a package name plus optional version
// constraint and build-string pattern, the three space-separated fields of
// a conda match spec ("python >=3.8", "fenics-basix 0.8.0 *_0").
type Spec struct {
	Name    string
	Version string
	Build   string
}

var ErrBadSpec = errors.New("malformed requirement spec")

// Parse splits a requirement string into its fields. Extra whitespace is
// tolerated; more than three fields is an error.
func Parse(s string) (Spec, error) {
	fields := strings.Fields(s)

	switch len(fields) {
	case 0:
		return Spec{}, errors.Wrapf(ErrBadSpec, "empty spec")
	case 1:
		return Spec{Name: fields[0]}, nil
	case 2:
		return Spec{Name: fields[0], Version: fields[1]}, nil
	case 3:
		return Spec{Name: fields[0], Version: fields[1], Build: fields[2]}, nil
	default:
		return Spec{}, errors.Wrapf(ErrBadSpec, "too many fields: %q", s)
	}
}

func (s Spec) String() string {
	parts := make([]string, 0, 3)
	parts = append(parts, s.Name)

	if s.Version != "" {
		parts = append(parts, s.Version)
	}

	if s.Build != "" {
		if s.Version == "" {
			parts = append(parts, "*")
		}
		parts = append(parts, s.Build)
	}

	return strings.Join(parts, " ")
}

// List is an ordered requirement list. Union and removal treat it as a
// set keyed by the full spec string, but the order handed to a solver is
// always made deterministic first.
type List []Spec

// ParseList parses each entry, skipping blanks.
func ParseList(in []string) (List, error) {
	var out List

	for _, s := range in {
		if strings.TrimSpace(s) == "" {
			continue
		}

		sp, err := Parse(s)
		if err != nil {
			return nil, err
		}

		out = append(out, sp)
	}

	return out, nil
}

func (l List) Strings() []string {
	out := make([]string, len(l))
	for i, s := range l {
		out[i] = s.String()
	}

	return out
}

// Names returns the package names in list order, with duplicates.
func (l List) Names() []string {
	out := make([]string, len(l))
	for i, s := range l {
		out[i] = s.Name
	}

	return out
}

// Union returns l ∪ other with duplicates removed and a deterministic
// order.
func (l List) Union(other List) List {
	seen := make(map[string]struct{}, len(l)+len(other))

	var out List

	for _, chunk := range []List{l, other} {
		for _, s := range chunk {
			k := s.String()
			if _, ok := seen[k]; ok {
				continue
			}

			seen[k] = struct{}{}
			out = append(out, s)
		}
	}

	return out.Sorted()
}

// Sorted returns a copy ordered by name, version, build.
func (l List) Sorted() List {
	out := make(List, len(l))
	copy(out, l)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		if out[i].Version != out[j].Version {
			return out[i].Version < out[j].Version
		}
		return out[i].Build < out[j].Build
	})

	return out
}

// RemoveByName strips every spec whose package name appears in names. A
// recipe's own outputs are removed from its requirement lists this way
// before anything is handed to a solver.
func (l List) RemoveByName(names []string) List {
	if len(names) == 0 {
		return l
	}

	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
	}

	var out List

	for _, s := range l {
		if _, ok := drop[s.Name]; ok {
			continue
		}

		out = append(out, s)
	}

	return out
}

// Find returns the first spec with the given package name.
func (l List) Find(name string) (Spec, bool) {
	for _, s := range l {
		if s.Name == name {
			return s, true
		}
	}

	return Spec{}, false
}
