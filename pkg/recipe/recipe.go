package recipe

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"lab47.dev/solvent/pkg/cbc"
	"lab47.dev/solvent/pkg/spec"
)

// Metadata is one rendered output package: the expanded recipe tree
// plus the platform pair it was rendered for. Metadata objects live
// for a single configuration's check.
type Metadata struct {
	name          string
	data          map[interface{}]interface{}
	platform      string
	arch          string
	buildPlatform string
	buildArch     string
}

// Name returns the output package name.
func (m *Metadata) Name() string { return m.name }

// PlatformArch returns the target platform pair.
func (m *Metadata) PlatformArch() (string, string) { return m.platform, m.arch }

// BuildPlatformArch returns the pair builds run on.
func (m *Metadata) BuildPlatformArch() (string, string) { return m.buildPlatform, m.buildArch }

// IsCross reports whether the build and target platform pairs differ.
func (m *Metadata) IsCross() bool {
	return m.platform != m.buildPlatform || m.arch != m.buildArch
}

// Noarch reports whether the package builds platform-independent.
func (m *Metadata) Noarch() bool {
	return m.GetBool("build/noarch") || m.GetString("build/noarch") != ""
}

// NoarchPython reports the legacy noarch_python flag.
func (m *Metadata) NoarchPython() bool {
	return m.GetBool("build/noarch_python")
}

// BuildIsHost reports whether the build environment doubles as the
// host environment: merge_build_host set, or a native build with no
// host section at all.
func (m *Metadata) BuildIsHost() bool {
	if m.GetBool("build/merge_build_host") {
		return true
	}

	if m.IsCross() {
		return false
	}

	reqs := toTree(m.data["requirements"])
	if reqs == nil {
		return false
	}

	_, ok := reqs["host"]

	return !ok
}

func (m *Metadata) value(path string) (interface{}, bool) {
	var cur interface{} = m.data

	for _, seg := range strings.Split(path, "/") {
		node := toTree(cur)
		if node == nil {
			return nil, false
		}

		next, ok := node[seg]
		if !ok {
			return nil, false
		}

		cur = next
	}

	return cur, true
}

// GetList returns a list-valued field, tolerating scalars and absent
// keys.
func (m *Metadata) GetList(path string) []string {
	v, ok := m.value(path)
	if !ok || v == nil {
		return nil
	}

	switch vv := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			if e == nil {
				continue
			}

			out = append(out, asString(e))
		}

		return out
	default:
		return []string{asString(v)}
	}
}

// GetString returns a scalar field as a string, empty when absent or
// boolean.
func (m *Metadata) GetString(path string) string {
	v, ok := m.value(path)
	if !ok || v == nil {
		return ""
	}

	if _, isBool := v.(bool); isBool {
		return ""
	}

	return asString(v)
}

// GetBool returns a boolean field, false when absent or non-boolean.
func (m *Metadata) GetBool(path string) bool {
	v, ok := m.value(path)
	if !ok {
		return false
	}

	b, _ := v.(bool)

	return b
}

// RenderOptions selects the platform pair and variant set one render
// runs under.
type RenderOptions struct {
	Platform      string
	Arch          string
	BuildPlatform string
	BuildArch     string
	Variants      map[string][]string
}

// Render expands recipeDir/meta.yaml for one platform configuration
// and returns a Metadata per output package. Template failures are
// fatal: a recipe that cannot render cannot be checked.
func Render(recipeDir string, opts RenderOptions) ([]*Metadata, error) {
	raw, err := os.ReadFile(filepath.Join(recipeDir, "meta.yaml"))
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if opts.BuildPlatform == "" {
		opts.BuildPlatform = opts.Platform
		opts.BuildArch = opts.Arch
	}

	rc := &renderContext{
		platform: opts.Platform,
		arch:     opts.Arch,
		vars:     map[string]string{},
		variants: opts.Variants,
	}

	text, err := renderTemplate(string(raw), rc)
	if err != nil {
		return nil, errors.Wrapf(err, "rendering %s", recipeDir)
	}

	ns := selectorNamespace(opts.Platform, opts.Arch, opts.BuildPlatform, opts.BuildArch)

	text, err = applySelectors(text, ns)
	if err != nil {
		return nil, errors.Wrapf(err, "rendering %s", recipeDir)
	}

	var tree map[interface{}]interface{}

	err = yaml.Unmarshal([]byte(text), &tree)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing rendered recipe %s", recipeDir)
	}

	pinVariantRequirements(tree, opts.Variants)

	return expandOutputs(tree, opts), nil
}

// MergeVariants combines the recipe's own conda_build_config.yaml (if
// any) with the platform config's variants, the platform config
// winning conflicts.
func MergeVariants(recipeDir string, cfg *cbc.Config) (map[string][]string, error) {
	merged := map[string][]string{}

	local := filepath.Join(recipeDir, "conda_build_config.yaml")
	if _, err := os.Stat(local); err == nil {
		lc, err := cbc.Load(local)
		if err != nil {
			return nil, errors.Wrapf(err, "merging variants for %s", recipeDir)
		}

		for k, v := range lc.Variants() {
			merged[k] = v
		}
	}

	for k, v := range cfg.Variants() {
		merged[k] = v
	}

	return merged, nil
}

// pinVariantRequirements appends the variant-selected version to bare
// build and host requirements, the way rendered feedstocks pin
// python, numpy, and friends.
func pinVariantRequirements(tree map[interface{}]interface{}, variants map[string][]string) {
	pinSection(toTree(tree["requirements"]), variants)

	outs, _ := tree["outputs"].([]interface{})
	for _, o := range outs {
		if om := toTree(o); om != nil {
			pinSection(toTree(om["requirements"]), variants)
		}
	}
}

func pinSection(reqs map[interface{}]interface{}, variants map[string][]string) {
	if reqs == nil {
		return
	}

	for _, key := range []string{"build", "host"} {
		list, ok := reqs[key].([]interface{})
		if !ok {
			continue
		}

		for i, e := range list {
			name, isStr := e.(string)
			if !isStr {
				continue
			}

			s, err := spec.Parse(name)
			if err != nil || s.Version != "" || s.Build != "" {
				continue
			}

			vals, ok := variants[strings.ReplaceAll(s.Name, "-", "_")]
			if !ok || len(vals) == 0 || vals[0] == "" {
				continue
			}

			list[i] = s.Name + " " + vals[0]
		}
	}
}

// expandOutputs turns the rendered tree into Metadata objects: one
// per declared output, plus the top-level package when it declares
// its own requirements and no output replaces it.
func expandOutputs(tree map[interface{}]interface{}, opts RenderOptions) []*Metadata {
	top := newMetadata(tree, opts)
	top.name = top.GetString("package/name")

	rawOuts, ok := tree["outputs"].([]interface{})
	if !ok {
		return []*Metadata{top}
	}

	var metas []*Metadata

	ownReqs := len(top.GetList("requirements/build")) +
		len(top.GetList("requirements/host")) +
		len(top.GetList("requirements/run"))

	if ownReqs > 0 && !outputNamed(rawOuts, top.name) {
		metas = append(metas, top)
	}

	for _, o := range rawOuts {
		om := toTree(o)
		if om == nil {
			continue
		}

		m := newMetadata(outputTree(tree, om), opts)
		m.name = asString(om["name"])

		if m.name == "" {
			continue
		}

		metas = append(metas, m)
	}

	if len(metas) == 0 {
		return []*Metadata{top}
	}

	return metas
}

func newMetadata(data map[interface{}]interface{}, opts RenderOptions) *Metadata {
	return &Metadata{
		data:          data,
		platform:      opts.Platform,
		arch:          opts.Arch,
		buildPlatform: opts.BuildPlatform,
		buildArch:     opts.BuildArch,
	}
}

// outputTree assembles an output's view of the recipe: its own
// sections, with top-level build flags showing through under keys the
// output doesn't override.
func outputTree(top, out map[interface{}]interface{}) map[interface{}]interface{} {
	data := map[interface{}]interface{}{}

	for k, v := range out {
		data[k] = v
	}

	// a bare list of requirements is shorthand for run requirements
	if lst, ok := out["requirements"].([]interface{}); ok {
		data["requirements"] = map[interface{}]interface{}{"run": lst}
	}

	topBuild := toTree(top["build"])
	outBuild := toTree(out["build"])

	if topBuild != nil || outBuild != nil {
		build := map[interface{}]interface{}{}

		for k, v := range topBuild {
			build[k] = v
		}
		for k, v := range outBuild {
			build[k] = v
		}

		data["build"] = build
	}

	return data
}

func outputNamed(outs []interface{}, name string) bool {
	for _, o := range outs {
		if m := toTree(o); m != nil && asString(m["name"]) == name {
			return true
		}
	}

	return false
}

func toTree(v interface{}) map[interface{}]interface{} {
	m, _ := v.(map[interface{}]interface{})
	return m
}

func asString(v interface{}) string {
	if v == nil {
		return ""
	}

	if s, ok := v.(string); ok {
		return s
	}

	return fmt.Sprint(v)
}
