package cbc

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"lab47.dev/solvent/pkg/spec"
)

// Config is one parsed variant configuration from a feedstock's
// .ci_support directory. The file is a free-form mapping of variant
// keys to value lists; Config keeps the raw mapping and exposes typed
// accessors for the keys the checker consumes.
type Config struct {
	path string
	raw  map[string]interface{}
}

// Load reads and parses one variant config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var raw map[string]interface{}

	err = yaml.Unmarshal(data, &raw)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing variant config %s", path)
	}

	return &Config{path: path, raw: raw}, nil
}

// Name is the config's identity: the file base name without its
// extension. Result maps and error prefixes are keyed by it.
func (c *Config) Name() string {
	base := filepath.Base(c.path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string {
	return c.path
}

// recognizedArches are the non-default architecture tokens that can
// appear as the second segment of a config file name. Anything else
// (including the common "64") means a 64-bit target, with the
// remaining segments belonging to the variant name.
var recognizedArches = map[string]struct{}{
	"32":      {},
	"aarch64": {},
	"ppc64le": {},
	"armv7l":  {},
	"arm64":   {},
}

// PlatformArch decodes the platform and architecture from a config
// file name. Generated names look like linux_64_python3.8.____cpython
// or osx_arm64_: the first segment is the platform, and the second is
// the architecture only when it names one of the recognized non-64
// arches.
func PlatformArch(path string) (string, string) {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	parts := strings.Split(base, "_")

	arch := "64"

	if len(parts) > 1 {
		if _, ok := recognizedArches[parts[1]]; ok {
			arch = parts[1]
		}
	}

	return parts[0], arch
}

// DefaultChannels applies when a config declares no channel_sources.
func DefaultChannels() []string {
	return []string{"conda-forge", "defaults"}
}

// ChannelSources returns the config's declared channel list. An entry
// may be comma-joined when channel_sources participates in a zip key,
// so each one is split and trimmed. Returns nil when the config does
// not declare channels.
func (c *Config) ChannelSources() []string {
	raw, ok := c.raw["channel_sources"]
	if !ok {
		return nil
	}

	var out []string

	for _, entry := range toStrings(raw) {
		for _, ch := range strings.Split(entry, ",") {
			ch = strings.TrimSpace(ch)
			if ch != "" {
				out = append(out, ch)
			}
		}
	}

	return out
}

// Channels computes the full channel order for a solve on the given
// platform: additional channels first, then the config's declared
// sources (or the defaults), with msys2 appended for windows targets
// that don't already carry it.
func (c *Config) Channels(platform string, additional []string) []string {
	sources := c.ChannelSources()
	if len(sources) == 0 {
		sources = DefaultChannels()
	}

	if strings.HasPrefix(platform, "win") && !contains(sources, "msys2") {
		sources = append(sources, "msys2")
	}

	if len(additional) == 0 {
		return sources
	}

	out := make([]string, 0, len(additional)+len(sources))
	out = append(out, additional...)
	out = append(out, sources...)

	return out
}

// PinRunAsBuild extracts the pin_run_as_build table, mapping package
// names to their pin masks.
func (c *Config) PinRunAsBuild() spec.Pins {
	raw, ok := c.raw["pin_run_as_build"]
	if !ok {
		return nil
	}

	pins := spec.Pins{}

	for name, rule := range toMap(raw) {
		rm := toMap(rule)

		pins[name] = spec.PinRule{
			MinPin: asString(rm["min_pin"]),
			MaxPin: asString(rm["max_pin"]),
		}
	}

	return pins
}

// controlKeys are config entries that steer the checker itself rather
// than pin a template variable.
var controlKeys = map[string]struct{}{
	"channel_sources":  {},
	"channel_targets":  {},
	"pin_run_as_build": {},
	"zip_keys":         {},
	"extend_keys":      {},
}

// Variants returns the variable pins the renderer applies: every
// non-control key mapped to its values, scalars normalized to
// single-value lists.
func (c *Config) Variants() map[string][]string {
	out := make(map[string][]string, len(c.raw))

	for k, v := range c.raw {
		if _, ok := controlKeys[k]; ok {
			continue
		}

		vals := toStrings(v)
		if len(vals) > 0 {
			out[k] = vals
		}
	}

	return out
}

// toMap normalizes yaml's untyped mappings, plus the single-entry
// lists of mappings smithy emits for zipped keys, into a string-keyed
// map.
func toMap(v interface{}) map[string]interface{} {
	out := map[string]interface{}{}

	switch m := v.(type) {
	case map[interface{}]interface{}:
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
	case map[string]interface{}:
		for k, val := range m {
			out[k] = val
		}
	case []interface{}:
		for _, e := range m {
			for k, val := range toMap(e) {
				out[k] = val
			}
		}
	}

	return out
}

func toStrings(v interface{}) []string {
	switch vv := v.(type) {
	case nil:
		return nil
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			out = append(out, asString(e))
		}

		return out
	default:
		return []string{asString(vv)}
	}
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

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}

	return false
}
