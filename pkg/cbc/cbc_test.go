package cbc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lab47.dev/solvent/pkg/spec"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	return path
}

func TestPlatformArch(t *testing.T) {
	cases := []struct {
		file     string
		platform string
		arch     string
	}{
		{"linux_64_python3.8.____cpython.yaml", "linux", "64"},
		{"linux_aarch64_python3.8.yaml", "linux", "aarch64"},
		{"linux_ppc64le_.yaml", "linux", "ppc64le"},
		{"osx_arm64_.yaml", "osx", "arm64"},
		{"osx_64_numpy1.21.yaml", "osx", "64"},
		{"win_64_.yaml", "win", "64"},
		{"linux_64.yaml", "linux", "64"},
		{"linux.yaml", "linux", "64"},
	}

	for _, c := range cases {
		t.Run(c.file, func(t *testing.T) {
			platform, arch := PlatformArch(c.file)
			assert.Equal(t, c.platform, platform)
			assert.Equal(t, c.arch, arch)
		})
	}
}

func TestConfigChannels(t *testing.T) {
	t.Run("declared sources split on commas", func(t *testing.T) {
		path := writeConfig(t, "linux_64_.yaml", "channel_sources:\n  - conda-forge,defaults\n")

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, []string{"conda-forge", "defaults"}, cfg.ChannelSources())
	})

	t.Run("defaults when undeclared", func(t *testing.T) {
		path := writeConfig(t, "linux_64_.yaml", "python:\n  - 3.8.* *_cpython\n")

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Nil(t, cfg.ChannelSources())
		assert.Equal(t, []string{"conda-forge", "defaults"}, cfg.Channels("linux", nil))
	})

	t.Run("windows gains msys2", func(t *testing.T) {
		path := writeConfig(t, "win_64_.yaml", "channel_sources:\n  - conda-forge\n")

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, []string{"conda-forge", "msys2"}, cfg.Channels("win", nil))
	})

	t.Run("msys2 not doubled", func(t *testing.T) {
		path := writeConfig(t, "win_64_.yaml", "channel_sources:\n  - conda-forge,msys2\n")

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, []string{"conda-forge", "msys2"}, cfg.Channels("win", nil))
	})

	t.Run("additional channels go first", func(t *testing.T) {
		path := writeConfig(t, "linux_64_.yaml", "channel_sources:\n  - conda-forge\n")

		cfg, err := Load(path)
		require.NoError(t, err)

		got := cfg.Channels("linux", []string{"file:///tmp/virtual"})
		assert.Equal(t, []string{"file:///tmp/virtual", "conda-forge"}, got)
	})
}

func TestConfigPinRunAsBuild(t *testing.T) {
	body := `pin_run_as_build:
  python:
    min_pin: x.x
    max_pin: x.x
  boost-cpp:
    max_pin: x.x.x
python:
  - 3.8.* *_cpython
`

	path := writeConfig(t, "linux_64_python3.8.____cpython.yaml", body)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "linux_64_python3.8.____cpython", cfg.Name())

	pins := cfg.PinRunAsBuild()
	require.Len(t, pins, 2)
	assert.Equal(t, spec.PinRule{MinPin: "x.x", MaxPin: "x.x"}, pins["python"])
	assert.Equal(t, spec.PinRule{MaxPin: "x.x.x"}, pins["boost-cpp"])
}

func TestConfigVariants(t *testing.T) {
	body := `c_compiler:
  - gcc
c_compiler_version:
  - '12'
channel_sources:
  - conda-forge
zip_keys:
  - - c_compiler_version
    - cxx_compiler_version
python:
  - 3.8.* *_cpython
`

	path := writeConfig(t, "linux_64_python3.8.____cpython.yaml", body)

	cfg, err := Load(path)
	require.NoError(t, err)

	v := cfg.Variants()
	assert.Equal(t, []string{"gcc"}, v["c_compiler"])
	assert.Equal(t, []string{"12"}, v["c_compiler_version"])
	assert.Equal(t, []string{"3.8.* *_cpython"}, v["python"])
	assert.NotContains(t, v, "channel_sources")
	assert.NotContains(t, v, "zip_keys")
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})

	t.Run("bad yaml", func(t *testing.T) {
		path := writeConfig(t, "linux_64_.yaml", "channel_sources: [unclosed\n")

		_, err := Load(path)
		require.Error(t, err)
	})
}
