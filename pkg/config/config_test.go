package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lab47.dev/solvent/pkg/solver"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	return path
}

func clearEnv(t *testing.T) {
	t.Helper()

	t.Setenv("SOLVENT_DATA_DIR", "")
	t.Setenv("SOLVENT_CHANNELS", "")
	t.Setenv("SOLVENT_SOLVER", "")
}

func TestLoadConfig(t *testing.T) {
	t.Run("reads the config file", func(t *testing.T) {
		clearEnv(t)

		data := t.TempDir()
		path := writeConfig(t, `{
  "data-dir": "`+data+`",
  "channels": ["conda-forge", "msys2"],
  "solver": "mamba",
  "rattler-helper": "/opt/helpers/rattler"
}`)
		t.Setenv("SOLVENT_CONFIG", path)

		cfg, err := LoadConfig()
		require.NoError(t, err)

		assert.Equal(t, data, cfg.DataDir)
		assert.Equal(t, []string{"conda-forge", "msys2"}, cfg.Channels)
		assert.Equal(t, "mamba", cfg.Solver)
		assert.Equal(t, "/opt/helpers/rattler", cfg.RattlerHelper)
	})

	t.Run("fills defaults for absent fields", func(t *testing.T) {
		clearEnv(t)

		data := t.TempDir()
		path := writeConfig(t, `{"data-dir": "`+data+`"}`)
		t.Setenv("SOLVENT_CONFIG", path)

		cfg, err := LoadConfig()
		require.NoError(t, err)

		assert.Equal(t, solver.BackendRattler, cfg.Solver)
		assert.Empty(t, cfg.Channels)
	})

	t.Run("environment overrides the file", func(t *testing.T) {
		clearEnv(t)

		path := writeConfig(t, `{"data-dir": "`+t.TempDir()+`", "solver": "mamba"}`)
		t.Setenv("SOLVENT_CONFIG", path)

		data := t.TempDir()
		t.Setenv("SOLVENT_DATA_DIR", data)
		t.Setenv("SOLVENT_CHANNELS", "conda-forge, extra ")
		t.Setenv("SOLVENT_SOLVER", "rattler")

		cfg, err := LoadConfig()
		require.NoError(t, err)

		assert.Equal(t, data, cfg.DataDir)
		assert.Equal(t, []string{"conda-forge", "extra"}, cfg.Channels)
		assert.Equal(t, "rattler", cfg.Solver)
	})

	t.Run("creates the data dir", func(t *testing.T) {
		clearEnv(t)

		data := filepath.Join(t.TempDir(), "nested", "cache")
		path := writeConfig(t, `{"data-dir": "`+data+`"}`)
		t.Setenv("SOLVENT_CONFIG", path)

		_, err := LoadConfig()
		require.NoError(t, err)

		fi, err := os.Stat(data)
		require.NoError(t, err)
		assert.True(t, fi.IsDir())
	})
}

func TestHelperPath(t *testing.T) {
	var cfg Config

	assert.Equal(t, solver.RattlerHelper, cfg.HelperPath(solver.BackendRattler))
	assert.Equal(t, solver.MambaHelper, cfg.HelperPath(solver.BackendMamba))
	assert.Equal(t, "", cfg.HelperPath("weird"))

	cfg.RattlerHelper = "/opt/helpers/rattler"
	assert.Equal(t, "/opt/helpers/rattler", cfg.HelperPath(solver.BackendRattler))
}
