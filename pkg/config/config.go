// Package config reads solvent's user configuration: a JSON file under
// ~/.config/solvent, overridable field by field through SOLVENT_*
// environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"

	"lab47.dev/solvent/pkg/solver"
)

type Config struct {
	path      string
	configDir string

	// Actual config
	DataDir       string   `json:"data-dir"`
	Channels      []string `json:"channels"`
	Solver        string   `json:"solver"`
	MambaHelper   string   `json:"mamba-helper"`
	RattlerHelper string   `json:"rattler-helper"`
}

const (
	DefaultConfigPath = "~/.config/solvent/config.json"
	DefaultDataDir    = "~/.cache/solvent"
)

func LoadConfig() (*Config, error) {
	if loc := os.Getenv("SOLVENT_CONFIG"); loc != "" {
		return loadFile(loc)
	}

	path, err := homedir.Expand(DefaultConfigPath)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); err == nil {
		return loadFile(path)
	}

	err = os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return nil, err
	}

	ddir, err := homedir.Expand(DefaultDataDir)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		path:      path,
		configDir: filepath.Dir(path),

		DataDir: ddir,
		Solver:  solver.BackendRattler,
	}

	return updateFromEnv(cfg)
}

func loadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	defer f.Close()

	var cfg Config

	err = json.NewDecoder(f).Decode(&cfg)
	if err != nil {
		return nil, err
	}

	cfg.path = path
	cfg.configDir = filepath.Dir(path)

	if cfg.DataDir == "" {
		ddir, err := homedir.Expand(DefaultDataDir)
		if err != nil {
			return nil, err
		}

		cfg.DataDir = ddir
	}

	if cfg.Solver == "" {
		cfg.Solver = solver.BackendRattler
	}

	return updateFromEnv(&cfg)
}

func updateFromEnv(cfg *Config) (*Config, error) {
	if path := os.Getenv("SOLVENT_DATA_DIR"); path != "" {
		cfg.DataDir = path
	}

	if chans := os.Getenv("SOLVENT_CHANNELS"); chans != "" {
		cfg.Channels = nil

		for _, ch := range strings.Split(chans, ",") {
			ch = strings.TrimSpace(ch)
			if ch != "" {
				cfg.Channels = append(cfg.Channels, ch)
			}
		}
	}

	if backend := os.Getenv("SOLVENT_SOLVER"); backend != "" {
		cfg.Solver = backend
	}

	return ensureDirs(cfg)
}

func ensureDirs(cfg *Config) (*Config, error) {
	fi, err := os.Stat(cfg.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			err = os.MkdirAll(cfg.DataDir, 0755)
			if err != nil {
				return nil, err
			}

			return cfg, nil
		}

		return nil, err
	}

	if !fi.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", cfg.DataDir)
	}

	return cfg, nil
}

// HelperPath returns the configured helper binary for a backend,
// falling back to the conventional name searched on PATH.
func (c *Config) HelperPath(backend string) string {
	switch backend {
	case solver.BackendMamba:
		if c.MambaHelper != "" {
			return c.MambaHelper
		}

		return solver.MambaHelper
	case solver.BackendRattler:
		if c.RattlerHelper != "" {
			return c.RattlerHelper
		}

		return solver.RattlerHelper
	default:
		return ""
	}
}
