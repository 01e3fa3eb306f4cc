// Package check decides whether a feedstock's recipe can be solved on
// every platform configuration it ships, without building anything. A
// check renders the recipe per config, then solves the build, host,
// run, and test requirement sets in order, feeding run exports from
// the earlier environments into the later ones the way an actual build
// would.
package check

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"lab47.dev/solvent/pkg/cbc"
	"lab47.dev/solvent/pkg/feedstock"
	"lab47.dev/solvent/pkg/humanize"
	"lab47.dev/solvent/pkg/progress"
	"lab47.dev/solvent/pkg/solver"
	"lab47.dev/solvent/pkg/timeout"
	"lab47.dev/solvent/pkg/virtual"
)

// Options tunes one solvability check.
type Options struct {
	// AdditionalChannels are searched before the channels each config
	// declares in channel_sources.
	AdditionalChannels []string

	// Timeout bounds the whole check. Once the budget is spent the
	// check reports solvable: a slow solve must not hold up whatever
	// asked for it. Non-positive means the 600s default.
	Timeout time.Duration

	// BuildPlatform maps a target "platform_arch" pair to the pair the
	// build environment solves against, for cross builds.
	BuildPlatform map[string]string

	// Solver picks the backend: "rattler" (the default) or "mamba".
	Solver string

	// FailFast stops at the first unsolvable configuration instead of
	// collecting every failure.
	FailFast bool

	Logger hclog.Logger

	// Factory overrides backend selection, mainly for tests.
	Factory solver.Factory

	// DisableVirtualPackages skips the synthesized channel that stands
	// in for __glibc, __cuda, and the other install-time packages.
	DisableVirtualPackages bool

	// DataDir roots the virtual channel cache. Empty means a stable
	// path under the system temp dir.
	DataDir string
}

// Result reports one feedstock check.
type Result struct {
	// Solvable is true when every configuration solved.
	Solvable bool

	// Errors holds the failures, each prefixed with the name of the
	// configuration that produced it.
	Errors []string

	// ByConfig records the verdict per configuration name.
	ByConfig map[string]bool
}

// ErrUnknownSolver reports an Options.Solver naming no known backend.
var ErrUnknownSolver = errors.New("unknown solver backend")

// Wording the migration tooling downstream matches on.
const (
	noConfigsMessage = "No `.ci_support/*.yaml` files found! This can happen when a rerender " +
		"results in no builds for a recipe (e.g., a recipe is python 2.7 only). " +
		"This attempted migration is being reported as not solvable."

	noRecipeMessage = "No `recipe/meta.yaml` file found! This issue is quite weird and " +
		"someone should investigate!"
)

// IsRecipeSolvable checks the feedstock at feedstockDir against every
// .ci_support config it carries. The error return is reserved for an
// unknown backend, a recipe that cannot render, and context failures;
// ordinary solver failures land in Result.Errors. A spent time budget
// fails open and reports solvable.
func IsRecipeSolvable(ctx context.Context, feedstockDir string, opts *Options) (*Result, error) {
	if opts == nil {
		opts = &Options{}
	}

	c, err := newChecker(opts)
	if err != nil {
		return nil, err
	}

	budget := opts.Timeout
	if budget <= 0 {
		budget = timeout.Default
	}

	res, err := c.run(ctx, feedstockDir, timeout.New(budget))
	if err != nil {
		if errors.Is(err, timeout.ErrDeadline) {
			c.L().Warn("solver timeout, reporting as solvable",
				"feedstock", feedstockDir,
				"budget", humanize.Duration(budget))

			return &Result{Solvable: true, Errors: []string{}, ByConfig: map[string]bool{}}, nil
		}

		return nil, err
	}

	return res, nil
}

// checker carries the state shared by every configuration of one
// check: the memoized solver factory, the run-export result cache, and
// the resolved backend.
type checker struct {
	common

	opts    *Options
	backend string
	factory *solver.FactoryCache
	exports *solver.ResultCache
}

func newChecker(opts *Options) (*checker, error) {
	c := &checker{opts: opts}
	c.SetLogger(opts.Logger)

	c.backend = opts.Solver
	if c.backend == "" {
		c.backend = solver.BackendRattler
	}

	fn := opts.Factory

	switch c.backend {
	case solver.BackendRattler:
		if fn == nil {
			fn = solver.ExecFactory(solver.RattlerHelper, true, c.L())
		}
	case solver.BackendMamba:
		if fn == nil {
			fn = solver.ExecFactory(solver.MambaHelper, false, c.L())
		}
	default:
		return nil, errors.Wrapf(ErrUnknownSolver, "%q", c.backend)
	}

	fc, err := solver.NewFactoryCache(fn)
	if err != nil {
		return nil, err
	}

	rc, err := solver.NewResultCache()
	if err != nil {
		return nil, err
	}

	c.factory = fc
	c.exports = rc

	return c, nil
}

func (c *checker) run(ctx context.Context, feedstockDir string, timer *timeout.Timer) (*Result, error) {
	additional := append([]string{}, c.opts.AdditionalChannels...)

	if !c.opts.DisableVirtualPackages {
		vch, err := virtual.Channel(ctx, c.dataDir(), c.L())
		if err != nil {
			return nil, err
		}

		additional = append(additional, vch)
	}

	if err := timer.Check(); err != nil {
		return nil, err
	}

	// Solves assume a current glibc so recipes constrained on __glibc
	// resolve the same way on every host running the check.
	restore := overrideEnv("CONDA_OVERRIDE_GLIBC", fmt.Sprintf("2.%d", virtual.MaxGlibcMinor))
	defer restore()

	fs, err := feedstock.Open(feedstockDir)
	if err != nil {
		c.L().Warn("feedstock directory not usable", "dir", feedstockDir, "error", err)

		return &Result{
			Solvable: false,
			Errors:   []string{noConfigsMessage},
			ByConfig: map[string]bool{},
		}, nil
	}

	cbcs, err := fs.ConfigPaths()
	if err != nil {
		return nil, err
	}

	if len(cbcs) == 0 {
		c.L().Warn("no platform configs found", "feedstock", fs.Dir)

		return &Result{
			Solvable: false,
			Errors:   []string{noConfigsMessage},
			ByConfig: map[string]bool{},
		}, nil
	}

	if !fs.HasRecipe() {
		c.L().Warn("no recipe found", "feedstock", fs.Dir)

		return &Result{
			Solvable: false,
			Errors:   []string{noRecipeMessage},
			ByConfig: map[string]bool{},
		}, nil
	}

	c.L().Info("checking feedstock", "name", filepath.Base(fs.Dir), "configs", len(cbcs))

	bar := progress.Count(ctx, int64(len(cbcs)), "checking configs")
	defer bar.Close()

	solvable := true
	errs := []string{}
	byConfig := map[string]bool{}

	for _, path := range cbcs {
		if err := timer.Check(); err != nil {
			return nil, err
		}

		name := configName(path)
		platform, arch := cbc.PlatformArch(path)

		pair := platform + "_" + arch

		buildPair := pair
		if bp, ok := c.opts.BuildPlatform[pair]; ok {
			buildPair = bp
		}

		bar.On(name)

		ok, cerrs, err := c.checkConfig(ctx, timer, configParams{
			recipeDir:  fs.RecipeDir(),
			path:       path,
			platform:   platform,
			arch:       arch,
			buildPair:  buildPair,
			additional: additional,
		})
		if err != nil {
			return nil, err
		}

		solvable = solvable && ok

		for _, e := range cerrs {
			errs = append(errs, name+": "+e)
		}

		byConfig[name] = ok

		bar.Tick()

		if !solvable && c.opts.FailFast {
			break
		}
	}

	return &Result{Solvable: solvable, Errors: errs, ByConfig: byConfig}, nil
}

func (c *checker) dataDir() string {
	if c.opts.DataDir != "" {
		return c.opts.DataDir
	}

	return filepath.Join(os.TempDir(), "solvent")
}

// configName strips the yaml extension from a config path, yielding
// the name the per-config report keys on.
func configName(path string) string {
	base := filepath.Base(path)

	return strings.TrimSuffix(base, filepath.Ext(base))
}
