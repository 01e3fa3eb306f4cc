package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
	"github.com/pkg/errors"

	"lab47.dev/solvent/pkg/cbc"
	"lab47.dev/solvent/pkg/check"
	"lab47.dev/solvent/pkg/cmd"
	"lab47.dev/solvent/pkg/config"
	"lab47.dev/solvent/pkg/feedstock"
	"lab47.dev/solvent/pkg/gc"
	"lab47.dev/solvent/pkg/humanize"
	"lab47.dev/solvent/pkg/recipe"
	"lab47.dev/solvent/pkg/solver"
	"lab47.dev/solvent/pkg/status"
	"lab47.dev/solvent/pkg/virtual"
)

func main() {
	c := cli.NewCLI("solvent", "0.1.0")
	c.Args = os.Args[1:]
	c.Commands = map[string]cli.CommandFactory{
		"check": func() (cli.Command, error) {
			return cmd.New("check", "Check that a feedstock solves on every platform config", checkF), nil
		},
		"render": func() (cli.Command, error) {
			return cmd.New("render", "Render a recipe for one platform config", renderF), nil
		},
		"env": func() (cli.Command, error) {
			return cmd.New("env", "Show the configuration the checker runs with", envF), nil
		},
		"gc": func() (cli.Command, error) {
			return cmd.New("gc", "Remove stale cache snapshots from the data dir", gcF), nil
		},
	}

	exitStatus, err := c.Run()
	if err != nil {
		log.Println(err)
	}

	os.Exit(exitStatus)
}

func checkF(ctx context.Context, opts struct {
	Channels      []string          `short:"c" long:"channel" description:"additional channel to consult before the config's own"`
	Timeout       int               `long:"timeout" default:"600" description:"overall time budget in seconds"`
	Solver        string            `long:"solver" description:"solver backend (mamba or rattler)"`
	FailFast      bool              `long:"fail-fast" description:"stop at the first unsolvable config"`
	BuildPlatform map[string]string `long:"build-platform" description:"override a build platform mapping, target:build"`
	NoVirtual     bool              `long:"no-virtual" description:"skip the synthesized virtual package channel"`
	Verbose       []bool            `short:"v" long:"verbose" description:"increase log verbosity"`

	Pos struct {
		Feedstock string `positional-arg-name:"feedstock" description:"feedstock directory or URL"`
	} `positional-args:"yes" required:"yes"`
}) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return errors.Wrapf(err, "unable to create or load configuration")
	}

	L := hclog.New(&hclog.LoggerOptions{
		Name:  "solvent",
		Level: logLevel(opts.Verbose),
	})

	tmp, err := os.MkdirTemp("", "solvent")
	if err != nil {
		return errors.WithStack(err)
	}

	defer os.RemoveAll(tmp)

	fs, err := feedstock.Fetch(ctx, opts.Pos.Feedstock, filepath.Join(tmp, "feedstock"), L)
	if err != nil {
		return err
	}

	bp, err := fs.BuildPlatforms()
	if err != nil {
		return err
	}

	for target, build := range opts.BuildPlatform {
		bp[target] = build
	}

	backend := opts.Solver
	if backend == "" {
		backend = cfg.Solver
	}

	copts := &check.Options{
		AdditionalChannels:     append(cfg.Channels, opts.Channels...),
		Timeout:                time.Duration(opts.Timeout) * time.Second,
		BuildPlatform:          bp,
		Solver:                 backend,
		FailFast:               opts.FailFast,
		Logger:                 L,
		DisableVirtualPackages: opts.NoVirtual,
		DataDir:                cfg.DataDir,
	}

	if hp := cfg.HelperPath(backend); hp != "" {
		copts.Factory = solver.ExecFactory(hp, backend == solver.BackendRattler, L)
	}

	res, err := check.IsRecipeSolvable(ctx, fs.Dir, copts)
	if err != nil {
		return err
	}

	rep := &status.Report{
		Solvable: res.Solvable,
		ByConfig: res.ByConfig,
		Errors:   res.Errors,
	}

	err = rep.Render(os.Stdout)
	if err != nil {
		return err
	}

	if !res.Solvable {
		return errors.Errorf("%s is not solvable", fs.Name)
	}

	return nil
}

func renderF(ctx context.Context, opts struct {
	Config string `short:"c" long:"config" description:"config name to render against (default: first)"`
	Full   bool   `long:"full" description:"dump the full rendered metadata"`

	Pos struct {
		Feedstock string `positional-arg-name:"feedstock" description:"feedstock directory"`
	} `positional-args:"yes" required:"yes"`
}) error {
	fs, err := feedstock.Open(opts.Pos.Feedstock)
	if err != nil {
		return err
	}

	paths, err := fs.ConfigPaths()
	if err != nil {
		return err
	}

	if len(paths) == 0 {
		return errors.New("no .ci_support configs to render against")
	}

	path := paths[0]

	if opts.Config != "" {
		idx := -1

		for i, p := range paths {
			if configName(p) == opts.Config {
				idx = i
				break
			}
		}

		if idx == -1 {
			return errors.Errorf("no config named %q", opts.Config)
		}

		path = paths[idx]
	}

	cc, err := cbc.Load(path)
	if err != nil {
		return err
	}

	platform, arch := cbc.PlatformArch(path)

	variants, err := recipe.MergeVariants(fs.RecipeDir(), cc)
	if err != nil {
		return err
	}

	metas, err := recipe.Render(fs.RecipeDir(), recipe.RenderOptions{
		Platform: platform,
		Arch:     arch,
		Variants: variants,
	})
	if err != nil {
		return err
	}

	fmt.Printf("=> Rendered %s for %s (%d outputs)\n", fs.Name, configName(path), len(metas))

	for _, m := range metas {
		fmt.Printf("\n## %s\n", m.Name())

		tw := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)

		for _, section := range []string{"build", "host", "run", "run_constrained"} {
			for _, req := range m.GetList("requirements/" + section) {
				fmt.Fprintf(tw, "%s\t%s\n", section, req)
			}
		}

		err = tw.Flush()
		if err != nil {
			return err
		}

		if opts.Full {
			spew.Dump(m)
		}
	}

	return nil
}

func envF(ctx context.Context, opts struct {
	Virtual bool `long:"virtual" description:"build the virtual package channel and print its location"`
}) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return errors.Wrapf(err, "unable to create or load configuration")
	}

	fmt.Printf("Data Dir: %s\n", cfg.DataDir)
	fmt.Printf("Solver: %s\n", cfg.Solver)
	fmt.Printf("Mamba Helper: %s\n", cfg.HelperPath(solver.BackendMamba))
	fmt.Printf("Rattler Helper: %s\n", cfg.HelperPath(solver.BackendRattler))

	if len(cfg.Channels) > 0 {
		fmt.Printf("Channels: %s\n", strings.Join(cfg.Channels, ", "))
	}

	if opts.Virtual {
		dir, err := virtual.Channel(ctx, cfg.DataDir, hclog.L())
		if err != nil {
			return err
		}

		fmt.Printf("=> Virtual Channel: %s\n", dir)
	}

	return nil
}

func gcF(ctx context.Context, opts struct {
	DryRun bool `short:"n" long:"dry-run" description:"report what would be removed without removing it"`
}) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return errors.Wrapf(err, "unable to create or load configuration")
	}

	col, err := gc.NewCollector(cfg.DataDir)
	if err != nil {
		return err
	}

	marked, err := col.Mark()
	if err != nil {
		return err
	}

	total, err := col.DiskUsage(marked)
	if err != nil {
		return err
	}

	sz, unit := humanize.Size(total)
	fmt.Printf("=> Disk Usage: %.2f%s\n", sz, unit)

	if opts.DryRun {
		stale, err := col.SweepUnmarked(marked)
		if err != nil {
			return err
		}

		for _, name := range stale {
			fmt.Printf("Would remove: %s\n", name)
		}

		return nil
	}

	sr, err := col.SweepAndRemove(ctx, marked)
	if err != nil {
		return err
	}

	sz, unit = humanize.Size(sr.BytesRecovered)
	fmt.Printf("=> Removed %d snapshots, recovered %.2f%s\n", len(sr.Removed), sz, unit)

	return nil
}

func logLevel(verbose []bool) hclog.Level {
	switch len(verbose) {
	case 0:
		return hclog.Warn
	case 1:
		return hclog.Info
	case 2:
		return hclog.Debug
	default:
		return hclog.Trace
	}
}

func configName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
