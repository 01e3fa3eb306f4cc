package check

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"lab47.dev/solvent/pkg/cbc"
	"lab47.dev/solvent/pkg/humanize"
	"lab47.dev/solvent/pkg/recipe"
	"lab47.dev/solvent/pkg/spec"
	"lab47.dev/solvent/pkg/timeout"
)

// configParams names the inputs of one platform config check.
type configParams struct {
	recipeDir  string
	path       string
	platform   string
	arch       string
	buildPair  string // build "platform_arch", differing under cross builds
	additional []string
}

// checkConfig renders the recipe under one .ci_support config and
// solves every output's requirement phases. The bool and strings
// report the verdict; the error return is reserved for render
// failures, deadline, and context failures.
func (c *checker) checkConfig(ctx context.Context, timer *timeout.Timer, p configParams) (bool, []string, error) {
	cfg, err := cbc.Load(p.path)
	if err != nil {
		return false, nil, err
	}

	channels := cfg.Channels(p.platform, p.additional)

	c.L().Debug("solving config",
		"config", cfg.Name(),
		"platform", p.platform,
		"arch", p.arch,
		"channels", channels)

	if err := timer.Check(); err != nil {
		return false, nil, err
	}

	variants, err := recipe.MergeVariants(p.recipeDir, cfg)
	if err != nil {
		// Retry once without the recipe's own conda_build_config.yaml;
		// rerendered feedstocks sometimes ship one that no longer
		// parses on its own.
		os.Remove(filepath.Join(p.recipeDir, "conda_build_config.yaml"))

		variants, err = recipe.MergeVariants(p.recipeDir, cfg)
		if err != nil {
			return false, nil, errors.Wrapf(err, "merging variants for %s", cfg.Name())
		}
	}

	if err := timer.Check(); err != nil {
		return false, nil, err
	}

	buildPlatform, buildArch := splitPair(p.buildPair, p.platform, p.arch)

	metas, err := recipe.Render(p.recipeDir, recipe.RenderOptions{
		Platform:      p.platform,
		Arch:          p.arch,
		BuildPlatform: buildPlatform,
		BuildArch:     buildArch,
		Variants:      variants,
	})
	if err != nil {
		return false, nil, err
	}

	if err := timer.Check(); err != nil {
		return false, nil, err
	}

	target, err := c.factory.Get(ctx, channels, p.platform+"-"+p.arch)
	if err != nil {
		return false, nil, err
	}

	if err := timer.Check(); err != nil {
		return false, nil, err
	}

	build, err := c.factory.Get(ctx, channels, buildPlatform+"-"+buildArch)
	if err != nil {
		return false, nil, err
	}

	if err := timer.Check(); err != nil {
		return false, nil, err
	}

	// Requirements on sibling outputs are satisfied by the build
	// itself, so every output's name is exempt from solving.
	outnames := make([]string, 0, len(metas))
	for _, m := range metas {
		outnames = append(outnames, m.Name())
	}

	pins := spec.DefaultPins().Merge(cfg.PinRunAsBuild())

	solvable := true

	var merr *multierror.Error

	for _, m := range metas {
		if err := timer.Check(); err != nil {
			return false, nil, err
		}

		mr := &metaResolve{
			meta:              m,
			outnames:          outnames,
			pins:              pins,
			channels:          channels,
			platformArch:      p.platform + "-" + p.arch,
			buildPlatformArch: buildPlatform + "-" + buildArch,
			target:            target,
			build:             build,
			timer:             timer,
			exports:           c.exports,
			log:               c.L(),
		}

		ok, perrs, err := mr.run(ctx)
		if err != nil {
			return false, nil, err
		}

		solvable = solvable && ok

		for _, e := range perrs {
			merr = multierror.Append(merr, errors.New(e))
		}

		if !solvable && c.opts.FailFast {
			break
		}
	}

	stats := c.exports.Stats()
	c.L().Info("run export cache",
		"hits", stats.Hits, "misses", stats.Misses, "size", stats.Size)

	fstats := c.factory.Stats()
	c.L().Info("solver cache",
		"hits", fstats.Hits, "misses", fstats.Misses, "size", fstats.Size)

	if rss, err := processRSS(); err == nil {
		c.L().Info("memory usage", "rss", humanize.Bytes(rss))
	}

	var errs []string

	if merr != nil {
		for _, e := range merr.WrappedErrors() {
			errs = append(errs, e.Error())
		}
	}

	return solvable, errs, nil
}

// splitPair decodes a "platform_arch" pair, falling back to the target
// pair when it has no underscore to split on.
func splitPair(pair, platform, arch string) (string, string) {
	p, a, ok := strings.Cut(pair, "_")
	if !ok {
		return platform, arch
	}

	return p, a
}
