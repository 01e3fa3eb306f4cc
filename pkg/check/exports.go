package check

import (
	"context"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"lab47.dev/solvent/pkg/recipe"
	"lab47.dev/solvent/pkg/repodata"
	"lab47.dev/solvent/pkg/solver"
	"lab47.dev/solvent/pkg/spec"
	"lab47.dev/solvent/pkg/timeout"
)

// metaResolve solves the four requirement phases of one rendered
// output in order: build, host, run, test. Run exports collected from
// the build and host solves feed the later phases the way conda-build
// applies them during an actual build, so a recipe that only becomes
// unsolvable through an exported pin still fails the check.
type metaResolve struct {
	meta     *recipe.Metadata
	outnames []string
	pins     spec.Pins

	channels          []string
	platformArch      string
	buildPlatformArch string

	target solver.Solver
	build  solver.Solver

	timer   *timeout.Timer
	exports *solver.ResultCache
	log     hclog.Logger
}

// run reports whether every phase solves, carrying the failing phase's
// message. The error return is reserved for deadline and context
// failures, which abort the whole check.
func (mr *metaResolve) run(ctx context.Context) (bool, []string, error) {
	m := mr.meta

	buildReq, err := parseReqs(m, "requirements/build")
	if err != nil {
		return false, nil, err
	}

	hostReq, err := parseReqs(m, "requirements/host")
	if err != nil {
		return false, nil, err
	}

	runReq, err := parseReqs(m, "requirements/run")
	if err != nil {
		return false, nil, err
	}

	runCon, err := parseReqs(m, "requirements/run_constrained")
	if err != nil {
		return false, nil, err
	}

	ignores := m.GetList("build/ignore_run_exports")
	ignoresFrom := m.GetList("build/ignore_run_exports_from")

	isCross := m.IsCross()
	noarch := m.Noarch() || m.NoarchPython()
	buildIsHost := m.BuildIsHost()

	mr.log.Debug("solving output",
		"name", m.Name(),
		"cross", isCross,
		"noarch", noarch,
		"build_is_host", buildIsHost)

	var errs []string

	failed := func(res *solver.Result) bool {
		if res.Solvable {
			return false
		}

		if res.Error != "" {
			errs = append(errs, res.Error)
		}

		return true
	}

	if len(buildReq) > 0 {
		buildReq = buildReq.RemoveByName(mr.outnames)

		res, err := mr.solve(ctx, mr.build, mr.buildPlatformArch, buildReq, solver.SolveOptions{
			RunExports:           true,
			IgnoreRunExports:     ignores,
			IgnoreRunExportsFrom: ignoresFrom,
		})
		if err != nil {
			return false, errs, err
		}

		if err := mr.timer.Check(); err != nil {
			return false, errs, err
		}

		if failed(res) {
			return false, errs, nil
		}

		buildReq = res.Resolved

		rx, err := parseExports(m, runExports(res))
		if err != nil {
			return false, errs, err
		}

		runCon = runCon.Union(rx.strongCon)

		if isCross {
			hostReq = hostReq.Union(rx.strong)

			if !noarch {
				runReq = runReq.Union(rx.strong)
			}
		} else if noarch {
			if buildIsHost {
				runReq = runReq.Union(rx.noarch)
			}
		} else {
			runReq = runReq.Union(rx.strong)

			if buildIsHost {
				runReq = runReq.Union(rx.weak)
				runCon = runCon.Union(rx.weakCon)
			} else {
				hostReq = hostReq.Union(rx.strong)
			}
		}
	}

	if len(hostReq) > 0 {
		hostReq = hostReq.RemoveByName(mr.outnames)

		res, err := mr.solve(ctx, mr.target, mr.platformArch, hostReq, solver.SolveOptions{
			RunExports:           true,
			IgnoreRunExports:     ignores,
			IgnoreRunExportsFrom: ignoresFrom,
		})
		if err != nil {
			return false, errs, err
		}

		if err := mr.timer.Check(); err != nil {
			return false, errs, err
		}

		if failed(res) {
			return false, errs, nil
		}

		hostReq = res.Resolved

		// Host exports only reach the run environment on cross builds;
		// a native build's host environment is its run environment.
		if isCross {
			rx, err := parseExports(m, runExports(res))
			if err != nil {
				return false, errs, err
			}

			if noarch {
				runReq = runReq.Union(rx.noarch)
			} else {
				runReq = runReq.Union(rx.weak).Union(rx.strong)
			}

			runCon = runCon.Union(rx.weakCon).Union(rx.strongCon)
		}
	}

	// pin_compatible resolves against the environment the artifact
	// links against: host when cross compiling, build otherwise.
	pinCompat := buildReq
	if isCross {
		pinCompat = hostReq
	}

	env := spec.PinEnv{IsCross: isCross, Noarch: noarch, Pins: mr.pins}

	runCon = spec.ApplyPins(runCon, hostReq, buildReq, mr.outnames, env)

	if len(runReq) > 0 {
		runReq = spec.ApplyPins(runReq, hostReq, buildReq, mr.outnames, env)
		runReq = runReq.RemoveByName(mr.outnames)

		runReq, err = spec.ReplacePinCompatible(runReq, pinCompat)
		if err != nil {
			errs = append(errs, err.Error())
			return false, errs, nil
		}

		res, err := mr.solve(ctx, mr.target, mr.platformArch, runReq, solver.SolveOptions{
			Constraints: runCon.Strings(),
		})
		if err != nil {
			return false, errs, err
		}

		if err := mr.timer.Check(); err != nil {
			return false, errs, err
		}

		if failed(res) {
			return false, errs, nil
		}
	}

	tst, err := spec.ParseList(append(m.GetList("test/requires"), m.GetList("test/requirements")...))
	if err != nil {
		return false, errs, errors.Wrapf(err, "parsing test requirements for %s", m.Name())
	}

	tst = append(tst, runReq...)

	if len(tst) > 0 {
		tst = tst.RemoveByName(mr.outnames)

		tst, err = spec.ReplacePinCompatible(tst, pinCompat)
		if err != nil {
			errs = append(errs, err.Error())
			return false, errs, nil
		}

		res, err := mr.solve(ctx, mr.target, mr.platformArch, tst, solver.SolveOptions{
			Constraints: runCon.Strings(),
		})
		if err != nil {
			return false, errs, err
		}

		if err := mr.timer.Check(); err != nil {
			return false, errs, err
		}

		if failed(res) {
			return false, errs, nil
		}
	}

	return true, errs, nil
}

// solve runs one phase through the backend, memoizing run-export
// solves. Transport failures come back as unsolvable results so a
// broken helper reads as an explained failure rather than a crash;
// context cancellation stays an error.
func (mr *metaResolve) solve(ctx context.Context, sv solver.Solver, platformArch string, reqs spec.List, opts solver.SolveOptions) (*solver.Result, error) {
	opts.Timeout = mr.timer.Remaining()

	var key string

	if opts.RunExports && mr.exports != nil {
		key = mr.exports.Key(mr.channels, platformArch, reqs.Strings(), opts)

		if res, ok := mr.exports.Get(key); ok {
			return res, nil
		}
	}

	res, err := sv.Solve(ctx, reqs.Strings(), opts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.WithStack(err)
		}

		return &solver.Result{Error: err.Error()}, nil
	}

	if key != "" {
		mr.exports.Put(key, res)
	}

	return res, nil
}

// exportSets holds one phase's run exports parsed into spec lists.
type exportSets struct {
	weak      spec.List
	strong    spec.List
	noarch    spec.List
	weakCon   spec.List
	strongCon spec.List
}

func parseExports(m *recipe.Metadata, rx *repodata.RunExports) (*exportSets, error) {
	out := &exportSets{}

	for _, b := range []struct {
		dst *spec.List
		src []string
	}{
		{&out.weak, rx.Weak},
		{&out.strong, rx.Strong},
		{&out.noarch, rx.Noarch},
		{&out.weakCon, rx.WeakConstrains},
		{&out.strongCon, rx.StrongConstrains},
	} {
		l, err := spec.ParseList(b.src)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing run exports for %s", m.Name())
		}

		*b.dst = l
	}

	return out, nil
}

func runExports(res *solver.Result) *repodata.RunExports {
	if res.RunExports == nil {
		return &repodata.RunExports{}
	}

	return res.RunExports
}

func parseReqs(m *recipe.Metadata, path string) (spec.List, error) {
	l, err := spec.ParseList(m.GetList(path))
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s for %s", path, m.Name())
	}

	return l, nil
}
