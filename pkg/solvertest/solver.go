package solvertest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"lab47.dev/solvent/pkg/repodata"
	"lab47.dev/solvent/pkg/solver"
	"lab47.dev/solvent/pkg/spec"
)

// Factory builds in-process solvers reading fake channels off disk.
// The zero value works; the knobs exist for deadline and error path
// tests.
type Factory struct {
	// Delay stalls every solve before resolution.
	Delay time.Duration

	// Err, when set, fails every solve outright.
	Err error

	mu    sync.Mutex
	built int
}

// New is a solver.Factory. Channels or subdirs that cannot be read
// are treated as empty; fake channels rarely carry every platform.
func (f *Factory) New(ctx context.Context, channels []string, platformArch string) (solver.Solver, error) {
	f.mu.Lock()
	f.built++
	f.mu.Unlock()

	var records []repodata.Record

	for _, ch := range channels {
		for _, sub := range []string{platformArch, "noarch"} {
			rd, err := repodata.Fetch(ctx, ch, sub)
			if err != nil {
				continue
			}

			records = append(records, rd.Records()...)
		}
	}

	return &fakeSolver{records: records, delay: f.Delay, err: f.Err}, nil
}

// Built reports how many solvers the factory constructed, for cache
// assertions.
func (f *Factory) Built() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.built
}

type fakeSolver struct {
	records []repodata.Record
	delay   time.Duration
	err     error
}

func (s *fakeSolver) Solve(ctx context.Context, reqs []string, opts solver.SolveOptions) (*solver.Result, error) {
	if len(reqs) == 0 {
		return &solver.Result{Solvable: true}, nil
	}

	if s.err != nil {
		return nil, s.err
	}

	if s.delay > 0 {
		t := time.NewTimer(s.delay)
		defer t.Stop()

		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, errors.WithStack(ctx.Err())
		}
	}

	constraints, err := spec.ParseList(opts.Constraints)
	if err != nil {
		return nil, err
	}

	r := &resolution{
		records:     s.records,
		constraints: constraints,
		chosen:      map[string]repodata.Record{},
	}

	direct := make([]repodata.Record, 0, len(reqs))

	for _, req := range reqs {
		sp, err := spec.Parse(req)
		if err != nil {
			return nil, err
		}

		rec, msg := r.resolve(sp, nil)
		if msg != "" {
			return &solver.Result{Error: msg}, nil
		}

		direct = append(direct, rec)
	}

	res := &solver.Result{
		Solvable: true,
		Resolved: r.closure(),
	}

	if opts.RunExports {
		res.RunExports = collectExports(direct, opts)
	}

	return res, nil
}

type resolution struct {
	records     []repodata.Record
	constraints spec.List
	chosen      map[string]repodata.Record
}

// resolve picks a record for the spec and walks its dependencies. It
// returns an explanation instead of a record when the spec cannot be
// satisfied.
func (r *resolution) resolve(sp spec.Spec, stack []string) (repodata.Record, string) {
	if rec, ok := r.chosen[sp.Name]; ok {
		if !sp.Match(rec.Version, rec.Build) {
			return repodata.Record{}, fmt.Sprintf(
				"package %s-%s-%s conflicts with %s", rec.Name, rec.Version, rec.Build, sp)
		}

		return rec, ""
	}

	best, found, violated := r.pick(sp)
	if !found {
		if violated != nil {
			return repodata.Record{}, fmt.Sprintf(
				"package %s is excluded by constraint %s", sp, violated)
		}

		if len(stack) > 0 {
			return repodata.Record{}, fmt.Sprintf(
				"nothing provides %s needed by %s", sp, stack[len(stack)-1])
		}

		return repodata.Record{}, fmt.Sprintf("nothing provides requested %s", sp)
	}

	r.chosen[sp.Name] = best

	for _, dep := range best.Depends {
		dsp, err := spec.Parse(dep)
		if err != nil {
			continue
		}

		_, msg := r.resolve(dsp, append(stack, best.Filename()))
		if msg != "" {
			return repodata.Record{}, msg
		}
	}

	return best, ""
}

// pick returns the newest admissible record for the spec. When every
// matching record is constraint-blocked, the blocking constraint comes
// back so the failure can name it.
func (r *resolution) pick(sp spec.Spec) (repodata.Record, bool, *spec.Spec) {
	var (
		best     repodata.Record
		found    bool
		violated *spec.Spec
	)

	for _, rec := range r.records {
		if rec.Name != sp.Name || !sp.Match(rec.Version, rec.Build) {
			continue
		}

		if c, blocked := r.blockedBy(rec); blocked {
			violated = &c
			continue
		}

		if !found || newer(rec, best) {
			best = rec
			found = true
		}
	}

	return best, found, violated
}

func (r *resolution) blockedBy(rec repodata.Record) (spec.Spec, bool) {
	for _, c := range r.constraints {
		if c.Name == rec.Name && !c.Match(rec.Version, rec.Build) {
			return c, true
		}
	}

	return spec.Spec{}, false
}

// closure is every chosen record as a concrete spec, name-ordered.
func (r *resolution) closure() spec.List {
	out := make(spec.List, 0, len(r.chosen))

	for _, rec := range r.chosen {
		out = append(out, spec.Spec{Name: rec.Name, Version: rec.Version, Build: rec.Build})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}

func newer(a, b repodata.Record) bool {
	if c := spec.CompareVersions(a.Version, b.Version); c != 0 {
		return c > 0
	}

	return a.BuildNumber > b.BuildNumber
}

// collectExports merges the exports declared by the direct
// requirements, honoring both ignore lists.
func collectExports(recs []repodata.Record, opts solver.SolveOptions) *repodata.RunExports {
	skipFrom := toSet(opts.IgnoreRunExportsFrom)
	skipName := toSet(opts.IgnoreRunExports)

	out := &repodata.RunExports{}

	for _, rec := range recs {
		if rec.RunExports.Empty() {
			continue
		}

		if _, ok := skipFrom[rec.Name]; ok {
			continue
		}

		out.Merge(filterExports(rec.RunExports, skipName))
	}

	return out
}

func filterExports(re *repodata.RunExports, skip map[string]struct{}) *repodata.RunExports {
	if len(skip) == 0 {
		return re
	}

	return &repodata.RunExports{
		Weak:             dropNamed(re.Weak, skip),
		Strong:           dropNamed(re.Strong, skip),
		Noarch:           dropNamed(re.Noarch, skip),
		WeakConstrains:   dropNamed(re.WeakConstrains, skip),
		StrongConstrains: dropNamed(re.StrongConstrains, skip),
	}
}

func dropNamed(specs []string, skip map[string]struct{}) []string {
	var out []string

	for _, s := range specs {
		sp, err := spec.Parse(s)
		if err == nil {
			if _, ok := skip[sp.Name]; ok {
				continue
			}
		}

		out = append(out, s)
	}

	return out
}

func toSet(in []string) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for _, v := range in {
		out[v] = struct{}{}
	}

	return out
}
