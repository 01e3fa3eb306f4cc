package solver

import (
	"context"
	"time"

	"lab47.dev/solvent/pkg/repodata"
	"lab47.dev/solvent/pkg/spec"
)

// Known backend names and the helper binaries that implement them.
const (
	BackendMamba   = "mamba"
	BackendRattler = "rattler"

	MambaHelper   = "solvent-helper-mamba"
	RattlerHelper = "solvent-helper-rattler"
)

// SolveOptions carries the per-call knobs of one solve.
type SolveOptions struct {
	// Constraints restrict the solution without being installed
	// themselves (run_constrained semantics).
	Constraints []string

	// RunExports asks the backend to report the run exports of the
	// resolved packages.
	RunExports bool

	// IgnoreRunExports drops the named exported specs from the
	// report; IgnoreRunExportsFrom drops every export declared by the
	// named packages.
	IgnoreRunExports     []string
	IgnoreRunExportsFrom []string

	// Timeout is the remaining budget for backends that support
	// cooperative timeout. Zero or negative means no sub-budget.
	Timeout time.Duration
}

// Result is the outcome of one solve. When Solvable is false, Error
// explains why and the other fields are empty.
type Result struct {
	Solvable   bool
	Error      string
	Resolved   spec.List
	RunExports *repodata.RunExports
}

// Solver resolves requirement sets against one prepared
// (channel-set, platform-arch) pair.
type Solver interface {
	Solve(ctx context.Context, reqs []string, opts SolveOptions) (*Result, error)
}

// Factory produces a solver bound to one channel set and platform.
// Construction may be expensive (index loading); callers go through
// FactoryCache so identical pairs share an instance.
type Factory func(ctx context.Context, channels []string, platformArch string) (Solver, error)
