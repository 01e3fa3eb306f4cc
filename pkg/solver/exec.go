package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"lab47.dev/solvent/pkg/repodata"
	"lab47.dev/solvent/pkg/spec"
)

// execSolver shells out to a helper binary speaking one JSON request
// per invocation on stdin and one JSON response on stdout. The mamba
// and rattler helpers share the protocol; only the rattler one honors
// a per-call time budget.
type execSolver struct {
	helper       string
	channels     []string
	platformArch string
	timeoutAware bool
	log          hclog.Logger
}

// ExecFactory returns a Factory running the given helper binary.
// timeoutAware marks helpers that accept a timeout_s field.
func ExecFactory(helper string, timeoutAware bool, log hclog.Logger) Factory {
	if log == nil {
		log = hclog.L()
	}

	return func(ctx context.Context, channels []string, platformArch string) (Solver, error) {
		return &execSolver{
			helper:       helper,
			channels:     channels,
			platformArch: platformArch,
			timeoutAware: timeoutAware,
			log:          log,
		}, nil
	}
}

type execRequest struct {
	Channels             []string `json:"channels"`
	PlatformArch         string   `json:"platform_arch"`
	Requirements         []string `json:"requirements"`
	Constraints          []string `json:"constraints,omitempty"`
	RunExports           bool     `json:"run_exports,omitempty"`
	IgnoreRunExports     []string `json:"ignore_run_exports,omitempty"`
	IgnoreRunExportsFrom []string `json:"ignore_run_exports_from,omitempty"`
	TimeoutS             float64  `json:"timeout_s,omitempty"`
}

type execResponse struct {
	Solvable   bool                 `json:"solvable"`
	Error      string               `json:"error,omitempty"`
	Resolved   []string             `json:"resolved,omitempty"`
	RunExports *repodata.RunExports `json:"run_exports,omitempty"`
}

func (s *execSolver) Solve(ctx context.Context, reqs []string, opts SolveOptions) (*Result, error) {
	if len(reqs) == 0 {
		return &Result{Solvable: true}, nil
	}

	req := execRequest{
		Channels:             s.channels,
		PlatformArch:         s.platformArch,
		Requirements:         reqs,
		Constraints:          opts.Constraints,
		RunExports:           opts.RunExports,
		IgnoreRunExports:     opts.IgnoreRunExports,
		IgnoreRunExportsFrom: opts.IgnoreRunExportsFrom,
	}

	if s.timeoutAware && opts.Timeout > 0 {
		req.TimeoutS = opts.Timeout.Seconds()
	}

	input, err := json.Marshal(req)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	s.log.Debug("invoking solver helper",
		"helper", s.helper,
		"platform-arch", s.platformArch,
		"requirements", len(reqs),
	)

	cmd := exec.CommandContext(ctx, s.helper)
	cmd.Stdin = bytes.NewReader(input)

	var (
		stdout bytes.Buffer
		stderr bytes.Buffer
	)

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.WithStack(ctx.Err())
		}

		return nil, errors.Wrapf(err, "running solver helper %s: %s",
			s.helper, strings.TrimSpace(stderr.String()))
	}

	var resp execResponse

	err = json.Unmarshal(stdout.Bytes(), &resp)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding response from %s", s.helper)
	}

	res := &Result{
		Solvable:   resp.Solvable,
		Error:      resp.Error,
		RunExports: resp.RunExports,
	}

	if resp.Solvable {
		res.Resolved, err = spec.ParseList(resp.Resolved)
		if err != nil {
			return nil, errors.Wrapf(err, "bad resolved spec from %s", s.helper)
		}
	}

	return res, nil
}
