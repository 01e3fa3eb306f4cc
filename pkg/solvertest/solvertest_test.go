package solvertest

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lab47.dev/solvent/pkg/repodata"
	"lab47.dev/solvent/pkg/solver"
	"lab47.dev/solvent/pkg/spec"
)

func writeChannel(t *testing.T, pkgs ...FakePackage) *FakeRepoData {
	t.Helper()

	f := NewFakeRepoData(t.TempDir())
	for _, p := range pkgs {
		f.Add(p)
	}

	require.NoError(t, f.Write())

	return f
}

func newSolver(t *testing.T, f *Factory, channel, platformArch string) solver.Solver {
	t.Helper()

	sv, err := f.New(context.Background(), []string{channel}, platformArch)
	require.NoError(t, err)

	return sv
}

func testChannel(t *testing.T) *FakeRepoData {
	t.Helper()

	return writeChannel(t,
		FakePackage{
			Name: "python", Version: "3.8.13", Build: "h38_0",
			RunExports: &repodata.RunExports{Weak: []string{"python_abi 3.8.* *_cp38"}},
		},
		FakePackage{
			Name: "python", Version: "3.9.2", Build: "h39_0",
			RunExports: &repodata.RunExports{Weak: []string{"python_abi 3.9.* *_cp39"}},
		},
		FakePackage{
			Name: "numpy", Version: "1.21.5",
			Depends:    []string{"python 3.8.*"},
			RunExports: &repodata.RunExports{Weak: []string{"numpy >=1.21.5,<2.0a0"}},
		},
		FakePackage{Name: "pip", Version: "21.0", Noarch: "python", Depends: []string{"python"}},
		FakePackage{Name: "badchain", Depends: []string{"missing-dep >=5"}},
		FakePackage{Name: "fakeconstrainedpkg", Version: "1.0"},
		FakePackage{Name: "fakeconstrainedpkg", Version: "2.0"},
	)
}

func TestFakeSolver(t *testing.T) {
	ctx := context.Background()
	channel := testChannel(t)

	var factory Factory
	sv := newSolver(t, &factory, channel.ChannelURL(), "linux-64")

	t.Run("picks the newest candidate", func(t *testing.T) {
		res, err := sv.Solve(ctx, []string{"python"}, solver.SolveOptions{})
		require.NoError(t, err)

		require.True(t, res.Solvable)
		require.Len(t, res.Resolved, 1)
		assert.Equal(t, "3.9.2", res.Resolved[0].Version)
	})

	t.Run("resolved carries the transitive closure", func(t *testing.T) {
		res, err := sv.Solve(ctx, []string{"numpy"}, solver.SolveOptions{})
		require.NoError(t, err)

		require.True(t, res.Solvable)
		assert.Equal(t, []string{"numpy 1.21.5 h0", "python 3.8.13 h38_0"}, res.Resolved.Strings())
	})

	t.Run("noarch packages resolve on platform subdirs", func(t *testing.T) {
		res, err := sv.Solve(ctx, []string{"pip"}, solver.SolveOptions{})
		require.NoError(t, err)

		require.True(t, res.Solvable)
		assert.Equal(t, []string{"pip 21.0 h0", "python 3.9.2 h39_0"}, res.Resolved.Strings())
	})

	t.Run("missing package", func(t *testing.T) {
		res, err := sv.Solve(ctx, []string{"nonexistent-pkg"}, solver.SolveOptions{})
		require.NoError(t, err)

		assert.False(t, res.Solvable)
		assert.Equal(t, "nothing provides requested nonexistent-pkg", res.Error)
	})

	t.Run("missing dependency names the parent", func(t *testing.T) {
		res, err := sv.Solve(ctx, []string{"badchain"}, solver.SolveOptions{})
		require.NoError(t, err)

		assert.False(t, res.Solvable)
		assert.Contains(t, res.Error, "nothing provides missing-dep >=5 needed by badchain-1.0-h0")
	})

	t.Run("version conflict between requirements", func(t *testing.T) {
		res, err := sv.Solve(ctx, []string{"numpy", "python 3.9.*"}, solver.SolveOptions{})
		require.NoError(t, err)

		assert.False(t, res.Solvable)
		assert.Contains(t, res.Error, "package python-3.8.13-h38_0 conflicts with python 3.9.*")
	})

	t.Run("constraints narrow the pick", func(t *testing.T) {
		res, err := sv.Solve(ctx, []string{"fakeconstrainedpkg"}, solver.SolveOptions{
			Constraints: []string{"fakeconstrainedpkg 1.0"},
		})
		require.NoError(t, err)

		require.True(t, res.Solvable)
		assert.Equal(t, []string{"fakeconstrainedpkg 1.0 h0"}, res.Resolved.Strings())
	})

	t.Run("constraints can exclude every candidate", func(t *testing.T) {
		res, err := sv.Solve(ctx, []string{"fakeconstrainedpkg >=2"}, solver.SolveOptions{
			Constraints: []string{"fakeconstrainedpkg 1.0"},
		})
		require.NoError(t, err)

		assert.False(t, res.Solvable)
		assert.Contains(t, res.Error, "excluded by constraint fakeconstrainedpkg 1.0")
	})

	t.Run("empty requirements are trivially solvable", func(t *testing.T) {
		res, err := sv.Solve(ctx, nil, solver.SolveOptions{})
		require.NoError(t, err)

		assert.True(t, res.Solvable)
		assert.Empty(t, res.Resolved)
	})
}

func TestFakeSolverRunExports(t *testing.T) {
	ctx := context.Background()
	channel := testChannel(t)

	var factory Factory
	sv := newSolver(t, &factory, channel.ChannelURL(), "linux-64")

	t.Run("collected from direct requirements", func(t *testing.T) {
		res, err := sv.Solve(ctx, []string{"python 3.8.*", "numpy"}, solver.SolveOptions{
			RunExports: true,
		})
		require.NoError(t, err)

		require.True(t, res.Solvable)
		require.NotNil(t, res.RunExports)
		assert.ElementsMatch(t,
			[]string{"python_abi 3.8.* *_cp38", "numpy >=1.21.5,<2.0a0"},
			res.RunExports.Weak,
		)
	})

	t.Run("ignore by exporting package", func(t *testing.T) {
		res, err := sv.Solve(ctx, []string{"python 3.8.*", "numpy"}, solver.SolveOptions{
			RunExports:           true,
			IgnoreRunExportsFrom: []string{"python"},
		})
		require.NoError(t, err)

		require.True(t, res.Solvable)
		assert.Equal(t, []string{"numpy >=1.21.5,<2.0a0"}, res.RunExports.Weak)
	})

	t.Run("ignore by exported name", func(t *testing.T) {
		res, err := sv.Solve(ctx, []string{"python 3.8.*", "numpy"}, solver.SolveOptions{
			RunExports:       true,
			IgnoreRunExports: []string{"python_abi"},
		})
		require.NoError(t, err)

		require.True(t, res.Solvable)
		assert.Equal(t, []string{"numpy >=1.21.5,<2.0a0"}, res.RunExports.Weak)
	})

	t.Run("not collected without the flag", func(t *testing.T) {
		res, err := sv.Solve(ctx, []string{"python 3.8.*"}, solver.SolveOptions{})
		require.NoError(t, err)

		require.True(t, res.Solvable)
		assert.Nil(t, res.RunExports)
	})
}

func TestFakeSolverKnobs(t *testing.T) {
	channel := testChannel(t)

	t.Run("forced error", func(t *testing.T) {
		factory := Factory{Err: errors.New("index exploded")}
		sv := newSolver(t, &factory, channel.ChannelURL(), "linux-64")

		_, err := sv.Solve(context.Background(), []string{"python"}, solver.SolveOptions{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "index exploded")
	})

	t.Run("delay observes cancellation", func(t *testing.T) {
		factory := Factory{Delay: 500 * time.Millisecond}
		sv := newSolver(t, &factory, channel.ChannelURL(), "linux-64")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err := sv.Solve(ctx, []string{"python"}, solver.SolveOptions{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
	})

	t.Run("construction count", func(t *testing.T) {
		var factory Factory

		newSolver(t, &factory, channel.ChannelURL(), "linux-64")
		newSolver(t, &factory, channel.ChannelURL(), "osx-64")

		assert.Equal(t, 2, factory.Built())
	})
}

func TestFakeRepoDataLayout(t *testing.T) {
	channel := writeChannel(t,
		FakePackage{Name: "libfoo", Version: "2.1"},
		FakePackage{Name: "purepkg", Noarch: "python"},
	)

	t.Run("platform subdirs carry platform packages", func(t *testing.T) {
		rd, err := repodata.Fetch(context.Background(), channel.ChannelURL(), "osx-arm64")
		require.NoError(t, err)

		recs := rd.Find(spec.Spec{Name: "libfoo"})
		require.Len(t, recs, 1)
		assert.Equal(t, "2.1", recs[0].Version)
		assert.Equal(t, "osx-arm64", recs[0].Subdir)
	})

	t.Run("noarch packages land in noarch only", func(t *testing.T) {
		rd, err := repodata.Fetch(context.Background(), channel.ChannelURL(), "noarch")
		require.NoError(t, err)

		recs := rd.Find(spec.Spec{Name: "purepkg"})
		require.Len(t, recs, 1)
		assert.Equal(t, "python", recs[0].Noarch)

		rd, err = repodata.Fetch(context.Background(), channel.ChannelURL(), "linux-64")
		require.NoError(t, err)
		assert.Empty(t, rd.Find(spec.Spec{Name: "purepkg"}))
	})
}
