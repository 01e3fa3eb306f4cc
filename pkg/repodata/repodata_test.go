package repodata

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lab47.dev/solvent/pkg/spec"
)

func TestWriteLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	rd := New("linux-64")
	rd.Add(Record{Name: "python", Version: "3.8.13", Build: "h123_0", Depends: []string{"openssl >=1.1"}})
	rd.Add(Record{
		Name:    "numpy",
		Version: "1.21.5",
		Build:   "py38_0",
		Depends: []string{"python >=3.8,<3.9.0a0"},
		RunExports: &RunExports{
			Weak: []string{"numpy >=1.21.5,<2.0a0"},
		},
	})

	require.NoError(t, rd.Write(dir))

	got, err := Load(filepath.Join(dir, "linux-64", "repodata.json"))
	require.NoError(t, err)

	assert.Equal(t, "linux-64", got.Info.Subdir)
	require.Len(t, got.Packages, 2)

	np, ok := got.Packages["numpy-1.21.5-py38_0.tar.bz2"]
	require.True(t, ok)
	assert.Equal(t, []string{"numpy >=1.21.5,<2.0a0"}, np.RunExports.Weak)
	assert.Equal(t, "linux-64", np.Subdir)
}

func TestFetch(t *testing.T) {
	dir := t.TempDir()

	rd := New("noarch")
	rd.Add(Record{Name: "pip", Version: "22.0", Build: "pyhd8ed1ab_0", Noarch: "python"})
	require.NoError(t, rd.Write(dir))

	ctx := context.Background()

	t.Run("plain directory", func(t *testing.T) {
		got, err := Fetch(ctx, dir, "noarch")
		require.NoError(t, err)
		assert.Len(t, got.Packages, 1)
	})

	t.Run("file url", func(t *testing.T) {
		got, err := Fetch(ctx, "file://"+dir, "noarch")
		require.NoError(t, err)
		assert.Len(t, got.Packages, 1)
	})

	t.Run("missing subdir", func(t *testing.T) {
		_, err := Fetch(ctx, dir, "osx-64")
		require.Error(t, err)
	})
}

func TestFind(t *testing.T) {
	rd := New("linux-64")
	rd.Add(Record{Name: "python", Version: "3.8.13", Build: "h1_0_cpython"})
	rd.Add(Record{Name: "python", Version: "3.9.10", Build: "h2_0_cpython"})
	rd.Add(Record{Name: "python", Version: "3.9.10", Build: "h2_0_pypy"})
	rd.Add(Record{Name: "pip", Version: "22.0", Build: "0"})

	find := func(t *testing.T, req string) []Record {
		t.Helper()

		s, err := spec.Parse(req)
		require.NoError(t, err)

		return rd.Find(s)
	}

	assert.Len(t, find(t, "python"), 3)
	assert.Len(t, find(t, "python >=3.9"), 2)
	assert.Len(t, find(t, "python 3.9.* *_cpython"), 1)
	assert.Len(t, find(t, "scipy"), 0)
}

func TestChannelURL(t *testing.T) {
	assert.Equal(t, "https://conda.anaconda.org/conda-forge", ChannelURL("conda-forge"))
	assert.Equal(t, "file:///tmp/chan", ChannelURL("file:///tmp/chan"))
	assert.Equal(t, "/tmp/chan", ChannelURL("/tmp/chan"))
	assert.Equal(t, "https://example.com/custom", ChannelURL("https://example.com/custom"))
}

func TestRunExportsMerge(t *testing.T) {
	var re RunExports

	re.Merge(&RunExports{Weak: []string{"a"}, Strong: []string{"b"}})
	re.Merge(&RunExports{Weak: []string{"a", "c"}, StrongConstrains: []string{"d"}})
	re.Merge(nil)

	assert.Equal(t, []string{"a", "c"}, re.Weak)
	assert.Equal(t, []string{"b"}, re.Strong)
	assert.Equal(t, []string{"d"}, re.StrongConstrains)
	assert.False(t, re.Empty())
	assert.True(t, (&RunExports{}).Empty())
}
