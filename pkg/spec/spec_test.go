package spec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("name only", func(t *testing.T) {
		s, err := Parse("python")
		require.NoError(t, err)
		assert.Equal(t, Spec{Name: "python"}, s)
	})

	t.Run("name and constraint", func(t *testing.T) {
		s, err := Parse("python >=3.8")
		require.NoError(t, err)
		assert.Equal(t, Spec{Name: "python", Version: ">=3.8"}, s)
	})

	t.Run("name version build", func(t *testing.T) {
		s, err := Parse("fenics-basix 0.8.0 *_0")
		require.NoError(t, err)
		assert.Equal(t, Spec{Name: "fenics-basix", Version: "0.8.0", Build: "*_0"}, s)

		assert.Equal(t, "fenics-basix 0.8.0 *_0", s.String())
	})

	t.Run("extra whitespace tolerated", func(t *testing.T) {
		s, err := Parse("  numpy   1.21.*  ")
		require.NoError(t, err)
		assert.Equal(t, "numpy", s.Name)
		assert.Equal(t, "1.21.*", s.Version)
	})

	t.Run("empty and overlong rejected", func(t *testing.T) {
		_, err := Parse("   ")
		require.Error(t, err)

		_, err = Parse("a b c d")
		require.Error(t, err)
	})
}

func TestList(t *testing.T) {
	mk := func(in ...string) List {
		t.Helper()

		l, err := ParseList(in)
		require.NoError(t, err)
		return l
	}

	t.Run("union dedupes and orders", func(t *testing.T) {
		a := mk("python >=3.8", "pip")
		b := mk("pip", "setuptools")

		u := a.Union(b)
		assert.Equal(t, []string{"pip", "python >=3.8", "setuptools"}, u.Strings())
	})

	t.Run("union treats differing constraints as distinct", func(t *testing.T) {
		a := mk("python >=3.8")
		b := mk("python")

		u := a.Union(b)
		assert.Len(t, u, 2)
	})

	t.Run("remove by name drops self deps only", func(t *testing.T) {
		l := mk("mypkg 1.0", "python", "mypkg-base")

		got := l.RemoveByName([]string{"mypkg"})
		assert.Equal(t, []string{"python", "mypkg-base"}, got.Strings())
	})

	t.Run("parse list skips blanks", func(t *testing.T) {
		l, err := ParseList([]string{"python", "", "  "})
		require.NoError(t, err)
		assert.Len(t, l, 1)
	})

	t.Run("build without version renders star", func(t *testing.T) {
		s := Spec{Name: "pyqt", Build: "*_cpython"}
		assert.Equal(t, "pyqt * *_cpython", s.String())
	})
}
