package spec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPinCompatiblePlaceholder(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		p := PinCompatible{MinPin: "x.x", MaxPin: "x"}
		tok := p.Placeholder()

		got, ok := ParsePinCompatible(tok)
		require.True(t, ok)
		assert.Equal(t, "x.x", got.MinPin)
		assert.Equal(t, "x", got.MaxPin)
	})

	t.Run("defaults fill missing params", func(t *testing.T) {
		got, ok := ParsePinCompatible(PinCompatibleTag)
		require.True(t, ok)
		assert.Equal(t, DefaultMinPin, got.MinPin)
		assert.Equal(t, DefaultMaxPin, got.MaxPin)
	})

	t.Run("non-placeholder rejected", func(t *testing.T) {
		_, ok := ParsePinCompatible(">=1.0")
		assert.False(t, ok)
	})
}

func TestReplacePinCompatible(t *testing.T) {
	resolved := List{
		{Name: "numpy", Version: "1.21.5", Build: "py38h123_0"},
		{Name: "python", Version: "3.8.13", Build: "h456_0"},
	}

	t.Run("default pins give full lower and major upper", func(t *testing.T) {
		reqs := List{{Name: "numpy", Version: PinCompatible{}.Placeholder()}}

		got, err := ReplacePinCompatible(reqs, resolved)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "numpy >=1.21.5,<2.0a0", got[0].String())
	})

	t.Run("minor pin", func(t *testing.T) {
		reqs := List{{
			Name:    "python",
			Version: PinCompatible{MaxPin: "x.x"}.Placeholder(),
		}}

		got, err := ReplacePinCompatible(reqs, resolved)
		require.NoError(t, err)
		assert.Equal(t, "python >=3.8.13,<3.9.0a0", got[0].String())
	})

	t.Run("explicit bounds win", func(t *testing.T) {
		reqs := List{{
			Name:    "numpy",
			Version: PinCompatible{LowerBound: "1.19", UpperBound: "3"}.Placeholder(),
		}}

		got, err := ReplacePinCompatible(reqs, resolved)
		require.NoError(t, err)
		assert.Equal(t, "numpy >=1.19,<3", got[0].String())
	})

	t.Run("unresolved reference is an error", func(t *testing.T) {
		reqs := List{{Name: "scipy", Version: PinCompatible{}.Placeholder()}}

		_, err := ReplacePinCompatible(reqs, resolved)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "scipy")
	})

	t.Run("plain specs pass through", func(t *testing.T) {
		reqs := List{{Name: "pip"}}

		got, err := ReplacePinCompatible(reqs, resolved)
		require.NoError(t, err)
		assert.Equal(t, reqs, got)
	})
}

func TestApplyPins(t *testing.T) {
	host := List{
		{Name: "python", Version: "3.8.13", Build: "h456_0"},
		{Name: "numpy", Version: "1.21.5", Build: "py38_0"},
	}

	t.Run("pin_run_as_build replaces the constraint", func(t *testing.T) {
		env := PinEnv{Pins: DefaultPins()}

		got := ApplyPins(List{{Name: "python"}}, host, nil, nil, env)
		require.Len(t, got, 1)
		assert.Equal(t, "python >=3.8,<3.9.0a0", got[0].String())
	})

	t.Run("noarch leaves python alone", func(t *testing.T) {
		env := PinEnv{Noarch: true, Pins: DefaultPins()}

		got := ApplyPins(List{{Name: "python"}}, host, nil, nil, env)
		assert.Equal(t, "python", got[0].String())
	})

	t.Run("outputs are skipped", func(t *testing.T) {
		env := PinEnv{Pins: DefaultPins()}

		got := ApplyPins(List{{Name: "python"}}, host, nil, []string{"python"}, env)
		assert.Equal(t, "python", got[0].String())
	})

	t.Run("no rule means untouched", func(t *testing.T) {
		env := PinEnv{Pins: DefaultPins()}

		got := ApplyPins(List{{Name: "numpy", Version: ">=1.19"}}, host, nil, nil, env)
		assert.Equal(t, "numpy >=1.19", got[0].String())
	})

	t.Run("legacy x.x mask fills from resolved version", func(t *testing.T) {
		env := PinEnv{Pins: DefaultPins()}

		got := ApplyPins(List{{Name: "numpy", Version: "x.x"}}, host, nil, nil, env)
		assert.Equal(t, "numpy 1.21", got[0].String())
	})

	t.Run("build list is the fallback source", func(t *testing.T) {
		build := List{{Name: "r-base", Version: "4.1.3", Build: "h1"}}
		env := PinEnv{Pins: DefaultPins()}

		got := ApplyPins(List{{Name: "r-base"}}, nil, build, nil, env)
		assert.Equal(t, "r-base >=4.1,<4.2.0a0", got[0].String())
	})
}

func TestVersionHelpers(t *testing.T) {
	assert.Equal(t, "3.8", TrimVersion("3.8.13", 2))
	assert.Equal(t, "3.8.13", TrimVersion("3.8.13", 6))

	assert.Equal(t, "2.0a0", BumpVersion("1.21.5", 1))
	assert.Equal(t, "3.9.0a0", BumpVersion("3.8.13", 2))
	assert.Equal(t, "3.8.14.0a0", BumpVersion("3.8.13", 3))
	assert.Equal(t, "3.9.0a0", BumpVersion("3.8", 3))
}
