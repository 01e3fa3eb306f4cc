package status

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReport(t *testing.T) {
	t.Run("renders a verdict per config in order", func(t *testing.T) {
		var buf bytes.Buffer

		rep := &Report{
			Solvable: false,
			ByConfig: map[string]bool{
				"osx_64_":   false,
				"linux_64_": true,
			},
			Errors: []string{"osx_64_: nothing provides requested foo"},
		}

		err := rep.Render(&buf)
		require.NoError(t, err)

		out := buf.String()

		assert.Contains(t, out, "linux_64_")
		assert.Contains(t, out, "PASS")
		assert.Contains(t, out, "FAIL")
		assert.Contains(t, out, "! osx_64_: nothing provides requested foo")
		assert.Contains(t, out, "not solvable")

		assert.Less(t, bytes.Index(buf.Bytes(), []byte("linux_64_")),
			bytes.Index(buf.Bytes(), []byte("osx_64_")))
	})

	t.Run("solvable report has no error block", func(t *testing.T) {
		var buf bytes.Buffer

		rep := &Report{
			Solvable: true,
			ByConfig: map[string]bool{"linux_64_": true},
		}

		err := rep.Render(&buf)
		require.NoError(t, err)

		out := buf.String()

		assert.Contains(t, out, "=> ")
		assert.Contains(t, out, "solvable")
		assert.NotContains(t, out, "!")
	})
}
