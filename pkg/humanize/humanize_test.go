package humanize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSize(t *testing.T) {
	v, unit := Size(512)
	assert.Equal(t, float64(512), v)
	assert.Equal(t, "B", unit)

	v, unit = Size(10 * 1024)
	assert.Equal(t, float64(10), v)
	assert.Equal(t, "KB", unit)

	v, unit = Size(3 * 1024 * 1024)
	assert.Equal(t, float64(3), v)
	assert.Equal(t, "MB", unit)

	v, unit = Size(7 * 1024 * 1024 * 1024)
	assert.Equal(t, float64(7), v)
	assert.Equal(t, "GB", unit)
}

func TestBytes(t *testing.T) {
	assert.Equal(t, "512B", Bytes(512))
	assert.Equal(t, "1.5KB", Bytes(1536))
	assert.Equal(t, "200.0MB", Bytes(200*1024*1024))
}

func TestDuration(t *testing.T) {
	assert.Equal(t, "250ms", Duration(250*time.Millisecond))
	assert.Equal(t, "12.5s", Duration(12500*time.Millisecond))
	assert.Equal(t, "10m00s", Duration(10*time.Minute))
	assert.Equal(t, "2m30s", Duration(150*time.Second))
}
