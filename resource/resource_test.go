package resource

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Memory(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 1000})

	require.NoError(t, c.AcquireMemory(context.Background(), 600))
	assert.Equal(t, int64(600), c.MemoryUsage())

	// The hard limit rejects what does not fit.
	assert.False(t, c.TryAcquireMemory(500))
	assert.True(t, c.TryAcquireMemory(400))
	assert.Equal(t, int64(1000), c.MemoryUsage())

	c.ReleaseMemory(1000)
	assert.Equal(t, int64(0), c.MemoryUsage())
}

func TestController_MemoryTrackingOnly(t *testing.T) {
	// No limit configured: acquisitions always succeed but are tracked.
	c := NewController(Config{})

	assert.True(t, c.TryAcquireMemory(1<<40))
	assert.Equal(t, int64(1<<40), c.MemoryUsage())
	c.ReleaseMemory(1 << 40)
}

func TestController_MemoryBlocksUntilReleased(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})
	require.NoError(t, c.AcquireMemory(context.Background(), 100))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.AcquireMemory(ctx, 1)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	c.ReleaseMemory(100)
	require.NoError(t, c.AcquireMemory(context.Background(), 1))
	c.ReleaseMemory(1)
}

func TestController_BuildWorkers(t *testing.T) {
	c := NewController(Config{MaxBuildWorkers: 2})
	assert.Equal(t, 2, c.MaxBuildWorkers())

	require.NoError(t, c.AcquireBuildWorker(context.Background()))
	require.NoError(t, c.AcquireBuildWorker(context.Background()))
	assert.False(t, c.TryAcquireBuildWorker())

	c.ReleaseBuildWorker()
	assert.True(t, c.TryAcquireBuildWorker())

	c.ReleaseBuildWorker()
	c.ReleaseBuildWorker()
}

func TestController_NilSafe(t *testing.T) {
	var c *Controller

	assert.NoError(t, c.AcquireMemory(context.Background(), 100))
	assert.True(t, c.TryAcquireMemory(100))
	c.ReleaseMemory(100)
	assert.Equal(t, int64(0), c.MemoryUsage())

	assert.NoError(t, c.AcquireBuildWorker(context.Background()))
	assert.True(t, c.TryAcquireBuildWorker())
	c.ReleaseBuildWorker()
	assert.Equal(t, 0, c.MaxBuildWorkers())

	assert.NoError(t, c.AcquireIO(context.Background(), 1<<20))
}

func TestController_AcquireIOSplitsLargeWaits(t *testing.T) {
	// A transfer larger than the burst must still go through.
	c := NewController(Config{IOLimitBytesPerSec: 1 << 30})
	require.NoError(t, c.AcquireIO(context.Background(), (1<<30)+4096))
}

func TestController_AcquireIOCanceled(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// The budget for this many bytes takes far longer than the deadline.
	err := c.AcquireIO(ctx, 1000)
	require.Error(t, err)
}

func TestRateLimitedReader(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1 << 30})
	src := strings.NewReader("rate limited content")

	r := NewRateLimitedReader(context.Background(), src, c)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "rate limited content", string(got))
}

func TestRateLimitedWriter(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1 << 30})
	var buf bytes.Buffer

	w := NewRateLimitedWriter(context.Background(), &buf, c)
	n, err := w.Write([]byte("rate limited content"))
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	assert.Equal(t, "rate limited content", buf.String())
}

func TestRateLimited_CanceledContext(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRateLimitedReader(ctx, strings.NewReader("data"), c)
	_, err := r.Read(make([]byte, 4))
	require.Error(t, err)

	w := NewRateLimitedWriter(ctx, io.Discard, c)
	_, err = w.Write([]byte("data"))
	require.Error(t, err)
}
