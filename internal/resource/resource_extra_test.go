package resource

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_MemoryBlocking(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})

	require.NoError(t, c.AcquireMemory(context.Background(), 100))
	assert.Equal(t, int64(100), c.MemoryUsage())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.AcquireMemory(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Larger than the whole budget can never succeed
	assert.ErrorIs(t, c.AcquireMemory(context.Background(), 101), ErrMemoryLimitExceeded)

	c.ReleaseMemory(10)
	assert.True(t, c.TryAcquireMemory(5))
	assert.Equal(t, int64(95), c.MemoryUsage())
}

func TestController_NilChecks(t *testing.T) {
	var c *Controller
	assert.NoError(t, c.AcquireMemory(context.Background(), 10))
	assert.True(t, c.TryAcquireMemory(10))
	c.ReleaseMemory(10)
	c.Overcommit(10)
	c.ReleaseOvercommit(10)
	assert.Zero(t, c.MemoryUsage())
	assert.False(t, c.OverLimit())
	assert.NoError(t, c.AcquireIO(context.Background(), 10))
	assert.Equal(t, 1, c.MaxBackgroundWorkers())
}

func TestController_Background(t *testing.T) {
	c := NewController(Config{MaxBackgroundWorkers: 1})
	require.NoError(t, c.AcquireBackground(context.Background()))

	assert.False(t, c.TryAcquireBackground())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, c.AcquireBackground(ctx))

	c.ReleaseBackground()
	assert.True(t, c.TryAcquireBackground())
}

func TestController_IO(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1000})
	ctx := context.Background()

	assert.NoError(t, c.AcquireIO(ctx, 100))

	c2 := NewController(Config{})
	assert.NoError(t, c2.AcquireIO(ctx, 1000000))
	assert.True(t, c2.TryAcquireIO(1000000))
}

func TestController_IOLargerThanBurst(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1 << 20})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 1.5x the burst is split instead of failing
	assert.NoError(t, c.AcquireIO(ctx, 3<<19))
}

func TestRateLimitedReader(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1 << 20})
	r := NewRateLimitedReader(context.Background(), bytes.NewReader([]byte("ACGT")), c)

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "ACGT", string(data))
}
