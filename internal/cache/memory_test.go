package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_GetSetExpire(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	m := NewMemory()
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))
	got, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	now = now.Add(2 * time.Minute)
	_, ok, err = m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_Generations(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	g, err := m.Generation(ctx, "math|2024")
	require.NoError(t, err)
	assert.Zero(t, g)

	require.NoError(t, m.Bump(ctx, "math|2024", "math|2024", "art|2024"))
	g, _ = m.Generation(ctx, "math|2024")
	assert.Equal(t, int64(2), g)
	g, _ = m.Generation(ctx, "art|2024")
	assert.Equal(t, int64(1), g)
}

func TestNop(t *testing.T) {
	var c Cache = Nop{}
	require.NoError(t, c.Set(context.Background(), "k", []byte("v"), 0))
	_, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
