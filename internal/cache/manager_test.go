package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := DefaultConfig()
	cfg.Addr = mr.Addr()
	cfg.HealthCheckInterval = 0 // no background loop in tests

	m, err := NewManager(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m, mr
}

func TestManager_SetGet(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", "v", time.Minute))
	val, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)
}

func TestManager_Get_Miss(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.True(t, IsCacheMiss(err))
}

func TestManager_JSONRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	in := payload{Name: "graph", Count: 3}
	require.NoError(t, m.SetJSON(ctx, "p", in, time.Minute))

	var out payload
	require.NoError(t, m.GetJSON(ctx, "p", &out))
	assert.Equal(t, in, out)
}

func TestManager_GetJSON_Malformed(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "bad", "{not json", time.Minute))
	var out map[string]any
	assert.Error(t, m.GetJSON(ctx, "bad", &out))
}

func TestManager_Delete(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a", "1", time.Minute))
	require.NoError(t, m.Set(ctx, "b", "2", time.Minute))
	require.NoError(t, m.Delete(ctx, "a", "b"))

	_, err := m.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss)

	// deleting nothing is a no-op
	assert.NoError(t, m.Delete(ctx))
}

func TestManager_Exists(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a", "1", time.Minute))
	count, err := m.Exists(ctx, "a", "missing")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestManager_TTLExpiry(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "ephemeral", "v", time.Second))
	mr.FastForward(2 * time.Second)

	_, err := m.Get(ctx, "ephemeral")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestManager_ZeroTTLUsesDefault(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", "v", 0))
	ttl := mr.TTL("k")
	assert.Equal(t, DefaultConfig().DefaultTTL, ttl)
}

func TestManager_ClosedRejectsOps(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Close())

	ctx := context.Background()
	assert.Error(t, m.Set(ctx, "k", "v", time.Minute))
	_, err := m.Get(ctx, "k")
	assert.Error(t, err)
	assert.Error(t, m.Ping(ctx))

	// double close is fine
	assert.NoError(t, m.Close())
}

func TestNewManager_ConnectFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:1"

	_, err := NewManager(cfg, zap.NewNop())
	assert.Error(t, err)
}
