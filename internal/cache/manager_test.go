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

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Manager) {
	t.Helper()
	mr := miniredis.RunT(t)

	manager, err := NewManager(Config{
		Addr:       mr.Addr(),
		DefaultTTL: 1 * time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	return mr, manager
}

func TestNewManager(t *testing.T) {
	_, manager := setupTestRedis(t)

	assert.NotNil(t, manager.redis)
	assert.NotNil(t, manager.logger)
}

func TestNewManager_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewManager(Config{Addr: addr}, zap.NewNop())
	assert.Error(t, err)
}

func TestManager_Set(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "test-key", "test-value", 1*time.Minute))

	value, err := mr.Get("test-key")
	require.NoError(t, err)
	assert.Equal(t, "test-value", value)
}

func TestManager_DefaultTTL(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "k", "v", 0))
	assert.Equal(t, time.Minute, mr.TTL("k"))

	mr.FastForward(2 * time.Minute)
	vals, err := manager.MGet(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, vals[0])
}

func TestManager_MGet(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "a", "1", 0))
	require.NoError(t, manager.Set(ctx, "c", "3", 0))

	vals, err := manager.MGet(ctx, "a", "b", "c")
	require.NoError(t, err)
	require.Len(t, vals, 3)
	require.NotNil(t, vals[0])
	assert.Equal(t, "1", *vals[0])
	assert.Nil(t, vals[1])
	require.NotNil(t, vals[2])
	assert.Equal(t, "3", *vals[2])

	empty, err := manager.MGet(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestManager_Delete(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "a", "1", time.Minute))
	require.NoError(t, manager.Set(ctx, "b", "2", time.Minute))
	require.NoError(t, manager.Delete(ctx, "a", "b"))
	require.NoError(t, manager.Delete(ctx))

	assert.False(t, mr.Exists("a"))
	assert.False(t, mr.Exists("b"))
}

func TestManager_SetJSON(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	type entry struct {
		Label      string  `json:"label"`
		Confidence float64 `json:"confidence"`
	}

	require.NoError(t, manager.SetJSON(ctx, "test-json", entry{Label: "C1", Confidence: 0.8123}, time.Minute))

	raw, err := mr.Get("test-json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"label":"C1","confidence":0.8123}`, raw)

	assert.Error(t, manager.SetJSON(ctx, "bad", func() {}, time.Minute))
}

func TestManager_Closed(t *testing.T) {
	_, manager := setupTestRedis(t)
	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())

	ctx := context.Background()
	assert.ErrorIs(t, manager.Set(ctx, "k", "v", 0), ErrClosed)
	assert.ErrorIs(t, manager.Delete(ctx, "k"), ErrClosed)
	assert.ErrorIs(t, manager.Ping(ctx), ErrClosed)
	_, err := manager.MGet(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestManager_Ping(t *testing.T) {
	_, manager := setupTestRedis(t)
	assert.NoError(t, manager.Ping(context.Background()))
}
