package idempotency

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	mu     sync.Mutex
	values map[string][]byte
	ttls   map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = value.([]byte)
	f.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value.([]byte)
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(value), nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, key := range keys {
		if _, ok := f.values[key]; ok {
			delete(f.values, key)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestRedisStoreReserveSaveReplay(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	store, err := NewRedisStore(client, "test")
	require.NoError(t, err)

	first, err := store.Reserve(ctx, "k|buyer:u1", "fp", fixedTime, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, ReservationStateNew, first.State)

	second, err := store.Reserve(ctx, "k|buyer:u1", "fp", fixedTime, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, ReservationStatePending, second.State)

	resp := Response{Status: http.StatusCreated, Headers: http.Header{"Content-Type": {"application/json"}, "Date": {"x"}}, Body: []byte(`{"ok":true}`)}
	require.NoError(t, store.SaveResponse(ctx, "k|buyer:u1", "fp", resp, fixedTime.Add(time.Second), time.Hour))

	replay, err := store.Reserve(ctx, "k|buyer:u1", "fp", fixedTime.Add(2*time.Second), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, ReservationStateCompleted, replay.State)
	assert.Equal(t, http.StatusCreated, replay.Record.ResponseStatus)
	assert.Equal(t, `{"ok":true}`, string(replay.Record.ResponseBody))
	assert.NotContains(t, replay.Record.ResponseHeaders, "Date")
	assert.Equal(t, time.Hour, client.ttls[store.redisKey("k|buyer:u1")])
}

func TestRedisStoreFingerprintMismatch(t *testing.T) {
	ctx := context.Background()
	store, err := NewRedisStore(newFakeRedis(), "")
	require.NoError(t, err)

	_, err = store.Reserve(ctx, "k", "fp-1", fixedTime, time.Hour)
	require.NoError(t, err)

	_, err = store.Reserve(ctx, "k", "fp-2", fixedTime, time.Hour)
	assert.ErrorIs(t, err, ErrFingerprintMismatch)
	assert.ErrorIs(t, store.SaveResponse(ctx, "k", "fp-2", Response{Status: 200}, fixedTime, time.Hour), ErrFingerprintMismatch)
}

func TestRedisStoreReleaseOnlyOwnReservation(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	store, err := NewRedisStore(client, "")
	require.NoError(t, err)

	_, err = store.Reserve(ctx, "k", "fp-1", fixedTime, time.Hour)
	require.NoError(t, err)

	require.NoError(t, store.Release(ctx, "k", "fp-other"))
	assert.Len(t, client.values, 1)

	require.NoError(t, store.Release(ctx, "k", "fp-1"))
	assert.Empty(t, client.values)
}

func TestNewRedisStoreRequiresClient(t *testing.T) {
	_, err := NewRedisStore(nil, "")
	assert.Error(t, err)
}

func TestMemoryStoreCleanupExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_, err := store.Reserve(ctx, "old", "fp", fixedTime, time.Minute)
	require.NoError(t, err)
	_, err = store.Reserve(ctx, "new", "fp", fixedTime, time.Hour)
	require.NoError(t, err)

	removed, err := store.CleanupExpired(ctx, fixedTime.Add(10*time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	again, err := store.Reserve(ctx, "old", "other-fp", fixedTime.Add(10*time.Minute), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, ReservationStateNew, again.State)
}
