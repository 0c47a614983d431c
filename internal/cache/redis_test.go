package cache_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/ichiba/internal/cache"
	"github.com/ashita-ai/ichiba/internal/model"
	"github.com/ashita-ai/ichiba/internal/testutil"
)

var testRedis *redis.Client

func TestMain(m *testing.M) {
	tc := testutil.MustStartRedis()
	testRedis = tc.NewClient()

	code := m.Run()

	_ = testRedis.Close()
	tc.Terminate()
	os.Exit(code)
}

// uniqueKey isolates each test's entries from the others.
func uniqueKey(name string) string {
	return fmt.Sprintf("%s-%d", name, time.Now().UnixNano())
}

func TestRedisStoreSetGet(t *testing.T) {
	ctx := context.Background()
	s := cache.NewRedisStore(testRedis, "ichiba-test", time.Minute)

	key := uniqueKey("setget")
	in := cache.Entry{Key: key, Value: []byte(`{"symbol":"AAPL"}`), StoredAt: time.Now(), TTL: time.Minute}
	require.NoError(t, s.Set(ctx, in))

	out, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"symbol":"AAPL"}`, string(out.Value))
	assert.False(t, out.Stale)
	assert.Equal(t, key, out.Key)
}

func TestRedisStoreMissOnAbsent(t *testing.T) {
	s := cache.NewRedisStore(testRedis, "ichiba-test", time.Minute)

	_, ok, err := s.Get(context.Background(), uniqueKey("absent"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreStaleWithinRetention(t *testing.T) {
	ctx := context.Background()
	s := cache.NewRedisStore(testRedis, "ichiba-test", time.Minute)

	key := uniqueKey("stale")
	in := cache.Entry{Key: key, Value: []byte(`1`), StoredAt: time.Now(), TTL: 20 * time.Millisecond}
	require.NoError(t, s.Set(ctx, in))

	time.Sleep(50 * time.Millisecond)

	out, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok, "entry within retention should still be readable")
	assert.True(t, out.Stale)
}

func TestRedisStoreExpiresPastRetention(t *testing.T) {
	ctx := context.Background()

	// Redis rounds sub-second expiries with PX, so keep both short.
	s := cache.NewRedisStore(testRedis, "ichiba-test", 100*time.Millisecond)

	key := uniqueKey("expire")
	in := cache.Entry{Key: key, Value: []byte(`1`), StoredAt: time.Now(), TTL: 100 * time.Millisecond}
	require.NoError(t, s.Set(ctx, in))

	time.Sleep(300 * time.Millisecond)

	_, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "entry past TTL+retention should be gone from Redis")
}

func TestRedisStoreNegativeEntryRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := cache.NewRedisStore(testRedis, "ichiba-test", time.Minute)

	key := uniqueKey("negative")
	in := cache.Entry{
		Key:      key,
		Failure:  model.NewFailure(model.KindRateLimited, true, "quota exhausted"),
		StoredAt: time.Now(),
		TTL:      30 * time.Second,
	}
	require.NoError(t, s.Set(ctx, in))

	out, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, out.Negative())
	assert.Equal(t, model.KindRateLimited, out.Failure.Kind)
	assert.True(t, out.Failure.Retriable)
	assert.Equal(t, "quota exhausted", out.Failure.Message)
}

func TestRedisStoreDelete(t *testing.T) {
	ctx := context.Background()
	s := cache.NewRedisStore(testRedis, "ichiba-test", time.Minute)

	key := uniqueKey("delete")
	require.NoError(t, s.Set(ctx, cache.Entry{Key: key, Value: []byte(`1`), StoredAt: time.Now(), TTL: time.Minute}))
	require.NoError(t, s.Delete(ctx, key))

	_, ok, _ := s.Get(ctx, key)
	assert.False(t, ok)

	// Deleting an absent key is not an error.
	assert.NoError(t, s.Delete(ctx, key))
}

func TestRedisStoreCorruptEntryReadsAsMiss(t *testing.T) {
	ctx := context.Background()
	s := cache.NewRedisStore(testRedis, "ichiba-test", time.Minute)

	key := uniqueKey("corrupt")
	require.NoError(t, testRedis.Set(ctx, "ichiba-test:"+key, "{not json", time.Minute).Err())

	_, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "corrupt entries should be dropped and read as a miss")

	exists, err := testRedis.Exists(ctx, "ichiba-test:"+key).Result()
	require.NoError(t, err)
	assert.Zero(t, exists, "corrupt entry should have been deleted")
}
