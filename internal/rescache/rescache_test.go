package rescache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewWithClient(client, "test:", time.Minute)
}

func TestGetOrProduceCallsProducerOnceOnMiss(t *testing.T) {
	c := newTestCache(t)
	var calls int32
	produce := func(ctx context.Context) (*Entry, error) {
		atomic.AddInt32(&calls, 1)
		return &Entry{Body: []byte("hello")}, nil
	}

	entry, err := c.GetOrProduce(context.Background(), "fp1", produce)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(entry.Body))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	entry2, err := c.GetOrProduce(context.Background(), "fp1", produce)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(entry2.Body))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "second call should hit cache, not re-invoke producer")
}

func TestGetOrProduceSingleFlightsConcurrentMisses(t *testing.T) {
	c := newTestCache(t)
	var calls int32
	release := make(chan struct{})
	produce := func(ctx context.Context) (*Entry, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return &Entry{Body: []byte("shared")}, nil
	}

	var wg sync.WaitGroup
	results := make([]*Entry, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry, err := c.GetOrProduce(context.Background(), "fp-shared", produce)
			assert.NoError(t, err)
			results[i] = entry
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, "shared", string(r.Body))
	}
}

func TestFingerprintIsStableForEquivalentInput(t *testing.T) {
	type projection struct {
		Model    string   `json:"model"`
		Messages []string `json:"messages"`
	}
	a, err := Fingerprint(projection{Model: "claude-3", Messages: []string{"hi"}})
	require.NoError(t, err)
	b, err := Fingerprint(projection{Model: "claude-3", Messages: []string{"hi"}})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := Fingerprint(projection{Model: "claude-3", Messages: []string{"bye"}})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestEntryExpiresAfterTTL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewWithClient(client, "test:", 10*time.Millisecond)

	var calls int32
	produce := func(ctx context.Context) (*Entry, error) {
		atomic.AddInt32(&calls, 1)
		return &Entry{Body: []byte("v")}, nil
	}
	_, err = c.GetOrProduce(context.Background(), "fp-ttl", produce)
	require.NoError(t, err)

	mr.FastForward(20 * time.Millisecond)

	_, err = c.GetOrProduce(context.Background(), "fp-ttl", produce)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls), "expired entry should re-invoke producer")
}
