package secretstore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingBackend wraps a MemoryBackend and counts reads.
type countingBackend struct {
	*MemoryBackend
	reads   atomic.Int32
	readErr error
	block   chan struct{}
}

func (b *countingBackend) Read(ctx context.Context, path string) (map[string]string, error) {
	b.reads.Add(1)
	if b.block != nil {
		<-b.block
	}
	if b.readErr != nil {
		return nil, b.readErr
	}
	return b.MemoryBackend.Read(ctx, path)
}

func newCountingBackend() *countingBackend {
	return &countingBackend{MemoryBackend: NewMemoryBackend()}
}

func TestCache_ReadsAreCachedWithinTTL(t *testing.T) {
	ctx := context.Background()
	backend := newCountingBackend()
	require.NoError(t, backend.MemoryBackend.Write(ctx, "p", map[string]string{"k": "v1"}))

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewCache(backend, time.Minute)
	cache.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		data, err := cache.Read(ctx, "p")
		require.NoError(t, err)
		assert.Equal(t, "v1", data["k"])
	}
	assert.Equal(t, int32(1), backend.reads.Load())

	now = now.Add(2 * time.Minute)
	_, err := cache.Read(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, int32(2), backend.reads.Load())
}

func TestCache_WriteInvalidates(t *testing.T) {
	ctx := context.Background()
	backend := newCountingBackend()
	cache := NewCache(backend, 0)
	assert.Equal(t, DefaultCacheTTL, cache.ttl)

	require.NoError(t, cache.Write(ctx, "p", map[string]string{"k": "v1"}))
	data, err := cache.Read(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, "v1", data["k"])
	assert.Equal(t, 1, cache.Len())

	require.NoError(t, cache.Write(ctx, "p", map[string]string{"k": "v2"}))
	assert.Equal(t, 0, cache.Len())

	data, err = cache.Read(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, "v2", data["k"])
	assert.Equal(t, int32(2), backend.reads.Load())
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	backend := newCountingBackend()
	cache := NewCache(backend, time.Minute)

	_, err := cache.Read(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = cache.Read(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, int32(2), backend.reads.Load())
	assert.Equal(t, 0, cache.Len())
}

func TestCache_ReturnedMapsAreCopies(t *testing.T) {
	ctx := context.Background()
	backend := newCountingBackend()
	require.NoError(t, backend.MemoryBackend.Write(ctx, "p", map[string]string{"k": "v1"}))
	cache := NewCache(backend, time.Minute)

	data, err := cache.Read(ctx, "p")
	require.NoError(t, err)
	data["k"] = "mutated"

	data, err = cache.Read(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, "v1", data["k"])
}

func TestCache_ConcurrentMissesShareOneRead(t *testing.T) {
	ctx := context.Background()
	backend := newCountingBackend()
	require.NoError(t, backend.MemoryBackend.Write(ctx, "p", map[string]string{"k": "v1"}))
	backend.block = make(chan struct{})
	cache := NewCache(backend, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := cache.Read(ctx, "p")
			assert.NoError(t, err)
			assert.Equal(t, "v1", data["k"])
		}()
	}
	// Let the goroutines pile up on the in-flight read.
	time.Sleep(50 * time.Millisecond)
	close(backend.block)
	wg.Wait()

	assert.LessOrEqual(t, backend.reads.Load(), int32(5))
	assert.GreaterOrEqual(t, backend.reads.Load(), int32(1))
}

func TestCache_InvalidationDuringReadDiscardsResult(t *testing.T) {
	ctx := context.Background()
	backend := newCountingBackend()
	require.NoError(t, backend.MemoryBackend.Write(ctx, "p", map[string]string{"k": "old"}))
	backend.block = make(chan struct{})
	cache := NewCache(backend, time.Minute)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = cache.Read(ctx, "p")
	}()
	time.Sleep(20 * time.Millisecond)
	cache.Invalidate("p")
	close(backend.block)
	<-done

	assert.Equal(t, 0, cache.Len())
}
