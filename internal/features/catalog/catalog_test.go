package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/engagement-engine/internal/common"
)

// newUpstream поднимает фейковый каталог и считает обращения.
func newUpstream(t *testing.T, statuses map[string]string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		id := r.URL.Path[len("/v1/content/"):]
		if id == "boom" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		status, ok := statuses[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"` + id + `","status":"` + status + `"}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestHTTPClientGetContent(t *testing.T) {
	srv, _ := newUpstream(t, map[string]string{"c1": "published", "c2": "draft"})
	client := NewHTTPClient(srv.URL, time.Second)
	t.Cleanup(func() { client.Close() })
	ctx := context.Background()

	content, err := client.GetContent(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, &Content{ID: "c1", Status: "published"}, content)

	_, err = client.GetContent(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrContentNotFound)

	_, err = client.GetContent(ctx, "boom")
	assert.ErrorIs(t, err, common.ErrCatalogUnavailable)
}

func TestGuard(t *testing.T) {
	srv, _ := newUpstream(t, map[string]string{"c1": "published", "c2": "draft"})
	client := NewHTTPClient(srv.URL, time.Second)
	t.Cleanup(func() { client.Close() })
	guard := NewGuard(client)
	ctx := context.Background()

	assert.NoError(t, guard.EnsurePublished(ctx, "c1"))
	assert.ErrorIs(t, guard.EnsurePublished(ctx, "c2"), common.ErrContentNotPublished)
	assert.ErrorIs(t, guard.EnsurePublished(ctx, "nope"), common.ErrContentNotFound)
}

func TestCachedCatalogHitsUpstreamOncePerTTL(t *testing.T) {
	srv, hits := newUpstream(t, map[string]string{"c1": "published"})
	client := NewHTTPClient(srv.URL, time.Second)
	t.Cleanup(func() { client.Close() })

	cache := NewMemoryCache()
	now := time.Now()
	cache.now = func() time.Time { return now }
	cached := NewCachedCatalog(client, cache, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		content, err := cached.GetContent(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, "published", content.Status)
	}
	assert.Equal(t, int32(1), hits.Load())

	// Отсутствующий контент тоже кешируется
	for i := 0; i < 2; i++ {
		_, err := cached.GetContent(ctx, "missing")
		assert.ErrorIs(t, err, common.ErrContentNotFound)
	}
	assert.Equal(t, int32(2), hits.Load())

	// После TTL (с учётом разброса) идём в каталог снова
	now = now.Add(2 * time.Minute)
	_, err := cached.GetContent(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
}

func TestCachedCatalogDoesNotCacheOutages(t *testing.T) {
	srv, hits := newUpstream(t, nil)
	client := NewHTTPClient(srv.URL, time.Second)
	t.Cleanup(func() { client.Close() })
	cached := NewCachedCatalog(client, NewMemoryCache(), time.Minute)

	for i := 0; i < 2; i++ {
		_, err := cached.GetContent(context.Background(), "boom")
		assert.ErrorIs(t, err, common.ErrCatalogUnavailable)
	}
	assert.Equal(t, int32(2), hits.Load())
}

// slowCatalog медленно отвечает и считает вызовы.
type slowCatalog struct {
	calls atomic.Int32
}

func (s *slowCatalog) GetContent(_ context.Context, id string) (*Content, error) {
	s.calls.Add(1)
	time.Sleep(100 * time.Millisecond)
	return &Content{ID: id, Status: StatusPublished}, nil
}

func TestCachedCatalogCollapsesConcurrentMisses(t *testing.T) {
	upstream := &slowCatalog{}
	cached := NewCachedCatalog(upstream, NewMemoryCache(), time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cached.GetContent(context.Background(), "hot")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), upstream.calls.Load())
}

func TestJitterStaysWithinBounds(t *testing.T) {
	c := NewCachedCatalog(nil, nil, 10*time.Second)
	for i := 0; i < 100; i++ {
		d := c.jitter()
		assert.GreaterOrEqual(t, d, 9*time.Second)
		assert.Less(t, d, 11*time.Second)
	}
}

func TestMemoryCacheSweepsExpired(t *testing.T) {
	cache := NewMemoryCache()
	t.Cleanup(cache.Close)
	now := time.Now()
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		require.NoError(t, cache.Set(ctx, fmt.Sprintf("catalog:status:{rnd-%d}", i), notFoundMarker, time.Second))
	}
	require.NoError(t, cache.Set(ctx, "catalog:status:{c1}", StatusPublished, time.Hour))
	assert.Equal(t, 101, cache.Len())

	assert.Zero(t, cache.sweep(), "ничего ещё не истекло")

	now = now.Add(2 * time.Second)
	assert.Equal(t, 100, cache.sweep())
	assert.Equal(t, 1, cache.Len())

	v, ok, err := cache.Get(ctx, "catalog:status:{c1}")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, StatusPublished, v)

	cache.Close()
	cache.Close()
}

// recordingCache запоминает TTL каждой записи.
type recordingCache struct {
	mu   sync.Mutex
	ttls []time.Duration
}

func (r *recordingCache) Get(context.Context, string) (string, bool, error) {
	return "", false, nil
}

func (r *recordingCache) Set(_ context.Context, _, _ string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ttls = append(r.ttls, ttl)
	return nil
}

func TestCachedCatalogNeverStoresWithoutTTL(t *testing.T) {
	ctx := context.Background()

	cache := &recordingCache{}
	cached := NewCachedCatalog(&slowCatalog{}, cache, 0)
	_, err := cached.GetContent(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, cache.ttls, "нулевой TTL в Redis означал бы вечный ключ")

	cached = NewCachedCatalog(&slowCatalog{}, cache, time.Minute)
	_, err = cached.GetContent(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, cache.ttls, 1)
	assert.Positive(t, cache.ttls[0])

	mem := NewMemoryCache()
	t.Cleanup(mem.Close)
	require.NoError(t, mem.Set(ctx, "k", "v", 0))
	assert.Zero(t, mem.Len())
}
