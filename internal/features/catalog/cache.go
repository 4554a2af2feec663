package catalog

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"serotonyl.ru/engagement-engine/internal/common"
	"serotonyl.ru/engagement-engine/internal/metrics"
)

// Кеш хранит только статус публикации и живёт недолго: снятие с публикации
// становится видно не позже чем через TTL. Счётчики и состояние
// пользователя здесь никогда не кешируются.

// notFoundMarker — значение для отсутствующего контента, чтобы не долбить каталог.
const notFoundMarker = "-"

// StatusCache — хранилище статусов с TTL.
type StatusCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// CachedCatalog — Catalog с кешем и схлопыванием параллельных запросов одного id.
type CachedCatalog struct {
	upstream Catalog
	cache    StatusCache
	ttl      time.Duration
	sf       singleflight.Group
}

var _ Catalog = (*CachedCatalog)(nil)

// NewCachedCatalog оборачивает upstream кешем.
func NewCachedCatalog(upstream Catalog, cache StatusCache, ttl time.Duration) *CachedCatalog {
	return &CachedCatalog{upstream: upstream, cache: cache, ttl: ttl}
}

func cacheKey(id string) string {
	return "catalog:status:{" + id + "}"
}

// jitter — TTL ±10%, чтобы ключи не истекали пачкой.
func (c *CachedCatalog) jitter() time.Duration {
	spread := int64(c.ttl) / 5
	if spread <= 0 {
		return c.ttl
	}
	return c.ttl - time.Duration(spread/2) + time.Duration(rand.Int64N(spread))
}

// GetContent реализует Catalog.
func (c *CachedCatalog) GetContent(ctx context.Context, id string) (*Content, error) {
	key := cacheKey(id)

	if v, ok, err := c.cache.Get(ctx, key); err != nil {
		// Кеш недоступен — идём в каталог напрямую
		log.WithError(err).Warn("Кеш каталога недоступен")
	} else if ok {
		metrics.CatalogLookupTotal.WithLabelValues("hit").Inc()
		if v == notFoundMarker {
			return nil, fmt.Errorf("%w: %s", common.ErrContentNotFound, id)
		}
		return &Content{ID: id, Status: v}, nil
	}

	metrics.CatalogLookupTotal.WithLabelValues("miss").Inc()
	v, err, _ := c.sf.Do(key, func() (any, error) {
		content, err := c.upstream.GetContent(ctx, id)
		switch {
		case errors.Is(err, common.ErrContentNotFound):
			c.store(ctx, key, notFoundMarker)
			return nil, err
		case err != nil:
			return nil, err
		}
		c.store(ctx, key, content.Status)
		return content, nil
	})
	if err != nil {
		return nil, err
	}
	content := *v.(*Content)
	return &content, nil
}

func (c *CachedCatalog) store(ctx context.Context, key, value string) {
	// Нулевой TTL в Redis — вечный ключ, а статус должен устаревать
	if c.ttl <= 0 {
		return
	}
	if err := c.cache.Set(ctx, key, value, c.jitter()); err != nil {
		log.WithError(err).Warn("Не удалось записать статус в кеш каталога")
	}
}

// RedisCache — StatusCache поверх Redis (одиночный инстанс или кластер).
type RedisCache struct {
	rdb redis.UniversalClient
}

// NewRedisCache создаёт кеш статусов в Redis.
func NewRedisCache(rdb redis.UniversalClient) *RedisCache {
	return &RedisCache{rdb: rdb}
}

// Get реализует StatusCache.
func (r *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set реализует StatusCache.
func (r *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

// memorySweepInterval — как часто MemoryCache выбрасывает истёкшие записи.
const memorySweepInterval = time.Minute

// MemoryCache — StatusCache в памяти процесса, для одиночного инстанса без Redis.
// Истёкшие записи удаляет фоновая очистка, иначе случайные id копились бы вечно.
type MemoryCache struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

type memoryItem struct {
	value     string
	expiresAt time.Time
}

// NewMemoryCache создаёт кеш в памяти и запускает очистку. Close останавливает её.
func NewMemoryCache() *MemoryCache {
	m := &MemoryCache{
		items:  make(map[string]memoryItem),
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
	go m.cleanup(memorySweepInterval)
	return m
}

// Close останавливает фоновую очистку.
func (m *MemoryCache) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// Get реализует StatusCache.
func (m *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[key]
	if !ok {
		return "", false, nil
	}
	if !m.now().Before(item.expiresAt) {
		delete(m.items, key)
		return "", false, nil
	}
	return item.value, true, nil
}

// Set реализует StatusCache. Запись с ttl <= 0 не сохраняется.
func (m *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = memoryItem{value: value, expiresAt: m.now().Add(ttl)}
	return nil
}

// Len — число записей, включая ещё не вычищенные истёкшие.
func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// sweep удаляет истёкшие записи и возвращает их число.
func (m *MemoryCache) sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	removed := 0
	for key, item := range m.items {
		if !now.Before(item.expiresAt) {
			delete(m.items, key)
			removed++
		}
	}
	return removed
}

func (m *MemoryCache) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if n := m.sweep(); n > 0 {
				log.WithField("removed", n).Debug("Кеш каталога: удалены истёкшие записи")
			}
		}
	}
}
