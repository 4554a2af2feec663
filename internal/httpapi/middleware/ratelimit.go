package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"serotonyl.ru/engagement-engine/internal/common"
)

// RateLimiter ограничивает количество запросов на ключ (пользователь или IP).
// Использует алгоритм скользящего окна.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		stopCh:   make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Close останавливает фоновую горутину очистки.
// Его надо вызывать на shutdown (иначе cleanup будет жить вечно).
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Allow регистрирует запрос и сообщает, укладывается ли он в лимит.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	recent := rl.recentLocked(key, now)
	if len(recent) >= rl.limit {
		rl.requests[key] = recent
		return false
	}
	rl.requests[key] = append(recent, now)
	return true
}

// Exhausted сообщает, что лимит исчерпан, не регистрируя запрос.
func (rl *RateLimiter) Exhausted(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	recent := rl.recentLocked(key, time.Now())
	rl.requests[key] = recent
	return len(recent) >= rl.limit
}

func (rl *RateLimiter) recentLocked(key string, now time.Time) []time.Time {
	cutoff := now.Add(-rl.window)
	var recent []time.Time
	for _, t := range rl.requests[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	return recent
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := time.Now()
			for key := range rl.requests {
				if recent := rl.recentLocked(key, now); len(recent) == 0 {
					delete(rl.requests, key)
				} else {
					rl.requests[key] = recent
				}
			}
			rl.mu.Unlock()
		}
	}
}

// RateLimit — middleware лимита на пользователя (после Auth) или на IP.
func RateLimit(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if v, ok := c.Get(userIDKey); ok {
			if id, ok := v.(int64); ok {
				key = "u:" + strconv.FormatInt(id, 10)
			}
		}
		if !rl.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Code:    common.CodeRateLimited,
				Message: "слишком много запросов",
			})
			return
		}
		c.Next()
	}
}
