package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/engagement-engine/internal/metrics"
)

// Logger логирует каждый запрос и считает его в метриках.
// Записывает: метод, маршрут, статус, длительность, user_id (если есть).
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()

		fields := log.Fields{
			"method":   c.Request.Method,
			"route":    route,
			"status":   status,
			"duration": time.Since(start).String(),
			"ip":       c.ClientIP(),
		}
		if v, ok := c.Get(userIDKey); ok {
			fields["user_id"] = v
		}

		entry := log.WithFields(fields)
		switch {
		case status >= 500:
			entry.Error("HTTP-запрос")
		case status >= 400:
			entry.Info("HTTP-запрос")
		default:
			entry.Debug("HTTP-запрос")
		}
	}
}
