// Package httpapi собирает HTTP API движка: маршруты, middleware,
// /metrics и /healthz.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/engagement-engine/internal/httpapi/middleware"
)

// Registrar — обработчик фичи, который сам вешает свои маршруты.
type Registrar interface {
	Register(r gin.IRoutes)
}

// RouterConfig — всё, что нужно роутеру.
type RouterConfig struct {
	JWTSecret       []byte
	OperatorKeyHash string

	// Лимит на пользователя для /v1 и лимит неверных операторских ключей
	UserLimiter      *middleware.RateLimiter
	OperatorFailures *middleware.RateLimiter

	// Маршруты пользователя (под JWT) и оператора (под ключом)
	User     []Registrar
	Operator []Registrar

	// Health проверяет зависимости (БД). nil — всегда ок.
	Health func(ctx context.Context) error
}

// NewRouter создаёт gin.Engine со всеми маршрутами.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(), middleware.Logger())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		if cfg.Health != nil {
			if err := cfg.Health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	user := r.Group("/v1", middleware.Auth(cfg.JWTSecret))
	if cfg.UserLimiter != nil {
		user.Use(middleware.RateLimit(cfg.UserLimiter))
	}
	for _, h := range cfg.User {
		h.Register(user)
	}

	operator := r.Group("/v1", middleware.Operator(cfg.OperatorKeyHash, cfg.OperatorFailures))
	for _, h := range cfg.Operator {
		h.Register(operator)
	}

	return r
}

// Server — HTTP-сервер с корректной остановкой.
type Server struct {
	srv *http.Server
}

// NewServer создаёт сервер на addr.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}}
}

// Start блокируется до остановки сервера.
func (s *Server) Start() error {
	log.WithField("addr", s.srv.Addr).Info("HTTP API запущен")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ошибка HTTP-сервера: %w", err)
	}
	return nil
}

// Shutdown дожидается завершения активных запросов.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
