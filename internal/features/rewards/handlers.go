// Package rewards — handlers.go: GET /v1/rewards/balance и GET /v1/rewards/history.
package rewards

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"serotonyl.ru/engagement-engine/internal/httpapi/middleware"
)

// Handler отдаёт баланс и историю начислений текущего пользователя.
type Handler struct {
	service *Service
}

// NewHandler создаёт обработчик наград.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register вешает маршруты на группу, закрытую middleware.Auth.
func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/rewards/balance", h.HandleBalance)
	r.GET("/rewards/history", h.HandleHistory)
}

// HandleBalance — {"userId": 42, "points": 35}
func (h *Handler) HandleBalance(c *gin.Context) {
	userID, err := middleware.UserID(c)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	balance, err := h.service.Balance(c.Request.Context(), userID)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

// HandleHistory — последние начисления, ?limit= (по умолчанию 20, максимум 100).
func (h *Handler) HandleHistory(c *gin.Context) {
	userID, err := middleware.UserID(c)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	entries, err := h.service.History(c.Request.Context(), userID, limit)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
