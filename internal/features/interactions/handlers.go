// Package interactions — handlers.go обрабатывает HTTP-запросы:
// POST /v1/interactions/toggle и GET /v1/interactions/state.
package interactions

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"serotonyl.ru/engagement-engine/internal/common"
	"serotonyl.ru/engagement-engine/internal/httpapi/middleware"
)

// Handler обрабатывает запросы к журналу взаимодействий.
type Handler struct {
	service *Service
}

// NewHandler создаёт обработчик.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register вешает маршруты на группу, уже закрытую middleware.Auth.
func (h *Handler) Register(r gin.IRoutes) {
	r.POST("/interactions/toggle", h.HandleToggle)
	r.GET("/interactions/state", h.HandleState)
}

type toggleBody struct {
	ContentID string `json:"contentId"`
	Kind      string `json:"kind"`
	Action    string `json:"action"`
}

// HandleToggle меняет состояние взаимодействия.
//
// Запрос:
//
//	{"contentId": "c1", "kind": "like", "action": "toggle"}
//
// Ответ:
//
//	{"action": "added", "counters": {"likes": 1, ...}}
func (h *Handler) HandleToggle(c *gin.Context) {
	userID, err := middleware.UserID(c)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	var body toggleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		middleware.RespondError(c, fmt.Errorf("%w: %v", common.ErrInvalidRequest, err))
		return
	}

	kind, err := ParseKind(body.Kind)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	action, err := ParseAction(body.Action)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	res, err := h.service.Toggle(c.Request.Context(), ToggleRequest{
		UserID:    userID,
		ContentID: body.ContentID,
		Kind:      kind,
		Action:    action,
	})
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// HandleState отдаёт флаги пользователя и счётчики контента.
func (h *Handler) HandleState(c *gin.Context) {
	userID, err := middleware.UserID(c)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	state, err := h.service.GetState(c.Request.Context(), userID, c.Query("contentId"))
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}
