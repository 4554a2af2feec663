// Package audit — handlers.go: POST /v1/admin/audit (только оператор).
package audit

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"serotonyl.ru/engagement-engine/internal/common"
	"serotonyl.ru/engagement-engine/internal/features/interactions"
	"serotonyl.ru/engagement-engine/internal/httpapi/middleware"
)

// Handler запускает сверку по запросу оператора.
type Handler struct {
	auditor *Auditor
}

// NewHandler создаёт обработчик сверки.
func NewHandler(auditor *Auditor) *Handler {
	return &Handler{auditor: auditor}
}

// Register вешает маршрут на группу, закрытую middleware.Operator.
func (h *Handler) Register(r gin.IRoutes) {
	r.POST("/admin/audit", h.HandleReconcile)
}

type reconcileBody struct {
	ContentID string `json:"contentId"`
}

// HandleReconcile — {"contentId": "c1"} или пустое тело для полного прохода.
// Отвечает отчётом о расхождениях.
func (h *Handler) HandleReconcile(c *gin.Context) {
	var body reconcileBody
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		middleware.RespondError(c, fmt.Errorf("%w: %v", common.ErrInvalidRequest, err))
		return
	}
	if body.ContentID != "" {
		if err := interactions.ValidateContentID(body.ContentID); err != nil {
			middleware.RespondError(c, err)
			return
		}
	}

	report, err := h.auditor.Reconcile(c.Request.Context(), body.ContentID)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
