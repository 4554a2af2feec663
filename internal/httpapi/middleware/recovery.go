package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/engagement-engine/internal/common"
)

// Recovery перехватывает панику в обработчике и отвечает 500 INTERNAL.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.WithFields(log.Fields{
					"component": "panic_recovery",
					"panic":     fmt.Sprintf("%v", r),
					"path":      c.Request.URL.Path,
					"stack":     string(debug.Stack()),
				}).Error("ПАНИКА в обработчике — восстановлено")

				c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
					Code:    common.CodeInternal,
					Message: "внутренняя ошибка",
				})
			}
		}()
		c.Next()
	}
}
