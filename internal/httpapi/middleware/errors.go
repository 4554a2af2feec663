// Package middleware содержит промежуточные обработчики HTTP API:
// аутентификацию, операторский доступ, логирование, восстановление после паники
// и rate-limiting. Здесь же общий формат ответа с ошибкой.
package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/engagement-engine/internal/common"
)

// ErrorResponse — тело ответа с ошибкой.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RespondError отвечает клиенту стабильным кодом ошибки и прерывает цепочку.
// Внутренние ошибки наружу не раскрываются.
func RespondError(c *gin.Context, err error) {
	code := common.Code(err)
	status := common.HTTPStatus(err)

	msg := err.Error()
	switch {
	case code == common.CodeInternal:
		log.WithError(err).WithField("path", c.FullPath()).Error("Внутренняя ошибка")
		msg = "внутренняя ошибка"
	case common.IsValidation(err):
		log.WithError(err).WithField("path", c.FullPath()).Debug("Запрос отклонён валидацией")
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, ErrorResponse{Code: code, Message: msg})
}

const userIDKey = "userId"

// UserID возвращает пользователя, проверенного Auth.
func UserID(c *gin.Context) (int64, error) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return 0, common.ErrUnauthenticated
	}
	id, ok := v.(int64)
	if !ok || id <= 0 {
		return 0, errors.Join(common.ErrUnauthenticated, common.ErrInvalidUserID)
	}
	return id, nil
}
