package middleware

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"serotonyl.ru/engagement-engine/internal/common"
)

// tokenTypeAccess — единственный тип токена, который принимает API.
const tokenTypeAccess = "access"

// Auth проверяет Bearer-токен (HS256) от провайдера сессий и кладёт userId в контекст.
// userId берётся только из claim sub, тело запроса его не задаёт.
func Auth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			RespondError(c, common.ErrUnauthenticated)
			return
		}

		userID, err := ParseUserToken(secret, strings.TrimSpace(raw))
		if err != nil {
			RespondError(c, err)
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// ParseUserToken проверяет подпись и срок токена и возвращает userId.
func ParseUserToken(secret []byte, raw string) (int64, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return 0, fmt.Errorf("%w: %v", common.ErrUnauthenticated, err)
	}

	if typ, _ := claims["typ"].(string); typ != "" && typ != tokenTypeAccess {
		return 0, fmt.Errorf("%w: тип токена %q", common.ErrUnauthenticated, typ)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return 0, fmt.Errorf("%w: нет sub", common.ErrUnauthenticated)
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || userID <= 0 {
		return 0, fmt.Errorf("%w: некорректный sub %q", common.ErrUnauthenticated, sub)
	}
	return userID, nil
}
