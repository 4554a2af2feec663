package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/engagement-engine/internal/common"
)

var secret = []byte("secret")

func sign(t *testing.T, claims jwt.MapClaims, key []byte) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func hashKey(t *testing.T, key string) string {
	t.Helper()
	hash, err := HashArgon2id(key)
	require.NoError(t, err)
	return hash
}

func TestParseUserToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()

	id, err := ParseUserToken(secret, sign(t, jwt.MapClaims{"sub": "42", "typ": "access", "exp": exp}, secret))
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	tests := map[string]string{
		"чужой ключ":   sign(t, jwt.MapClaims{"sub": "42", "exp": exp}, []byte("other")),
		"истёк":        sign(t, jwt.MapClaims{"sub": "42", "exp": time.Now().Add(-time.Minute).Unix()}, secret),
		"без exp":      sign(t, jwt.MapClaims{"sub": "42"}, secret),
		"refresh":      sign(t, jwt.MapClaims{"sub": "42", "typ": "refresh", "exp": exp}, secret),
		"sub не число": sign(t, jwt.MapClaims{"sub": "abc", "exp": exp}, secret),
		"sub ноль":     sign(t, jwt.MapClaims{"sub": "0", "exp": exp}, secret),
		"мусор":        "not.a.token",
	}
	for name, token := range tests {
		_, err := ParseUserToken(secret, token)
		assert.ErrorIs(t, err, common.ErrUnauthenticated, name)
	}
}

func TestAuthSetsUserID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", Auth(secret), func(c *gin.Context) {
		id, err := UserID(c)
		require.NoError(t, err)
		c.JSON(http.StatusOK, gin.H{"userId": id})
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+sign(t, jwt.MapClaims{"sub": "7", "exp": time.Now().Add(time.Hour).Unix()}, secret))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"userId":7}`, w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Basic abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"code":"UNAUTHENTICATED","message":"требуется аутентификация"}`, w.Body.String())
}

func TestVerifyArgon2id(t *testing.T) {
	hash := hashKey(t, "s3cret")
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=2$"))
	assert.True(t, VerifyArgon2id("s3cret", hash))
	assert.False(t, VerifyArgon2id("wrong", hash))
	assert.False(t, VerifyArgon2id("s3cret", "plain"))
	assert.False(t, VerifyArgon2id("s3cret", "$bcrypt$v=19$m=1,t=1,p=1$AAAA$AAAA"))
}

func TestOperatorBlocksAfterFailures(t *testing.T) {
	gin.SetMode(gin.TestMode)
	failures := NewRateLimiter(2, time.Hour)
	defer failures.Close()

	r := gin.New()
	r.POST("/op", Operator(hashKey(t, "good"), failures), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	call := func(key string) int {
		req := httptest.NewRequest(http.MethodPost, "/op", nil)
		if key != "" {
			req.Header.Set(OperatorKeyHeader, key)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, call("good"))
	assert.Equal(t, http.StatusForbidden, call(""))
	assert.Equal(t, http.StatusForbidden, call("bad"))
	// Лимит неудач исчерпан — даже верный ключ не проходит
	assert.Equal(t, http.StatusForbidden, call("good"))
}

func TestOperatorWithoutConfiguredHash(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/op", Operator("", nil), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodPost, "/op", nil)
	req.Header.Set(OperatorKeyHeader, "anything")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Hour)
	defer rl.Close()

	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Exhausted("a"))
	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Exhausted("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "ключи независимы")
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery())
	r.GET("/panic", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), common.CodeInternal)
}

func TestRespondErrorHidesInternals(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	RespondError(c, fmt.Errorf("pq: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"code":"INTERNAL","message":"внутренняя ошибка"}`, w.Body.String())
}

func TestRespondErrorLogsByClass(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hook := logtest.NewGlobal()
	level := log.GetLevel()
	log.SetLevel(log.DebugLevel)
	t.Cleanup(func() {
		log.SetLevel(level)
		log.StandardLogger().ReplaceHooks(make(log.LevelHooks))
	})

	respond := func(err error) int {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
		RespondError(c, err)
		return w.Code
	}

	assert.Equal(t, http.StatusBadRequest, respond(fmt.Errorf("%w: \"poke\"", common.ErrInvalidKind)))
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, log.DebugLevel, hook.LastEntry().Level)

	hook.Reset()
	assert.Equal(t, http.StatusNotFound, respond(common.ErrContentNotFound))
	assert.Empty(t, hook.AllEntries(), "ожидаемые отказы не логируются")

	assert.Equal(t, http.StatusInternalServerError, respond(fmt.Errorf("pq: connection refused")))
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, log.ErrorLevel, hook.LastEntry().Level)
}
