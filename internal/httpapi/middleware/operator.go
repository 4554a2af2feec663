package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/argon2"

	"serotonyl.ru/engagement-engine/internal/common"
)

// OperatorKeyHeader — заголовок с операторским ключом.
const OperatorKeyHeader = "X-Operator-Key"

// Operator пускает только запросы с верным операторским ключом.
// Неудачные попытки считаются по IP: после исчерпания лимита запросы
// отклоняются без проверки хеша.
func Operator(encodedHash string, failures *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if failures != nil && failures.Exhausted(ip) {
			log.WithField("ip", ip).Warn("Операторский доступ заблокирован: слишком много попыток")
			RespondError(c, common.ErrForbidden)
			return
		}

		key := c.GetHeader(OperatorKeyHeader)
		if encodedHash == "" || key == "" || !VerifyArgon2id(key, encodedHash) {
			if failures != nil {
				failures.Allow(ip)
			}
			log.WithField("ip", ip).Warn("Неверный операторский ключ")
			RespondError(c, common.ErrForbidden)
			return
		}
		c.Next()
	}
}

// VerifyArgon2id проверяет ключ по хешу Argon2id.
// Формат хеша: $argon2id$v=19$m=65536,t=3,p=2$<salt_base64>$<hash_base64>
func VerifyArgon2id(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		log.Error("Некорректный формат хеша Argon2id")
		return false
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		log.WithError(err).Error("Ошибка парсинга параметров Argon2id")
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования соли")
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования хеша")
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expected)))

	// Сравнение в постоянном времени
	return subtle.ConstantTimeCompare(computed, expected) == 1
}

// Параметры Argon2id для новых операторских ключей
const (
	argonMemory      uint32 = 64 * 1024
	argonIterations  uint32 = 3
	argonParallelism uint8  = 2
	argonKeyLength   uint32 = 32
)

// HashArgon2id считает хеш ключа со случайной солью в формате,
// который понимает VerifyArgon2id. Результат кладётся в OPERATOR_KEY_HASH.
func HashArgon2id(key string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("ошибка генерации соли: %w", err)
	}
	hash := argon2.IDKey([]byte(key), salt, argonIterations, argonMemory, argonParallelism, argonKeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonIterations, argonParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash)), nil
}
