// Package common — errors.go определяет ошибки, которые используются во всех модулях движка.
// Эти ошибки позволяют обработчикам различать типы проблем
// и отдавать клиенту стабильный код ошибки.
package common

import (
	"errors"
	"net/http"
)

// Коды ошибок на проводе. Клиенты завязываются на них, а не на текст.
const (
	CodeInvalidKind     = "INVALID_KIND"
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeNotFound        = "NOT_FOUND"
	CodeNotPublished    = "NOT_PUBLISHED"
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeForbidden       = "FORBIDDEN"
	CodeUnavailable     = "UNAVAILABLE"
	CodeRateLimited     = "RATE_LIMITED"
	CodeInternal        = "INTERNAL"
)

// Ошибки валидации — отклоняются до начала транзакции
var (
	// ErrInvalidKind — неизвестный тип взаимодействия
	ErrInvalidKind = errors.New("неизвестный тип взаимодействия")
	// ErrInvalidAction — неизвестное желаемое действие (toggle/add/remove)
	ErrInvalidAction = errors.New("неизвестное действие")
	// ErrInvalidContentID — пустой или слишком длинный идентификатор контента
	ErrInvalidContentID = errors.New("некорректный идентификатор контента")
	// ErrInvalidUserID — пользователь не задан
	ErrInvalidUserID = errors.New("некорректный идентификатор пользователя")
	// ErrInvalidRequest — тело запроса не разобралось
	ErrInvalidRequest = errors.New("некорректный запрос")
)

// Ошибки каталога контента — отдаются вызывающему как есть
var (
	// ErrContentNotFound — контент не существует
	ErrContentNotFound = errors.New("контент не найден")
	// ErrContentNotPublished — контент существует, но не опубликован
	ErrContentNotPublished = errors.New("контент не опубликован")
	// ErrCatalogUnavailable — каталог не ответил
	ErrCatalogUnavailable = errors.New("каталог контента недоступен")
)

// Ошибки хранилища
var (
	// ErrConflict — параллельная вставка дубликата. Наружу НЕ выходит,
	// координатор превращает её в noop.
	ErrConflict = errors.New("конфликт уникальности")
	// ErrDrift — счётчик разошёлся с журналом. Синхронно наружу не выходит,
	// уходит в ремонт аудитором.
	ErrDrift = errors.New("счётчик разошёлся с журналом")
)

// Ошибки доступа
var (
	// ErrUnauthenticated — нет или невалидный токен пользователя
	ErrUnauthenticated = errors.New("требуется аутентификация")
	// ErrForbidden — нет операторских прав
	ErrForbidden = errors.New("недостаточно прав")
)

// Code возвращает стабильный код ошибки для ответа клиенту.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidKind):
		return CodeInvalidKind
	case errors.Is(err, ErrInvalidAction),
		errors.Is(err, ErrInvalidContentID),
		errors.Is(err, ErrInvalidUserID),
		errors.Is(err, ErrInvalidRequest):
		return CodeInvalidArgument
	case errors.Is(err, ErrContentNotFound):
		return CodeNotFound
	case errors.Is(err, ErrContentNotPublished):
		return CodeNotPublished
	case errors.Is(err, ErrCatalogUnavailable):
		return CodeUnavailable
	case errors.Is(err, ErrUnauthenticated):
		return CodeUnauthenticated
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	default:
		return CodeInternal
	}
}

// HTTPStatus сопоставляет ошибку со статусом HTTP.
func HTTPStatus(err error) int {
	switch Code(err) {
	case "":
		return http.StatusOK
	case CodeInvalidKind, CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeNotPublished:
		return http.StatusConflict
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// IsValidation сообщает, что ошибка относится к ошибкам валидации входа.
func IsValidation(err error) bool {
	return Code(err) == CodeInvalidKind || Code(err) == CodeInvalidArgument
}
