package domain

import (
	"context"
	"errors"
)

// Таксономия ошибок движка.
var (
	// ErrInvalidSchema — BPMN не парсится или неполный (нет process).
	ErrInvalidSchema = errors.New("invalid schema")

	// ErrNodeNotFound — не найден task / gateway / event / workflow.
	ErrNodeNotFound = errors.New("node not found")

	// ErrInvalidMessage — в конверте нет ни одного известного поля-дискриминатора.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrTransport — ошибка соединения или канала брокера.
	ErrTransport = errors.New("transport error")

	// ErrNetworkRequest — запрос во внешний сервис не удалось отправить.
	ErrNetworkRequest = errors.New("network request error")

	// ErrNetworkResponse — внешний сервис ответил ошибкой или некорректным ответом.
	ErrNetworkResponse = errors.New("network response error")

	// ErrTimeout — превышено время ожидания (коррелированный ответ или HTTP-вызов).
	ErrTimeout = errors.New("timeout")

	// ErrProviderFault — структурно успешный ответ, кодирующий бизнес-ошибку.
	ErrProviderFault = errors.New("provider fault")

	// ErrStatusRegression — попытка перевести ExternalServiceStatus назад.
	ErrStatusRegression = errors.New("external status regression")
)

// IsRetriable определяет, имеет ли смысл повторять обработку сообщения.
//
// Ошибки структуры (схема, отсутствующий узел, битое сообщение) при повторе
// не исправятся — такие сообщения подтверждаются, а ошибка пишется в журнал.
// Всё остальное (сеть, таймауты, БД) уходит в лестницу ретраев.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrNodeNotFound),
		errors.Is(err, ErrInvalidSchema),
		errors.Is(err, ErrInvalidMessage),
		errors.Is(err, ErrProviderFault),
		errors.Is(err, ErrStatusRegression),
		errors.Is(err, context.Canceled):
		return false
	default:
		return true
	}
}
