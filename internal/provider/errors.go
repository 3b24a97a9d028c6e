package provider

import (
	"errors"
	"fmt"

	"github.com/shaiso/Processa/internal/domain"
)

// Ошибки провайдеров.
var (
	// ErrUnknownProviderType — providerType без реализации.
	ErrUnknownProviderType = errors.New("unknown provider type")

	// ErrUnknownService — сервиса нет в реестре.
	ErrUnknownService = fmt.Errorf("%w: unknown service", domain.ErrNodeNotFound)

	// ErrUnknownDecorator — декоратор не зарегистрирован.
	ErrUnknownDecorator = errors.New("unknown response decorator")

	// ErrMisconfigured — в определении сервиса не хватает полей.
	ErrMisconfigured = errors.New("provider misconfigured")

	// ErrNoDataID — в ответе нет ни id, ни признака успеха.
	ErrNoDataID = fmt.Errorf("%w: response has no data id", domain.ErrNetworkResponse)

	// ErrStatusUnsupported — сервис не умеет отдавать статус запроса.
	ErrStatusUnsupported = errors.New("status check not supported")
)
