package mq

import (
	"errors"
	"fmt"

	"github.com/shaiso/Processa/internal/domain"
)

// Ошибки транспорта. Все оборачивают domain.ErrTransport.
var (
	// ErrClosed — соединение закрыто через Close.
	ErrClosed = fmt.Errorf("%w: connection closed", domain.ErrTransport)

	// ErrNotConnected — соединения сейчас нет (идёт переподключение).
	ErrNotConnected = fmt.Errorf("%w: not connected", domain.ErrTransport)

	// ErrPublish — публикация не удалась и после повтора.
	ErrPublish = fmt.Errorf("%w: publish failed", domain.ErrTransport)
)

// ErrNotJSONObject — тело сообщения не JSON объект.
var ErrNotJSONObject = errors.New("message body is not a json object")
