package cache

import (
	"context"
	"errors"
)

// ErrEmptyID — пустой amqpMessageId нельзя дедуплицировать.
var ErrEmptyID = errors.New("empty message id")

// Dedup — кэш обработанных amqpMessageId.
//
// Проверка и запись разделены: отметка ставится только после успешной
// обработки. Гонка двух обработчиков одного id допустима: оба
// обрабатывают одно и то же сообщение, побеждает последний записавший.
type Dedup interface {
	// Seen сообщает, обработан ли уже id.
	Seen(ctx context.Context, id string) (bool, error)

	// MarkProcessed ставит отметку об обработке на TTL.
	MarkProcessed(ctx context.Context, id string) error
}
