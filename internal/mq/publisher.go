package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Processa/internal/telemetry"
)

// Sender отправляет готовое сообщение в очередь (реализует Connection).
type Sender interface {
	Send(ctx context.Context, queue string, msg amqp.Publishing) error
}

// fatalCodes — ошибки AMQP, после которых процесс не восстанавливается
// сам: его перезапускает супервизор.
var fatalCodes = map[int]bool{
	amqp.ConnectionForced: true, // 320
	amqp.FrameError:       true, // 501
	amqp.ChannelError:     true, // 504
	amqp.UnexpectedFrame:  true, // 505
	amqp.InternalError:    true, // 541
}

// IsFatal сообщает, требует ли ошибка перезапуска процесса.
func IsFatal(err error) bool {
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		return fatalCodes[amqpErr.Code]
	}
	return false
}

// PublisherConfig — конфигурация Publisher.
type PublisherConfig struct {
	// Sender — транспорт.
	Sender Sender

	// Backoff — пауза перед единственным повтором.
	Backoff time.Duration

	// Fatal вызывается при фатальной ошибке транспорта.
	// По умолчанию: лог и os.Exit(1).
	Fatal func(err error)

	// Logger — логгер.
	Logger *slog.Logger
}

// Publisher публикует сообщения в очереди.
type Publisher struct {
	sender  Sender
	backoff time.Duration
	fatal   func(err error)
	logger  *slog.Logger
}

// NewPublisher создаёт Publisher.
func NewPublisher(cfg PublisherConfig) *Publisher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 2 * time.Second
	}
	if cfg.Fatal == nil {
		logger := cfg.Logger
		cfg.Fatal = func(err error) {
			logger.Error("fatal transport error, exiting", "error", err)
			os.Exit(1)
		}
	}

	return &Publisher{
		sender:  cfg.Sender,
		backoff: cfg.Backoff,
		fatal:   cfg.Fatal,
		logger:  cfg.Logger,
	}
}

// Publish сериализует сообщение, проставляет amqpMessageId
// и отправляет его в очередь. Возвращает amqpMessageId.
//
// Уже заданный в сообщении amqpMessageId сохраняется: так повторная
// отправка того же work item отсекается дедупликацией получателя.
// Иначе проставляется свежий.
//
// Сообщение должно сериализоваться в JSON объект.
func (p *Publisher) Publish(ctx context.Context, queue string, msg any) (string, error) {
	return p.publishJSON(ctx, queue, msg, amqp.Publishing{})
}

// PublishRequest публикует запрос, ответ на который ждут в очереди replyTo.
// correlationID попадает в свойство CorrelationId сообщения.
func (p *Publisher) PublishRequest(ctx context.Context, queue string, msg any, replyTo, correlationID string) (string, error) {
	return p.publishJSON(ctx, queue, msg, amqp.Publishing{
		ReplyTo:       replyTo,
		CorrelationId: correlationID,
	})
}

func (p *Publisher) publishJSON(ctx context.Context, queue string, msg any, props amqp.Publishing) (string, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}

	header, err := readHeader(body)
	if err != nil {
		return "", err
	}
	id := header.AMQPMessageID
	if id == "" {
		id = uuid.NewString()
		body, err = setField(body, "amqpMessageId", id)
		if err != nil {
			return "", err
		}
	}

	props.MessageId = id
	props.Body = body
	if err := p.send(ctx, queue, props); err != nil {
		return "", err
	}
	return id, nil
}

// PublishRaw отправляет готовое тело с заданным amqpMessageId.
// Используется лестницей ретраев: id сообщения сохраняется.
func (p *Publisher) PublishRaw(ctx context.Context, queue string, body []byte, messageID string) error {
	return p.send(ctx, queue, amqp.Publishing{MessageId: messageID, Body: body})
}

// send отправляет сообщение. При ошибке ждёт Backoff
// и повторяет ровно один раз.
func (p *Publisher) send(ctx context.Context, queue string, msg amqp.Publishing) error {
	msg.ContentType = "application/json"
	msg.DeliveryMode = amqp.Persistent // сообщение переживёт рестарт RabbitMQ
	msg.Timestamp = time.Now()
	messageID := msg.MessageId

	err := p.sender.Send(ctx, queue, msg)
	if err == nil {
		p.published(queue, messageID)
		return nil
	}

	if IsFatal(err) {
		p.fatal(err)
		return fmt.Errorf("%w: %v", ErrPublish, err)
	}

	p.logger.Warn("publish failed, retrying",
		"queue", queue,
		"message_id", messageID,
		"backoff", p.backoff,
		"error", err,
	)
	telemetry.PublishRetries.WithLabelValues(queue).Inc()

	timer := time.NewTimer(p.backoff)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	if err := p.sender.Send(ctx, queue, msg); err != nil {
		if IsFatal(err) {
			p.fatal(err)
		}
		return fmt.Errorf("%w: %s: %v", ErrPublish, queue, err)
	}

	p.published(queue, messageID)
	return nil
}

func (p *Publisher) published(queue, messageID string) {
	telemetry.MessagesPublished.WithLabelValues(queue).Inc()
	p.logger.Debug("published message",
		"queue", queue,
		"message_id", messageID,
	)
}
