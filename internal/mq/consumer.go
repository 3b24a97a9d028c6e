package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Processa/internal/cache"
	"github.com/shaiso/Processa/internal/telemetry"
)

// Исходы обработки сообщения (метка метрики MessagesConsumed).
const (
	OutcomeAck     = "ack"
	OutcomeDedup   = "dedup"
	OutcomeRetry   = "retry"
	OutcomeDead    = "dead"
	OutcomeRequeue = "requeue"
)

// Handler — функция обработки сообщения.
// Возвращает error, если обработка не удалась.
type Handler func(ctx context.Context, d *Delivery) error

// Delivery — доставленное сообщение.
type Delivery struct {
	// Queue — очередь, из которой пришло сообщение.
	Queue string

	// Body — сырое тело (JSON).
	Body []byte

	// MessageID — amqpMessageId.
	MessageID string

	// RetryIterator — сколько ступеней лестницы уже пройдено.
	RetryIterator int

	// Raw — сырое AMQP сообщение.
	Raw amqp.Delivery
}

// DeliverySource выдаёт поток доставок очереди (реализует Connection).
type DeliverySource interface {
	Consume(ctx context.Context, queue string, prefetch int) (<-chan amqp.Delivery, error)
	ReconnectNotify() <-chan struct{}
}

// Republisher повторно публикует тело с сохранением id (реализует Publisher).
type Republisher interface {
	PublishRaw(ctx context.Context, queue string, body []byte, messageID string) error
}

// DeadLetter — сообщение, для которого кончилась лестница ретраев.
type DeadLetter struct {
	Queue         string
	MessageID     string
	Body          []byte
	RetryIterator int
	Error         string
}

// DeadLetterSink — постоянный журнал таких сообщений.
type DeadLetterSink interface {
	RecordDeadLetter(ctx context.Context, dl DeadLetter) error
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Queue — имя очереди.
	Queue string

	// Handler — обработчик сообщений.
	Handler Handler

	// Prefetch — максимум сообщений в обработке одновременно.
	Prefetch int

	// Source — источник доставок.
	Source DeliverySource

	// Dedup — кэш обработанных amqpMessageId. nil — без дедупликации.
	Dedup cache.Dedup

	// Ladder и Republisher — лестница ретраев. Если не заданы,
	// упавшее сообщение возвращается в очередь (nack requeue).
	Ladder      *RetryLadder
	Republisher Republisher

	// DeadLetters — куда писать сообщения после лестницы.
	DeadLetters DeadLetterSink

	// ResubscribeDelay — пауза перед повторной подпиской, если поток
	// доставок закрылся без разрыва соединения (брокер закрыл канал).
	ResubscribeDelay time.Duration

	Logger *slog.Logger
}

// Consumer потребляет сообщения из очереди.
//
// Обработчики выполняются в отдельных горутинах, одновременно
// не больше Prefetch.
type Consumer struct {
	cfg    ConsumerConfig
	logger *slog.Logger

	sem chan struct{}
	wg  sync.WaitGroup

	cancelFunc context.CancelFunc
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(cfg ConsumerConfig) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ResubscribeDelay <= 0 {
		cfg.ResubscribeDelay = 5 * time.Second
	}

	return &Consumer{
		cfg:    cfg,
		logger: cfg.Logger.With("queue", cfg.Queue),
		sem:    make(chan struct{}, cfg.Prefetch),
	}
}

// Start запускает потребление и блокируется до отмены ctx или Stop.
// Перед возвратом дожидается обработчиков, которые уже выполняются.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel
	defer cancel()

	err := c.consume(ctx)
	c.wg.Wait()
	return err
}

// consume — основной цикл потребления.
func (c *Consumer) consume(ctx context.Context) error {
	for {
		// Подписываемся на переподключение до попытки consume,
		// чтобы не пропустить его
		reconnected := c.cfg.Source.ReconnectNotify()

		deliveries, err := c.cfg.Source.Consume(ctx, c.cfg.Queue, c.cfg.Prefetch)
		if err != nil {
			c.logger.Error("failed to setup consume", "error", err)
		} else {
			c.logger.Info("consumer started", "prefetch", c.cfg.Prefetch)
			c.processDeliveries(ctx, deliveries)
		}

		if ctx.Err() != nil {
			return nil
		}

		// Закрыт только канал: соединение живо, переподключения не будет.
		// Connection откроет канал заново при следующем Consume
		c.logger.Warn("deliveries stopped, resubscribing", "delay", c.cfg.ResubscribeDelay)
		timer := time.NewTimer(c.cfg.ResubscribeDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-reconnected:
			timer.Stop()
			c.logger.Info("reconnected, restarting consumer")
		case <-timer.C:
		}
	}
}

// processDeliveries раздаёт сообщения обработчикам, пока канал открыт.
func (c *Consumer) processDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return

		case raw, ok := <-deliveries:
			if !ok {
				return
			}

			// Слот семафора: не больше Prefetch обработчиков
			select {
			case c.sem <- struct{}{}:
			case <-ctx.Done():
				// сообщение вернётся брокеру при закрытии канала
				return
			}

			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				defer func() { <-c.sem }()
				c.HandleDelivery(ctx, raw)
			}()
		}
	}
}

// HandleDelivery обрабатывает одно сообщение:
// dedup → обработчик → ack, или ретрай / dead letter.
func (c *Consumer) HandleDelivery(ctx context.Context, raw amqp.Delivery) {
	h, err := readHeader(raw.Body)
	if err != nil {
		// Тело не разобрать — повтор не поможет
		c.logger.Error("failed to parse message", "error", err, "body", telemetry.Redact(raw.Body, 512))
		c.deadLetter(ctx, raw, Delivery{Queue: c.cfg.Queue, Body: raw.Body, MessageID: raw.MessageId}, err)
		return
	}

	d := &Delivery{
		Queue:         c.cfg.Queue,
		Body:          raw.Body,
		MessageID:     h.AMQPMessageID,
		RetryIterator: h.RetryIterator,
		Raw:           raw,
	}
	if d.MessageID == "" {
		d.MessageID = raw.MessageId
	}

	logger := telemetry.WithMessageID(c.logger, d.MessageID)

	// 1. Дедупликация
	if c.cfg.Dedup != nil && d.MessageID != "" {
		seen, err := c.cfg.Dedup.Seen(ctx, d.MessageID)
		if err != nil {
			logger.Warn("dedup check failed, processing anyway", "error", err)
		}
		if seen {
			logger.Info("duplicate delivery, acknowledging")
			c.ack(raw, OutcomeDedup, logger)
			return
		}
	}

	logger.Debug("received message", "retry_iterator", d.RetryIterator)

	// 2. Обработчик
	if err := c.cfg.Handler(ctx, d); err != nil {
		logger.Error("handler failed", "retry_iterator", d.RetryIterator, "error", err)
		c.retry(ctx, raw, d, err, logger)
		return
	}

	// 3. Успех: ack и отметка в dedup-кэше
	c.ack(raw, OutcomeAck, logger)

	if c.cfg.Dedup != nil && d.MessageID != "" {
		if err := c.cfg.Dedup.MarkProcessed(ctx, d.MessageID); err != nil {
			logger.Warn("failed to mark message processed", "error", err)
		}
	}
}

// retry отправляет упавшее сообщение на следующую ступень лестницы.
func (c *Consumer) retry(ctx context.Context, raw amqp.Delivery, d *Delivery, cause error, logger *slog.Logger) {
	if c.cfg.Ladder == nil || c.cfg.Republisher == nil {
		c.nack(raw, logger)
		return
	}

	queue, ok := c.cfg.Ladder.QueueFor(c.cfg.Queue, d.RetryIterator)
	if !ok {
		logger.Error("retry ladder exhausted", "retry_iterator", d.RetryIterator)
		c.deadLetter(ctx, raw, *d, cause)
		return
	}

	body, err := SetRetryIterator(d.Body, d.RetryIterator+1)
	if err != nil {
		c.deadLetter(ctx, raw, *d, err)
		return
	}

	if err := c.cfg.Republisher.PublishRaw(ctx, queue, body, d.MessageID); err != nil {
		logger.Error("failed to republish to retry queue", "retry_queue", queue, "error", err)
		c.nack(raw, logger)
		return
	}

	logger.Info("message scheduled for retry", "retry_queue", queue, "retry_iterator", d.RetryIterator+1)
	c.ack(raw, OutcomeRetry, logger)
}

// deadLetter пишет сообщение в постоянный журнал и подтверждает его.
// Если записать не удалось, сообщение возвращается в очередь.
func (c *Consumer) deadLetter(ctx context.Context, raw amqp.Delivery, d Delivery, cause error) {
	if c.cfg.DeadLetters != nil {
		err := c.cfg.DeadLetters.RecordDeadLetter(ctx, DeadLetter{
			Queue:         c.cfg.Queue,
			MessageID:     d.MessageID,
			Body:          d.Body,
			RetryIterator: d.RetryIterator,
			Error:         fmt.Sprint(cause),
		})
		if err != nil {
			c.logger.Error("failed to record dead letter", "message_id", d.MessageID, "error", err)
			c.nack(raw, c.logger)
			return
		}
	}
	c.ack(raw, OutcomeDead, c.logger)
}

func (c *Consumer) ack(raw amqp.Delivery, outcome string, logger *slog.Logger) {
	if err := raw.Ack(false); err != nil {
		logger.Warn("ack failed", "error", err)
	}
	telemetry.MessagesConsumed.WithLabelValues(c.cfg.Queue, outcome).Inc()
}

func (c *Consumer) nack(raw amqp.Delivery, logger *slog.Logger) {
	if err := raw.Nack(false, true); err != nil {
		logger.Warn("nack failed", "error", err)
	}
	telemetry.MessagesConsumed.WithLabelValues(c.cfg.Queue, OutcomeRequeue).Inc()
}

// Stop останавливает consumer.
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}

// Decode разбирает тело доставки в значение.
func Decode[T any](d *Delivery) (T, error) {
	var result T
	if err := json.Unmarshal(d.Body, &result); err != nil {
		return result, fmt.Errorf("unmarshal %s message: %w", d.Queue, err)
	}
	return result, nil
}
