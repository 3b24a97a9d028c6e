package mq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// SetupFunc — идемпотентная настройка, выполняемая после каждого
// подключения (объявление топологии).
type SetupFunc func(ch *amqp.Channel) error

// Имена служебных логических каналов.
const (
	channelSetup   = "setup"
	channelPublish = "publish"
)

// ConnectionConfig — конфигурация Connection.
type ConnectionConfig struct {
	// URL — адрес брокера.
	URL string

	// ReconnectDelay — фиксированная пауза между попытками переподключения.
	ReconnectDelay time.Duration

	// Logger — логгер.
	Logger *slog.Logger
}

// Connection — одно AMQP соединение с набором именованных логических каналов.
//
// Особенности:
// - Каналы открываются лениво по имени и переоткрываются после reconnect
// - Переподключение с фиксированной паузой
// - После каждого подключения выполняются зарегистрированные SetupFunc
// - Подписчики ReconnectNotify узнают о переподключении (broadcast)
type Connection struct {
	url            string
	reconnectDelay time.Duration
	logger         *slog.Logger

	mu       sync.RWMutex
	conn     *amqp.Connection
	channels map[string]*amqp.Channel
	setups   []SetupFunc

	closed   bool
	closedCh chan struct{}

	// reconnected закрывается при очередном переподключении
	// и заменяется новым.
	reconnected chan struct{}
}

// NewConnection создаёт соединение с RabbitMQ.
func NewConnection(cfg ConnectionConfig) (*Connection, error) {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Connection{
		url:            cfg.URL,
		reconnectDelay: cfg.ReconnectDelay,
		logger:         cfg.Logger,
		channels:       make(map[string]*amqp.Channel),
		closedCh:       make(chan struct{}),
		reconnected:    make(chan struct{}),
	}

	if err := c.connect(); err != nil {
		return nil, err
	}

	// Запускаем горутину для мониторинга соединения
	go c.watchConnection()

	return c, nil
}

// connect устанавливает соединение и выполняет setup-функции.
func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("%w: dial amqp: %v", ErrNotConnected, err)
	}

	c.conn = conn
	// Каналы старого соединения мертвы, откроются заново по запросу
	c.channels = make(map[string]*amqp.Channel)

	for _, setup := range c.setups {
		if err := c.runSetupLocked(setup); err != nil {
			conn.Close()
			c.conn = nil
			return err
		}
	}

	c.logger.Info("connected to RabbitMQ")
	return nil
}

// watchConnection следит за соединением и переподключается при разрыве.
func (c *Connection) watchConnection() {
	for {
		c.mu.RLock()
		if c.closed {
			c.mu.RUnlock()
			return
		}
		conn := c.conn
		c.mu.RUnlock()

		if conn == nil {
			c.reconnect()
			continue
		}

		// Ждём уведомления о закрытии соединения
		notifyClose := conn.NotifyClose(make(chan *amqp.Error, 1))

		select {
		case <-c.closedCh:
			return
		case err := <-notifyClose:
			if err != nil {
				c.logger.Warn("connection closed", "error", err)
			}
			c.reconnect()
		}
	}
}

// reconnect пытается переподключиться с фиксированной паузой.
func (c *Connection) reconnect() {
	for {
		c.logger.Info("attempting to reconnect", "delay", c.reconnectDelay)

		select {
		case <-c.closedCh:
			return
		case <-time.After(c.reconnectDelay):
		}

		if err := c.connect(); err != nil {
			c.logger.Warn("reconnect failed", "error", err)
			continue
		}

		c.logger.Info("reconnected to RabbitMQ")

		// Будим всех, кто ждёт переподключения
		c.mu.Lock()
		close(c.reconnected)
		c.reconnected = make(chan struct{})
		c.mu.Unlock()

		return
	}
}

// OnConnect регистрирует setup-функцию и сразу выполняет её на текущем
// соединении. После каждого переподключения она выполняется снова.
func (c *Connection) OnConnect(fn SetupFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setups = append(c.setups, fn)

	if c.conn == nil || c.conn.IsClosed() {
		// выполнится при переподключении
		return nil
	}
	return c.runSetupLocked(fn)
}

func (c *Connection) runSetupLocked(fn SetupFunc) error {
	ch, err := c.channelLocked(channelSetup)
	if err != nil {
		return err
	}
	if err := fn(ch); err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	return nil
}

// Channel возвращает логический канал по имени, открывая его при необходимости.
func (c *Connection) Channel(name string) (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channelLocked(name)
}

func (c *Connection) channelLocked(name string) (*amqp.Channel, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if c.conn == nil || c.conn.IsClosed() {
		return nil, ErrNotConnected
	}

	if ch, ok := c.channels[name]; ok && !ch.IsClosed() {
		return ch, nil
	}

	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%w: open channel %s: %v", ErrNotConnected, name, err)
	}
	c.channels[name] = ch
	return ch, nil
}

// WithChannel выполняет функцию на логическом канале.
func (c *Connection) WithChannel(ctx context.Context, name string, fn func(ch *amqp.Channel) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ch, err := c.Channel(name)
	if err != nil {
		return err
	}
	return fn(ch)
}

// Send публикует сообщение в очередь через default exchange.
// Реализует Sender.
func (c *Connection) Send(ctx context.Context, queue string, msg amqp.Publishing) error {
	return c.WithChannel(ctx, channelPublish, func(ch *amqp.Channel) error {
		return ch.PublishWithContext(ctx, "", queue, false, false, msg)
	})
}

// Consume начинает потребление очереди на собственном канале
// с ограничением prefetch. Реализует DeliverySource.
func (c *Connection) Consume(_ context.Context, queue string, prefetch int) (<-chan amqp.Delivery, error) {
	ch, err := c.Channel("consume:" + queue)
	if err != nil {
		return nil, err
	}

	// Устанавливаем prefetch
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("%w: set qos: %v", ErrNotConnected, err)
	}

	deliveries, err := ch.Consume(
		queue, // queue
		"",    // consumer tag (auto-generated)
		false, // auto-ack (мы ack вручную)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return nil, fmt.Errorf("%w: consume %s: %v", ErrNotConnected, queue, err)
	}

	return deliveries, nil
}

// ReconnectNotify возвращает канал, который закроется при следующем
// переподключении.
func (c *Connection) ReconnectNotify() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reconnected
}

// IsConnected проверяет, установлено ли соединение.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil {
		return false
	}
	return !c.conn.IsClosed()
}

// Close закрывает каналы и соединение.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.closedCh)

	var errs []error

	for name, ch := range c.channels {
		if ch.IsClosed() {
			continue
		}
		if err := ch.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel %s: %w", name, err))
		}
	}

	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}

	c.logger.Info("connection closed")
	return nil
}
