package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Processa/internal/cache"
	"github.com/shaiso/Processa/internal/config"
	"github.com/shaiso/Processa/internal/domain"
	"github.com/shaiso/Processa/internal/mq"
)

// Worker выполняет узлы одного вида (роль task, gateway или event).
//
// Worker — stateless компонент: берёт work item из очереди своей роли,
// создаёт запись узла, выполняет его и отправляет в manager уведомление
// о завершении. Несколько экземпляров одной роли потребляют одну очередь.
type Worker struct {
	role domain.NodeKind

	// Storage
	graphs    Graphs
	instances Instances
	nodes     Nodes
	statuses  Statuses
	errorLog  ErrorLog

	// MQ
	publisher Publisher
	queues    config.Queues
	consume   mq.ConsumerConfig
	replies   mq.Handler

	registry *Registry

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	// Role — task / gateway / event.
	Role string

	// Storage
	Graphs    Graphs
	Instances Instances
	Nodes     Nodes
	Statuses  Statuses
	ErrorLog  ErrorLog

	// Providers — внешние сервисы задач (только роль task).
	Providers Providers

	// Registry (опционально; если nil — NewRegistry(Providers))
	Registry *Registry

	// MQ
	Publisher Publisher
	Queues    config.Queues

	// Consumer очереди роли
	Source      mq.DeliverySource
	Dedup       cache.Dedup
	Ladder      *mq.RetryLadder
	Republisher mq.Republisher
	DeadLetters mq.DeadLetterSink
	Prefetch    int

	// Replies — обработчик ответов standard-rmq сервисов
	// (provider.ResponseHandler). Потребляет Queues.Replies в роли task.
	Replies mq.Handler

	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) (*Worker, error) {
	role, queue, err := roleQueue(cfg.Role, cfg.Queues)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("role", string(role))

	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry(cfg.Providers)
	}

	return &Worker{
		role:      role,
		graphs:    cfg.Graphs,
		instances: cfg.Instances,
		nodes:     cfg.Nodes,
		statuses:  cfg.Statuses,
		errorLog:  cfg.ErrorLog,
		publisher: cfg.Publisher,
		queues:    cfg.Queues,
		replies:   cfg.Replies,
		registry:  registry,
		consume: mq.ConsumerConfig{
			Queue:       queue,
			Prefetch:    cfg.Prefetch,
			Source:      cfg.Source,
			Dedup:       cfg.Dedup,
			Ladder:      cfg.Ladder,
			Republisher: cfg.Republisher,
			DeadLetters: cfg.DeadLetters,
			Logger:      logger,
		},
		logger: logger,
	}, nil
}

// roleQueue возвращает вид узлов роли и её очередь чтения.
func roleQueue(role string, q config.Queues) (domain.NodeKind, string, error) {
	switch role {
	case config.RoleTask:
		return domain.NodeKindTask, q.Task, nil
	case config.RoleGateway:
		return domain.NodeKindGateway, q.Gateway, nil
	case config.RoleEvent:
		return domain.NodeKindEvent, q.Event, nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
}

// Role возвращает вид узлов, которые выполняет Worker.
func (w *Worker) Role() domain.NodeKind {
	return w.role
}

// Start запускает consumer'ы и возвращается сразу.
//
// Запускает:
//   - consumer очереди роли
//   - consumer очереди ответов standard-rmq (роль task, если задан Replies)
func (w *Worker) Start(ctx context.Context) error {
	if w.consume.Source == nil {
		return fmt.Errorf("worker: delivery source is not configured")
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	consumers := []*mq.Consumer{w.newConsumer(w.consume.Queue, w.HandleMessage)}
	if w.role == domain.NodeKindTask && w.replies != nil && w.queues.Replies != "" {
		consumers = append(consumers, w.newConsumer(w.queues.Replies, w.replies))
	}

	w.logger.Info("starting worker",
		"queue", w.consume.Queue,
		"prefetch", w.consume.Prefetch,
		"consumers", len(consumers),
	)

	// Consumer'ы живут вместе: падение одного останавливает остальные
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range consumers {
		g.Go(func() error {
			return c.Start(gctx)
		})
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("worker consumer error", "error", err)
		}
	}()

	w.logger.Info("worker started")
	return nil
}

func (w *Worker) newConsumer(queue string, handler mq.Handler) *mq.Consumer {
	cc := w.consume
	cc.Queue = queue
	cc.Handler = handler
	return mq.NewConsumer(cc)
}

// Stop останавливает Worker и ждёт обработчики.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	// Ждём завершения consumer'ов
	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}
