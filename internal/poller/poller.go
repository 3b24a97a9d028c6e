package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Processa/internal/domain"
	"github.com/shaiso/Processa/internal/provider"
	"github.com/shaiso/Processa/internal/repo"
	"github.com/shaiso/Processa/internal/scheduler"
	"github.com/shaiso/Processa/internal/telemetry"
)

const (
	defaultInterval  = time.Minute
	defaultBatchSize = 100
)

// Statuses — статусы асинхронных запросов (repo.ExternalStatusRepo).
type Statuses interface {
	ListOpen(ctx context.Context, limit int) ([]domain.ExternalServiceStatus, error)
	UpdateState(ctx context.Context, s *domain.ExternalServiceStatus, from domain.ExternalState) error
}

// Checkers — проверки статуса по имени сервиса (provider.Registry).
type Checkers interface {
	StatusChecker(service string) (provider.StatusChecker, bool)
}

// Nodes — записи узлов (repo.NodeRepo).
type Nodes interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.NodeRecord, error)
	Update(ctx context.Context, n *domain.NodeRecord) error
}

// Publisher — отправка уведомлений в manager (mq.Publisher).
type Publisher interface {
	Publish(ctx context.Context, queue string, msg any) (string, error)
}

// Config — конфигурация Poller.
type Config struct {
	Statuses  Statuses
	Checkers  Checkers
	Nodes     Nodes
	Publisher Publisher

	// ManagerQueue — очередь уведомлений о завершении.
	ManagerQueue string

	Interval  time.Duration // default: 1m
	BatchSize int           // default: 100

	Logger *slog.Logger
}

// Stats — итог одного опроса.
type Stats struct {
	Checked  int
	Advanced int
	Notified int
	Failed   int
}

// Poller — демон опроса статусов внешних сервисов.
type Poller struct {
	statuses  Statuses
	checkers  Checkers
	nodes     Nodes
	publisher Publisher
	queue     string

	interval  time.Duration
	batchSize int

	sched  *scheduler.Scheduler
	logger *slog.Logger
}

// New создаёт новый Poller.
func New(cfg Config) *Poller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Poller{
		statuses:  cfg.Statuses,
		checkers:  cfg.Checkers,
		nodes:     cfg.Nodes,
		publisher: cfg.Publisher,
		queue:     cfg.ManagerQueue,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Start запускает опрос каждые Interval. Первый опрос — через Interval.
func (p *Poller) Start(ctx context.Context) error {
	p.sched = scheduler.New(scheduler.Config{Logger: p.logger})
	if err := p.sched.Every("external-status-poll", p.interval, p.pollJob); err != nil {
		return err
	}
	p.sched.Start(ctx)

	p.logger.Info("poller started", "interval", p.interval, "batch_size", p.batchSize)
	return nil
}

// Stop останавливает опрос и ждёт текущий проход.
func (p *Poller) Stop() {
	if p.sched != nil {
		p.sched.Stop()
	}
	p.logger.Info("poller stopped")
}

func (p *Poller) pollJob(ctx context.Context) error {
	stats, err := p.Poll(ctx)
	if err != nil {
		return err
	}
	if stats.Checked > 0 {
		p.logger.Info("external statuses polled",
			"checked", stats.Checked,
			"advanced", stats.Advanced,
			"notified", stats.Notified,
			"failed", stats.Failed,
		)
	}
	return nil
}

// Poll выполняет один проход по открытым статусам.
//
// Ошибка одного статуса не останавливает проход: она логируется
// и учитывается в Stats.Failed.
func (p *Poller) Poll(ctx context.Context) (Stats, error) {
	var stats Stats

	open, err := p.statuses.ListOpen(ctx, p.batchSize)
	if err != nil {
		return stats, fmt.Errorf("list open statuses: %w", err)
	}

	for i := range open {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		s := &open[i]
		stats.Checked++

		advanced, notified, err := p.check(ctx, s)
		if err != nil {
			stats.Failed++
			p.logger.Warn("external status check failed",
				"status_id", s.ID,
				"workflow_id", s.WorkflowID,
				"service", s.Service,
				"error", err,
			)
			continue
		}
		if advanced {
			stats.Advanced++
		}
		if notified {
			stats.Notified++
		}
	}
	return stats, nil
}

// check опрашивает сервис по одному статусу.
func (p *Poller) check(ctx context.Context, s *domain.ExternalServiceStatus) (advanced, notified bool, err error) {
	logger := telemetry.WithWorkflowID(p.logger, s.WorkflowID.String())

	// 1. Проверка статуса у сервиса
	checker, ok := p.checkers.StatusChecker(s.Service)
	if !ok {
		return false, false, fmt.Errorf("%w: %s", provider.ErrStatusUnsupported, s.Service)
	}
	state, details, err := checker.CheckStatus(ctx, s)
	if err != nil {
		return false, false, err
	}

	// 2. Только вперёд
	from := s.State
	changed, err := s.Advance(state, details)
	if err != nil {
		return false, false, err
	}
	if !changed {
		return false, false, nil
	}

	// 3. Терминальное состояние: сначала узел и уведомление manager.
	// Если они не прошли, статус остаётся открытым и проверяется снова
	if s.State.IsTerminal() {
		if err := p.complete(ctx, s); err != nil {
			return false, false, err
		}
		notified = true
	}

	// 4. Условная запись: переход забирает тот, кто записал первым
	if err := p.statuses.UpdateState(ctx, s, from); err != nil {
		if errors.Is(err, repo.ErrInvalidState) {
			logger.Debug("status advanced concurrently", "status_id", s.ID)
			return false, false, nil
		}
		return false, false, err
	}

	telemetry.ExternalStatusTransitions.WithLabelValues(s.Service, string(s.State)).Inc()
	logger.Info("external status advanced",
		"status_id", s.ID,
		"service", s.Service,
		"from", from,
		"to", s.State,
	)
	return true, notified, nil
}

// complete завершает ожидающий узел и публикует {taskId}.
//
// amqpMessageId уведомления выводится из статуса и его состояния:
// повторное завершение того же статуса отсекает дедупликация manager'а.
func (p *Poller) complete(ctx context.Context, s *domain.ExternalServiceStatus) error {
	node, err := p.nodes.GetByID(ctx, s.NodeID)
	if err != nil {
		return fmt.Errorf("get waiting node %s: %w", s.NodeID, err)
	}

	outputs := node.Outputs
	if outputs == nil {
		outputs = make(map[string]any)
	}
	outputs["externalState"] = string(s.State)
	if s.Details != nil {
		outputs["externalDetails"] = s.Details
	}

	node.MarkCompleted(outputs)
	if err := p.nodes.Update(ctx, node); err != nil {
		return fmt.Errorf("complete node %s: %w", node.ID, err)
	}

	notice := domain.NoticeFor(node)
	notice.AMQPMessageID = completionMessageID(s)
	if _, err := p.publisher.Publish(ctx, p.queue, notice); err != nil {
		return fmt.Errorf("publish completion of %s: %w", node.ID, err)
	}
	return nil
}

func completionMessageID(s *domain.ExternalServiceStatus) string {
	return uuid.NewSHA1(s.ID, []byte(s.State)).String()
}
