package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Processa/internal/cache"
	"github.com/shaiso/Processa/internal/config"
	"github.com/shaiso/Processa/internal/domain"
	"github.com/shaiso/Processa/internal/mq"
)

// Orchestrator — движок обхода графа процесса.
//
// Orchestrator потребляет очередь manager и на каждое уведомление
// о завершении узла вычисляет следующие узлы и отправляет им work items.
// Собственного состояния между сообщениями не держит: всё нужное
// читается из истории экземпляра.
type Orchestrator struct {
	// Storage
	graphs    Graphs
	instances Instances
	nodes     Nodes
	errorLog  ErrorLog
	notifier  Notifier

	// MQ
	publisher Publisher
	queues    config.Queues
	consumer  *mq.Consumer
	consume   mq.ConsumerConfig

	debug bool

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Storage
	Graphs    Graphs
	Instances Instances
	Nodes     Nodes
	ErrorLog  ErrorLog
	Notifier  Notifier

	// MQ
	Publisher Publisher
	Queues    config.Queues

	// Consumer очереди manager (не нужен, если Start не вызывается)
	Source      mq.DeliverySource
	Dedup       cache.Dedup
	Ladder      *mq.RetryLadder
	Republisher mq.Republisher
	DeadLetters mq.DeadLetterSink
	Prefetch    int

	// Debug — помечать work items флагом debug.
	Debug bool

	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		graphs:    cfg.Graphs,
		instances: cfg.Instances,
		nodes:     cfg.Nodes,
		errorLog:  cfg.ErrorLog,
		notifier:  cfg.Notifier,
		publisher: cfg.Publisher,
		queues:    cfg.Queues,
		debug:     cfg.Debug,
		consume: mq.ConsumerConfig{
			Queue:       cfg.Queues.Manager,
			Prefetch:    cfg.Prefetch,
			Source:      cfg.Source,
			Dedup:       cfg.Dedup,
			Ladder:      cfg.Ladder,
			Republisher: cfg.Republisher,
			DeadLetters: cfg.DeadLetters,
			Logger:      logger,
		},
		logger: logger,
	}
}

// Start запускает consumer очереди manager.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.consume.Source == nil {
		return fmt.Errorf("orchestrator: delivery source is not configured")
	}

	ctx, cancel := context.WithCancel(ctx)
	o.cancelFunc = cancel

	cc := o.consume
	cc.Handler = o.HandleMessage
	o.consumer = mq.NewConsumer(cc)

	o.logger.Info("starting orchestrator",
		"queue", cc.Queue,
		"prefetch", cc.Prefetch,
	)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.consumer.Start(ctx); err != nil {
			o.logger.Error("manager consumer error", "error", err)
		}
	}()

	return nil
}

// Stop останавливает Orchestrator и ждёт обработчики.
func (o *Orchestrator) Stop() {
	o.stoppedMu.Lock()
	o.stopped = true
	o.stoppedMu.Unlock()

	o.logger.Info("stopping orchestrator...")

	if o.cancelFunc != nil {
		o.cancelFunc()
	}
	if o.consumer != nil {
		o.consumer.Stop()
	}

	o.wg.Wait()
	o.logger.Info("orchestrator stopped")
}

// IsStopped проверяет, остановлен ли Orchestrator.
func (o *Orchestrator) IsStopped() bool {
	o.stoppedMu.RLock()
	defer o.stoppedMu.RUnlock()
	return o.stopped
}

// StartWorkflow создаёт экземпляр процесса и проходит граф
// от стартового события.
//
// Запуск с заданным req.WorkflowID идемпотентен: повтор находит
// уже созданный экземпляр и стартовое событие и проходит граф заново,
// только если прошлый запуск не дошёл до конца.
func (o *Orchestrator) StartWorkflow(ctx context.Context, req domain.StartRequest) (*domain.WorkflowInstance, error) {
	if o.IsStopped() {
		return nil, ErrStopped
	}

	// 1. Граф шаблона
	graph, ok := o.graphs.FindByID(req.WorkflowTemplateID)
	if !ok {
		return nil, fmt.Errorf("template %s: %w", req.WorkflowTemplateID, ErrTemplateNotLoaded)
	}
	starts := graph.StartEvents()
	if len(starts) == 0 {
		return nil, ErrNoStartEvent
	}

	// 2. Экземпляр
	inst, created, err := o.instanceFor(ctx, req)
	if err != nil {
		return nil, err
	}
	startClaim := "start:" + starts[0].ID
	if !created && inst.ClaimPublished(startClaim) {
		o.logger.Info("workflow already started, skipping", "workflow_id", inst.ID)
		return inst, nil
	}

	// 3. Стартовое событие считается выполненным
	start, err := o.startEventFor(ctx, inst, starts[0].ID)
	if err != nil {
		return nil, err
	}

	o.logger.Info("workflow started",
		"workflow_id", inst.ID,
		"template_id", inst.TemplateID,
		"start_event", start.TemplateNodeID,
		"retry", !created,
	)

	// 4. Обход от стартового события
	notice := domain.NoticeFor(start)
	notice.UserID = req.UserID
	if _, err := o.ProcessCompletion(ctx, &notice); err != nil {
		return inst, err
	}
	if err := o.instances.MarkClaimPublished(ctx, inst.ID, startClaim); err != nil {
		return inst, fmt.Errorf("mark start published: %w", err)
	}
	return inst, nil
}

// instanceFor возвращает экземпляр с req.WorkflowID, если он уже есть,
// иначе создаёт новый. created — экземпляр создан этим вызовом.
func (o *Orchestrator) instanceFor(ctx context.Context, req domain.StartRequest) (*domain.WorkflowInstance, bool, error) {
	id := req.WorkflowID
	if id == uuid.Nil {
		id = uuid.New()
	} else {
		inst, err := o.instances.GetByID(ctx, id)
		if err == nil {
			return inst, false, nil
		}
		if !errors.Is(err, domain.ErrNodeNotFound) {
			return nil, false, fmt.Errorf("get workflow %s: %w", id, err)
		}
	}

	inst := &domain.WorkflowInstance{
		ID:         id,
		TemplateID: req.WorkflowTemplateID,
		UserID:     req.UserID,
		Payload:    req.Payload,
		History:    []domain.HistoryMessage{},
		CreatedAt:  time.Now().UTC(),
	}
	if err := o.instances.Create(ctx, inst); err != nil {
		return nil, false, fmt.Errorf("create workflow: %w", err)
	}
	return inst, true, nil
}

// startEventFor возвращает запись стартового события экземпляра.
// ID записи выводится из ID экземпляра, поэтому повтор запуска
// находит уже созданную запись.
func (o *Orchestrator) startEventFor(ctx context.Context, inst *domain.WorkflowInstance, templateNodeID string) (*domain.NodeRecord, error) {
	id := uuid.NewSHA1(inst.ID, []byte("start-event:"+templateNodeID))

	start, err := o.nodes.GetByID(ctx, id)
	if err == nil {
		return start, nil
	}
	if !errors.Is(err, domain.ErrNodeNotFound) {
		return nil, fmt.Errorf("get start event: %w", err)
	}

	start = &domain.NodeRecord{
		ID:             id,
		WorkflowID:     inst.ID,
		Kind:           domain.NodeKindEvent,
		TemplateNodeID: templateNodeID,
		Status:         domain.NodeStatusCompleted,
		CreatedAt:      time.Now().UTC(),
	}
	if err := o.nodes.Create(ctx, start); err != nil {
		return nil, fmt.Errorf("create start event: %w", err)
	}
	return start, nil
}
