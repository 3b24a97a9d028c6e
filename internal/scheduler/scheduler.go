package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job — периодическая задача.
type Job func(ctx context.Context) error

// Config — конфигурация Scheduler.
type Config struct {
	Logger *slog.Logger
}

// Scheduler — набор периодических задач одного процесса.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	ctx        context.Context
	cancelFunc context.CancelFunc
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cl := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:     logger,
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Every регистрирует задачу с фиксированным интервалом.
func (s *Scheduler) Every(name string, interval time.Duration, job Job) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	return s.Cron(name, EverySpec(interval), job)
}

// Cron регистрирует задачу по cron-выражению.
func (s *Scheduler) Cron(name, spec string, job Job) error {
	if err := ValidateSpec(spec); err != nil {
		return fmt.Errorf("register job %s: %w", name, err)
	}

	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		if err := job(s.ctx); err != nil {
			s.logger.Error("scheduled job failed", "job", name, "error", err)
			return
		}
		s.logger.Debug("scheduled job completed", "job", name, "duration", time.Since(start))
	})
	if err != nil {
		return fmt.Errorf("register job %s: %w", name, err)
	}
	next, _ := NextRun(spec, time.Now())
	s.logger.Info("scheduled job registered", "job", name, "spec", spec, "next_run", next)
	return nil
}

// Start запускает планировщик. Отмена ctx останавливает его.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.ctx.Done():
		}
	}()
}

// Stop останавливает планировщик и дожидается выполняющихся задач.
func (s *Scheduler) Stop() {
	s.cancelFunc()
	<-s.cron.Stop().Done()
}

// Len возвращает количество зарегистрированных задач.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// cronLogger адаптирует slog к cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
