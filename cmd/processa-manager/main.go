// Processa Manager — движок обхода графов процессов.
//
// Manager:
//   - Держит Schema Cache активных шаблонов (перезагрузка по расписанию)
//   - Потребляет очередь manager: запуски процессов и уведомления о завершении узлов
//   - Отправляет work items в очереди task / gateway / event
//   - Отдаёт HTTP API: шаблоны, запуск и просмотр процессов, /healthz, /metrics
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/Processa/internal/api"
	"github.com/shaiso/Processa/internal/app"
	"github.com/shaiso/Processa/internal/orchestrator"
	"github.com/shaiso/Processa/internal/repo"
	"github.com/shaiso/Processa/internal/schema"
)

func main() {
	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, "processa-manager")
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()
	logger := a.Logger
	cfg := a.Config

	// Создаём репозитории
	templateRepo := repo.NewTemplateRepo(a.Pool)
	instanceRepo := repo.NewInstanceRepo(a.Pool)
	nodeRepo := repo.NewNodeRepo(a.Pool)
	errorRepo := repo.NewErrorLogRepo(a.Pool)

	// Schema Cache
	schemas := schema.New(schema.Config{Source: templateRepo, Logger: logger})
	if err := schemas.Start(ctx, cfg.SchemaReloadInterval); err != nil {
		logger.Error("failed to load workflow templates", "error", err)
		os.Exit(1)
	}
	defer schemas.Stop()

	// Orchestrator
	cc := a.Consumer(cfg.Queues.Manager, nil)
	orch := orchestrator.New(orchestrator.Config{
		Graphs:      schemas,
		Instances:   instanceRepo,
		Nodes:       nodeRepo,
		ErrorLog:    errorRepo,
		Notifier:    repo.NewNotificationRepo(a.Pool),
		Publisher:   a.Publisher,
		Queues:      cfg.Queues,
		Source:      cc.Source,
		Dedup:       cc.Dedup,
		Ladder:      cc.Ladder,
		Republisher: cc.Republisher,
		DeadLetters: cc.DeadLetters,
		Prefetch:    cc.Prefetch,
		Debug:       cfg.Debug,
		Logger:      logger,
	})
	if err := orch.Start(ctx); err != nil {
		logger.Error("failed to start orchestrator", "error", err)
		os.Exit(1)
	}

	// HTTP API
	handler := api.NewHandler(api.Config{
		Templates: templateRepo,
		Instances: instanceRepo,
		Nodes:     nodeRepo,
		ErrorLog:  errorRepo,
		Starter:   orch,
		Reloader:  schemas,
		Checks:    a.HealthChecks(),
		Logger:    logger,
	})
	if err := a.Serve(ctx, handler); err != nil {
		logger.Error("http server error", "error", err)
		cancel()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	orch.Stop()
	logger.Info("processa-manager stopped")
}
