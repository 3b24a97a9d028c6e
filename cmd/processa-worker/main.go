// Processa Worker — выполняет узлы процессов одной роли.
//
// Роль задаётся WORKER_ROLE:
//   - task: вызывает внешние сервисы (standard, standard-rmq, trembita, signer);
//     ответы standard-rmq приходят в собственную exclusive очередь реплики
//   - gateway: вычисляет условия исходящих рёбер
//   - event: промежуточные события и таймеры
//
// После выполнения узла worker отправляет уведомление в очередь manager.
// Workers масштабируются горизонтально; при нескольких репликах
// dedup-кэш выносится в Redis (REDIS_URL).
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/Processa/internal/api"
	"github.com/shaiso/Processa/internal/app"
	"github.com/shaiso/Processa/internal/config"
	"github.com/shaiso/Processa/internal/mq"
	"github.com/shaiso/Processa/internal/provider"
	"github.com/shaiso/Processa/internal/repo"
	"github.com/shaiso/Processa/internal/schema"
	"github.com/shaiso/Processa/internal/worker"
)

func main() {
	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, "processa-worker")
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()
	logger := a.Logger.With("role", a.Config.WorkerRole)
	cfg := a.Config

	// Schema Cache (узлы ищутся в том же графе, что у manager)
	schemas := schema.New(schema.Config{Source: repo.NewTemplateRepo(a.Pool), Logger: logger})
	if err := schemas.Start(ctx, cfg.SchemaReloadInterval); err != nil {
		logger.Error("failed to load workflow templates", "error", err)
		os.Exit(1)
	}
	defer schemas.Stop()

	// Внешние сервисы нужны только роли task
	var providers worker.Providers
	var replies mq.Handler
	queues := cfg.Queues
	if cfg.WorkerRole == config.RoleTask {
		// Своя очередь ответов: ответ вернётся в реплику, которая ждёт его
		queues.Replies = mq.ReplyQueueName(cfg.Queues.Replies)
		if err := mq.DeclareReplyQueue(a.Conn, queues.Replies); err != nil {
			logger.Error("failed to declare reply queue", "queue", queues.Replies, "error", err)
			os.Exit(1)
		}

		correlator := mq.NewCorrelator(cfg.CorrelationTimeout)
		registry, err := a.Providers(correlator, queues.Replies)
		if err != nil {
			logger.Error("failed to load providers", "error", err)
			os.Exit(1)
		}
		logger.Info("providers loaded", "services", registry.Services())
		providers = registry
		replies = provider.ResponseHandler(correlator, logger)
	}

	cc := a.Consumer(cfg.ReadingQueue(cfg.WorkerRole), nil)
	w, err := worker.New(worker.Config{
		Role:        cfg.WorkerRole,
		Graphs:      schemas,
		Instances:   repo.NewInstanceRepo(a.Pool),
		Nodes:       repo.NewNodeRepo(a.Pool),
		Statuses:    repo.NewExternalStatusRepo(a.Pool),
		ErrorLog:    repo.NewErrorLogRepo(a.Pool),
		Providers:   providers,
		Publisher:   a.Publisher,
		Queues:      queues,
		Source:      cc.Source,
		Dedup:       cc.Dedup,
		Ladder:      cc.Ladder,
		Republisher: cc.Republisher,
		DeadLetters: cc.DeadLetters,
		Prefetch:    cc.Prefetch,
		Replies:     replies,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("failed to create worker", "error", err)
		os.Exit(1)
	}

	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// HTTP: /test/ping, /healthz, /monitors/system, /metrics
	handler := api.NewHandler(api.Config{
		Checks: a.HealthChecks(),
		Logger: logger,
	})
	if err := a.Serve(ctx, handler); err != nil {
		logger.Error("http server error", "error", err)
		cancel()
	}

	<-ctx.Done()

	// Останавливаем worker
	w.Stop()
	logger.Info("processa-worker stopped")
}
