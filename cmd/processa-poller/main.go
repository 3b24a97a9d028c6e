// Processa Poller — опрос статусов внешних сервисов.
//
// Задачи, чей сервис отвечает асинхронно, ждут в статусе WAITING.
// Poller по расписанию опрашивает такие сервисы, продвигает статус
// только вперёд и при Fulfilled / Rejected отправляет уведомление
// о завершении узла в очередь manager.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/Processa/internal/api"
	"github.com/shaiso/Processa/internal/app"
	"github.com/shaiso/Processa/internal/mq"
	"github.com/shaiso/Processa/internal/poller"
	"github.com/shaiso/Processa/internal/repo"
)

func main() {
	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, "processa-poller")
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()
	logger := a.Logger
	cfg := a.Config

	// Проверки статуса не используют очередь ответов, Send здесь
	// не вызывается. Но standard-rmq провайдер создаётся только
	// с Correlator и очередью ответов.
	registry, err := a.Providers(mq.NewCorrelator(cfg.CorrelationTimeout), cfg.Queues.Replies)
	if err != nil {
		logger.Error("failed to load providers", "error", err)
		os.Exit(1)
	}

	p := poller.New(poller.Config{
		Statuses:     repo.NewExternalStatusRepo(a.Pool),
		Checkers:     registry,
		Nodes:        repo.NewNodeRepo(a.Pool),
		Publisher:    a.Publisher,
		ManagerQueue: cfg.Queues.Manager,
		Interval:     cfg.PollInterval,
		Logger:       logger,
	})
	if err := p.Start(ctx); err != nil {
		logger.Error("failed to start poller", "error", err)
		os.Exit(1)
	}

	handler := api.NewHandler(api.Config{
		Checks: a.HealthChecks(),
		Logger: logger,
	})
	if err := a.Serve(ctx, handler); err != nil {
		logger.Error("http server error", "error", err)
		cancel()
	}

	<-ctx.Done()

	p.Stop()
	logger.Info("processa-poller stopped")
}
