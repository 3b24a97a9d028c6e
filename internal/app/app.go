package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Processa/internal/api"
	"github.com/shaiso/Processa/internal/cache"
	"github.com/shaiso/Processa/internal/config"
	"github.com/shaiso/Processa/internal/mq"
	"github.com/shaiso/Processa/internal/provider"
	"github.com/shaiso/Processa/internal/repo"
	"github.com/shaiso/Processa/internal/telemetry"
)

// Context — зависимости процесса: конфигурация, пул БД,
// соединение с брокером, dedup-кэш и логгер.
type Context struct {
	Config *config.Config
	Logger *slog.Logger

	Pool      *pgxpool.Pool
	Conn      *mq.Connection
	Publisher *mq.Publisher
	Dedup     cache.Dedup
	Ladder    *mq.RetryLadder

	closers []func()
}

// New загружает конфигурацию и подключается к PostgreSQL,
// RabbitMQ и (если задан REDIS_URL) Redis.
//
// Топология очередей объявляется сразу и повторно после
// каждого переподключения.
func New(ctx context.Context, service string) (*Context, error) {
	logger := telemetry.SetupLogger(service)

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	a := &Context{
		Config: cfg,
		Logger: logger,
		Ladder: mq.NewRetryLadder(),
	}

	// 1. PostgreSQL
	a.Pool, err = repo.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a.onClose(a.Pool.Close)
	logger.Info("database connected")

	// 2. RabbitMQ
	a.Conn, err = mq.NewConnection(mq.ConnectionConfig{
		URL:            cfg.RabbitMQURL,
		ReconnectDelay: cfg.ReconnectDelay,
		Logger:         logger,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	a.onClose(func() { a.Conn.Close() })
	logger.Info("rabbitmq connected")

	if err := mq.SetupTopology(ctx, a.Conn, mq.TopologyFor(cfg)); err != nil {
		a.Close()
		return nil, fmt.Errorf("setup topology: %w", err)
	}

	a.Publisher = mq.NewPublisher(mq.PublisherConfig{
		Sender:  a.Conn,
		Backoff: cfg.PublishBackoff,
		Logger:  logger,
	})

	// 3. Dedup
	dedup, closeDedup, err := NewDedup(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Dedup = dedup
	a.onClose(closeDedup)

	return a, nil
}

// NewDedup выбирает dedup-кэш: Redis, общий для реплик, если задан
// REDIS_URL, иначе в памяти процесса.
func NewDedup(ctx context.Context, cfg *config.Config) (cache.Dedup, func(), error) {
	if cfg.RedisURL == "" {
		return cache.NewMemoryDedup(cfg.DedupTTL), func() {}, nil
	}
	d, err := cache.NewRedisDedupFromURL(ctx, cfg.RedisURL, cfg.DedupTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	return d, func() { d.Close() }, nil
}

// Consumer возвращает настройки consumer'а очереди с общими
// для процесса dedup, лестницей ретраев и журналом dead letters.
func (a *Context) Consumer(queue string, h mq.Handler) mq.ConsumerConfig {
	return mq.ConsumerConfig{
		Queue:       queue,
		Handler:     h,
		Prefetch:    a.Config.Prefetch,
		Source:      a.Conn,
		Dedup:       a.Dedup,
		Ladder:      a.Ladder,
		Republisher: a.Publisher,
		DeadLetters: repo.NewDeadLetterRepo(a.Pool),
		Logger:      a.Logger,
	}
}

// Providers собирает реестр внешних сервисов из файла провайдеров.
// replyQueue — очередь ответов standard-rmq сервисов этого процесса.
func (a *Context) Providers(correlator *mq.Correlator, replyQueue string) (*provider.Registry, error) {
	documents := repo.NewDocumentRepo(a.Pool)
	return LoadProviders(a.Config, provider.Deps{
		Publisher:    a.Publisher,
		Correlator:   correlator,
		RequestQueue: a.Config.Queues.Requests,
		ReplyQueue:   replyQueue,
		Documents:    documents,
		Files:        documents,
		Logger:       a.Logger,
	})
}

// LoadProviders читает PROVIDERS_FILE и создаёт провайдеры.
func LoadProviders(cfg *config.Config, deps provider.Deps) (*provider.Registry, error) {
	services, err := config.LoadServices(cfg.ProvidersFile)
	if err != nil {
		return nil, err
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{}
	}
	return provider.NewRegistry(services, deps)
}

// HealthChecks возвращает проверки для /healthz.
func (a *Context) HealthChecks() map[string]api.Check {
	checks := map[string]api.Check{
		"database": func(ctx context.Context) error {
			return a.Pool.Ping(ctx)
		},
		"rabbitmq": func(context.Context) error {
			if !a.Conn.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		},
	}
	if r, ok := a.Dedup.(interface{ Ping(context.Context) error }); ok {
		checks["redis"] = r.Ping
	}
	return checks
}

// Serve запускает HTTP-сервер и останавливает его при отмене ctx.
func (a *Context) Serve(ctx context.Context, handler *api.Handler) error {
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              a.Config.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// Close освобождает ресурсы в обратном порядке.
func (a *Context) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *Context) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}
