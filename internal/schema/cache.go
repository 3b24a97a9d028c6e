package schema

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Processa/internal/domain"
	"github.com/shaiso/Processa/internal/engine"
	"github.com/shaiso/Processa/internal/scheduler"
	"github.com/shaiso/Processa/internal/telemetry"
)

// TemplateSource — источник активных шаблонов (repo.TemplateRepo).
type TemplateSource interface {
	ListActive(ctx context.Context) ([]domain.WorkflowTemplate, error)
}

// ReloadStats — итог перезагрузки.
type ReloadStats struct {
	Loaded   int
	Failed   int
	Warnings int
	Duration time.Duration
}

// Config — конфигурация Cache.
type Config struct {
	Source TemplateSource
	Logger *slog.Logger
}

// Cache — таблица ProcessGraph по ID шаблона.
type Cache struct {
	source TemplateSource
	logger *slog.Logger

	graphs atomic.Pointer[map[uuid.UUID]*engine.ProcessGraph]

	sched *scheduler.Scheduler
}

// New создаёт пустой кэш. До первого Reload FindByID ничего не находит.
func New(cfg Config) *Cache {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	c := &Cache{
		source: cfg.Source,
		logger: cfg.Logger,
	}
	empty := make(map[uuid.UUID]*engine.ProcessGraph)
	c.graphs.Store(&empty)
	return c
}

// Reload перечитывает активные шаблоны и подменяет таблицу.
//
// Ошибка чтения списка шаблонов оставляет прежнюю таблицу.
// Ошибка разбора одного шаблона исключает только его.
func (c *Cache) Reload(ctx context.Context) (ReloadStats, error) {
	start := time.Now()
	var stats ReloadStats

	// 1. Читаем активные шаблоны
	templates, err := c.source.ListActive(ctx)
	if err != nil {
		telemetry.SchemaReloads.WithLabelValues("error").Inc()
		return stats, fmt.Errorf("list active templates: %w", err)
	}

	// 2. Разбираем каждый
	next := make(map[uuid.UUID]*engine.ProcessGraph, len(templates))
	for i := range templates {
		t := &templates[i]
		logger := telemetry.WithTemplateID(c.logger, t.ID.String())

		graph, err := engine.ParseBPMN([]byte(t.XML))
		if err != nil {
			stats.Failed++
			logger.Error("failed to parse workflow template, excluding",
				"template_name", t.Name,
				"error", err,
			)
			continue
		}

		for _, w := range graph.Validate() {
			stats.Warnings++
			logger.Warn("workflow template warning", "template_name", t.Name, "warning", w)
		}

		next[t.ID] = graph
		stats.Loaded++
	}

	// 3. Подменяем таблицу целиком
	c.graphs.Store(&next)

	stats.Duration = time.Since(start)
	telemetry.SchemaReloads.WithLabelValues("ok").Inc()
	telemetry.SchemaTemplates.Set(float64(stats.Loaded))

	c.logger.Info("schema cache reloaded",
		"loaded", stats.Loaded,
		"failed", stats.Failed,
		"warnings", stats.Warnings,
		"duration", stats.Duration,
	)
	return stats, nil
}

// FindByID возвращает граф шаблона.
//
// После редактирования шаблона граф может быть устаревшим
// до следующей перезагрузки.
func (c *Cache) FindByID(templateID uuid.UUID) (*engine.ProcessGraph, bool) {
	graphs := *c.graphs.Load()
	g, ok := graphs[templateID]
	return g, ok
}

// Len возвращает количество графов в кэше.
func (c *Cache) Len() int {
	return len(*c.graphs.Load())
}

// Start загружает кэш и перезагружает его каждые interval.
// Ошибка первой загрузки возвращается: без схем обход невозможен.
func (c *Cache) Start(ctx context.Context, interval time.Duration) error {
	if _, err := c.Reload(ctx); err != nil {
		return err
	}

	c.sched = scheduler.New(scheduler.Config{Logger: c.logger})
	if err := c.sched.Every("schema-reload", interval, c.reloadJob); err != nil {
		return err
	}
	c.sched.Start(ctx)
	return nil
}

// Stop останавливает периодическую перезагрузку.
func (c *Cache) Stop() {
	if c.sched != nil {
		c.sched.Stop()
	}
}

func (c *Cache) reloadJob(ctx context.Context) error {
	_, err := c.Reload(ctx)
	return err
}
