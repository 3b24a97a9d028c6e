package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики регистрируются в глобальном реестре при импорте пакета
// и отдаются через promhttp.Handler() на /metrics.
var (
	// MessagesPublished — опубликованные сообщения по очереди.
	MessagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "processa_mq_published_total",
		Help: "Messages published to the broker",
	}, []string{"queue"})

	// PublishRetries — повторные попытки публикации.
	PublishRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "processa_mq_publish_retries_total",
		Help: "Publish attempts retried after backoff",
	}, []string{"queue"})

	// MessagesConsumed — обработанные сообщения по исходу
	// (ack, dedup, retry, dead, requeue).
	MessagesConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "processa_mq_consumed_total",
		Help: "Consumed messages by outcome",
	}, []string{"queue", "outcome"})

	// Dispatches — work items, отправленные движком, по виду цели.
	Dispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "processa_engine_dispatches_total",
		Help: "Work items dispatched by target kind",
	}, []string{"target"})

	// TraversalErrors — ошибки обхода графа.
	TraversalErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "processa_engine_errors_total",
		Help: "Traversal failures by retriability",
	}, []string{"retriable"})

	// WorkflowsFinished — процессы, дошедшие до конечного события.
	WorkflowsFinished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "processa_engine_workflows_finished_total",
		Help: "Workflow instances marked final",
	})

	// NodesExecuted — узлы, выполненные worker'ами, по виду и исходу
	// (completed, waiting, failed).
	NodesExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "processa_worker_nodes_total",
		Help: "Nodes executed by workers by kind and outcome",
	}, []string{"kind", "outcome"})

	// ProviderCalls — вызовы внешних сервисов по типу и исходу.
	ProviderCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "processa_provider_calls_total",
		Help: "External provider calls by type and outcome",
	}, []string{"provider", "outcome"})

	// ProviderLatency — длительность вызова провайдера (с повторами).
	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "processa_provider_duration_seconds",
		Help:    "External provider call duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	// SchemaReloads — перезагрузки кэша схем по результату.
	SchemaReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "processa_schema_reloads_total",
		Help: "Schema cache reloads by result",
	}, []string{"result"})

	// SchemaTemplates — количество графов в кэше.
	SchemaTemplates = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "processa_schema_templates",
		Help: "Process graphs currently cached",
	})

	// ExternalStatusTransitions — продвижения статусов внешних сервисов.
	ExternalStatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "processa_poller_transitions_total",
		Help: "External service status transitions",
	}, []string{"service", "state"})

	// HTTPRequests — запросы к HTTP-поверхности.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "processa_http_requests_total",
		Help: "HTTP requests by route and status",
	}, []string{"route", "status"})
)
