// Package telemetry обеспечивает наблюдаемость Processa.
//
// Включает:
//   - logging.go — structured logging через slog
//   - redact.go — маскирование секретов в логируемых payload
//   - metrics.go — Prometheus метрики
//
// Все сервисы (manager, task/gateway/event workers, poller) используют
// единый формат логирования и экспортируют метрики на /metrics.
package telemetry
