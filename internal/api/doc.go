// Package api содержит HTTP-поверхность процессов Processa.
//
// Структура:
//   - handler.go          — Handler с DI (репозитории, orchestrator, проверки)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, recovery, метрики)
//   - response.go         — JSON-ответы и обработка ошибок ({"error": "..."})
//   - dto.go              — Data Transfer Objects (request/response)
//   - system_handler.go   — /test/ping, /healthz, /monitors/system
//   - template_handler.go — шаблоны процессов и перезагрузка Schema Cache
//   - workflow_handler.go — запуск и просмотр экземпляров процессов
//
// Служебные маршруты есть у каждой роли; /api/v1 — только у manager.
package api
