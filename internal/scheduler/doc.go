// Package scheduler запускает периодические фоновые задачи.
//
// Используется для перезагрузки кэша BPMN-схем и для опроса
// статусов внешних сервисов.
//
// Структура:
//   - scheduler.go — Scheduler поверх robfig/cron (Every, Cron, Start, Stop)
//   - cron.go      — разбор cron-выражений и интервалов
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{Logger: logger})
//	_ = sched.Every("schema-reload", time.Minute, cache.ReloadJob)
//	sched.Start(ctx)
//	defer sched.Stop()
//
// Запуск задачи пропускается, если предыдущий ещё выполняется.
package scheduler
