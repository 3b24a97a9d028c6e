// Package domain содержит доменные типы движка BPMN-процессов.
//
// Основные сущности:
//   - WorkflowTemplate  — шаблон процесса (BPMN XML)
//   - WorkflowInstance  — экземпляр процесса с append-only историей сообщений
//   - NodeRecord        — выполненный узел (task / gateway / event)
//   - ExternalServiceStatus — статус асинхронного обращения во внешний сервис
//   - WorkItem, CompletionNotice — конверты сообщений между manager и workers
//
// Пакет не зависит от инфраструктуры (БД, очередей, HTTP).
package domain
