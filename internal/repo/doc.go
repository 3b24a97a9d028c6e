// Package repo — доступ к PostgreSQL через pgxpool.
//
// Репозитории:
//   - TemplateRepo       — шаблоны процессов (BPMN XML)
//   - InstanceRepo       — экземпляры процессов, атомарное дополнение истории
//   - NodeRepo           — записи выполненных task / gateway / event
//   - ErrorLogRepo       — журнал ошибок обхода
//   - NotificationRepo   — подписчики шаблонов и уведомления
//   - ExternalStatusRepo — статусы асинхронных обращений во внешние сервисы
//   - DocumentRepo       — файлы процессов
//   - DeadLetterRepo     — сообщения после исчерпания лестницы ретраев
package repo
