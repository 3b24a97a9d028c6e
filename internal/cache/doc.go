// Package cache — кэш дедупликации доставок.
//
// Ключ — amqpMessageId, значение — отметка "уже обработано" с TTL.
// Повторная доставка того же amqpMessageId подтверждается без вызова
// обработчика: at-least-once транспорт становится effectively-once.
//
// Реализации:
//   - MemoryDedup — в памяти процесса (patrickmn/go-cache)
//   - RedisDedup — общий для реплик (go-redis)
package cache
