// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go  — соединение, именованные каналы, переподключение с фиксированной паузой
//   - topology.go    — очереди чтения/записи ролей и очереди лестницы ретраев
//   - retry.go       — лестница ретраев 10m / 1h / 2h / 8h / 1d
//   - publisher.go   — публикация с amqpMessageId и одним повтором
//   - consumer.go    — потребление с prefetch, dedup, ack/nack и ретраями
//   - correlation.go — ожидание коррелированных ответов (request/response поверх очередей)
//
// Все очереди публикуются через default exchange (routing key = имя очереди).
// Очередь <reading>-errors-<tier> держит сообщение TTL тира и возвращает его
// в <reading> через dead-letter.
package mq
