// Package mq — транспорт Fieldflow поверх RabbitMQ.
//
// Структура:
//   - connection.go — соединение с переподключением и уведомлением о нём
//   - topology.go   — exchanges, очереди и привязки (декларативно)
//   - message.go    — конверт сообщения и типы payload
//   - publisher.go  — публикация с trace context в заголовках
//   - consumer.go   — потребление на собственном канале, ack/nack/DLQ
//
// Типы сообщений:
//   - event.received    — бизнес-событие (job, client, estimate, invoice)
//   - execution.pending — создан execution log, ожидающий executor'а
//   - message.outbound  — сообщение для внешнего шлюза доставки (AMQP провайдер)
//
// Брокер — ускоритель, а не источник истины: без него engine
// подбирает pending logs опросом, API обрабатывает события синхронно.
package mq
