// Package channel отправляет сообщения через внешние шлюзы доставки.
//
// Provider — контракт одного канала. Реализации:
//   - HTTPProvider — POST в HTTP API SMS/email шлюза
//   - AMQPProvider — публикация в fieldflow.outbound для шлюза, читающего RabbitMQ
//   - LogProvider  — только логирует (локальный запуск)
//
// Router выбирает провайдера по типу сообщения.
package channel
