// Package consumer отправляет сообщения из очереди queued_messages.
//
// Consumer не держит состояния между вызовами: каждый Pass и FallbackCheck
// читает очередь заново и захватывает строки условным обновлением,
// поэтому несколько процессов могут работать параллельно, а одно
// сообщение уходит провайдеру не больше одного раза.
//
// Pass:
//  1. pending сообщения со scheduled_at ≤ now, по возрастанию scheduled_at
//  2. сообщения неактивных workflows пропускаются (остаются pending)
//  3. ClaimMessage: pending → processing, проигравший гонку пропускает строку
//  4. Provider.Send с ограничением времени
//  5. sent (+ provider_message_id) или failed (+ error_message)
//
// Автоматических повторов нет: failed сообщения возвращает в pending
// оператор (Reprocess, ReprocessFailed).
//
// FallbackCheck ставит сообщение в резервный канал, если основное
// не доставлено за delay_between_channels.
package consumer
