// Package executor выполняет шаги workflow для одного ExecutionLog.
//
// Запуск проходит состояния pending → processing → completed | failed.
// Каждый переход, за который могут конкурировать параллельные вызовы,
// выполняется условным обновлением в хранилище, поэтому Run, ResumeDue
// и PollPending можно безопасно вызывать из нескольких процессов.
//
// Шаги обходятся как дерево:
//   - action — конфигурация интерполируется и передаётся действию из реестра
//   - branch — выполняется on_true или on_false, затем следующий шаг списка
//   - condition — управление уходит в on_true/on_false, следующие шаги
//     того же списка не выполняются
//   - delay — позиция шага и resume_at сохраняются, запуск возвращается;
//     ResumeDue продолжит его со следующего шага
//
// Ошибка шага с continue_on_error=false прерывает запуск (failed),
// с continue_on_error=true фиксируется в actions_executed.
//
// Service связывает executor с RabbitMQ: потребляет events.incoming
// (через trigger.Dispatcher) и executions.pending, а также периодически
// опрашивает хранилище.
package executor
