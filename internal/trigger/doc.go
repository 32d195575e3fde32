// Package trigger связывает бизнес-события с workflows.
//
// Каталог (kind.go) описывает известные типы триггеров: к какой сущности
// относится событие и как из его снимка строится контекст интерполяции.
//
// Диспетчер (dispatcher.go) принимает событие, находит active workflows
// организации с тем же trigger_type, вычисляет trigger_conditions
// и для каждого совпадения создаёт ExecutionLog в статусе pending.
// Выполнение шагов передаётся executor'у через Handoff (RabbitMQ);
// если передача не удалась, executor подберёт log опросом хранилища.
//
//	dispatcher := trigger.NewDispatcher(trigger.Config{
//	    Store:   store,
//	    Catalog: trigger.DefaultCatalog(),
//	    Handoff: publisher,
//	})
//	result, err := dispatcher.Dispatch(ctx, event)
package trigger
