// Package actions содержит варианты действий шагов workflow.
//
// Каждый подтип шага — отдельный тип, реализующий Action:
//
//	type Action interface {
//	    Type() string
//	    Validate(config map[string]any) error
//	    Execute(ctx context.Context, req *Request) (*Response, error)
//	}
//
// Validate вызывается при сохранении workflow (JSON-схема подтипа),
// Execute — executor'ом с уже интерполированной конфигурацией.
//
// # Подтипы
//
//   - send_sms, send_email (message.go) — ставят QueuedMessage в очередь
//     со scheduled_at по окну доставки; при multi_channel_config
//     добавляют в metadata данные для fallback
//   - wait (wait.go) — возвращает ResumeAt, run приостанавливается
//   - create_task, update_field, tag_client, create_invoice, schedule_job,
//     ai_generate (backend.go) — делегируются Backend
//
// # Registry
//
//	registry := actions.DefaultRegistry(actions.Deps{Messages: store, Backend: backend})
//	action, err := registry.Get("send_sms")
//
// Registry также реализует engine.StepValidator.
//
// # Файлы пакета
//
//   - action.go   — интерфейс Action, Request, Response, ошибки
//   - registry.go — Registry
//   - schema.go   — проверка конфигурации через JSON-схемы
//   - message.go  — MessageAction
//   - wait.go     — WaitAction, ParseDelay
//   - backend.go  — Backend, BackendAction, HTTPBackend, LogBackend
package actions
