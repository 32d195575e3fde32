// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go           — Handler с DI (хранилище, каталоги, dispatcher, logger)
//   - routes.go            — регистрация маршрутов
//   - middleware.go        — middleware (logging, recovery, metrics)
//   - response.go          — унифицированные JSON-ответы и обработка ошибок
//   - dto.go               — Data Transfer Objects (request/response)
//   - workflow_handler.go  — обработчики для /workflows
//   - execution_handler.go — обработчики для /executions
//   - message_handler.go   — обработчики для /messages
//   - event_handler.go     — приём событий POST /events
//   - catalog_handler.go   — справочники триггеров и действий для builder'а
//
// Определения workflows проверяются при сохранении; движок их повторно
// не валидирует.
package api
