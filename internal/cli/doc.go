// Package cli реализует инструмент командной строки Fieldflow.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с Fieldflow API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
// Через CLI создают и включают workflows, смотрят execution logs,
// возвращают failed сообщения в очередь и отправляют тестовые события.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Fieldflow API. Инкапсулирует запросы,
// разбор обёрток ответа (data, list, error) и ошибки API (APIError).
//
//	client := cli.NewClient("http://localhost:8080")
//	workflows, err := client.ListWorkflows(cli.ListOpts{Status: "active"})
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: fieldflow workflow list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - workflow: list, create, show, update, delete, activate, deactivate, reprocess
//   - execution: list, show
//   - message: list, show, reprocess
//   - event: send
//   - trigger, action: list
//
// Каждая группа создаётся через фабричную функцию (NewWorkflowCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
