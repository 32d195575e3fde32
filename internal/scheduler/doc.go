// Package scheduler отвечает за время: окна доставки и расписание вызовов.
//
// Структура:
//   - window.go — окно доставки (IsWithinWindow, NextDeliveryTime, ValidateWindow)
//   - cron.go   — парсинг cron-выражений
//   - runner.go — Runner, вызывающий короткие Job по cron-расписанию
//
// Все вычисления окна выполняются в часовом поясе окна,
// наружу время возвращается в UTC.
//
// Использование:
//
//	runner := scheduler.NewRunner(scheduler.RunnerConfig{Logger: logger})
//	runner.Add("consumer", "@every 30s", consumerJob)
//	runner.Run(ctx)
package scheduler
