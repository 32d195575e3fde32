// Package telemetry — логи, метрики и трейсы процессов Fieldflow.
//
// Логгер настраивается из config.Log (LOG_LEVEL, LOG_FORMAT) и становится
// slog.Default. Метрики регистрируются в глобальном реестре Prometheus и
// отдаются на /metrics каждого процесса. Трейсы экспортируются по OTLP/HTTP
// при OTEL_ENABLED=true; через RabbitMQ trace context идёт в заголовках.
package telemetry
