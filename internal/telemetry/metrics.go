package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики движка. Регистрируются в prometheus.DefaultRegisterer
// и отдаются на /metrics каждого процесса.
var (
	// EventsReceived — события, дошедшие до диспетчера (result: matched, no_match, failed, duplicate, unknown_trigger).
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldflow_events_received_total",
		Help: "Events processed by the trigger dispatcher",
	}, []string{"trigger_type", "result"})

	// ExecutionsCreated — ExecutionLog, созданные диспетчером.
	ExecutionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldflow_executions_created_total",
		Help: "Execution logs created by the trigger dispatcher",
	}, []string{"trigger_type"})

	// ExecutionsFinished — завершённые запуски по статусу.
	ExecutionsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldflow_executions_finished_total",
		Help: "Executions that reached a terminal status",
	}, []string{"status"})

	// ExecutionsSuspended — запуски, приостановленные на delay-шаге.
	ExecutionsSuspended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldflow_executions_suspended_total",
		Help: "Executions suspended on a delay step",
	})

	// StepsExecuted — исходы шагов по подтипу.
	StepsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldflow_steps_executed_total",
		Help: "Workflow steps executed by outcome",
	}, []string{"kind", "subtype", "status"})

	// StepDuration — длительность выполнения action-шага.
	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fieldflow_step_duration_seconds",
		Help:    "Duration of action step execution",
		Buckets: prometheus.DefBuckets,
	}, []string{"subtype"})

	// MessagesEnqueued — сообщения, поставленные в очередь (role: primary, fallback, single).
	MessagesEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldflow_messages_enqueued_total",
		Help: "Messages inserted into the delivery queue",
	}, []string{"channel", "role"})

	// MessagesDispatched — результаты отправки проходом consumer'а.
	MessagesDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldflow_messages_dispatched_total",
		Help: "Messages handed to channel providers by outcome",
	}, []string{"channel", "status"})

	// ProviderLatency — время ответа провайдера канала.
	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fieldflow_provider_send_seconds",
		Help:    "Channel provider send latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"channel"})

	// ConsumerPasses — проходы consumer'а и fallback-проверки.
	ConsumerPasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldflow_consumer_passes_total",
		Help: "Queue consumer and fallback check passes",
	}, []string{"pass", "result"})

	// WorkflowsDeactivated — workflows, выключенные движком из-за ошибки окна доставки.
	WorkflowsDeactivated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldflow_workflows_deactivated_total",
		Help: "Workflows deactivated after a delivery window scheduling error",
	})

	// MQPublished — публикации в RabbitMQ (result: ok, error).
	MQPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldflow_mq_published_total",
		Help: "Messages published to RabbitMQ",
	}, []string{"exchange", "result"})

	// MQDeliveries — исходы доставок (ack, requeue, dead_letter, malformed).
	MQDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldflow_mq_deliveries_total",
		Help: "RabbitMQ deliveries by settlement outcome",
	}, []string{"queue", "outcome"})

	// HTTPRequests — запросы к API; route — шаблон маршрута ServeMux.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldflow_api_http_requests_total",
		Help: "Total HTTP requests handled by fieldflow-api",
	}, []string{"route", "status"})

	// HTTPDuration — время обработки запросов API.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fieldflow_api_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)
