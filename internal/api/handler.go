package api

import (
	"context"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/shaiso/Fieldflow/internal/actions"
	"github.com/shaiso/Fieldflow/internal/domain"
	"github.com/shaiso/Fieldflow/internal/gateway"
	"github.com/shaiso/Fieldflow/internal/trigger"
)

// EventDispatcher обрабатывает событие синхронно.
// Реализуется trigger.Dispatcher.
type EventDispatcher interface {
	Dispatch(ctx context.Context, event domain.Event) (trigger.DispatchResult, error)
}

// EventPublisher публикует событие в events.incoming.
// Реализуется mq.Publisher.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event domain.Event) error
}

// MessageReprocessor возвращает failed сообщения в очередь.
// Реализуется consumer.Consumer.
type MessageReprocessor interface {
	Reprocess(ctx context.Context, id uuid.UUID) error
	ReprocessFailed(ctx context.Context, workflowID uuid.UUID) (int, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	store      gateway.Store
	catalog    *trigger.Catalog
	actions    *actions.Registry
	dispatcher EventDispatcher
	events     EventPublisher
	messages   MessageReprocessor
	validate   *validator.Validate
	logger     *slog.Logger
	now        func() time.Time
}

// Config — конфигурация для создания Handler.
type Config struct {
	Store   gateway.Store
	Catalog *trigger.Catalog
	Actions *actions.Registry

	// Dispatcher — синхронная обработка POST /events (если Events не задан).
	Dispatcher EventDispatcher

	// Events — асинхронная обработка POST /events через RabbitMQ.
	Events EventPublisher

	Messages MessageReprocessor
	Logger   *slog.Logger

	// Now — источник времени (для тестов).
	Now func() time.Time
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	catalog := cfg.Catalog
	if catalog == nil {
		catalog = trigger.DefaultCatalog()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Handler{
		store:      cfg.Store,
		catalog:    catalog,
		actions:    cfg.Actions,
		dispatcher: cfg.Dispatcher,
		events:     cfg.Events,
		messages:   cfg.Messages,
		validate:   newValidator(),
		logger:     logger,
		now:        now,
	}
}

// newValidator создаёт validator, который называет поля по json-тегам.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
