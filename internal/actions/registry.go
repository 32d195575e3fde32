package actions

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/Fieldflow/internal/domain"
	"github.com/shaiso/Fieldflow/internal/engine"
)

// Registry — реестр действий.
//
// Позволяет регистрировать и получать реализации Action по подтипу.
// Потокобезопасен.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]Action
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		actions: make(map[string]Action),
	}
}

// Deps — зависимости стандартных действий.
type Deps struct {
	// Messages — очередь сообщений для send_sms/send_email.
	Messages MessageEnqueuer

	// Backend — внешняя система для create_task, update_field и т.д.
	Backend Backend
}

// DefaultRegistry создаёт реестр со всеми стандартными действиями.
func DefaultRegistry(deps Deps) *Registry {
	r := NewRegistry()

	r.Register(NewMessageAction(domain.MessageTypeSMS, deps.Messages))
	r.Register(NewMessageAction(domain.MessageTypeEmail, deps.Messages))
	r.Register(NewWaitAction())

	for _, op := range BackendOperations() {
		r.Register(NewBackendAction(op, deps.Backend))
	}

	return r
}

// Register регистрирует действие в реестре.
// Если действие с таким подтипом уже существует, оно будет перезаписано.
func (r *Registry) Register(action Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[action.Type()] = action
}

// Get возвращает действие по подтипу.
// Возвращает ErrActionNotFound, если действие не найдено.
func (r *Registry) Get(subtype string) (Action, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	action, exists := r.actions[subtype]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrActionNotFound, subtype)
	}

	return action, nil
}

// Has проверяет, зарегистрировано ли действие.
func (r *Registry) Has(subtype string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.actions[subtype]
	return exists
}

// Types возвращает список всех зарегистрированных подтипов.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.actions))
	for t := range r.actions {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Count возвращает количество зарегистрированных действий.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actions)
}

// SubtypeFor возвращает подтип, по которому выполняется шаг.
// Для delay-шага без подтипа — wait.
func SubtypeFor(step *domain.Step) string {
	if step.Kind == domain.StepKindDelay && step.Subtype == "" {
		return domain.SubtypeWait
	}
	return step.Subtype
}

// ValidateStep проверяет подтип и конфигурацию action/delay шага.
// Реализует engine.StepValidator.
func (r *Registry) ValidateStep(step *domain.Step) error {
	subtype := SubtypeFor(step)

	if step.Kind == domain.StepKindDelay && subtype != domain.SubtypeWait {
		return engine.NewValidationError(step.ID, "subtype",
			fmt.Sprintf("delay step must have subtype %s, got %q", domain.SubtypeWait, subtype),
			engine.ErrUnknownSubtype)
	}
	if step.Kind == domain.StepKindAction && subtype == domain.SubtypeWait {
		return engine.NewValidationError(step.ID, "subtype",
			"wait is a delay subtype", engine.ErrUnknownSubtype)
	}

	action, err := r.Get(subtype)
	if err != nil {
		return engine.NewValidationError(step.ID, "subtype", err.Error(),
			fmt.Errorf("%w: %w", engine.ErrUnknownSubtype, err))
	}

	if err := action.Validate(step.Config); err != nil {
		return engine.NewValidationError(step.ID, "config", err.Error(),
			fmt.Errorf("%w: %w", engine.ErrInvalidStepConfig, err))
	}

	return nil
}
