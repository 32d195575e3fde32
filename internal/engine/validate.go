package engine

import (
	"errors"
	"fmt"

	"github.com/shaiso/Fieldflow/internal/domain"
	"github.com/shaiso/Fieldflow/internal/scheduler"
)

// MaxStepDepth — максимальная вложенность on_true/on_false.
const MaxStepDepth = 8

// StepValidator проверяет конфигурацию action/delay шага по его подтипу.
// Реализуется реестром действий.
type StepValidator interface {
	ValidateStep(step *domain.Step) error
}

// TriggerValidator проверяет тип триггера и его условия.
// Реализуется каталогом триггеров.
type TriggerValidator interface {
	ValidateTrigger(triggerType string, conditions []domain.Condition) error
}

// ValidateWorkflow выполняет полную валидацию определения workflow.
//
// Проверяет:
// - Имя, trigger_type и статус
// - Операторы условий триггера
// - Наличие шагов, уникальность и заполненность ID
// - Kind шагов, условия у condition/branch, глубину вложенности
// - Конфигурацию подтипов (через StepValidator)
// - Окно доставки и multi_channel_config
//
// triggers и steps могут быть nil — тогда соответствующие проверки пропускаются.
func ValidateWorkflow(w *domain.Workflow, triggers TriggerValidator, steps StepValidator) error {
	if w == nil {
		return NewValidationError("", "workflow", "workflow is nil", ErrEmptySteps)
	}

	if w.Name == "" {
		return NewValidationError("", "name", "workflow has empty name", ErrEmptyName)
	}

	if w.TriggerType == "" {
		return NewValidationError("", "trigger_type", "workflow has empty trigger type", ErrEmptyTrigger)
	}

	if w.Status != "" && !w.Status.IsValid() {
		return NewValidationError("", "status",
			fmt.Sprintf("invalid workflow status: %s", w.Status), ErrInvalidStatus)
	}

	if err := ValidateConditions("", "trigger_conditions", w.TriggerConditions); err != nil {
		return err
	}

	if triggers != nil {
		if err := triggers.ValidateTrigger(w.TriggerType, w.TriggerConditions); err != nil {
			return NewValidationError("", "trigger_type", err.Error(), err)
		}
	}

	if len(w.Steps) == 0 {
		return NewValidationError("", "steps", "workflow has no steps", ErrEmptySteps)
	}

	stepIDs := make(map[string]bool)
	if err := validateSteps(w.Steps, 0, stepIDs, steps); err != nil {
		return err
	}

	if err := scheduler.ValidateWindow(w.DeliveryWindow); err != nil {
		return NewValidationError("", "delivery_window", err.Error(), errors.Join(ErrInvalidWindow, err))
	}

	return validateMultiChannel(w.MultiChannel)
}

func validateSteps(list []domain.Step, depth int, stepIDs map[string]bool, v StepValidator) error {
	if depth > MaxStepDepth {
		return NewValidationError("", "steps",
			fmt.Sprintf("steps nested deeper than %d levels", MaxStepDepth), ErrTooDeep)
	}

	for i := range list {
		step := &list[i]

		if err := ValidateStep(step, stepIDs, v); err != nil {
			return err
		}

		if err := validateSteps(step.OnTrue, depth+1, stepIDs, v); err != nil {
			return err
		}
		if err := validateSteps(step.OnFalse, depth+1, stepIDs, v); err != nil {
			return err
		}
	}

	return nil
}

// ValidateStep валидирует один шаг (без вложенных списков).
// stepIDs — уже встреченные ID шагов (для проверки уникальности).
func ValidateStep(step *domain.Step, stepIDs map[string]bool, v StepValidator) error {
	// Проверка ID
	if step.ID == "" {
		return NewValidationError("", "id", "step has empty ID", ErrEmptyStepID)
	}

	// Проверка уникальности ID
	if stepIDs[step.ID] {
		return NewValidationError(step.ID, "id",
			fmt.Sprintf("duplicate step ID: %s", step.ID), ErrDuplicateStepID)
	}
	stepIDs[step.ID] = true

	if !step.Kind.IsValid() {
		return NewValidationError(step.ID, "kind",
			fmt.Sprintf("unknown step kind: %q", step.Kind), ErrUnknownStepKind)
	}

	if step.IsBranching() {
		if len(step.Conditions) == 0 {
			return NewValidationError(step.ID, "conditions",
				"branching step has no conditions", ErrMissingConditions)
		}
		return ValidateConditions(step.ID, "conditions", step.Conditions)
	}

	if len(step.OnTrue) > 0 || len(step.OnFalse) > 0 {
		return NewValidationError(step.ID, "on_true",
			fmt.Sprintf("%s step cannot have successors", step.Kind), ErrUnexpectedSuccessors)
	}

	if v != nil {
		if err := v.ValidateStep(step); err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				return err
			}
			return NewValidationError(step.ID, "config", err.Error(), err)
		}
	}

	return nil
}

// ValidateConditions проверяет поля и операторы условий.
func ValidateConditions(stepID, field string, conditions []domain.Condition) error {
	for i, cond := range conditions {
		if cond.Field == "" {
			return NewValidationError(stepID, field,
				fmt.Sprintf("condition %d has empty field", i), ErrEmptyField)
		}
		if !IsValidOperator(cond.Operator) {
			return NewValidationError(stepID, field,
				fmt.Sprintf("condition %d has invalid operator: %q", i, cond.Operator), ErrInvalidOperator)
		}
	}
	return nil
}

func validateMultiChannel(mc *domain.MultiChannelConfig) error {
	if mc == nil {
		return nil
	}

	if !mc.PrimaryChannel.IsValid() {
		return NewValidationError("", "multi_channel_config.primary_channel",
			fmt.Sprintf("invalid primary channel: %q", mc.PrimaryChannel), ErrInvalidChannel)
	}

	if mc.FallbackChannel != "" && !mc.FallbackChannel.IsValid() {
		return NewValidationError("", "multi_channel_config.fallback_channel",
			fmt.Sprintf("invalid fallback channel: %q", mc.FallbackChannel), ErrInvalidChannel)
	}

	if mc.DelayBetweenChannels < 0 {
		return NewValidationError("", "multi_channel_config.delay_between_channels",
			"delay between channels must not be negative", ErrInvalidChannel)
	}

	return nil
}
