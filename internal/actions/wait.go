package actions

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shaiso/Fieldflow/internal/domain"
)

// Ключи конфигурации wait.
const (
	configDuration = "duration"
	configUnit     = "unit"
)

// Единицы задержки.
var delayUnits = map[string]time.Duration{
	"seconds": time.Second,
	"minutes": time.Minute,
	"hours":   time.Hour,
	"days":    24 * time.Hour,
	"weeks":   7 * 24 * time.Hour,
}

// WaitAction — задержка внутри workflow.
//
// Не блокирует: возвращает ResumeAt, executor сохраняет позицию
// шага и завершает вызов. Продолжение — при следующем проходе ResumeDue.
//
// Конфигурация:
//
//	{
//	    "duration": 2,
//	    "unit": "days"   // seconds | minutes | hours | days | weeks (default: minutes)
//	}
//
// Outputs:
//
//	{"resume_at": "2025-03-12T09:00:00Z", "duration_sec": 172800}
type WaitAction struct{}

// NewWaitAction создаёт новый WaitAction.
func NewWaitAction() *WaitAction {
	return &WaitAction{}
}

// Type возвращает подтип шага.
func (a *WaitAction) Type() string {
	return domain.SubtypeWait
}

// Validate проверяет конфигурацию.
func (a *WaitAction) Validate(config map[string]any) error {
	units := make([]any, 0, len(delayUnits))
	for u := range delayUnits {
		units = append(units, u)
	}

	schema := objectSchema([]string{configDuration}, map[string]any{
		configDuration: map[string]any{"type": []any{"number", "string"}},
		configUnit:     map[string]any{"type": "string", "enum": units},
	})
	if err := validateSchema(a.Type(), schema, config); err != nil {
		return err
	}

	// шаблон проверяется только после интерполяции
	if s, ok := config[configDuration].(string); ok && strings.Contains(s, "{{") {
		return nil
	}
	_, err := ParseDelay(config)
	return err
}

// Execute вычисляет момент продолжения.
func (a *WaitAction) Execute(_ context.Context, req *Request) (*Response, error) {
	d, err := ParseDelay(req.Config)
	if err != nil {
		return nil, err
	}

	resumeAt := req.Now.Add(d).UTC()
	resp := NewResponse(map[string]any{
		"resume_at":    resumeAt.Format(time.RFC3339),
		"duration_sec": int64(d / time.Second),
	})
	resp.ResumeAt = &resumeAt
	return resp, nil
}

// ParseDelay извлекает длительность задержки из конфигурации.
func ParseDelay(config map[string]any) (time.Duration, error) {
	var amount float64
	switch v := config[configDuration].(type) {
	case int:
		amount = float64(v)
	case int64:
		amount = float64(v)
	case float64:
		amount = v
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: duration %q is not a number", ErrInvalidConfig, domain.SubtypeWait, v)
		}
		amount = f
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return 0, fmt.Errorf("%w: %s: positive duration required", ErrInvalidConfig, domain.SubtypeWait)
	}

	unitName := GetConfigString(config, configUnit)
	if unitName == "" {
		unitName = "minutes"
	}
	unit, ok := delayUnits[unitName]
	if !ok {
		return 0, fmt.Errorf("%w: %s: unknown unit %q", ErrInvalidConfig, domain.SubtypeWait, unitName)
	}

	// float64(math.MaxInt64) округляется до 2^63, поэтому >=
	total := amount * float64(unit)
	if total >= float64(math.MaxInt64) {
		return 0, fmt.Errorf("%w: %s: duration %v %s is too long", ErrInvalidConfig, domain.SubtypeWait, amount, unitName)
	}
	return time.Duration(total), nil
}
