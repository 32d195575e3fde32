package engine

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Context — данные для интерполяции шаблонов и вычисления условий.
//
// Ключи верхнего уровня:
//   - trigger_data — снимок сущности из события
//   - job / client / estimate / invoice / company — сущности, извлечённые из снимка
//   - workflow, execution — метаданные запуска
//   - steps — outputs выполненных шагов ({{ steps.step_id.field }})
type Context map[string]any

// NewContext создаёт контекст со снимком события.
func NewContext(triggerData map[string]any) Context {
	if triggerData == nil {
		triggerData = make(map[string]any)
	}
	return Context{
		"trigger_data": triggerData,
		"steps":        make(map[string]any),
	}
}

// Set устанавливает значение верхнего уровня.
func (c Context) Set(key string, value any) {
	c[key] = value
}

// AddStepResult добавляет outputs шага в контекст.
func (c Context) AddStepResult(stepID string, outputs map[string]any) {
	steps, ok := c["steps"].(map[string]any)
	if !ok {
		steps = make(map[string]any)
		c["steps"] = steps
	}
	if outputs == nil {
		outputs = make(map[string]any)
	}
	steps[stepID] = outputs
}

// tokenPattern — {{ dotted.path }}, пробелы внутри скобок допустимы.
var tokenPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_\-]+(?:\.[A-Za-z0-9_\-]+)*)\s*\}\}`)

// Interpolate подставляет значения вместо {{dotted.path}}.
//
// Неразрешённые токены остаются как есть — отсутствие необязательного поля
// не должно мешать составить сообщение.
//
//	Interpolate("Hi {{client.name}}", {"client": {"name": "Ann"}}) → "Hi Ann"
//	Interpolate("Call {{client.phone}}", {})                       → "Call {{client.phone}}"
func Interpolate(tmpl string, data map[string]any) string {
	if !strings.Contains(tmpl, "{{") {
		return tmpl
	}

	return tokenPattern.ReplaceAllStringFunc(tmpl, func(token string) string {
		match := tokenPattern.FindStringSubmatch(token)
		if len(match) < 2 {
			return token
		}

		value, ok := Lookup(data, match[1])
		if !ok {
			return token
		}
		return FormatValue(value)
	})
}

// Lookup ищет значение по пути через точку во вложенных map.
// Сегмент-число индексирует слайс ("items.0.name").
// Возвращает false, если какого-то сегмента нет.
func Lookup(data map[string]any, path string) (any, bool) {
	if data == nil || path == "" {
		return nil, false
	}

	var current any = data
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			value, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = value

		case Context:
			value, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = value

		case map[string]string:
			value, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = value

		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]

		case []string:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]

		default:
			return nil, false
		}
	}

	return current, true
}

// FormatValue превращает значение в текст для подстановки.
// nil → пустая строка; целые float64 без дробной части; map и slice — JSON.
func FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case json.Number:
		return v.String()
	case time.Time:
		return v.Format(time.RFC3339)
	case fmt.Stringer:
		return v.String()
	case map[string]any, []any, map[string]string, []string:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// InterpolateValue интерполирует произвольное значение.
// Рекурсивно обрабатывает map и slice, остальные типы возвращает как есть.
func InterpolateValue(value any, data map[string]any) any {
	switch v := value.(type) {
	case string:
		return Interpolate(v, data)

	case map[string]any:
		result := make(map[string]any, len(v))
		for key, val := range v {
			result[key] = InterpolateValue(val, data)
		}
		return result

	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			result[i] = InterpolateValue(val, data)
		}
		return result

	case map[string]string:
		result := make(map[string]string, len(v))
		for key, val := range v {
			result[key] = Interpolate(val, data)
		}
		return result

	case []string:
		result := make([]string, len(v))
		for i, val := range v {
			result[i] = Interpolate(val, data)
		}
		return result

	default:
		return value
	}
}

// InterpolateConfig интерполирует конфигурацию шага.
// Исходная map не меняется.
func InterpolateConfig(config map[string]any, data map[string]any) map[string]any {
	if config == nil {
		return make(map[string]any)
	}

	result, ok := InterpolateValue(config, data).(map[string]any)
	if !ok {
		return make(map[string]any)
	}
	return result
}
