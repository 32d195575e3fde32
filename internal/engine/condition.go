package engine

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/shaiso/Fieldflow/internal/domain"
)

// Операторы условий.
const (
	OpEquals     = "equals"
	OpNotEquals  = "not_equals"
	OpContains   = "contains"
	OpGreater    = "greater_than"
	OpLess       = "less_than"
	OpIsEmpty    = "is_empty"
	OpIsNotEmpty = "is_not_empty"
	OpInList     = "in_list"
	OpNotInList  = "not_in_list"
)

var validOperators = map[string]bool{
	OpEquals:     true,
	OpNotEquals:  true,
	OpContains:   true,
	OpGreater:    true,
	OpLess:       true,
	OpIsEmpty:    true,
	OpIsNotEmpty: true,
	OpInList:     true,
	OpNotInList:  true,
}

// IsValidOperator проверяет, известен ли оператор.
func IsValidOperator(op string) bool {
	return validOperators[op]
}

// Operators возвращает все операторы в порядке объявления.
func Operators() []string {
	return []string{
		OpEquals, OpNotEquals, OpContains, OpGreater, OpLess,
		OpIsEmpty, OpIsNotEmpty, OpInList, OpNotInList,
	}
}

// ErrFieldMissing — поля условия нет в контексте.
var ErrFieldMissing = errors.New("condition field missing")

// ConditionError — причина, по которой условие вычислено в false
// без сравнения значений. Наружу из Evaluate не выходит.
type ConditionError struct {
	Index     int
	Condition domain.Condition
	Err       error
}

// Error реализует интерфейс error.
func (e *ConditionError) Error() string {
	return fmt.Sprintf("condition %d (%s %s): %v", e.Index, e.Condition.Field, e.Condition.Operator, e.Err)
}

// Unwrap возвращает базовую ошибку.
func (e *ConditionError) Unwrap() error {
	return e.Err
}

// Evaluate вычисляет условия против данных (AND).
// Пустой список — true. Отсутствующее поле или неизвестный оператор дают false.
func Evaluate(conditions []domain.Condition, data map[string]any) bool {
	ok, _ := Check(conditions, data)
	return ok
}

// Check вычисляет условия и возвращает причину первого ложного условия,
// если оно не могло быть вычислено (ConditionError). Для ложного сравнения
// ошибка nil.
func Check(conditions []domain.Condition, data map[string]any) (bool, error) {
	for i, cond := range conditions {
		ok, err := evaluateOne(cond, data)
		if err != nil {
			return false, &ConditionError{Index: i, Condition: cond, Err: err}
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evaluateOne(cond domain.Condition, data map[string]any) (bool, error) {
	if !IsValidOperator(cond.Operator) {
		return false, ErrInvalidOperator
	}
	if cond.Field == "" {
		return false, ErrEmptyField
	}

	actual, found := Lookup(data, cond.Field)
	if !found {
		return false, ErrFieldMissing
	}

	switch cond.Operator {
	case OpEquals:
		return compare(actual, cond.Value) == 0, nil
	case OpNotEquals:
		return compare(actual, cond.Value) != 0, nil
	case OpContains:
		return contains(actual, cond.Value), nil
	case OpGreater:
		return compare(actual, cond.Value) > 0, nil
	case OpLess:
		return compare(actual, cond.Value) < 0, nil
	case OpIsEmpty:
		return isEmpty(actual), nil
	case OpIsNotEmpty:
		return !isEmpty(actual), nil
	case OpInList:
		return inList(actual, cond.Value), nil
	case OpNotInList:
		return !inList(actual, cond.Value), nil
	}
	return false, ErrInvalidOperator
}

// compare сравнивает два значения: числа — численно, RFC3339 — по времени,
// иначе как строки (с учётом регистра).
func compare(a, b any) int {
	if x, ok := toFloat(a); ok {
		if y, ok := toFloat(b); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			default:
				return 0
			}
		}
	}

	if x, ok := toTime(a); ok {
		if y, ok := toTime(b); ok {
			return x.Compare(y)
		}
	}

	return strings.Compare(FormatValue(a), FormatValue(b))
}

func contains(actual, value any) bool {
	if items, ok := asList(actual); ok {
		for _, item := range items {
			if compare(item, value) == 0 {
				return true
			}
		}
		return false
	}
	return strings.Contains(FormatValue(actual), FormatValue(value))
}

func inList(actual, list any) bool {
	items, ok := asList(list)
	if !ok {
		s, isString := list.(string)
		if !isString {
			return false
		}
		for _, part := range strings.Split(s, ",") {
			items = append(items, strings.TrimSpace(part))
		}
	}

	for _, item := range items {
		if compare(actual, item) == 0 {
			return true
		}
	}
	return false
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	}
	return false
}

// asList превращает слайс любого типа в []any.
func asList(v any) ([]any, bool) {
	if items, ok := v.([]any); ok {
		return items, true
	}
	if v == nil {
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		t, err := time.Parse(time.RFC3339, x)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}
