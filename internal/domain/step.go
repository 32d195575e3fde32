package domain

import "sort"

// StepKind — вид шага.
type StepKind string

const (
	// StepKindAction — действие (send_sms, create_task, ...).
	StepKindAction StepKind = "action"

	// StepKindCondition — условие: управление уходит в OnTrue/OnFalse,
	// следующие за ним шаги того же списка не выполняются.
	StepKindCondition StepKind = "condition"

	// StepKindDelay — пауза (wait), run приостанавливается до resume_at.
	StepKindDelay StepKind = "delay"

	// StepKindBranch — ветвление: выполняется OnTrue или OnFalse,
	// затем выполнение продолжается со следующего шага.
	StepKindBranch StepKind = "branch"
)

// IsValid возвращает true для известных видов шага.
func (k StepKind) IsValid() bool {
	switch k {
	case StepKindAction, StepKindCondition, StepKindDelay, StepKindBranch:
		return true
	default:
		return false
	}
}

// Подтипы шагов.
const (
	SubtypeSendSMS       = "send_sms"
	SubtypeSendEmail     = "send_email"
	SubtypeCreateTask    = "create_task"
	SubtypeUpdateField   = "update_field"
	SubtypeTagClient     = "tag_client"
	SubtypeCreateInvoice = "create_invoice"
	SubtypeScheduleJob   = "schedule_job"
	SubtypeAIGenerate    = "ai_generate"
	SubtypeWait          = "wait"
)

// Step — один шаг workflow.
//
// Шаги образуют дерево: condition/branch содержат два списка-преемника
// (OnTrue/OnFalse). Циклов нет, поэтому обход всегда завершается.
type Step struct {
	// ID — идентификатор шага в рамках workflow.
	ID string `json:"id"`

	// Kind — action | condition | delay | branch.
	Kind StepKind `json:"kind"`

	// Subtype — конкретный тип действия или задержки.
	Subtype string `json:"subtype,omitempty"`

	// Config — конфигурация подтипа; строки проходят через интерполяцию.
	Config map[string]any `json:"config,omitempty"`

	// SequenceOrder — порядок шага внутри своего списка.
	SequenceOrder int `json:"sequence_order"`

	// ContinueOnError — при ошибке шага продолжать выполнение.
	ContinueOnError bool `json:"continue_on_error"`

	// Conditions — условия для condition/branch (AND).
	Conditions []Condition `json:"conditions,omitempty"`

	// OnTrue — шаги, если условия выполнены.
	OnTrue []Step `json:"on_true,omitempty"`

	// OnFalse — шаги, если условия не выполнены.
	OnFalse []Step `json:"on_false,omitempty"`
}

// IsBranching возвращает true для шагов с двумя списками-преемниками.
func (s *Step) IsBranching() bool {
	return s.Kind == StepKindCondition || s.Kind == StepKindBranch
}

// SortedSteps возвращает копию списка, упорядоченную по SequenceOrder.
// При равном SequenceOrder сохраняется исходный порядок.
func SortedSteps(steps []Step) []Step {
	sorted := make([]Step, len(steps))
	copy(sorted, steps)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SequenceOrder < sorted[j].SequenceOrder
	})
	return sorted
}

// WalkSteps обходит дерево шагов в глубину.
// fn получает шаг и глубину вложенности; false прекращает обход.
func WalkSteps(steps []Step, fn func(step *Step, depth int) bool) bool {
	return walkSteps(steps, 0, fn)
}

func walkSteps(steps []Step, depth int, fn func(step *Step, depth int) bool) bool {
	for i := range steps {
		step := &steps[i]
		if !fn(step, depth) {
			return false
		}
		if !walkSteps(step.OnTrue, depth+1, fn) {
			return false
		}
		if !walkSteps(step.OnFalse, depth+1, fn) {
			return false
		}
	}
	return true
}
