package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

// Форматы логов.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// LogOptions — настройки логгера процесса.
type LogOptions struct {
	// Level — debug, info, warn, error (регистр не важен, допустимо "warn+2").
	// Пустой или нераспознанный — info.
	Level string

	// Format — json (default) или text.
	Format string

	// Output — куда писать (default: os.Stdout).
	Output io.Writer
}

// ParseLevel разбирает уровень логирования; ok=false для нераспознанного значения.
func ParseLevel(s string) (level slog.Level, ok bool) {
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, true
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, false
	}
	return level, true
}

// NewLogger собирает логгер по настройкам.
// На debug в записи добавляется место вызова.
func NewLogger(opts LogOptions) *slog.Logger {
	level, _ := ParseLevel(opts.Level)

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	}

	if strings.EqualFold(opts.Format, FormatText) {
		return slog.New(slog.NewTextHandler(out, handlerOpts))
	}
	return slog.New(slog.NewJSONHandler(out, handlerOpts))
}

// SetupLogger создаёт логгер процесса и делает его глобальным.
func SetupLogger(opts LogOptions) *slog.Logger {
	logger := NewLogger(opts)
	slog.SetDefault(logger)
	return logger
}

// Атрибуты идентификаторов, общие для всех процессов.

func ExecutionAttr(id uuid.UUID) slog.Attr { return slog.String("execution_id", id.String()) }

func WorkflowAttr(id uuid.UUID) slog.Attr { return slog.String("workflow_id", id.String()) }

func MessageAttr(id uuid.UUID) slog.Attr { return slog.String("message_id", id.String()) }

func StepAttr(id string) slog.Attr { return slog.String("step_id", id) }
