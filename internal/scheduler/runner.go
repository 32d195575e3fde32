package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job — одна короткая stateless-операция (проход consumer'а, fallback-проверка).
type Job func(ctx context.Context) error

// Runner вызывает зарегистрированные Job по cron-расписанию.
//
// Сам Runner состояния не хранит: каждый вызов Job независим,
// пересечение вызовов одной Job пропускается (SkipIfStillRunning).
type Runner struct {
	cron    *cron.Cron
	logger  *slog.Logger
	jobs    []namedJob
	timeout time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
}

type namedJob struct {
	name string
	spec string
	job  Job
}

// RunnerConfig — конфигурация Runner.
type RunnerConfig struct {
	Logger   *slog.Logger
	Location *time.Location // часовой пояс cron-выражений (default: UTC)
	Timeout  time.Duration  // ограничение одного вызова Job (0 — без ограничения)
}

// NewRunner создаёт новый Runner.
func NewRunner(cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	cl := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())

	r := &Runner{
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		timeout: cfg.Timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
	return r
}

// Add регистрирует Job под именем name с расписанием spec.
func (r *Runner) Add(name, spec string, job Job) error {
	if job == nil {
		return errors.New("job is nil")
	}

	_, err := r.cron.AddFunc(spec, func() {
		r.invoke(r.ctx, name, job)
	})
	if err != nil {
		return fmt.Errorf("add job %s: %w", name, err)
	}

	r.jobs = append(r.jobs, namedJob{name: name, spec: spec, job: job})

	next, _ := NextRun(spec, time.Now())
	r.logger.Info("job registered", "job", name, "schedule", spec, "next_run", next)
	return nil
}

// Run запускает расписание и блокируется до отмены ctx.
// После отмены ждёт завершения выполняющихся Job.
func (r *Runner) Run(ctx context.Context) error {
	r.cron.Start()
	r.logger.Info("runner started", "jobs", len(r.jobs))

	<-ctx.Done()

	r.cancel()
	stopCtx := r.cron.Stop()
	<-stopCtx.Done()

	r.logger.Info("runner stopped")
	return nil
}

// RunOnce последовательно вызывает каждую Job один раз.
// Возвращает первую ошибку, но вызывает все Job.
func (r *Runner) RunOnce(ctx context.Context) error {
	var firstErr error
	for _, nj := range r.jobs {
		if err := r.invoke(ctx, nj.name, nj.job); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("job %s: %w", nj.name, err)
		}
	}
	return firstErr
}

// invoke вызывает Job с таймаутом и логирует результат.
func (r *Runner) invoke(ctx context.Context, name string, job Job) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	err := job(ctx)
	if err != nil {
		r.logger.Error("job failed", "job", name, "duration", time.Since(start), "error", err)
		return err
	}

	r.logger.Debug("job completed", "job", name, "duration", time.Since(start))
	return nil
}

// cronLogger — адаптер slog для cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
