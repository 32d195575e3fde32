package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Fieldflow/internal/domain"
	"github.com/shaiso/Fieldflow/internal/gateway"
)

// ExecutionRepo — репозиторий для работы с execution logs.
type ExecutionRepo struct {
	pool *pgxpool.Pool
}

// NewExecutionRepo создаёт новый ExecutionRepo.
func NewExecutionRepo(pool *pgxpool.Pool) *ExecutionRepo {
	return &ExecutionRepo{pool: pool}
}

const executionColumns = `
	id, workflow_id, organization_id, trigger_data, status, actions_executed,
	error_message, step_cursor, resume_at, created_at, started_at, completed_at`

// CreateExecution создаёт новый log.
func (r *ExecutionRepo) CreateExecution(ctx context.Context, e *domain.ExecutionLog) error {
	triggerJSON, err := marshalJSON("trigger_data", nonNilMap(e.TriggerData))
	if err != nil {
		return err
	}
	actionsJSON, err := marshalJSON("actions_executed", nonNilActions(e.ActionsExecuted))
	if err != nil {
		return err
	}

	query := `
		INSERT INTO execution_logs (id, workflow_id, organization_id, trigger_data, status,
		                            actions_executed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.pool.Exec(ctx, query,
		e.ID,
		e.WorkflowID,
		e.OrganizationID,
		triggerJSON,
		e.Status,
		actionsJSON,
		e.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// GetExecution возвращает log по ID.
func (r *ExecutionRepo) GetExecution(ctx context.Context, id uuid.UUID) (*domain.ExecutionLog, error) {
	query := `SELECT ` + executionColumns + ` FROM execution_logs WHERE id = $1`
	return r.scanExecution(r.pool.QueryRow(ctx, query, id))
}

// ClaimExecution переводит pending → processing.
// Условие WHERE status = 'pending' гарантирует одного победителя.
func (r *ExecutionRepo) ClaimExecution(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	query := `
		UPDATE execution_logs
		SET status = 'processing', started_at = $2
		WHERE id = $1 AND status = 'pending'
	`
	result, err := r.pool.Exec(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("claim execution: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// ClaimResume забирает приостановленный log.
func (r *ExecutionRepo) ClaimResume(ctx context.Context, id uuid.UUID, resumeAt time.Time) (bool, error) {
	query := `
		UPDATE execution_logs
		SET resume_at = NULL
		WHERE id = $1 AND status = 'processing' AND resume_at = $2
	`
	result, err := r.pool.Exec(ctx, query, id, resumeAt)
	if err != nil {
		return false, fmt.Errorf("claim resume: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// SaveProgress сохраняет actions_executed, cursor и resume_at.
func (r *ExecutionRepo) SaveProgress(ctx context.Context, e *domain.ExecutionLog) error {
	actionsJSON, err := marshalJSON("actions_executed", nonNilActions(e.ActionsExecuted))
	if err != nil {
		return err
	}
	var cursorJSON []byte
	if len(e.Cursor) > 0 {
		if cursorJSON, err = marshalJSON("cursor", e.Cursor); err != nil {
			return err
		}
	}

	query := `
		UPDATE execution_logs
		SET actions_executed = $2, step_cursor = $3, resume_at = $4
		WHERE id = $1 AND status = 'processing'
	`
	result, err := r.pool.Exec(ctx, query, e.ID, actionsJSON, cursorJSON, e.ResumeAt)
	if err != nil {
		return fmt.Errorf("save execution progress: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// FinishExecution переводит processing → completed | failed.
func (r *ExecutionRepo) FinishExecution(ctx context.Context, e *domain.ExecutionLog) (bool, error) {
	if !e.Status.IsTerminal() {
		return false, ErrInvalidState
	}

	actionsJSON, err := marshalJSON("actions_executed", nonNilActions(e.ActionsExecuted))
	if err != nil {
		return false, err
	}

	query := `
		UPDATE execution_logs
		SET status = $2, actions_executed = $3, error_message = $4, completed_at = $5,
		    step_cursor = NULL, resume_at = NULL
		WHERE id = $1 AND status = 'processing'
	`
	result, err := r.pool.Exec(ctx, query,
		e.ID,
		e.Status,
		actionsJSON,
		nullString(e.ErrorMessage),
		e.CompletedAt,
	)
	if err != nil {
		return false, fmt.Errorf("finish execution: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// ListPendingExecutions возвращает pending logs, созданные не позже before.
func (r *ExecutionRepo) ListPendingExecutions(ctx context.Context, before time.Time, limit int) ([]domain.ExecutionLog, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM execution_logs
		WHERE status = 'pending' AND created_at <= $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	return r.queryExecutions(ctx, query, before, limitOrDefault(limit))
}

// ListResumable возвращает приостановленные logs с resume_at ≤ now.
func (r *ExecutionRepo) ListResumable(ctx context.Context, now time.Time, limit int) ([]domain.ExecutionLog, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM execution_logs
		WHERE status = 'processing' AND resume_at IS NOT NULL AND resume_at <= $1
		ORDER BY resume_at ASC
		LIMIT $2
	`
	return r.queryExecutions(ctx, query, now, limitOrDefault(limit))
}

// ListExecutions возвращает logs с фильтрацией.
func (r *ExecutionRepo) ListExecutions(ctx context.Context, filter gateway.ExecutionFilter) ([]domain.ExecutionLog, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM execution_logs
		WHERE ($1::uuid IS NULL OR workflow_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	return r.queryExecutions(ctx, query,
		nullUUID(filter.WorkflowID),
		nullString(string(filter.Status)),
		limitOrDefault(filter.Limit),
		filter.Offset,
	)
}

// --- Helpers ---

func (r *ExecutionRepo) queryExecutions(ctx context.Context, query string, args ...any) ([]domain.ExecutionLog, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var logs []domain.ExecutionLog
	for rows.Next() {
		e, err := r.scanExecution(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, *e)
	}
	return logs, rows.Err()
}

// scanExecution сканирует одну строку в ExecutionLog.
func (r *ExecutionRepo) scanExecution(row pgx.Row) (*domain.ExecutionLog, error) {
	var e domain.ExecutionLog
	var triggerJSON, actionsJSON, cursorJSON []byte
	var errorMessage *string

	err := row.Scan(
		&e.ID,
		&e.WorkflowID,
		&e.OrganizationID,
		&triggerJSON,
		&e.Status,
		&actionsJSON,
		&errorMessage,
		&cursorJSON,
		&e.ResumeAt,
		&e.CreatedAt,
		&e.StartedAt,
		&e.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan execution: %w", err)
	}

	if err := unmarshalJSON("trigger_data", triggerJSON, &e.TriggerData); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("actions_executed", actionsJSON, &e.ActionsExecuted); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("cursor", cursorJSON, &e.Cursor); err != nil {
		return nil, err
	}
	e.ErrorMessage = deref(errorMessage)

	return &e, nil
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func nonNilActions(a []domain.ActionRecord) []domain.ActionRecord {
	if a == nil {
		return []domain.ActionRecord{}
	}
	return a
}
