package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Fieldflow/internal/domain"
	"github.com/shaiso/Fieldflow/internal/gateway"
)

// WorkflowRepo — репозиторий для работы с workflows.
type WorkflowRepo struct {
	pool *pgxpool.Pool
}

// NewWorkflowRepo создаёт новый WorkflowRepo.
func NewWorkflowRepo(pool *pgxpool.Pool) *WorkflowRepo {
	return &WorkflowRepo{pool: pool}
}

const workflowColumns = `
	id, organization_id, name, trigger_type, trigger_conditions, steps, status,
	delivery_window, multi_channel_config, execution_count, success_count,
	created_at, updated_at`

// CreateWorkflow создаёт новый workflow.
func (r *WorkflowRepo) CreateWorkflow(ctx context.Context, w *domain.Workflow) error {
	args, err := workflowArgs(w)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflows (id, organization_id, name, trigger_type, trigger_conditions,
		                       steps, status, delivery_window, multi_channel_config,
		                       created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.pool.Exec(ctx, query, append(args, w.CreatedAt, w.UpdatedAt)...)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

// UpdateWorkflow обновляет определение workflow.
// Счётчики меняются только через IncrementCounters.
func (r *WorkflowRepo) UpdateWorkflow(ctx context.Context, w *domain.Workflow) error {
	args, err := workflowArgs(w)
	if err != nil {
		return err
	}

	query := `
		UPDATE workflows
		SET organization_id = $2, name = $3, trigger_type = $4, trigger_conditions = $5,
		    steps = $6, status = $7, delivery_window = $8, multi_channel_config = $9,
		    updated_at = $10
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, append(args, w.UpdatedAt)...)
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteWorkflow удаляет workflow.
func (r *WorkflowRepo) DeleteWorkflow(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetWorkflow возвращает workflow по ID.
func (r *WorkflowRepo) GetWorkflow(ctx context.Context, id uuid.UUID) (*domain.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = $1`
	return r.scanWorkflow(r.pool.QueryRow(ctx, query, id))
}

// ListWorkflows возвращает workflows с фильтрацией.
func (r *WorkflowRepo) ListWorkflows(ctx context.Context, filter gateway.WorkflowFilter) ([]domain.Workflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM workflows
		WHERE ($1::uuid IS NULL OR organization_id = $1)
		  AND ($2::text IS NULL OR trigger_type = $2)
		  AND ($3::text IS NULL OR status = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`
	return r.queryWorkflows(ctx, query,
		nullUUID(filter.OrganizationID),
		nullString(filter.TriggerType),
		nullString(string(filter.Status)),
		limitOrDefault(filter.Limit),
		filter.Offset,
	)
}

// ListActiveByTrigger возвращает active workflows организации с данным trigger_type.
func (r *WorkflowRepo) ListActiveByTrigger(ctx context.Context, organizationID uuid.UUID, triggerType string) ([]domain.Workflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM workflows
		WHERE organization_id = $1 AND trigger_type = $2 AND status = 'active'
		ORDER BY created_at ASC
	`
	return r.queryWorkflows(ctx, query, organizationID, triggerType)
}

// IncrementCounters атомарно увеличивает счётчики запусков.
func (r *WorkflowRepo) IncrementCounters(ctx context.Context, id uuid.UUID, success bool) error {
	query := `
		UPDATE workflows
		SET execution_count = execution_count + 1,
		    success_count = success_count + CASE WHEN $2 THEN 1 ELSE 0 END
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, id, success)
	if err != nil {
		return fmt.Errorf("increment counters: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetWorkflowStatus меняет статус workflow.
func (r *WorkflowRepo) SetWorkflowStatus(ctx context.Context, id uuid.UUID, status domain.WorkflowStatus) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE workflows SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("set workflow status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

// workflowArgs готовит аргументы $1..$9 для INSERT/UPDATE.
func workflowArgs(w *domain.Workflow) ([]any, error) {
	conditions := w.TriggerConditions
	if conditions == nil {
		conditions = []domain.Condition{}
	}
	conditionsJSON, err := marshalJSON("trigger_conditions", conditions)
	if err != nil {
		return nil, err
	}
	stepsJSON, err := marshalJSON("steps", w.Steps)
	if err != nil {
		return nil, err
	}
	windowJSON, err := marshalJSON("delivery_window", w.DeliveryWindow)
	if err != nil {
		return nil, err
	}

	var multiJSON []byte
	if w.MultiChannel != nil {
		if multiJSON, err = marshalJSON("multi_channel_config", w.MultiChannel); err != nil {
			return nil, err
		}
	}

	return []any{
		w.ID,
		w.OrganizationID,
		w.Name,
		w.TriggerType,
		conditionsJSON,
		stepsJSON,
		w.Status,
		windowJSON,
		multiJSON,
	}, nil
}

func (r *WorkflowRepo) queryWorkflows(ctx context.Context, query string, args ...any) ([]domain.Workflow, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []domain.Workflow
	for rows.Next() {
		w, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, *w)
	}
	return workflows, rows.Err()
}

// scanWorkflow сканирует одну строку в Workflow.
func (r *WorkflowRepo) scanWorkflow(row pgx.Row) (*domain.Workflow, error) {
	var w domain.Workflow
	var conditionsJSON, stepsJSON, windowJSON, multiJSON []byte

	err := row.Scan(
		&w.ID,
		&w.OrganizationID,
		&w.Name,
		&w.TriggerType,
		&conditionsJSON,
		&stepsJSON,
		&w.Status,
		&windowJSON,
		&multiJSON,
		&w.ExecutionCount,
		&w.SuccessCount,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan workflow: %w", err)
	}

	if err := unmarshalJSON("trigger_conditions", conditionsJSON, &w.TriggerConditions); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("steps", stepsJSON, &w.Steps); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("delivery_window", windowJSON, &w.DeliveryWindow); err != nil {
		return nil, err
	}
	if len(multiJSON) > 0 {
		w.MultiChannel = &domain.MultiChannelConfig{}
		if err := unmarshalJSON("multi_channel_config", multiJSON, w.MultiChannel); err != nil {
			return nil, err
		}
	}

	return &w, nil
}
