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

// MessageRepo — репозиторий очереди сообщений.
type MessageRepo struct {
	pool *pgxpool.Pool
}

// NewMessageRepo создаёт новый MessageRepo.
func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

const messageColumns = `
	id, workflow_id, execution_id, step_id, organization_id, message_type, recipient,
	subject, content, scheduled_at, status, delivery_window, metadata, error_message,
	provider_message_id, sent_at, fallback_queued_at, created_at`

// EnqueueMessage добавляет сообщение в очередь.
func (r *MessageRepo) EnqueueMessage(ctx context.Context, msg *domain.QueuedMessage) error {
	windowJSON, err := marshalJSON("delivery_window", msg.DeliveryWindow)
	if err != nil {
		return err
	}
	metaJSON, err := marshalJSON("metadata", nonNilMap(msg.Metadata))
	if err != nil {
		return err
	}

	query := `
		INSERT INTO queued_messages (id, workflow_id, execution_id, step_id, organization_id,
		                             message_type, recipient, subject, content, scheduled_at,
		                             status, delivery_window, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = r.pool.Exec(ctx, query,
		msg.ID,
		msg.WorkflowID,
		msg.ExecutionID,
		msg.StepID,
		msg.OrganizationID,
		msg.MessageType,
		msg.Recipient,
		nullString(msg.Subject),
		msg.Content,
		msg.ScheduledAt,
		msg.Status,
		windowJSON,
		metaJSON,
		msg.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetMessage возвращает сообщение по ID.
func (r *MessageRepo) GetMessage(ctx context.Context, id uuid.UUID) (*domain.QueuedMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM queued_messages WHERE id = $1`
	return r.scanMessage(r.pool.QueryRow(ctx, query, id))
}

// ListDueMessages возвращает pending сообщения со scheduled_at ≤ now.
func (r *MessageRepo) ListDueMessages(ctx context.Context, now time.Time, limit int) ([]domain.QueuedMessage, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM queued_messages
		WHERE status = 'pending' AND scheduled_at <= $1
		ORDER BY scheduled_at ASC
		LIMIT $2
	`
	return r.queryMessages(ctx, query, now, limitOrDefault(limit))
}

// ClaimMessage переводит pending → processing.
// Из нескольких конкурирующих проходов строку получает ровно один.
func (r *MessageRepo) ClaimMessage(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := r.pool.Exec(ctx,
		`UPDATE queued_messages SET status = 'processing' WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return false, fmt.Errorf("claim message: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// MarkSent переводит processing → sent.
func (r *MessageRepo) MarkSent(ctx context.Context, id uuid.UUID, providerMessageID string, sentAt time.Time) error {
	query := `
		UPDATE queued_messages
		SET status = 'sent', provider_message_id = $2, sent_at = $3, error_message = NULL
		WHERE id = $1 AND status = 'processing'
	`
	return r.execTransition(ctx, "mark sent", query, id, nullString(providerMessageID), sentAt)
}

// MarkFailed переводит processing → failed.
func (r *MessageRepo) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	query := `
		UPDATE queued_messages
		SET status = 'failed', error_message = $2
		WHERE id = $1 AND status = 'processing'
	`
	return r.execTransition(ctx, "mark failed", query, id, errMsg)
}

// ResetMessage переводит failed → pending.
func (r *MessageRepo) ResetMessage(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE queued_messages
		SET status = 'pending', error_message = NULL
		WHERE id = $1 AND status = 'failed'
	`, id)
	if err != nil {
		return false, fmt.Errorf("reset message: %w", err)
	}
	if result.RowsAffected() == 1 {
		return true, nil
	}

	// различаем "нет такого" и "не в статусе failed"
	if _, err := r.GetMessage(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// ResetFailedByWorkflow переводит failed сообщения workflow в pending.
func (r *MessageRepo) ResetFailedByWorkflow(ctx context.Context, workflowID uuid.UUID) (int, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE queued_messages
		SET status = 'pending', error_message = NULL
		WHERE workflow_id = $1 AND status = 'failed'
	`, workflowID)
	if err != nil {
		return 0, fmt.Errorf("reset failed messages: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// ListFallbackCandidates возвращает основные сообщения, не доставленные
// за fallback_delay_minutes после scheduled_at.
func (r *MessageRepo) ListFallbackCandidates(ctx context.Context, now time.Time, limit int) ([]domain.QueuedMessage, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM queued_messages
		WHERE status <> 'sent'
		  AND fallback_queued_at IS NULL
		  AND metadata ->> 'channel_role' = 'primary'
		  AND COALESCE(metadata ->> 'fallback_channel', '') <> ''
		  AND COALESCE(metadata ->> 'fallback_recipient', '') <> ''
		  AND scheduled_at + make_interval(mins => COALESCE((metadata ->> 'fallback_delay_minutes')::int, 0)) <= $1
		ORDER BY scheduled_at ASC
		LIMIT $2
	`
	return r.queryMessages(ctx, query, now, limitOrDefault(limit))
}

// ClaimFallback выставляет fallback_queued_at, если он ещё пуст.
func (r *MessageRepo) ClaimFallback(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE queued_messages
		SET fallback_queued_at = $2
		WHERE id = $1 AND fallback_queued_at IS NULL AND status <> 'sent'
	`, id, now)
	if err != nil {
		return false, fmt.Errorf("claim fallback: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// ListMessages возвращает сообщения с фильтрацией.
func (r *MessageRepo) ListMessages(ctx context.Context, filter gateway.MessageFilter) ([]domain.QueuedMessage, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM queued_messages
		WHERE ($1::uuid IS NULL OR workflow_id = $1)
		  AND ($2::uuid IS NULL OR execution_id = $2)
		  AND ($3::text IS NULL OR status = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`
	return r.queryMessages(ctx, query,
		nullUUID(filter.WorkflowID),
		nullUUID(filter.ExecutionID),
		nullString(string(filter.Status)),
		limitOrDefault(filter.Limit),
		filter.Offset,
	)
}

// --- Helpers ---

func (r *MessageRepo) execTransition(ctx context.Context, op, query string, args ...any) error {
	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

func (r *MessageRepo) queryMessages(ctx context.Context, query string, args ...any) ([]domain.QueuedMessage, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.QueuedMessage
	for rows.Next() {
		m, err := r.scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

// scanMessage сканирует одну строку в QueuedMessage.
func (r *MessageRepo) scanMessage(row pgx.Row) (*domain.QueuedMessage, error) {
	var m domain.QueuedMessage
	var windowJSON, metaJSON []byte
	var subject, errorMessage, providerID *string

	err := row.Scan(
		&m.ID,
		&m.WorkflowID,
		&m.ExecutionID,
		&m.StepID,
		&m.OrganizationID,
		&m.MessageType,
		&m.Recipient,
		&subject,
		&m.Content,
		&m.ScheduledAt,
		&m.Status,
		&windowJSON,
		&metaJSON,
		&errorMessage,
		&providerID,
		&m.SentAt,
		&m.FallbackQueuedAt,
		&m.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}

	if err := unmarshalJSON("delivery_window", windowJSON, &m.DeliveryWindow); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("metadata", metaJSON, &m.Metadata); err != nil {
		return nil, err
	}
	m.Subject = deref(subject)
	m.ErrorMessage = deref(errorMessage)
	m.ProviderMessageID = deref(providerID)

	return &m, nil
}
