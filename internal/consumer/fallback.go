package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Fieldflow/internal/domain"
	"github.com/shaiso/Fieldflow/internal/scheduler"
	"github.com/shaiso/Fieldflow/internal/telemetry"
)

// FallbackStats — итог одной fallback-проверки.
type FallbackStats struct {
	Candidates int `json:"candidates"`
	Enqueued   int `json:"enqueued"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// FallbackCheck ставит сообщения в резервный канал.
//
// Кандидат — основное сообщение с fallback в metadata, не дошедшее
// до sent за fallback_delay_minutes после scheduled_at. Захват идёт через
// fallback_queued_at, поэтому fallback ставится не больше одного раза.
// Время отправки резервного сообщения считается по окну доставки основного.
// Проверка best-effort: сбой одного кандидата не останавливает остальные.
func (c *Consumer) FallbackCheck(ctx context.Context, now time.Time) (stats FallbackStats, err error) {
	ctx, span := telemetry.StartSpan(ctx, c.tracer, "consumer.fallback")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("fallback check panicked", "panic", r)
			err = fmt.Errorf("fallback check panicked: %v", r)
		}
		result := "ok"
		if err != nil {
			result = "error"
			span.RecordError(err)
		}
		telemetry.ConsumerPasses.WithLabelValues("fallback", result).Inc()
	}()

	now = now.UTC()

	candidates, err := c.store.ListFallbackCandidates(ctx, now, c.batchSize)
	if err != nil {
		return stats, fmt.Errorf("list fallback candidates: %w", err)
	}
	stats.Candidates = len(candidates)

	active := newWorkflowCache(c.store)

	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		primary := &candidates[i]
		logger := c.logger.With(telemetry.MessageAttr(primary.ID))

		ok, err := active.isActive(ctx, primary.WorkflowID)
		if err != nil || !ok {
			if err != nil {
				logger.Error("failed to load workflow for fallback", "error", err)
			}
			stats.Skipped++
			continue
		}

		fallback, err := buildFallback(primary, now)
		if err != nil {
			logger.Warn("cannot schedule fallback message", "error", err)
			stats.Failed++
			continue
		}

		claimed, err := c.store.ClaimFallback(ctx, primary.ID, now)
		if err != nil {
			logger.Error("failed to claim fallback", "error", err)
			stats.Failed++
			continue
		}
		if !claimed {
			stats.Skipped++
			continue
		}

		if err := c.store.EnqueueMessage(ctx, fallback); err != nil {
			// fallback_queued_at уже выставлен: повторной попытки не будет
			logger.Error("failed to enqueue fallback message", "error", err)
			stats.Failed++
			continue
		}

		telemetry.MessagesEnqueued.WithLabelValues(string(fallback.MessageType), domain.ChannelRoleFallback).Inc()
		logger.Info("fallback message enqueued",
			"fallback_message_id", fallback.ID,
			"channel", fallback.MessageType,
			"scheduled_at", fallback.ScheduledAt,
		)
		stats.Enqueued++
	}

	return stats, nil
}

// buildFallback строит сообщение резервного канала для основного.
func buildFallback(primary *domain.QueuedMessage, now time.Time) (*domain.QueuedMessage, error) {
	ch := domain.MessageType(primary.MetaString(domain.MetaFallbackChannel))
	if !ch.IsValid() {
		return nil, fmt.Errorf("invalid fallback channel %q", ch)
	}

	scheduledAt, err := scheduler.NextDeliveryTime(primary.DeliveryWindow, now)
	if err != nil {
		return nil, err
	}

	content := primary.MetaString(domain.MetaFallbackContent)
	if content == "" {
		content = primary.Content
	}

	var subject string
	if ch == domain.MessageTypeEmail {
		subject = primary.Subject
	}

	return &domain.QueuedMessage{
		ID:             uuid.New(),
		WorkflowID:     primary.WorkflowID,
		ExecutionID:    primary.ExecutionID,
		StepID:         primary.StepID,
		OrganizationID: primary.OrganizationID,
		MessageType:    ch,
		Recipient:      primary.MetaString(domain.MetaFallbackRecipient),
		Subject:        subject,
		Content:        content,
		ScheduledAt:    scheduledAt,
		Status:         domain.MessageStatusPending,
		DeliveryWindow: primary.DeliveryWindow,
		Metadata: map[string]any{
			domain.MetaChannelRole:      domain.ChannelRoleFallback,
			domain.MetaPrimaryMessageID: primary.ID.String(),
		},
		CreatedAt: now,
	}, nil
}
