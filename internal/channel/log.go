package channel

import (
	"context"
	"log/slog"
)

// LogProvider только логирует сообщения.
type LogProvider struct {
	logger *slog.Logger
}

// NewLogProvider создаёт LogProvider.
func NewLogProvider(logger *slog.Logger) *LogProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogProvider{logger: logger}
}

// Send реализует Provider.
func (p *LogProvider) Send(ctx context.Context, msg Message) (SendResult, error) {
	if err := ctx.Err(); err != nil {
		return SendResult{}, err
	}

	p.logger.InfoContext(ctx, "message delivered to log",
		"message_id", msg.ID,
		"channel", msg.Channel,
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.Body,
	)
	return SendResult{ProviderMessageID: "log-" + msg.ID.String(), Status: "logged"}, nil
}
