package channels

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogSender is the dry-run sender: it logs and reports success.
type LogSender struct {
	log *zap.Logger
}

func NewLogSender(log *zap.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, req SendRequest) (*SendResult, error) {
	s.log.Info("dry-run send",
		zap.String("channel", string(req.Channel)),
		zap.String("to", req.To),
		zap.String("idempotency_key", req.IdempotencyKey),
		zap.Int("message_len", len(req.Message)),
	)
	return &SendResult{ExternalID: "dry-" + uuid.NewString()}, nil
}
