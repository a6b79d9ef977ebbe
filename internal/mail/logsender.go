package mail

import (
	"context"

	"github.com/leadforge/pipeline/internal/logger"
)

// LogSender is a Sender that only records the send. Deployments without a
// configured mail gateway run with it so email-send tasks drain instead of
// piling up.
type LogSender struct {
	logger logger.Logger
}

// NewLogSender creates a log-only sender.
func NewLogSender(log logger.Logger) *LogSender {
	return &LogSender{logger: log}
}

// Send logs the message and succeeds.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("email send (no gateway configured)",
		logger.String("campaign_id", msg.CampaignID),
		logger.String("to", msg.To),
		logger.String("template_id", msg.TemplateID),
	)
	return nil
}
