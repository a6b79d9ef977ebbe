// Package mail defines the outbound email boundary consumed by the
// email-send queue. Formatting and delivery mechanics live outside this
// repository.
package mail

import "context"

// Message is one queued email-send unit.
type Message struct {
	UserID     string `json:"user_id"`
	CampaignID string `json:"campaign_id"`
	To         string `json:"to"`
	TemplateID string `json:"template_id"`
}

// Sender delivers a single message. Errors bubble to the queue layer, which
// retries with exponential backoff up to the task's max attempts.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
