package models

import "time"

type EmailStatus string

const (
	StatusPending EmailStatus = "pending"
	StatusSending EmailStatus = "sending"
	StatusSent    EmailStatus = "sent"
	StatusSkipped EmailStatus = "skipped"
	StatusFailed  EmailStatus = "failed"
)

// IsTerminal reports whether the status can never change again. A failed row
// only exists after the retry budget is spent, so failed counts as terminal.
func (s EmailStatus) IsTerminal() bool {
	return s == StatusSent || s == StatusSkipped || s == StatusFailed
}

type TemplateCategory string

const (
	CategoryWelcome     TemplateCategory = "welcome"
	CategoryOnboarding  TemplateCategory = "onboarding"
	CategorySystem      TemplateCategory = "system"
	CategoryEngagement  TemplateCategory = "engagement"
	CategoryNetwork     TemplateCategory = "network"
	CategoryAchievement TemplateCategory = "achievement"
	CategoryEducational TemplateCategory = "educational"
	CategoryDigest      TemplateCategory = "digest"
	CategoryPromotional TemplateCategory = "promotional"
	CategoryOther       TemplateCategory = "other"
)

// EmailQueueItem is one row of the durable send queue. Subject and bodies are
// copied from the template at enqueue time; the queue row is authoritative for
// delivery. Rows are never deleted, they are the audit trail.
type EmailQueueItem struct {
	ID             string         `json:"id"`
	RecipientID    string         `json:"recipient_id,omitempty"`
	RecipientEmail string         `json:"recipient_email"`
	TemplateID     *string        `json:"template_id,omitempty"`
	Subject        string         `json:"subject"`
	HTMLBody       string         `json:"html_body"`
	TextBody       string         `json:"text_body"`
	Data           map[string]any `json:"personalization_data,omitempty"`

	Priority     int         `json:"priority"`
	ScheduledFor time.Time   `json:"scheduled_for"`
	SendAttempts int         `json:"send_attempts"`
	Status       EmailStatus `json:"status"`
	ErrorMessage *string     `json:"error_message,omitempty"`

	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// EmailTemplate is admin-managed content. The pipeline only reads it and bumps
// the counters; it never edits subject or bodies.
type EmailTemplate struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Category TemplateCategory `json:"category"`
	Subject  string           `json:"subject"`
	HTMLBody string           `json:"html_body"`
	TextBody string           `json:"text_body"`
	IsActive bool             `json:"is_active"`

	TotalSent    int64 `json:"total_sent"`
	TotalOpened  int64 `json:"total_opened"`
	TotalClicked int64 `json:"total_clicked"`
}

// RecipientPreference is the opt-out record. Absence of a row means the
// recipient is subscribed.
type RecipientPreference struct {
	ProfileID        string `json:"profile_id"`
	EmailEnabled     bool   `json:"email_enabled"`
	UnsubscribeToken string `json:"unsubscribe_token"`
}

// EmailEvent is an append-only audit row, one or more per queue item.
type EmailEvent struct {
	ID          int64     `json:"id"`
	QueueItemID string    `json:"queue_item_id"`
	EventType   string    `json:"event_type"`
	CreatedAt   time.Time `json:"created_at"`
}

const EventSent = "sent"
