package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"RoostMail/internal/models"
)

var (
	ErrNoRecipient      = errors.New("recipient email is required")
	ErrNoSubject        = errors.New("subject is required when no template is given")
	ErrNoContent        = errors.New("html or text body is required when no template is given")
	ErrTemplateNotFound = errors.New("template not found")
	ErrTemplateInactive = errors.New("template is not active")
)

// EnqueueRequest describes a new email to queue. When TemplateID is set, the
// template's subject and bodies fill any field the request leaves empty.
type EnqueueRequest struct {
	RecipientID    string         `json:"recipient_id"`
	RecipientEmail string         `json:"recipient_email"`
	TemplateID     *string        `json:"template_id"`
	Subject        string         `json:"subject"`
	HTMLBody       string         `json:"html_body"`
	TextBody       string         `json:"text_body"`
	Data           map[string]any `json:"personalization_data"`
	Priority       int            `json:"priority"`
	ScheduledFor   *time.Time     `json:"scheduled_for"`
}

// Enqueue validates the request and inserts a pending queue row. Validation
// failures happen before any insert: a bad request never leaves a row behind.
func (s *Store) Enqueue(ctx context.Context, req EnqueueRequest) (*models.EmailQueueItem, error) {
	if req.RecipientEmail == "" {
		return nil, ErrNoRecipient
	}

	var tmpl *models.EmailTemplate
	if req.TemplateID != nil {
		var err error
		tmpl, err = s.Template(ctx, *req.TemplateID)
		if err != nil {
			return nil, err
		}
	}

	item, err := prepareQueueItem(req, tmpl)
	if err != nil {
		return nil, err
	}

	var dataJSON []byte
	if item.Data != nil {
		var err error
		dataJSON, err = json.Marshal(item.Data)
		if err != nil {
			return nil, fmt.Errorf("encode personalization data: %w", err)
		}
	}

	err = s.Pool.QueryRow(ctx,
		`INSERT INTO email_queue
		 (id, recipient_id, recipient_email, template_id, subject, html_body, text_body,
		  personalization_data, priority, scheduled_for, status)
		 VALUES ($1, NULLIF($2,''), $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING created_at, updated_at`,
		item.ID,
		item.RecipientID,
		item.RecipientEmail,
		item.TemplateID,
		item.Subject,
		item.HTMLBody,
		item.TextBody,
		dataJSON,
		item.Priority,
		item.ScheduledFor,
		item.Status,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert queue item: %w", err)
	}

	return item, nil
}

// prepareQueueItem validates an enqueue request against its template (nil when
// the request carries none) and builds the row to insert. An inactive template
// or a template-less request without subject and content is rejected here,
// before anything touches the queue table.
func prepareQueueItem(req EnqueueRequest, tmpl *models.EmailTemplate) (*models.EmailQueueItem, error) {
	if req.RecipientEmail == "" {
		return nil, ErrNoRecipient
	}

	item := models.EmailQueueItem{
		ID:             uuid.NewString(),
		RecipientID:    req.RecipientID,
		RecipientEmail: req.RecipientEmail,
		TemplateID:     req.TemplateID,
		Subject:        req.Subject,
		HTMLBody:       req.HTMLBody,
		TextBody:       req.TextBody,
		Data:           req.Data,
		Priority:       req.Priority,
		Status:         models.StatusPending,
		ScheduledFor:   time.Now(),
	}
	if req.ScheduledFor != nil {
		item.ScheduledFor = *req.ScheduledFor
	}

	if tmpl != nil {
		if !tmpl.IsActive {
			return nil, ErrTemplateInactive
		}
		if item.Subject == "" {
			item.Subject = tmpl.Subject
		}
		if item.HTMLBody == "" {
			item.HTMLBody = tmpl.HTMLBody
		}
		if item.TextBody == "" {
			item.TextBody = tmpl.TextBody
		}
	} else {
		if item.Subject == "" {
			return nil, ErrNoSubject
		}
		if item.HTMLBody == "" && item.TextBody == "" {
			return nil, ErrNoContent
		}
	}

	return &item, nil
}

// ClaimDue atomically claims up to limit due pending rows by flipping them to
// sending in a single conditional update. Overlapping invocations cannot claim
// the same row twice. The attempt counter is deliberately not touched here:
// opted-out recipients are skipped without consuming an attempt.
func (s *Store) ClaimDue(ctx context.Context, limit int) ([]models.EmailQueueItem, error) {
	rows, err := s.Pool.Query(ctx,
		`UPDATE email_queue
		 SET status = $1,
		     updated_at = NOW()
		 WHERE id IN (
		     SELECT id FROM email_queue
		     WHERE status = $2 AND scheduled_for <= NOW()
		     ORDER BY priority DESC, scheduled_for ASC
		     LIMIT $3
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, COALESCE(recipient_id, ''), recipient_email, template_id,
		           subject, html_body, text_body, personalization_data, priority,
		           scheduled_for, send_attempts, last_attempt_at, sent_at, status,
		           error_message, created_at, updated_at`,
		models.StatusSending,
		models.StatusPending,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due items: %w", err)
	}
	defer rows.Close()

	var items []models.EmailQueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim due items: %w", err)
	}

	// RETURNING does not guarantee the subquery order.
	sortClaimed(items)
	return items, nil
}

func sortClaimed(items []models.EmailQueueItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority > items[j].Priority
		}
		return items[i].ScheduledFor.Before(items[j].ScheduledFor)
	})
}

func scanQueueItem(row pgx.Row) (*models.EmailQueueItem, error) {
	var item models.EmailQueueItem
	var dataJSON []byte

	err := row.Scan(
		&item.ID,
		&item.RecipientID,
		&item.RecipientEmail,
		&item.TemplateID,
		&item.Subject,
		&item.HTMLBody,
		&item.TextBody,
		&dataJSON,
		&item.Priority,
		&item.ScheduledFor,
		&item.SendAttempts,
		&item.LastAttemptAt,
		&item.SentAt,
		&item.Status,
		&item.ErrorMessage,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan queue item: %w", err)
	}

	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &item.Data); err != nil {
			return nil, fmt.Errorf("decode personalization data: %w", err)
		}
	}
	return &item, nil
}

// MarkAttempt increments the attempt counter and stamps the attempt time,
// returning the new counter value.
func (s *Store) MarkAttempt(ctx context.Context, id string) (int, error) {
	var attempts int
	err := s.Pool.QueryRow(ctx,
		`UPDATE email_queue
		 SET send_attempts = send_attempts + 1,
		     last_attempt_at = NOW(),
		     updated_at = NOW()
		 WHERE id = $1
		 RETURNING send_attempts`,
		id,
	).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("mark attempt: %w", err)
	}
	return attempts, nil
}

func (s *Store) MarkSent(ctx context.Context, id string) error {
	_, err := s.Pool.Exec(ctx,
		`UPDATE email_queue
		 SET status = $1,
		     sent_at = NOW(),
		     error_message = NULL,
		     updated_at = NOW()
		 WHERE id = $2`,
		models.StatusSent,
		id,
	)
	return err
}

func (s *Store) MarkSkipped(ctx context.Context, id, reason string) error {
	_, err := s.Pool.Exec(ctx,
		`UPDATE email_queue
		 SET status = $1,
		     error_message = $2,
		     updated_at = NOW()
		 WHERE id = $3`,
		models.StatusSkipped,
		reason,
		id,
	)
	return err
}

func (s *Store) MarkFailed(ctx context.Context, id, errMsg string) error {
	_, err := s.Pool.Exec(ctx,
		`UPDATE email_queue
		 SET status = $1,
		     error_message = $2,
		     updated_at = NOW()
		 WHERE id = $3`,
		models.StatusFailed,
		errMsg,
		id,
	)
	return err
}

// Requeue returns an item to pending with a new eligibility time delay from
// now, recording the error that caused the retry.
func (s *Store) Requeue(ctx context.Context, id, errMsg string, delay time.Duration) error {
	_, err := s.Pool.Exec(ctx,
		`UPDATE email_queue
		 SET status = $1,
		     scheduled_for = NOW() + make_interval(secs => $2),
		     error_message = $3,
		     updated_at = NOW()
		 WHERE id = $4`,
		models.StatusPending,
		delay.Seconds(),
		errMsg,
		id,
	)
	return err
}

// RequeueStale recovers rows stuck in sending past the lease timeout, e.g.
// after a crash between claim and terminal update. Returns how many rows were
// recovered.
func (s *Store) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE email_queue
		 SET status = $1,
		     error_message = 'requeued after stale sending lease',
		     updated_at = NOW()
		 WHERE status = $2
		   AND COALESCE(last_attempt_at, updated_at) < NOW() - make_interval(secs => $3)`,
		models.StatusPending,
		models.StatusSending,
		olderThan.Seconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale items: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) InsertEvent(ctx context.Context, itemID, eventType string) error {
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO email_events (queue_item_id, event_type) VALUES ($1, $2)`,
		itemID,
		eventType,
	)
	return err
}
