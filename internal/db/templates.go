package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"RoostMail/internal/models"
)

var ErrTokenNotFound = errors.New("unsubscribe token not found")

func (s *Store) Template(ctx context.Context, id string) (*models.EmailTemplate, error) {
	var tmpl models.EmailTemplate
	err := s.Pool.QueryRow(ctx,
		`SELECT id, name, category, subject, html_body, text_body, is_active,
		        total_sent, total_opened, total_clicked
		 FROM email_templates
		 WHERE id = $1`,
		id,
	).Scan(
		&tmpl.ID,
		&tmpl.Name,
		&tmpl.Category,
		&tmpl.Subject,
		&tmpl.HTMLBody,
		&tmpl.TextBody,
		&tmpl.IsActive,
		&tmpl.TotalSent,
		&tmpl.TotalOpened,
		&tmpl.TotalClicked,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch template: %w", err)
	}
	return &tmpl, nil
}

func (s *Store) IncrementSent(ctx context.Context, templateID string) error {
	return s.incrementCounter(ctx, templateID, "total_sent")
}

func (s *Store) IncrementOpened(ctx context.Context, templateID string) error {
	return s.incrementCounter(ctx, templateID, "total_opened")
}

func (s *Store) IncrementClicked(ctx context.Context, templateID string) error {
	return s.incrementCounter(ctx, templateID, "total_clicked")
}

func (s *Store) incrementCounter(ctx context.Context, templateID, column string) error {
	// column is one of three fixed names, never caller input.
	query := fmt.Sprintf(
		`UPDATE email_templates SET %s = %s + 1, updated_at = NOW() WHERE id = $1`,
		column, column)
	tag, err := s.Pool.Exec(ctx, query, templateID)
	if err != nil {
		return fmt.Errorf("increment %s: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

// Preference returns the recipient's preference row, or nil when none exists.
// A missing row means the recipient is subscribed (opt-out model).
func (s *Store) Preference(ctx context.Context, profileID string) (*models.RecipientPreference, error) {
	var pref models.RecipientPreference
	err := s.Pool.QueryRow(ctx,
		`SELECT profile_id, email_enabled, unsubscribe_token
		 FROM notification_preferences
		 WHERE profile_id = $1`,
		profileID,
	).Scan(&pref.ProfileID, &pref.EmailEnabled, &pref.UnsubscribeToken)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch preference: %w", err)
	}
	return &pref, nil
}

// EnsurePreference creates the preference row on first interaction, minting
// the stable unsubscribe token, and returns the row either way.
func (s *Store) EnsurePreference(ctx context.Context, profileID string) (*models.RecipientPreference, error) {
	var pref models.RecipientPreference
	err := s.Pool.QueryRow(ctx,
		`INSERT INTO notification_preferences (profile_id, unsubscribe_token)
		 VALUES ($1, $2)
		 ON CONFLICT (profile_id) DO UPDATE SET updated_at = NOW()
		 RETURNING profile_id, email_enabled, unsubscribe_token`,
		profileID,
		uuid.NewString(),
	).Scan(&pref.ProfileID, &pref.EmailEnabled, &pref.UnsubscribeToken)
	if err != nil {
		return nil, fmt.Errorf("ensure preference: %w", err)
	}
	return &pref, nil
}

// UnsubscribeByToken flips email_enabled off for the holder of the token. The
// token is an opaque per-user secret, so this path needs no session.
func (s *Store) UnsubscribeByToken(ctx context.Context, token string) error {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE notification_preferences
		 SET email_enabled = FALSE,
		     updated_at = NOW()
		 WHERE unsubscribe_token = $1`,
		token,
	)
	if err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTokenNotFound
	}
	return nil
}
