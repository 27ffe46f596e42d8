package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"RoostMail/internal/models"
)

func enqueueReq() EnqueueRequest {
	return EnqueueRequest{
		RecipientID:    "user-1",
		RecipientEmail: "ana@example.com",
		Subject:        "Weekly digest",
		TextBody:       "hello",
	}
}

func TestPrepareQueueItem_Valid(t *testing.T) {
	item, err := prepareQueueItem(enqueueReq(), nil)
	if err != nil {
		t.Fatalf("prepareQueueItem: %v", err)
	}
	if item.ID == "" {
		t.Error("item must get an id")
	}
	if item.Status != models.StatusPending {
		t.Errorf("status = %q, want pending", item.Status)
	}
	if item.ScheduledFor.IsZero() {
		t.Error("scheduled_for must default to now")
	}
}

func TestPrepareQueueItem_ValidationErrors(t *testing.T) {
	active := &models.EmailTemplate{ID: "tmpl-1", IsActive: true, Subject: "s", TextBody: "t"}
	inactive := &models.EmailTemplate{ID: "tmpl-2", IsActive: false, Subject: "s", TextBody: "t"}

	cases := []struct {
		name   string
		mutate func(*EnqueueRequest)
		tmpl   *models.EmailTemplate
		want   error
	}{
		{"missing recipient", func(r *EnqueueRequest) { r.RecipientEmail = "" }, nil, ErrNoRecipient},
		{"missing subject", func(r *EnqueueRequest) { r.Subject = "" }, nil, ErrNoSubject},
		{"missing content", func(r *EnqueueRequest) { r.TextBody = "" }, nil, ErrNoContent},
		{"inactive template", func(r *EnqueueRequest) {}, inactive, ErrTemplateInactive},
		{"active template ok", func(r *EnqueueRequest) {}, active, nil},
	}

	for _, tc := range cases {
		req := enqueueReq()
		tc.mutate(&req)
		if tc.tmpl != nil {
			req.TemplateID = &tc.tmpl.ID
		}
		_, err := prepareQueueItem(req, tc.tmpl)
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestPrepareQueueItem_TemplateFillsBlankFields(t *testing.T) {
	tmpl := &models.EmailTemplate{
		ID:       "tmpl-1",
		IsActive: true,
		Subject:  "Template subject",
		HTMLBody: "<p>template html</p>",
		TextBody: "template text",
	}

	req := enqueueReq()
	req.TemplateID = &tmpl.ID
	req.Subject = ""
	req.TextBody = ""

	item, err := prepareQueueItem(req, tmpl)
	if err != nil {
		t.Fatalf("prepareQueueItem: %v", err)
	}
	if item.Subject != "Template subject" || item.HTMLBody != "<p>template html</p>" || item.TextBody != "template text" {
		t.Errorf("template content not copied: %+v", item)
	}

	// An explicit subject on the request wins over the template's.
	req.Subject = "Override"
	item, err = prepareQueueItem(req, tmpl)
	if err != nil {
		t.Fatalf("prepareQueueItem: %v", err)
	}
	if item.Subject != "Override" {
		t.Errorf("subject = %q, want request override", item.Subject)
	}
}

func TestPrepareQueueItem_ScheduledForOverride(t *testing.T) {
	at := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	req := enqueueReq()
	req.ScheduledFor = &at

	item, err := prepareQueueItem(req, nil)
	if err != nil {
		t.Fatalf("prepareQueueItem: %v", err)
	}
	if !item.ScheduledFor.Equal(at) {
		t.Errorf("scheduled_for = %v, want %v", item.ScheduledFor, at)
	}
}

// A store with no pool proves the validation branches return before any
// database access: a rejected request can never leave a row behind.
func TestEnqueue_RejectsBeforeAnyDatabaseAccess(t *testing.T) {
	s := &Store{}

	cases := []struct {
		name   string
		mutate func(*EnqueueRequest)
		want   error
	}{
		{"missing recipient", func(r *EnqueueRequest) { r.RecipientEmail = "" }, ErrNoRecipient},
		{"missing subject", func(r *EnqueueRequest) { r.Subject = "" }, ErrNoSubject},
		{"missing content", func(r *EnqueueRequest) { r.TextBody = "" }, ErrNoContent},
	}

	for _, tc := range cases {
		req := enqueueReq()
		tc.mutate(&req)
		item, err := s.Enqueue(context.Background(), req)
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
		if item != nil {
			t.Errorf("%s: rejected request returned an item", tc.name)
		}
	}
}

func TestSortClaimed_PriorityDescending(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	items := []models.EmailQueueItem{
		{ID: "p1", Priority: 1, ScheduledFor: now},
		{ID: "p5", Priority: 5, ScheduledFor: now},
		{ID: "p3", Priority: 3, ScheduledFor: now},
	}

	sortClaimed(items)

	want := []string{"p5", "p3", "p1"}
	for i, id := range want {
		if items[i].ID != id {
			t.Errorf("position %d = %q, want %q", i, items[i].ID, id)
		}
	}
}

func TestSortClaimed_TieBrokenByScheduledFor(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	items := []models.EmailQueueItem{
		{ID: "later", Priority: 2, ScheduledFor: now},
		{ID: "earlier", Priority: 2, ScheduledFor: now.Add(-time.Hour)},
		{ID: "top", Priority: 9, ScheduledFor: now},
	}

	sortClaimed(items)

	want := []string{"top", "earlier", "later"}
	for i, id := range want {
		if items[i].ID != id {
			t.Errorf("position %d = %q, want %q", i, items[i].ID, id)
		}
	}
}
