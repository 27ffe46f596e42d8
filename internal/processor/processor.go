package processor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"RoostMail/internal/delivery"
	"RoostMail/internal/metrics"
	"RoostMail/internal/models"
	"RoostMail/internal/personalize"
	"RoostMail/internal/senders"
)

// Store is the slice of the queue store the processor needs.
type Store interface {
	RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error)
	ClaimDue(ctx context.Context, limit int) ([]models.EmailQueueItem, error)
	MarkAttempt(ctx context.Context, id string) (int, error)
	MarkSent(ctx context.Context, id string) error
	MarkSkipped(ctx context.Context, id, reason string) error
	MarkFailed(ctx context.Context, id, errMsg string) error
	Requeue(ctx context.Context, id, errMsg string, delay time.Duration) error
	Preference(ctx context.Context, profileID string) (*models.RecipientPreference, error)
	Template(ctx context.Context, id string) (*models.EmailTemplate, error)
	IncrementSent(ctx context.Context, templateID string) error
	InsertEvent(ctx context.Context, itemID, eventType string) error
}

// FooterInjector appends the compliance footer to both bodies.
type FooterInjector interface {
	Add(html, text, token string) (string, string)
}

const skipReasonUnsubscribed = "User unsubscribed"

// ItemResult is the per-item outcome reported back to the trigger caller.
type ItemResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// BatchResult summarizes one batch invocation.
type BatchResult struct {
	Processed int          `json:"processed"`
	Results   []ItemResult `json:"results"`
}

// Processor drains due queue items one bounded batch at a time. It holds no
// timer of its own; an external scheduler invokes ProcessBatch on a cadence.
type Processor struct {
	store    Store
	client   delivery.Client
	registry *senders.Registry
	footer   FooterInjector
	limiter  *rate.Limiter
	log      *zap.Logger

	batchSize    int
	maxAttempts  int
	retryDelay   time.Duration
	leaseTimeout time.Duration
}

type Options struct {
	BatchSize    int
	MaxAttempts  int
	RetryDelay   time.Duration
	LeaseTimeout time.Duration
}

func New(
	store Store,
	client delivery.Client,
	registry *senders.Registry,
	footer FooterInjector,
	limiter *rate.Limiter,
	log *zap.Logger,
	opts Options,
) *Processor {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 30 * time.Minute
	}
	if opts.LeaseTimeout <= 0 {
		opts.LeaseTimeout = 15 * time.Minute
	}
	return &Processor{
		store:        store,
		client:       client,
		registry:     registry,
		footer:       footer,
		limiter:      limiter,
		log:          log,
		batchSize:    opts.BatchSize,
		maxAttempts:  opts.MaxAttempts,
		retryDelay:   opts.RetryDelay,
		leaseTimeout: opts.LeaseTimeout,
	}
}

// ProcessBatch recovers stale leases, claims one batch of due items and walks
// each through the delivery state machine. A failure on one item never aborts
// the rest of the batch.
func (p *Processor) ProcessBatch(ctx context.Context) (*BatchResult, error) {
	stale, err := p.store.RequeueStale(ctx, p.leaseTimeout)
	if err != nil {
		p.log.Error("stale lease sweep failed", zap.Error(err))
	} else if stale > 0 {
		metrics.StaleRequeued.Add(float64(stale))
		p.log.Warn("requeued stale sending items", zap.Int64("count", stale))
	}

	items, err := p.store.ClaimDue(ctx, p.batchSize)
	if err != nil {
		return nil, fmt.Errorf("claim batch: %w", err)
	}
	metrics.BatchItems.Observe(float64(len(items)))

	result := &BatchResult{Processed: len(items), Results: make([]ItemResult, 0, len(items))}
	for i := range items {
		result.Results = append(result.Results, p.safeProcess(ctx, &items[i]))
	}
	return result, nil
}

// safeProcess isolates one item: a panic while processing it is converted into
// that item's retry/failed state instead of taking down the batch.
func (p *Processor) safeProcess(ctx context.Context, item *models.EmailQueueItem) (res ItemResult) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic while processing item: %v", r)
			p.log.Error("item processing panicked",
				zap.String("item_id", item.ID),
				zap.Any("panic", r),
			)
			res = p.recordFailure(ctx, item, err)
		}
	}()
	return p.processItem(ctx, item)
}

func (p *Processor) processItem(ctx context.Context, item *models.EmailQueueItem) ItemResult {
	// Preference check comes first: a skip must not consume an attempt.
	var pref *models.RecipientPreference
	if item.RecipientID != "" {
		var err error
		pref, err = p.store.Preference(ctx, item.RecipientID)
		if err != nil {
			return p.recordInfraFailure(ctx, item, fmt.Errorf("preference lookup: %w", err))
		}
		if pref != nil && !pref.EmailEnabled {
			if err := p.store.MarkSkipped(ctx, item.ID, skipReasonUnsubscribed); err != nil {
				p.log.Error("failed to mark item skipped",
					zap.String("item_id", item.ID),
					zap.Error(err),
				)
			}
			metrics.EmailsSkipped.Inc()
			p.log.Info("email skipped, recipient unsubscribed",
				zap.String("item_id", item.ID),
				zap.String("to", item.RecipientEmail),
			)
			return ItemResult{ID: item.ID, Status: string(models.StatusSkipped)}
		}
	}

	attempts, err := p.store.MarkAttempt(ctx, item.ID)
	if err != nil {
		// The counter could not be persisted; count the attempt in memory so
		// the retry decision still escalates.
		item.SendAttempts++
		return p.recordFailure(ctx, item, fmt.Errorf("mark attempt: %w", err))
	}
	item.SendAttempts = attempts

	// Template is only needed for sender selection and the sent counter;
	// subject and bodies were copied onto the row at enqueue time. A lookup
	// failure falls back to the transactional sender.
	var tmpl *models.EmailTemplate
	if item.TemplateID != nil {
		tmpl, err = p.store.Template(ctx, *item.TemplateID)
		if err != nil {
			p.log.Warn("template lookup failed, using default sender",
				zap.String("item_id", item.ID),
				zap.Error(err),
			)
			tmpl = nil
		}
	}

	html := personalize.Apply(item.HTMLBody, item.Data)
	text := personalize.Apply(item.TextBody, item.Data)

	var token string
	if pref != nil {
		token = pref.UnsubscribeToken
	}
	html, text = p.footer.Add(html, text, token)

	category := models.CategoryOther
	if tmpl != nil {
		category = tmpl.Category
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return p.recordFailure(ctx, item, fmt.Errorf("rate limiter: %w", err))
		}
	}

	start := time.Now()
	messageID, err := p.client.Send(ctx, delivery.Message{
		To:       item.RecipientEmail,
		From:     p.registry.From(category),
		Subject:  item.Subject,
		HTML:     html,
		Text:     text,
		Category: string(category),
	})
	metrics.SendDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		p.log.Error("email send failed",
			zap.String("item_id", item.ID),
			zap.String("to", item.RecipientEmail),
			zap.Int("attempt", item.SendAttempts),
			zap.Error(err),
		)
		return p.recordFailure(ctx, item, err)
	}

	if err := p.store.MarkSent(ctx, item.ID); err != nil {
		p.log.Error("failed to mark item sent",
			zap.String("item_id", item.ID),
			zap.Error(err),
		)
	}
	if err := p.store.InsertEvent(ctx, item.ID, models.EventSent); err != nil {
		p.log.Error("failed to record sent event",
			zap.String("item_id", item.ID),
			zap.Error(err),
		)
	}
	if tmpl != nil {
		if err := p.store.IncrementSent(ctx, tmpl.ID); err != nil {
			p.log.Error("failed to increment template counter",
				zap.String("template_id", tmpl.ID),
				zap.Error(err),
			)
		}
	}

	metrics.EmailsSent.Inc()
	p.log.Info("email sent",
		zap.String("item_id", item.ID),
		zap.String("to", item.RecipientEmail),
		zap.String("message_id", messageID),
	)
	return ItemResult{ID: item.ID, Status: string(models.StatusSent)}
}

// recordInfraFailure handles failures that happen before the normal attempt
// bump. These still consume an attempt: a persistently failing lookup must
// exhaust the budget like any other failure instead of requeueing forever.
func (p *Processor) recordInfraFailure(ctx context.Context, item *models.EmailQueueItem, cause error) ItemResult {
	if attempts, err := p.store.MarkAttempt(ctx, item.ID); err == nil {
		item.SendAttempts = attempts
	} else {
		item.SendAttempts++
	}
	return p.recordFailure(ctx, item, cause)
}

// recordFailure applies the retry policy: under the attempt budget the item
// goes back to pending with a fixed delay, otherwise it fails permanently.
func (p *Processor) recordFailure(ctx context.Context, item *models.EmailQueueItem, cause error) ItemResult {
	msg := cause.Error()

	if item.SendAttempts >= p.maxAttempts {
		if err := p.store.MarkFailed(ctx, item.ID, msg); err != nil {
			p.log.Error("failed to mark item failed",
				zap.String("item_id", item.ID),
				zap.Error(err),
			)
		}
		metrics.EmailsFailed.Inc()
		p.log.Warn("email failed permanently",
			zap.String("item_id", item.ID),
			zap.Int("attempts", item.SendAttempts),
			zap.String("error", msg),
		)
		return ItemResult{ID: item.ID, Status: string(models.StatusFailed), Error: msg}
	}

	if err := p.store.Requeue(ctx, item.ID, msg, p.retryDelay); err != nil {
		p.log.Error("failed to requeue item",
			zap.String("item_id", item.ID),
			zap.Error(err),
		)
	}
	metrics.EmailsRetried.Inc()
	return ItemResult{ID: item.ID, Status: string(models.StatusPending), Error: msg}
}
