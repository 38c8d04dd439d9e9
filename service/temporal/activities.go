package temporal

import (
	"context"
	"log/slog"
	"time"

	"github.com/brojonat/flowtip/service/db"
	"github.com/brojonat/flowtip/service/failure"
	"github.com/brojonat/flowtip/service/metrics"
	natspkg "github.com/brojonat/flowtip/service/nats"
	"github.com/brojonat/flowtip/service/watcher"
	solanago "github.com/gagliardetto/solana-go"
	"go.temporal.io/sdk/activity"
	temporalsdk "go.temporal.io/sdk/temporal"
)

// Tip statuses as reported by the watcher.
const (
	StatusPending   = string(watcher.StatusPending)
	StatusConfirmed = string(watcher.StatusConfirmed)
	StatusFailed    = string(watcher.StatusFailed)
)

// ErrTypeInvalidSignature marks a signature that can never be watched.
const ErrTypeInvalidSignature = "InvalidSignature"

// WatchTipInput contains the input parameters for watching a tip.
type WatchTipInput struct {
	Signature    string        `json:"signature"`
	TipID        string        `json:"tip_id,omitempty"`
	Sender       string        `json:"sender"`
	Recipient    string        `json:"recipient"`
	Handle       *string       `json:"handle,omitempty"`
	Amount       int64         `json:"amount"`
	WatchTimeout time.Duration `json:"watch_timeout,omitempty"`
	MaxRounds    int           `json:"max_rounds,omitempty"`
}

// WatchTipState is the live state of a watch, returned by the status query.
type WatchTipState struct {
	Signature  string    `json:"signature"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	Kind       string    `json:"kind,omitempty"`
	Slot       uint64    `json:"slot,omitempty"`
	Rounds     int       `json:"rounds"`
	Recorded   bool      `json:"recorded"`
	Published  bool      `json:"published"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Error      *string   `json:"error,omitempty"`
}

// WatchTipResult is the workflow result.
type WatchTipResult = WatchTipState

func (s *WatchTipState) result() *WatchTipResult {
	out := *s
	return &out
}

// AwaitConfirmationInput contains parameters for the AwaitConfirmation activity.
type AwaitConfirmationInput struct {
	Signature string        `json:"signature"`
	Timeout   time.Duration `json:"timeout,omitempty"`
}

// AwaitConfirmationResult contains the outcome of one watch round.
type AwaitConfirmationResult struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	Kind   string `json:"kind,omitempty"`
	Slot   uint64 `json:"slot,omitempty"`
	GaveUp bool   `json:"gave_up"`
}

// RecordTipStatusInput contains parameters for the RecordTipStatus activity.
type RecordTipStatusInput struct {
	Signature string `json:"signature"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

// RecordTipStatusResult reports whether the ledger was updated.
type RecordTipStatusResult struct {
	Recorded bool   `json:"recorded"`
	Status   string `json:"status,omitempty"`
}

// PublishTipEventInput contains parameters for the PublishTipEvent activity.
type PublishTipEventInput struct {
	Signature string  `json:"signature"`
	TipID     string  `json:"tip_id,omitempty"`
	Sender    string  `json:"sender"`
	Recipient string  `json:"recipient"`
	Handle    *string `json:"handle,omitempty"`
	Amount    int64   `json:"amount"`
	Status    string  `json:"status"`
	Reason    string  `json:"reason,omitempty"`
	Kind      string  `json:"kind,omitempty"`
	Slot      uint64  `json:"slot,omitempty"`
}

// ConfirmationWatcher is the part of the watcher the activities use.
type ConfirmationWatcher interface {
	WatchWithProgress(ctx context.Context, sig solanago.Signature, progress watcher.ProgressFunc) watcher.Result
}

// TipStoreInterface defines the ledger operations needed by activities.
// This allows for easy mocking in tests.
type TipStoreInterface interface {
	UpdateTipStatus(ctx context.Context, signature, status string, reason *string) (*db.Tip, error)
}

// PublisherInterface defines the NATS publishing operations needed by activities.
type PublisherInterface interface {
	PublishTipEvent(ctx context.Context, event *natspkg.TipEvent) error
}

// Activities holds the dependencies needed by Temporal activities.
// The ledger and publisher are optional; without them the matching
// activities succeed without doing anything.
type Activities struct {
	watcher   ConfirmationWatcher
	store     TipStoreInterface
	publisher PublisherInterface
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If metrics is nil, no metrics will be recorded.
func NewActivities(w ConfirmationWatcher, store TipStoreInterface, publisher PublisherInterface, m *metrics.Metrics, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		watcher:   w,
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

func (a *Activities) observe(name string, start time.Time) {
	if a.metrics != nil {
		a.metrics.RecordActivityDuration(name, time.Since(start).Seconds())
	}
}

// AwaitConfirmation runs one watch round, heartbeating after every probe.
// A round that ends without an outcome returns a pending result with GaveUp
// set rather than an error, so the workflow decides whether to go again.
func (a *Activities) AwaitConfirmation(ctx context.Context, input AwaitConfirmationInput) (*AwaitConfirmationResult, error) {
	defer a.observe("AwaitConfirmation", time.Now())

	sig, err := solanago.SignatureFromBase58(input.Signature)
	if err != nil {
		return nil, temporalsdk.NewNonRetryableApplicationError("invalid signature", ErrTypeInvalidSignature, err)
	}

	watchCtx := ctx
	if input.Timeout > 0 {
		var cancel context.CancelFunc
		watchCtx, cancel = context.WithTimeout(ctx, input.Timeout)
		defer cancel()
	}

	a.logger.InfoContext(ctx, "awaiting confirmation", "signature", input.Signature)
	res := a.watcher.WatchWithProgress(watchCtx, sig, func(attempt int, last watcher.Result) {
		activity.RecordHeartbeat(ctx, attempt)
	})

	// the activity itself was cancelled or timed out, not just this round
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &AwaitConfirmationResult{
		Status: string(res.Status),
		Reason: res.Reason,
		Kind:   string(res.Kind),
		Slot:   res.Slot,
		GaveUp: res.GaveUp,
	}, nil
}

// RecordTipStatus writes a terminal outcome to the ledger. Tips the ledger
// does not know are skipped.
func (a *Activities) RecordTipStatus(ctx context.Context, input RecordTipStatusInput) (*RecordTipStatusResult, error) {
	defer a.observe("RecordTipStatus", time.Now())

	if a.metrics != nil {
		a.metrics.RecordWorkflowExecution(input.Status)
	}
	if a.store == nil {
		a.logger.DebugContext(ctx, "tip ledger not configured, skipping status update", "signature", input.Signature)
		return &RecordTipStatusResult{}, nil
	}

	var reason *string
	if input.Reason != "" {
		reason = &input.Reason
	}
	tip, err := a.store.UpdateTipStatus(ctx, input.Signature, input.Status, reason)
	if err != nil {
		if failure.KindOf(err) == failure.NotFound {
			a.logger.InfoContext(ctx, "tip not in ledger, skipping status update", "signature", input.Signature)
			return &RecordTipStatusResult{}, nil
		}
		a.logger.ErrorContext(ctx, "failed to update tip status",
			"signature", input.Signature,
			"error", err,
		)
		return nil, err
	}

	a.logger.InfoContext(ctx, "recorded tip status",
		"signature", input.Signature,
		"status", tip.Status,
	)
	return &RecordTipStatusResult{Recorded: tip.Status == input.Status, Status: tip.Status}, nil
}

// PublishTipEvent publishes the outcome to NATS.
func (a *Activities) PublishTipEvent(ctx context.Context, input PublishTipEventInput) error {
	defer a.observe("PublishTipEvent", time.Now())

	if a.publisher == nil {
		a.logger.DebugContext(ctx, "publisher not configured, skipping tip event", "signature", input.Signature)
		return nil
	}

	event := &natspkg.TipEvent{
		Signature:   input.Signature,
		TipID:       input.TipID,
		Recipient:   input.Recipient,
		Sender:      input.Sender,
		Handle:      input.Handle,
		Amount:      input.Amount,
		Status:      input.Status,
		Reason:      input.Reason,
		Kind:        input.Kind,
		Slot:        input.Slot,
		PublishedAt: time.Now().UTC(),
	}
	if err := a.publisher.PublishTipEvent(ctx, event); err != nil {
		a.logger.ErrorContext(ctx, "failed to publish tip event",
			"signature", input.Signature,
			"error", err,
		)
		return err
	}
	return nil
}
