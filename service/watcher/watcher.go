// Package watcher polls signature statuses until a submitted tip is
// confirmed, fails, or the watch gives up.
package watcher

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/brojonat/flowtip/service/failure"
	"github.com/brojonat/flowtip/service/metrics"
	"github.com/brojonat/flowtip/service/program"
	flowsolana "github.com/brojonat/flowtip/service/solana"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("github.com/brojonat/flowtip/service/watcher")

const (
	DefaultPollInterval = 2 * time.Second
	DefaultTimeout      = 60 * time.Second
)

// Status of a watched transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Result is the outcome of a watch or a single probe. A pending result with
// GaveUp set means the outcome is unknown and may be queried again later.
type Result struct {
	Signature          string       `json:"signature"`
	Status             Status       `json:"status"`
	Reason             string       `json:"reason,omitempty"`
	Kind               failure.Kind `json:"kind,omitempty"`
	GaveUp             bool         `json:"gave_up,omitempty"`
	Slot               uint64       `json:"slot,omitempty"`
	ConfirmationStatus string       `json:"confirmation_status,omitempty"`
	Err                error        `json:"-"`
}

// Config controls polling.
type Config struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

// Watcher holds no per-watch state. Concurrent watches are independent.
type Watcher struct {
	rpc          flowsolana.RPCClient
	pollInterval time.Duration
	timeout      time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// New creates a watcher. Zero config values use the defaults. If m is nil
// no metrics are recorded.
func New(rpcClient flowsolana.RPCClient, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Watcher{
		rpc:          rpcClient,
		pollInterval: cfg.PollInterval,
		timeout:      cfg.Timeout,
		metrics:      m,
		logger:       logger,
	}
}

// ProgressFunc is called after every probe of a watch.
type ProgressFunc func(attempt int, last Result)

// Watch polls until the transaction is confirmed or failed, the timeout
// elapses, or ctx is cancelled. It never returns an error: unknown outcomes
// are reported as pending with GaveUp set.
func (w *Watcher) Watch(ctx context.Context, sig solana.Signature) Result {
	return w.WatchWithProgress(ctx, sig, nil)
}

// WatchWithProgress is Watch with a callback after every probe, used to
// heartbeat long-running activities.
func (w *Watcher) WatchWithProgress(ctx context.Context, sig solana.Signature, progress ProgressFunc) Result {
	ctx, span := tracer.Start(ctx, "watcher.Watch")
	span.SetAttributes(attribute.String("signature", sig.String()))
	defer span.End()

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	last := Result{Signature: sig.String(), Status: StatusPending}
	for attempt := 1; ; attempt++ {
		res, err := w.Status(ctx, sig)
		if err != nil {
			w.logger.DebugContext(ctx, "signature status probe failed", "signature", sig.String(), "attempt", attempt, "error", err)
		} else {
			last = res
		}
		if progress != nil {
			progress(attempt, last)
		}
		if last.Status != StatusPending {
			return w.finish(ctx, last, start)
		}

		select {
		case <-ctx.Done():
			last.GaveUp = true
			last.Err = ctx.Err()
			if last.Reason == "" {
				last.Reason = "confirmation not observed before the watch ended; query the signature again later"
			}
			return w.finish(ctx, last, start)
		case <-ticker.C:
		}
	}
}

func (w *Watcher) finish(ctx context.Context, res Result, start time.Time) Result {
	if w.metrics != nil {
		w.metrics.RecordWatch(string(res.Status), time.Since(start).Seconds())
	}
	w.logger.InfoContext(ctx, "watch finished",
		"signature", res.Signature,
		"status", res.Status,
		"reason", res.Reason,
		"gave_up", res.GaveUp,
		"duration", time.Since(start),
	)
	return res
}

// WatchAsync runs Watch in a goroutine. The channel receives exactly one
// result and is then closed.
func (w *Watcher) WatchAsync(ctx context.Context, sig solana.Signature) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		out <- w.Watch(ctx, sig)
	}()
	return out
}

// Status probes the signature once. An error means the node could not be
// asked; an unknown signature is reported as pending.
func (w *Watcher) Status(ctx context.Context, sig solana.Signature) (Result, error) {
	res := Result{Signature: sig.String(), Status: StatusPending}
	statuses, err := w.rpc.GetSignatureStatuses(ctx, sig)
	if err != nil {
		return res, failure.Wrap(err, failure.ServiceUnavailable, "failed to get signature status")
	}
	if len(statuses) == 0 || statuses[0] == nil {
		return res, nil
	}
	st := statuses[0]
	res.Slot = st.Slot
	res.ConfirmationStatus = string(st.ConfirmationStatus)

	if st.Err != nil {
		fe := program.DescribeTransactionError(st.Err)
		res.Status = StatusFailed
		res.Reason = fe.Message
		res.Kind = fe.Kind
		return res, nil
	}
	switch st.ConfirmationStatus {
	case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
		res.Status = StatusConfirmed
	}
	return res, nil
}
