package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/flowtip/service/db"
	"github.com/brojonat/flowtip/service/failure"
	"github.com/brojonat/flowtip/service/relay"
	flowsolana "github.com/brojonat/flowtip/service/solana"
	"github.com/brojonat/flowtip/service/temporal"
)

const maxTipMessageLength = 280

// TipStore is the part of the tip ledger the handlers use. *db.Store
// implements it.
type TipStore interface {
	CreateTip(ctx context.Context, params db.CreateTipParams) (*db.Tip, error)
	GetTipBySignature(ctx context.Context, signature string) (*db.Tip, error)
	SetWorkflowID(ctx context.Context, signature, workflowID string) error
	ListTipsByRecipient(ctx context.Context, params db.ListTipsParams) ([]*db.Tip, error)
	ListTipsBySender(ctx context.Context, params db.ListTipsParams) ([]*db.Tip, error)
	GetRecipientStats(ctx context.Context, recipient string) (*db.RecipientStats, error)
	GetSenderTotal(ctx context.Context, sender string) (int64, error)
}

type recordTipRequest struct {
	Signature string `json:"signature"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Handle    string `json:"handle,omitempty"`
	Amount    int64  `json:"amount"`
	Message   string `json:"message,omitempty"`
}

func (req *recordTipRequest) validate() error {
	if _, err := parseSignature(req.Signature); err != nil {
		return err
	}
	if _, err := relay.ParseAddress("sender", req.Sender); err != nil {
		return err
	}
	if _, err := relay.ParseAddress("recipient", req.Recipient); err != nil {
		return err
	}
	if req.Handle != "" {
		if err := flowsolana.ValidateHandle(req.Handle); err != nil {
			return err
		}
	}
	if req.Amount <= 0 {
		return failure.New(failure.InvalidAmount, "amount must be greater than zero")
	}
	if len(req.Message) > maxTipMessageLength {
		return failure.New(failure.InvalidInput, "message too long: maximum length is %d bytes", maxTipMessageLength)
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// handleRecordTip returns a handler that records a submitted tip in the
// ledger and starts its confirmation watch. Recording the same signature
// twice returns the existing tip.
// POST /api/v1/tips
func handleRecordTip(store TipStore, starter temporal.WatchStarter, watchTimeout time.Duration, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req recordTipRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeFailure(w, r, err, logger)
			return
		}
		if err := req.validate(); err != nil {
			logger.DebugContext(r.Context(), "invalid tip record request", "error", err)
			writeFailure(w, r, err, logger)
			return
		}

		status := http.StatusCreated
		tip, err := store.CreateTip(r.Context(), db.CreateTipParams{
			Signature: req.Signature,
			Sender:    req.Sender,
			Recipient: req.Recipient,
			Handle:    optional(req.Handle),
			Amount:    req.Amount,
			Message:   optional(req.Message),
		})
		if failure.KindOf(err) == failure.AlreadyExists {
			status = http.StatusOK
			tip, err = store.GetTipBySignature(r.Context(), req.Signature)
		}
		if err != nil {
			writeFailure(w, r, err, logger)
			return
		}

		if starter != nil && tip.Status == db.StatusPending && tip.WorkflowID == nil {
			workflowID, err := starter.StartWatch(r.Context(), temporal.WatchTipInput{
				Signature:    tip.Signature,
				TipID:        tip.ID.String(),
				Sender:       tip.Sender,
				Recipient:    tip.Recipient,
				Handle:       tip.Handle,
				Amount:       tip.Amount,
				WatchTimeout: watchTimeout,
			})
			if err != nil {
				// the tip stays pending and is picked up by the worker's resume pass
				logger.WarnContext(r.Context(), "failed to start tip watch",
					"signature", tip.Signature,
					"error", err,
				)
			} else if err := store.SetWorkflowID(r.Context(), tip.Signature, workflowID); err != nil {
				logger.WarnContext(r.Context(), "failed to record workflow id",
					"signature", tip.Signature,
					"workflow_id", workflowID,
					"error", err,
				)
			} else {
				tip.WorkflowID = &workflowID
			}
		}

		logger.InfoContext(r.Context(), "tip recorded",
			"signature", tip.Signature,
			"recipient", tip.Recipient,
			"amount", tip.Amount,
			"created", status == http.StatusCreated,
		)
		writeJSON(w, tip, status)
	})
}

// handleListTips returns a handler that lists tips received by or sent from
// an address, newest first.
// GET /api/v1/tips?recipient={address}|sender={address}&limit={n}&offset={n}
func handleListTips(store TipStore, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recipient := r.URL.Query().Get("recipient")
		sender := r.URL.Query().Get("sender")
		if (recipient == "") == (sender == "") {
			writeFailure(w, r, failure.New(failure.InvalidInput, "exactly one of recipient or sender is required"), logger)
			return
		}

		limit, offset, err := parseLimit(r)
		if err != nil {
			writeFailure(w, r, err, logger)
			return
		}

		var tips []*db.Tip
		if recipient != "" {
			if _, err := relay.ParseAddress("recipient", recipient); err != nil {
				writeFailure(w, r, err, logger)
				return
			}
			tips, err = store.ListTipsByRecipient(r.Context(), db.ListTipsParams{Address: recipient, Limit: limit, Offset: offset})
		} else {
			if _, err := relay.ParseAddress("sender", sender); err != nil {
				writeFailure(w, r, err, logger)
				return
			}
			tips, err = store.ListTipsBySender(r.Context(), db.ListTipsParams{Address: sender, Limit: limit, Offset: offset})
		}
		if err != nil {
			writeFailure(w, r, err, logger)
			return
		}

		if tips == nil {
			tips = []*db.Tip{}
		}
		logger.DebugContext(r.Context(), "tips listed", "count", len(tips))
		writeJSON(w, map[string]interface{}{
			"tips":   tips,
			"limit":  limit,
			"offset": offset,
		}, http.StatusOK)
	})
}

type tipStatsResponse struct {
	*db.RecipientStats
	SentTotal int64 `json:"sent_total"`
}

// handleTipStats returns a handler that summarizes the ledger for an address.
// GET /api/v1/tips/stats/{address}
func handleTipStats(store TipStore, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if _, err := relay.ParseAddress("address", address); err != nil {
			writeFailure(w, r, err, logger)
			return
		}

		stats, err := store.GetRecipientStats(r.Context(), address)
		if err != nil {
			writeFailure(w, r, err, logger)
			return
		}
		sent, err := store.GetSenderTotal(r.Context(), address)
		if err != nil {
			writeFailure(w, r, err, logger)
			return
		}
		writeJSON(w, tipStatsResponse{RecipientStats: stats, SentTotal: sent}, http.StatusOK)
	})
}

// handleLedgerDisabled reports that the tip ledger is not configured.
func handleLedgerDisabled(logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, r, failure.New(failure.ServiceUnavailable, "tip ledger is not configured"), logger)
	})
}
