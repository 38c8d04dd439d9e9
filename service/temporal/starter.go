package temporal

import (
	"context"
	"log/slog"
	"time"

	"github.com/brojonat/flowtip/service/db"
)

// WatchStarter starts and inspects tip watches.
// This interface allows for easy mocking in tests.
type WatchStarter interface {
	StartWatch(ctx context.Context, input WatchTipInput) (string, error)
	GetWatchStatus(ctx context.Context, workflowID string) (*WatchTipState, error)
}

// PendingTipLister lists ledger tips that never reached a terminal status.
type PendingTipLister interface {
	ListPendingTips(ctx context.Context, olderThan time.Time, limit int32) ([]*db.Tip, error)
}

// resumeBatchSize bounds how many pending tips one ResumePending call restarts.
const resumeBatchSize = 500

// ResumePending starts a watch for every pending tip created before
// olderThan. Watches that are still running are left alone. It returns the
// number of watches started or attached to.
func ResumePending(ctx context.Context, starter WatchStarter, store PendingTipLister, olderThan time.Time, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tips, err := store.ListPendingTips(ctx, olderThan, resumeBatchSize)
	if err != nil {
		return 0, err
	}

	resumed := 0
	for _, tip := range tips {
		_, err := starter.StartWatch(ctx, WatchTipInput{
			Signature: tip.Signature,
			TipID:     tip.ID.String(),
			Sender:    tip.Sender,
			Recipient: tip.Recipient,
			Handle:    tip.Handle,
			Amount:    tip.Amount,
		})
		if err != nil {
			logger.WarnContext(ctx, "failed to resume tip watch",
				"signature", tip.Signature,
				"error", err,
			)
			continue
		}
		resumed++
	}

	if len(tips) > 0 {
		logger.InfoContext(ctx, "resumed pending tip watches",
			"pending", len(tips),
			"resumed", resumed,
		)
	}
	return resumed, nil
}
