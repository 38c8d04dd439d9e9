// Package db is the Postgres tip ledger: an off-chain record of submitted
// tips and their confirmation status.
package db

import (
	"context"
	"errors"
	"time"

	"github.com/brojonat/flowtip/service/failure"
	"github.com/brojonat/flowtip/service/metrics"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tip statuses mirror the watcher outcomes.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
)

const uniqueViolation = "23505"

// Store provides database operations for the tip ledger.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// If m is nil no query metrics are recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{pool: pool, metrics: m}
}

// Tip is one ledger record.
type Tip struct {
	ID         uuid.UUID `json:"id"`
	Signature  string    `json:"signature"`
	Sender     string    `json:"sender"`
	Recipient  string    `json:"recipient"`
	Handle     *string   `json:"handle,omitempty"`
	Amount     int64     `json:"amount"`
	Status     string    `json:"status"`
	Reason     *string   `json:"reason,omitempty"`
	Message    *string   `json:"message,omitempty"`
	WorkflowID *string   `json:"workflow_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CreateTipParams contains the parameters for recording a submitted tip.
type CreateTipParams struct {
	Signature  string
	Sender     string
	Recipient  string
	Handle     *string
	Amount     int64
	Message    *string
	WorkflowID *string
}

// ListTipsParams contains pagination parameters.
type ListTipsParams struct {
	Address string
	Limit   int32
	Offset  int32
}

// RecipientStats aggregates confirmed tips for a recipient.
type RecipientStats struct {
	Recipient     string `json:"recipient"`
	TotalReceived int64  `json:"total_received"`
	TipCount      int64  `json:"tip_count"`
	AverageTip    int64  `json:"average_tip"`
	PendingCount  int64  `json:"pending_count"`
}

const tipColumns = `id, signature, sender, recipient, handle, amount, status, reason, message, workflow_id, created_at, updated_at`

// CreateTip inserts a pending tip. A second record for the same signature
// fails with AlreadyExists.
func (s *Store) CreateTip(ctx context.Context, params CreateTipParams) (tip *Tip, err error) {
	defer s.observe("create_tip", time.Now(), &err)

	if params.Amount <= 0 {
		return nil, failure.New(failure.InvalidAmount, "amount must be positive")
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx, `
INSERT INTO tips (id, signature, sender, recipient, handle, amount, status, message, workflow_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING `+tipColumns,
		id, params.Signature, params.Sender, params.Recipient,
		pgtextFromStringPtr(params.Handle), params.Amount, StatusPending,
		pgtextFromStringPtr(params.Message), pgtextFromStringPtr(params.WorkflowID),
	)
	tip, err = scanTip(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, failure.Wrap(err, failure.AlreadyExists, "tip already recorded for signature "+params.Signature)
		}
		return nil, err
	}
	return tip, nil
}

// GetTipBySignature retrieves a tip by its transaction signature.
func (s *Store) GetTipBySignature(ctx context.Context, signature string) (tip *Tip, err error) {
	defer s.observe("get_tip", time.Now(), &err)

	row := s.pool.QueryRow(ctx, `SELECT `+tipColumns+` FROM tips WHERE signature = $1`, signature)
	tip, err = scanTip(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, failure.New(failure.NotFound, "no tip recorded for signature %s", signature)
	}
	return tip, err
}

// UpdateTipStatus records the watcher's verdict. Confirmed and failed are
// terminal: a terminal record is returned unchanged when the update would
// move it elsewhere.
func (s *Store) UpdateTipStatus(ctx context.Context, signature, status string, reason *string) (tip *Tip, err error) {
	defer s.observe("update_tip_status", time.Now(), &err)

	switch status {
	case StatusPending, StatusConfirmed, StatusFailed:
	default:
		return nil, failure.New(failure.InvalidInput, "unknown tip status %q", status)
	}

	row := s.pool.QueryRow(ctx, `
UPDATE tips SET status = $2, reason = $3, updated_at = NOW()
WHERE signature = $1 AND (status = 'pending' OR status = $2)
RETURNING `+tipColumns,
		signature, status, pgtextFromStringPtr(reason),
	)
	tip, err = scanTip(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// either missing or already terminal with a different status
		return s.GetTipBySignature(ctx, signature)
	}
	return tip, err
}

// SetWorkflowID attaches the durable watch workflow to a tip.
func (s *Store) SetWorkflowID(ctx context.Context, signature, workflowID string) (err error) {
	defer s.observe("set_workflow_id", time.Now(), &err)

	tag, err := s.pool.Exec(ctx, `UPDATE tips SET workflow_id = $2, updated_at = NOW() WHERE signature = $1`, signature, workflowID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return failure.New(failure.NotFound, "no tip recorded for signature %s", signature)
	}
	return nil
}

// ListTipsByRecipient lists tips received by an address, newest first.
func (s *Store) ListTipsByRecipient(ctx context.Context, params ListTipsParams) (tips []*Tip, err error) {
	defer s.observe("list_tips_by_recipient", time.Now(), &err)
	return s.listTips(ctx, `recipient`, params)
}

// ListTipsBySender lists tips sent by an address, newest first.
func (s *Store) ListTipsBySender(ctx context.Context, params ListTipsParams) (tips []*Tip, err error) {
	defer s.observe("list_tips_by_sender", time.Now(), &err)
	return s.listTips(ctx, `sender`, params)
}

// ListPendingTips returns pending tips created before olderThan, oldest
// first. Used to resume watches after a restart.
func (s *Store) ListPendingTips(ctx context.Context, olderThan time.Time, limit int32) (tips []*Tip, err error) {
	defer s.observe("list_pending_tips", time.Now(), &err)

	rows, err := s.pool.Query(ctx, `
SELECT `+tipColumns+` FROM tips
WHERE status = 'pending' AND created_at < $1
ORDER BY created_at ASC
LIMIT $2`, olderThan, limit)
	if err != nil {
		return nil, err
	}
	return collectTips(rows)
}

func (s *Store) listTips(ctx context.Context, column string, params ListTipsParams) ([]*Tip, error) {
	if params.Limit <= 0 {
		params.Limit = 50
	}
	rows, err := s.pool.Query(ctx, `
SELECT `+tipColumns+` FROM tips
WHERE `+column+` = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`, params.Address, params.Limit, params.Offset)
	if err != nil {
		return nil, err
	}
	return collectTips(rows)
}

// GetRecipientStats aggregates confirmed tips for recipient. Pending tips are
// counted separately and never contribute to the totals.
func (s *Store) GetRecipientStats(ctx context.Context, recipient string) (stats *RecipientStats, err error) {
	defer s.observe("get_recipient_stats", time.Now(), &err)

	stats = &RecipientStats{Recipient: recipient}
	err = s.pool.QueryRow(ctx, `
SELECT
    COALESCE(SUM(amount) FILTER (WHERE status = 'confirmed'), 0)::BIGINT,
    COUNT(*) FILTER (WHERE status = 'confirmed'),
    COUNT(*) FILTER (WHERE status = 'pending')
FROM tips WHERE recipient = $1`, recipient).Scan(&stats.TotalReceived, &stats.TipCount, &stats.PendingCount)
	if err != nil {
		return nil, err
	}
	if stats.TipCount > 0 {
		stats.AverageTip = stats.TotalReceived / stats.TipCount
	}
	return stats, nil
}

// GetSenderTotal sums the confirmed tips sent by sender.
func (s *Store) GetSenderTotal(ctx context.Context, sender string) (total int64, err error) {
	defer s.observe("get_sender_total", time.Now(), &err)

	err = s.pool.QueryRow(ctx, `
SELECT COALESCE(SUM(amount), 0)::BIGINT FROM tips
WHERE sender = $1 AND status = 'confirmed'`, sender).Scan(&total)
	return total, err
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) observe(operation string, start time.Time, err *error) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordDBQuery(operation, "tips", time.Since(start).Seconds(), *err)
}

// Helper functions to convert between pgx types and domain types

func scanTip(row pgx.Row) (*Tip, error) {
	var (
		t                                   Tip
		handle, reason, message, workflowID pgtype.Text
		createdAt, updatedAt                pgtype.Timestamptz
	)
	if err := row.Scan(&t.ID, &t.Signature, &t.Sender, &t.Recipient, &handle, &t.Amount,
		&t.Status, &reason, &message, &workflowID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	t.Handle = stringPtrFromPgtext(handle)
	t.Reason = stringPtrFromPgtext(reason)
	t.Message = stringPtrFromPgtext(message)
	t.WorkflowID = stringPtrFromPgtext(workflowID)
	t.CreatedAt = createdAt.Time
	t.UpdatedAt = updatedAt.Time
	return &t, nil
}

func collectTips(rows pgx.Rows) ([]*Tip, error) {
	defer rows.Close()
	tips := []*Tip{}
	for rows.Next() {
		tip, err := scanTip(rows)
		if err != nil {
			return nil, err
		}
		tips = append(tips, tip)
	}
	return tips, rows.Err()
}

func pgtextFromStringPtr(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func stringPtrFromPgtext(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}
