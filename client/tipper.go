package client

import (
	"context"
	"io"
	"log/slog"

	"github.com/brojonat/flowtip/service/failure"
	"github.com/gagliardetto/solana-go"
)

// DefaultMaxAttempts bounds how often Tip rebuilds after a stale blockhash.
const DefaultMaxAttempts = 3

// TxBuilder obtains relay-signed transactions. *Client implements it.
type TxBuilder interface {
	BuildGaslessTx(ctx context.Context, req BuildRequest) (*BuildResponse, error)
}

// BuilderFunc adapts a function to TxBuilder.
type BuilderFunc func(ctx context.Context, req BuildRequest) (*BuildResponse, error)

func (f BuilderFunc) BuildGaslessTx(ctx context.Context, req BuildRequest) (*BuildResponse, error) {
	return f(ctx, req)
}

// Tipper runs the build, co-sign and submit sequence. A submission rejected
// for a stale blockhash is retried with a freshly built transaction; the old
// transaction is never re-signed.
type Tipper struct {
	builder     TxBuilder
	cosigner    *CoSigner
	maxAttempts int
	logger      *slog.Logger
}

// NewTipper creates a tipper. maxAttempts <= 0 uses DefaultMaxAttempts.
func NewTipper(builder TxBuilder, cosigner *CoSigner, maxAttempts int, logger *slog.Logger) *Tipper {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Tipper{builder: builder, cosigner: cosigner, maxAttempts: maxAttempts, logger: logger}
}

// Tip returns the transaction signature as soon as the network accepts the
// submission. It does not wait for confirmation.
func (t *Tipper) Tip(ctx context.Context, req BuildRequest) (solana.Signature, error) {
	var lastErr error
	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		built, err := t.builder.BuildGaslessTx(ctx, req)
		if err != nil {
			return solana.Signature{}, err
		}

		sig, err := t.cosigner.CoSignAndSend(ctx, built.SerializedTransaction)
		if err == nil {
			return sig, nil
		}
		if failure.KindOf(err) != failure.StaleCheckpoint {
			return solana.Signature{}, err
		}

		lastErr = err
		t.logger.Info("blockhash expired before submission, rebuilding",
			"attempt", attempt,
			"max_attempts", t.maxAttempts,
		)
		if ctx.Err() != nil {
			return solana.Signature{}, ctx.Err()
		}
	}
	return solana.Signature{}, lastErr
}
