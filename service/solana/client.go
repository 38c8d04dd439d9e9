package solana

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/brojonat/flowtip/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// RPCClient is the set of ledger operations the relay, co-signer and watcher
// need. The real adapter wraps *rpc.Client; tests use the in-process ledger
// or hand-written mocks.
type RPCClient interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.LatestBlockhashResult, error)

	// GetAccountInfo returns rpc.ErrNotFound when the account does not exist.
	GetAccountInfo(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.Account, error)

	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (uint64, error)

	// GetFeeForMessage takes a base64 encoded message. A nil fee means the
	// blockhash in the message is no longer valid.
	GetFeeForMessage(ctx context.Context, message string, commitment rpc.CommitmentType) (*uint64, error)

	GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64, commitment rpc.CommitmentType) (uint64, error)

	// GetTokenAccountBalance returns the raw amount in the token's smallest unit.
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (uint64, error)

	SendTransaction(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)

	// GetSignatureStatuses returns one entry per signature, nil when unknown.
	GetSignatureStatuses(ctx context.Context, signatures ...solana.Signature) ([]*rpc.SignatureStatusesResult, error)

	RequestAirdrop(ctx context.Context, account solana.PublicKey, lamports uint64, commitment rpc.CommitmentType) (solana.Signature, error)
}

// IsBlockhashNotFound reports whether a submission was rejected because its
// recent blockhash is unknown or has expired.
func IsBlockhashNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "blockhash not found") ||
		strings.Contains(msg, "block height exceeded") ||
		strings.Contains(msg, "blockhashnotfound")
}

// IsNotFound reports whether err means the account does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, rpc.ErrNotFound)
}

// instrumentedClient records per-method call metrics and logs failures.
type instrumentedClient struct {
	rpc      RPCClient
	logger   *slog.Logger
	metrics  *metrics.Metrics
	endpoint string // RPC endpoint identifier for metrics (e.g. "devnet" or the rpc host)
}

// NewInstrumentedClient wraps rpcClient so that every call is timed and counted.
// If m is nil, no metrics are recorded.
func NewInstrumentedClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger) RPCClient {
	return &instrumentedClient{
		rpc:      rpcClient,
		logger:   logger,
		metrics:  m,
		endpoint: endpoint,
	}
}

func (c *instrumentedClient) observe(ctx context.Context, method string, start time.Time, err error) {
	status := "success"
	if err != nil && !IsNotFound(err) {
		status = "error"
		c.logger.WarnContext(ctx, "rpc call failed",
			"method", method,
			"endpoint", c.endpoint,
			"error", err,
		)
		if strings.Contains(err.Error(), "429") && c.metrics != nil {
			c.metrics.RecordRateLimitHit(c.endpoint)
		}
	}
	if c.metrics != nil {
		c.metrics.RecordRPCCall(method, status, c.endpoint, time.Since(start).Seconds())
	}
}

func (c *instrumentedClient) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.LatestBlockhashResult, error) {
	start := time.Now()
	out, err := c.rpc.GetLatestBlockhash(ctx, commitment)
	c.observe(ctx, "GetLatestBlockhash", start, err)
	return out, err
}

func (c *instrumentedClient) GetAccountInfo(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.Account, error) {
	start := time.Now()
	out, err := c.rpc.GetAccountInfo(ctx, account, commitment)
	c.observe(ctx, "GetAccountInfo", start, err)
	return out, err
}

func (c *instrumentedClient) GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (uint64, error) {
	start := time.Now()
	out, err := c.rpc.GetBalance(ctx, account, commitment)
	c.observe(ctx, "GetBalance", start, err)
	return out, err
}

func (c *instrumentedClient) GetFeeForMessage(ctx context.Context, message string, commitment rpc.CommitmentType) (*uint64, error) {
	start := time.Now()
	out, err := c.rpc.GetFeeForMessage(ctx, message, commitment)
	c.observe(ctx, "GetFeeForMessage", start, err)
	return out, err
}

func (c *instrumentedClient) GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64, commitment rpc.CommitmentType) (uint64, error) {
	start := time.Now()
	out, err := c.rpc.GetMinimumBalanceForRentExemption(ctx, dataSize, commitment)
	c.observe(ctx, "GetMinimumBalanceForRentExemption", start, err)
	return out, err
}

func (c *instrumentedClient) GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (uint64, error) {
	start := time.Now()
	out, err := c.rpc.GetTokenAccountBalance(ctx, account, commitment)
	c.observe(ctx, "GetTokenAccountBalance", start, err)
	return out, err
}

func (c *instrumentedClient) SendTransaction(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	start := time.Now()
	out, err := c.rpc.SendTransaction(ctx, tx, opts)
	c.observe(ctx, "SendTransaction", start, err)
	return out, err
}

func (c *instrumentedClient) GetSignatureStatuses(ctx context.Context, signatures ...solana.Signature) ([]*rpc.SignatureStatusesResult, error) {
	start := time.Now()
	out, err := c.rpc.GetSignatureStatuses(ctx, signatures...)
	c.observe(ctx, "GetSignatureStatuses", start, err)
	return out, err
}

func (c *instrumentedClient) RequestAirdrop(ctx context.Context, account solana.PublicKey, lamports uint64, commitment rpc.CommitmentType) (solana.Signature, error) {
	start := time.Now()
	out, err := c.rpc.RequestAirdrop(ctx, account, lamports, commitment)
	c.observe(ctx, "RequestAirdrop", start, err)
	return out, err
}
