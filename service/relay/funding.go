package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/flowtip/service/metrics"
	flowsolana "github.com/brojonat/flowtip/service/solana"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// RPCBalanceChecker reads the fee payer balance from the node on every call.
type RPCBalanceChecker struct {
	rpc        flowsolana.RPCClient
	account    solana.PublicKey
	commitment rpc.CommitmentType
}

// NewRPCBalanceChecker returns a checker for account.
func NewRPCBalanceChecker(rpcClient flowsolana.RPCClient, account solana.PublicKey, commitment rpc.CommitmentType) *RPCBalanceChecker {
	return &RPCBalanceChecker{rpc: rpcClient, account: account, commitment: commitment}
}

func (c *RPCBalanceChecker) Balance(ctx context.Context) (uint64, error) {
	balance, err := c.rpc.GetBalance(ctx, c.account, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance of %s: %w", c.account, err)
	}
	return balance, nil
}

// FundingMonitor samples the fee payer balance, exports it as a gauge and
// warns when it drops below the reserve.
type FundingMonitor struct {
	balance  BalanceChecker
	reserve  uint64
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewFundingMonitor creates a monitor. If m is nil only logging happens.
func NewFundingMonitor(balance BalanceChecker, reserve uint64, interval time.Duration, m *metrics.Metrics, logger *slog.Logger) *FundingMonitor {
	return &FundingMonitor{
		balance:  balance,
		reserve:  reserve,
		interval: interval,
		metrics:  m,
		logger:   logger,
	}
}

// Run samples until ctx is cancelled.
func (f *FundingMonitor) Run(ctx context.Context) {
	f.logger.Info("starting funding monitor", "interval", f.interval, "reserve_lamports", f.reserve)
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	f.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			f.logger.Info("funding monitor stopped")
			return
		case <-ticker.C:
			f.Check(ctx)
		}
	}
}

// Check takes one sample. It reports whether the balance is above the reserve.
func (f *FundingMonitor) Check(ctx context.Context) bool {
	balance, err := f.balance.Balance(ctx)
	if err != nil {
		f.logger.Warn("failed to sample fee payer balance", "error", err)
		return false
	}
	if f.metrics != nil {
		f.metrics.RecordFeePayerBalance(balance)
	}
	if balance < f.reserve {
		f.logger.Warn("fee payer balance below reserve, top up the relay",
			"balance_lamports", balance,
			"reserve_lamports", f.reserve,
		)
		return false
	}
	f.logger.Debug("fee payer balance ok", "balance_lamports", balance)
	return true
}
