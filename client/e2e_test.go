package client

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/brojonat/flowtip/service/failure"
	"github.com/brojonat/flowtip/service/localnet"
	"github.com/brojonat/flowtip/service/program"
	"github.com/brojonat/flowtip/service/relay"
	flowsolana "github.com/brojonat/flowtip/service/solana"
	"github.com/brojonat/flowtip/service/watcher"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// env is a relay, a funded sender and a recipient on an in-process ledger.
type env struct {
	ledger    *localnet.Ledger
	mint      solana.PublicKey
	relayer   solana.PrivateKey
	sender    solana.PrivateKey
	senderATA solana.PublicKey
	creator   solana.PrivateKey
	recipient solana.PublicKey
	builder   *relay.Builder
	watcher   *watcher.Watcher
	logger    *slog.Logger
}

func newEnv(t *testing.T, senderTokens uint64) *env {
	t.Helper()
	l := localnet.New()
	e := &env{
		ledger:    l,
		mint:      l.CreateMint(6),
		relayer:   solana.NewWallet().PrivateKey,
		sender:    solana.NewWallet().PrivateKey,
		creator:   solana.NewWallet().PrivateKey,
		recipient: solana.NewWallet().PublicKey(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	l.Airdrop(e.relayer.PublicKey(), 1_000_000_000)
	l.Airdrop(e.creator.PublicKey(), 100_000_000)

	var err error
	e.senderATA, err = l.CreateTokenAccount(e.sender.PublicKey(), e.mint)
	require.NoError(t, err)
	require.NoError(t, l.MintTo(e.senderATA, senderTokens))

	e.builder = relay.NewBuilder(l,
		relay.NewRPCBalanceChecker(l, e.relayer.PublicKey(), rpc.CommitmentConfirmed),
		e.relayer,
		relay.Config{
			ProgramID:          l.ProgramID(),
			Mint:               e.mint,
			Decimals:           6,
			MinReserveLamports: 10_000_000,
		}, nil, e.logger)
	e.watcher = watcher.New(l, watcher.Config{PollInterval: 5 * time.Millisecond, Timeout: time.Second}, nil, e.logger)
	return e
}

// relayBuilder exposes the builder the way the HTTP API does.
func (e *env) relayBuilder() BuilderFunc {
	return func(ctx context.Context, req BuildRequest) (*BuildResponse, error) {
		res, err := e.builder.Build(ctx, relay.TipTransferIntent{
			Sender:    req.SenderAddress,
			Recipient: req.RecipientAddress,
			Amount:    req.Amount,
			Handle:    req.Handle,
			Memo:      req.Memo,
		})
		if err != nil {
			return nil, err
		}
		return &BuildResponse{
			Success:                 true,
			SerializedTransaction:   res.SerializedTransaction,
			Message:                 res.Message,
			Blockhash:               res.Blockhash,
			LastValidBlockHeight:    res.LastValidBlockHeight,
			InstructionCount:        res.InstructionCount,
			CreatesRecipientAccount: res.CreatesRecipientAccount,
			EstimatedFee:            res.EstimatedFee,
		}, nil
	}
}

func (e *env) build(t *testing.T, req BuildRequest) *BuildResponse {
	t.Helper()
	res, err := e.relayBuilder()(context.Background(), req)
	require.NoError(t, err)
	return res
}

func (e *env) tipper(opts rpc.TransactionOpts) *Tipper {
	wallet := NewKeypairWallet(e.sender, e.ledger, opts)
	return NewTipper(e.relayBuilder(), NewCoSigner(wallet, e.relayer.PublicKey(), nil, e.logger), 0, e.logger)
}

func (e *env) initProfile(t *testing.T, handle string) solana.PublicKey {
	t.Helper()
	ctx := context.Background()
	inst, err := program.NewInitializeProfileInstruction(e.ledger.ProgramID(), e.creator.PublicKey(), e.mint, handle)
	require.NoError(t, err)
	bh, err := e.ledger.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	require.NoError(t, err)
	tx, err := solana.NewTransaction([]solana.Instruction{inst}, bh.Blockhash, solana.TransactionPayer(e.creator.PublicKey()))
	require.NoError(t, err)
	creator := e.creator
	_, err = tx.Sign(func(solana.PublicKey) *solana.PrivateKey { return &creator })
	require.NoError(t, err)
	_, err = e.ledger.SendTransaction(ctx, tx, rpc.TransactionOpts{})
	require.NoError(t, err)
	addr, _, err := flowsolana.DeriveProfileAddress(e.ledger.ProgramID(), handle)
	require.NoError(t, err)
	return addr
}

func TestEndToEnd_TipThroughProfile(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 100)
	profileAddr := e.initProfile(t, "alice")
	relayBefore := e.ledger.Balance(e.relayer.PublicKey())

	sig, err := e.tipper(rpc.TransactionOpts{}).Tip(ctx, BuildRequest{
		SenderAddress:    e.sender.PublicKey().String(),
		RecipientAddress: e.creator.PublicKey().String(),
		Amount:           25,
		Handle:           "alice",
	})
	require.NoError(t, err)

	res := e.watcher.Watch(ctx, sig)
	assert.Equal(t, watcher.StatusConfirmed, res.Status)

	profile, err := e.ledger.Profile(profileAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(25), profile.TotalReceived)
	assert.Equal(t, uint64(1), profile.TipCount)
	assert.Equal(t, uint64(75), e.ledger.TokenBalance(e.senderATA))
	assert.Equal(t, uint64(25), e.ledger.TokenBalance(profile.TokenAccount))

	// the sender holds no lamports at all; the relay paid for both signatures
	assert.Equal(t, uint64(0), e.ledger.Balance(e.sender.PublicKey()))
	assert.Equal(t, relayBefore-2*localnet.DefaultFeePerSignature, e.ledger.Balance(e.relayer.PublicKey()))
}

func TestEndToEnd_PlainTransferCreatesAccount(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 100)

	sig, err := e.tipper(rpc.TransactionOpts{}).Tip(ctx, BuildRequest{
		SenderAddress:    e.sender.PublicKey().String(),
		RecipientAddress: e.recipient.String(),
		Amount:           25,
	})
	require.NoError(t, err)
	assert.Equal(t, watcher.StatusConfirmed, e.watcher.Watch(ctx, sig).Status)

	recipientATA, err := flowsolana.DeriveTokenAccount(e.recipient, e.mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(25), e.ledger.TokenBalance(recipientATA))
	assert.Equal(t, uint64(75), e.ledger.TokenBalance(e.senderATA))
}

func TestEndToEnd_InsufficientFunds(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 10)
	profileAddr := e.initProfile(t, "alice")
	relayBefore := e.ledger.Balance(e.relayer.PublicKey())

	_, err := e.tipper(rpc.TransactionOpts{}).Tip(ctx, BuildRequest{
		SenderAddress:    e.sender.PublicKey().String(),
		RecipientAddress: e.creator.PublicKey().String(),
		Amount:           25,
		Handle:           "alice",
	})
	require.Error(t, err)
	fe := failure.From(err)
	assert.Equal(t, failure.InsufficientFunds, fe.Kind)
	assert.Equal(t, failure.ClassFixInput, fe.Class())

	profile, err := e.ledger.Profile(profileAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), profile.TotalReceived)
	assert.Equal(t, uint64(0), profile.TipCount)
	assert.Equal(t, uint64(10), e.ledger.TokenBalance(e.senderATA))
	assert.Equal(t, relayBefore, e.ledger.Balance(e.relayer.PublicKey()))
}

func TestEndToEnd_InsufficientFundsWithoutPreflight(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 10)
	profileAddr := e.initProfile(t, "alice")

	sig, err := e.tipper(rpc.TransactionOpts{SkipPreflight: true}).Tip(ctx, BuildRequest{
		SenderAddress:    e.sender.PublicKey().String(),
		RecipientAddress: e.creator.PublicKey().String(),
		Amount:           25,
		Handle:           "alice",
	})
	require.NoError(t, err, "submission is accepted; the failure shows up on chain")

	res := e.watcher.Watch(ctx, sig)
	assert.Equal(t, watcher.StatusFailed, res.Status)
	assert.Equal(t, failure.InsufficientFunds, res.Kind)

	profile, err := e.ledger.Profile(profileAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), profile.TotalReceived)
	assert.Equal(t, uint64(0), profile.TipCount)
}

// stallingWallet lets the chain move past the blockhash before the first
// submission.
type stallingWallet struct {
	inner  Wallet
	ledger *localnet.Ledger
	stalls int
}

func (w *stallingWallet) SignAndSend(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if w.stalls > 0 {
		w.stalls--
		w.ledger.Advance(localnet.BlockhashValidity + 1)
	}
	return w.inner.SignAndSend(ctx, tx)
}

func TestTipper_RebuildsOnStaleCheckpoint(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 100)
	wallet := &stallingWallet{
		inner:  NewKeypairWallet(e.sender, e.ledger, rpc.TransactionOpts{}),
		ledger: e.ledger,
		stalls: 1,
	}
	tipper := NewTipper(e.relayBuilder(), NewCoSigner(wallet, e.relayer.PublicKey(), nil, e.logger), 3, e.logger)

	sig, err := tipper.Tip(ctx, BuildRequest{
		SenderAddress:    e.sender.PublicKey().String(),
		RecipientAddress: e.recipient.String(),
		Amount:           25,
	})
	require.NoError(t, err)
	assert.Equal(t, watcher.StatusConfirmed, e.watcher.Watch(ctx, sig).Status)
	assert.Equal(t, uint64(75), e.ledger.TokenBalance(e.senderATA), "exactly one transfer lands")

	wallet.stalls = 5
	_, err = tipper.Tip(ctx, BuildRequest{
		SenderAddress:    e.sender.PublicKey().String(),
		RecipientAddress: e.recipient.String(),
		Amount:           25,
	})
	assert.ErrorIs(t, err, failure.ErrStaleCheckpoint)
	assert.Equal(t, uint64(75), e.ledger.TokenBalance(e.senderATA))
}

func TestEndToEnd_ZeroAmountRejectedBeforeSigning(t *testing.T) {
	e := newEnv(t, 100)
	_, err := e.tipper(rpc.TransactionOpts{}).Tip(context.Background(), BuildRequest{
		SenderAddress:    e.sender.PublicKey().String(),
		RecipientAddress: e.recipient.String(),
		Amount:           0,
	})
	assert.ErrorIs(t, err, failure.ErrInvalidAmount)
}
