package client

import (
	"context"
	"io"
	"log/slog"

	"github.com/brojonat/flowtip/service/failure"
	"github.com/brojonat/flowtip/service/metrics"
	"github.com/brojonat/flowtip/service/program"
	flowsolana "github.com/brojonat/flowtip/service/solana"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/mr-tron/base58"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/brojonat/flowtip/client")

// Wallet is the sender's signing capability. It signs the exact message
// bytes of tx with the sender's key and submits the result.
type Wallet interface {
	SignAndSend(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// KeypairWallet signs with a local key and submits through an RPC node.
type KeypairWallet struct {
	key  solana.PrivateKey
	rpc  flowsolana.RPCClient
	opts rpc.TransactionOpts
}

// NewKeypairWallet returns a wallet for key. opts are passed to every
// submission; leave SkipPreflight false to reject failing transactions
// before they land.
func NewKeypairWallet(key solana.PrivateKey, rpcClient flowsolana.RPCClient, opts rpc.TransactionOpts) *KeypairWallet {
	return &KeypairWallet{key: key, rpc: rpcClient, opts: opts}
}

// PublicKey returns the wallet address.
func (w *KeypairWallet) PublicKey() solana.PublicKey {
	return w.key.PublicKey()
}

func (w *KeypairWallet) SignAndSend(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	key := w.key
	if !isSigner(tx, key.PublicKey()) {
		return solana.Signature{}, failure.New(failure.InvalidInput, "wallet %s is not a signer of this transaction", key.PublicKey())
	}
	if _, err := tx.PartialSign(func(pk solana.PublicKey) *solana.PrivateKey {
		if pk.Equals(key.PublicKey()) {
			return &key
		}
		return nil
	}); err != nil {
		return solana.Signature{}, failure.Wrap(err, failure.Internal, "failed to sign transaction")
	}

	sig, err := w.rpc.SendTransaction(ctx, tx, w.opts)
	if err != nil {
		return solana.Signature{}, program.ClassifySendError(err)
	}
	return sig, nil
}

func isSigner(tx *solana.Transaction, pk solana.PublicKey) bool {
	n := int(tx.Message.Header.NumRequiredSignatures)
	for i := 0; i < n && i < len(tx.Message.AccountKeys); i++ {
		if tx.Message.AccountKeys[i].Equals(pk) {
			return true
		}
	}
	return false
}

// CoSigner completes a relay-built transaction with the sender's wallet.
type CoSigner struct {
	wallet   Wallet
	feePayer solana.PublicKey
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewCoSigner creates a co-signer. When feePayer is non-zero, transactions
// paid by any other account are rejected. If m is nil no metrics are
// recorded.
func NewCoSigner(wallet Wallet, feePayer solana.PublicKey, m *metrics.Metrics, logger *slog.Logger) *CoSigner {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &CoSigner{wallet: wallet, feePayer: feePayer, metrics: m, logger: logger}
}

// DecodeTransaction parses a base58 serialized transaction.
func DecodeTransaction(serialized string) (*solana.Transaction, error) {
	raw, err := base58.Decode(serialized)
	if err != nil || len(raw) == 0 {
		return nil, failure.New(failure.InvalidInput, "malformed transaction: not valid base58")
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, failure.Wrap(err, failure.InvalidInput, "malformed transaction")
	}
	return tx, nil
}

// VerifyRelaySignature checks that the fee payer signature covers the exact
// message bytes of tx.
func VerifyRelaySignature(tx *solana.Transaction) error {
	msg := tx.Message
	if msg.Header.NumRequiredSignatures == 0 || len(msg.AccountKeys) == 0 || len(tx.Signatures) == 0 {
		return failure.New(failure.InvalidInput, "malformed transaction: no signatures")
	}
	content, err := msg.MarshalBinary()
	if err != nil {
		return failure.Wrap(err, failure.InvalidInput, "malformed transaction")
	}
	if !tx.Signatures[0].Verify(msg.AccountKeys[0], content) {
		return failure.New(failure.InvalidInput, "relay signature does not match transaction")
	}
	return nil
}

// CoSignAndSend decodes serialized, verifies the relay signature and hands
// the transaction to the wallet. Nothing is submitted when verification
// fails. The returned signature is the transaction id; confirmation is the
// watcher's job.
func (c *CoSigner) CoSignAndSend(ctx context.Context, serialized string) (sig solana.Signature, err error) {
	ctx, span := tracer.Start(ctx, "client.CoSignAndSend")
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = string(failure.KindOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		} else {
			span.SetAttributes(attribute.String("signature", sig.String()))
		}
		if c.metrics != nil {
			c.metrics.RecordCoSign(outcome)
		}
		span.End()
	}()

	tx, err := DecodeTransaction(serialized)
	if err != nil {
		return solana.Signature{}, err
	}
	if err := VerifyRelaySignature(tx); err != nil {
		c.logger.Warn("rejecting transaction with invalid relay signature", "error", err)
		return solana.Signature{}, err
	}
	if c.feePayer != (solana.PublicKey{}) && !tx.Message.AccountKeys[0].Equals(c.feePayer) {
		return solana.Signature{}, failure.New(failure.InvalidInput, "unexpected fee payer %s", tx.Message.AccountKeys[0])
	}

	sig, err = c.wallet.SignAndSend(ctx, tx)
	if err != nil {
		fe := program.ClassifySendError(err)
		c.logger.Warn("submission failed", "kind", fe.Kind, "error", err)
		return solana.Signature{}, fe
	}
	c.logger.Info("tip submitted", "signature", sig.String())
	return sig, nil
}
