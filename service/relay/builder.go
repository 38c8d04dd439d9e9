// Package relay builds gasless tip transactions. The relay pays the network
// fee and any account creation, signs as fee payer only, and hands the
// partially signed transaction to the sender for co-signing.
package relay

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/brojonat/flowtip/service/failure"
	"github.com/brojonat/flowtip/service/metrics"
	"github.com/brojonat/flowtip/service/program"
	flowsolana "github.com/brojonat/flowtip/service/solana"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/mr-tron/base58"
	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/brojonat/flowtip/service/relay")

const (
	// FallbackFeePerSignature is used when the node cannot quote a fee.
	FallbackFeePerSignature = 5000

	maxInstructions            = 10
	maxAccountsPerInstruction  = 20
	routeTransfer              = "transfer"
	routeProgram               = "program"
	defaultProfileCacheTTL     = 10 * time.Minute
	defaultProfileCacheCleanup = 30 * time.Minute
)

// TipTransferIntent is a request to move Amount smallest units of the
// configured token from Sender to Recipient. When Handle is set the tip goes
// through the FlowTip program so the creator profile totals are updated.
type TipTransferIntent struct {
	Sender    string
	Recipient string
	Amount    uint64
	Handle    string
	Memo      string
}

// BuildResult is a partially signed transaction ready for co-signing.
type BuildResult struct {
	SerializedTransaction   string `json:"serializedTransaction"`
	Message                 string `json:"message"`
	Blockhash               string `json:"blockhash"`
	LastValidBlockHeight    uint64 `json:"lastValidBlockHeight"`
	InstructionCount        int    `json:"instructionCount"`
	CreatesRecipientAccount bool   `json:"createsRecipientAccount"`
	EstimatedFee            uint64 `json:"estimatedFee"`
}

// Config holds the chain constants the builder needs.
type Config struct {
	ProgramID          solana.PublicKey
	Mint               solana.PublicKey
	Decimals           uint8
	MinReserveLamports uint64
	Commitment         rpc.CommitmentType
	ProfileCacheTTL    time.Duration
}

// BalanceChecker reports the relay fee payer balance in lamports.
type BalanceChecker interface {
	Balance(ctx context.Context) (uint64, error)
}

// Builder is safe for concurrent use. It holds no per-request state besides
// the immutable profile routing cache.
type Builder struct {
	rpc      flowsolana.RPCClient
	balance  BalanceChecker
	feePayer solana.PrivateKey
	cfg      Config
	profiles *cache.Cache
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewBuilder creates a builder that signs with feePayer. If m is nil no
// metrics are recorded.
func NewBuilder(rpcClient flowsolana.RPCClient, balance BalanceChecker, feePayer solana.PrivateKey, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Commitment == "" {
		cfg.Commitment = rpc.CommitmentConfirmed
	}
	if cfg.ProfileCacheTTL <= 0 {
		cfg.ProfileCacheTTL = defaultProfileCacheTTL
	}
	return &Builder{
		rpc:      rpcClient,
		balance:  balance,
		feePayer: feePayer,
		cfg:      cfg,
		profiles: cache.New(cfg.ProfileCacheTTL, defaultProfileCacheCleanup),
		metrics:  m,
		logger:   logger,
	}
}

// FeePayer returns the relay public key.
func (b *Builder) FeePayer() solana.PublicKey {
	return b.feePayer.PublicKey()
}

// Build validates intent and returns a transaction signed by the relay only.
func (b *Builder) Build(ctx context.Context, intent TipTransferIntent) (result *BuildResult, err error) {
	route := routeTransfer
	if intent.Handle != "" {
		route = routeProgram
	}

	ctx, span := tracer.Start(ctx, "relay.Build")
	span.SetAttributes(
		attribute.String("route", route),
		attribute.Int64("amount", int64(intent.Amount)),
	)
	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = string(failure.KindOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		if b.metrics != nil {
			b.metrics.RecordBuild(route, outcome, time.Since(start).Seconds())
		}
		span.End()
	}()

	sender, err := ParseAddress("sender address", intent.Sender)
	if err != nil {
		return nil, err
	}
	recipient, err := ParseAddress("recipient address", intent.Recipient)
	if err != nil {
		return nil, err
	}
	if intent.Amount == 0 {
		return nil, failure.New(failure.InvalidAmount, "amount must be greater than 0")
	}
	if err := validateMemo(intent.Memo); err != nil {
		return nil, err
	}
	if sender.Equals(recipient) {
		return nil, failure.New(failure.InvalidInput, "sender and recipient must differ")
	}
	if sender.Equals(b.feePayer.PublicKey()) {
		return nil, failure.New(failure.InvalidInput, "sender cannot be the relay fee payer")
	}

	senderTokenAccount, err := flowsolana.DeriveTokenAccount(sender, b.cfg.Mint)
	if err != nil {
		return nil, failure.Wrap(err, failure.InvalidInput, "failed to derive sender token account")
	}

	var (
		instructions []solana.Instruction
		created      int
	)

	if route == routeProgram {
		insts, n, err := b.programInstructions(ctx, intent, sender, recipient, senderTokenAccount)
		if err != nil {
			return nil, err
		}
		instructions, created = insts, n
	} else {
		insts, n, err := b.transferInstructions(ctx, intent, sender, recipient, senderTokenAccount)
		if err != nil {
			return nil, err
		}
		instructions, created = insts, n
	}

	if intent.Memo != "" {
		instructions = append(instructions, solana.NewInstruction(
			flowsolana.MemoProgramID,
			solana.AccountMetaSlice{solana.NewAccountMeta(sender, false, true)},
			[]byte(intent.Memo),
		))
	}

	latest, err := b.rpc.GetLatestBlockhash(ctx, b.cfg.Commitment)
	if err != nil {
		return nil, failure.Wrap(err, failure.ServiceUnavailable, "failed to get recent blockhash")
	}

	tx, err := solana.NewTransaction(instructions, latest.Blockhash, solana.TransactionPayer(b.feePayer.PublicKey()))
	if err != nil {
		return nil, failure.Wrap(err, failure.Internal, "failed to assemble transaction")
	}
	if err := validateShape(tx); err != nil {
		return nil, err
	}

	messageBytes, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, failure.Wrap(err, failure.Internal, "failed to serialize message")
	}
	message := base64.StdEncoding.EncodeToString(messageBytes)

	fee, err := b.checkFunding(ctx, tx, message, created)
	if err != nil {
		return nil, err
	}

	feePayer := b.feePayer
	if _, err := tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(feePayer.PublicKey()) {
			return &feePayer
		}
		return nil
	}); err != nil {
		return nil, failure.Wrap(err, failure.Internal, "failed to sign as fee payer")
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, failure.Wrap(err, failure.Internal, "failed to serialize transaction")
	}

	if created > 0 && b.metrics != nil {
		b.metrics.RecordAccountCreated()
	}
	b.logger.InfoContext(ctx, "built gasless transaction",
		"route", route,
		"sender", sender.String(),
		"recipient", recipient.String(),
		"amount", intent.Amount,
		"instructions", len(tx.Message.Instructions),
		"creates_account", created > 0,
		"estimated_fee", fee,
	)

	return &BuildResult{
		SerializedTransaction:   base58.Encode(raw),
		Message:                 message,
		Blockhash:               latest.Blockhash.String(),
		LastValidBlockHeight:    latest.LastValidBlockHeight,
		InstructionCount:        len(tx.Message.Instructions),
		CreatesRecipientAccount: created > 0,
		EstimatedFee:            fee,
	}, nil
}

// transferInstructions builds a plain token transfer, creating the
// recipient token account first when it does not exist.
func (b *Builder) transferInstructions(ctx context.Context, intent TipTransferIntent, sender, recipient, senderTokenAccount solana.PublicKey) ([]solana.Instruction, int, error) {
	recipientTokenAccount, err := flowsolana.DeriveTokenAccount(recipient, b.cfg.Mint)
	if err != nil {
		return nil, 0, failure.Wrap(err, failure.InvalidInput, "failed to derive recipient token account")
	}

	var insts []solana.Instruction
	created := 0
	exists, err := b.accountExists(ctx, recipientTokenAccount)
	if err != nil {
		return nil, 0, err
	}
	if !exists {
		insts = append(insts, associatedtokenaccount.NewCreateInstruction(
			b.feePayer.PublicKey(), recipient, b.cfg.Mint,
		).Build())
		created++
	}

	insts = append(insts, token.NewTransferCheckedInstruction(
		intent.Amount,
		b.cfg.Decimals,
		senderTokenAccount,
		b.cfg.Mint,
		recipientTokenAccount,
		sender,
		[]solana.PublicKey{},
	).Build())
	return insts, created, nil
}

// programInstructions routes the tip through send_tip so the profile
// accumulators update.
func (b *Builder) programInstructions(ctx context.Context, intent TipTransferIntent, sender, recipient, senderTokenAccount solana.PublicKey) ([]solana.Instruction, int, error) {
	route, err := b.lookupProfile(ctx, intent.Handle)
	if err != nil {
		return nil, 0, err
	}
	if !route.Owner.Equals(recipient) {
		return nil, 0, failure.New(failure.InvalidInput, "recipient does not own creator profile %q", intent.Handle)
	}

	var insts []solana.Instruction
	created := 0
	exists, err := b.accountExists(ctx, route.TokenAccount)
	if err != nil {
		return nil, 0, err
	}
	if !exists {
		insts = append(insts, associatedtokenaccount.NewCreateInstruction(
			b.feePayer.PublicKey(), route.Address, b.cfg.Mint,
		).Build())
		created++
	}

	tip, err := program.NewSendTipInstruction(b.cfg.ProgramID, program.SendTipAccounts{
		Donor:               sender,
		DonorTokenAccount:   senderTokenAccount,
		Profile:             route.Address,
		ProfileTokenAccount: route.TokenAccount,
		Mint:                b.cfg.Mint,
	}, intent.Amount)
	if err != nil {
		return nil, 0, failure.Wrap(err, failure.Internal, "failed to build send_tip")
	}
	insts = append(insts, tip)
	return insts, created, nil
}

func (b *Builder) accountExists(ctx context.Context, addr solana.PublicKey) (bool, error) {
	_, err := b.rpc.GetAccountInfo(ctx, addr, b.cfg.Commitment)
	if err == nil {
		return true, nil
	}
	if flowsolana.IsNotFound(err) {
		return false, nil
	}
	return false, failure.Wrap(err, failure.ServiceUnavailable, fmt.Sprintf("failed to look up account %s", addr))
}

// checkFunding fails fast when the relay cannot pay the fee, the rent of
// accounts it creates, and still keep its reserve.
func (b *Builder) checkFunding(ctx context.Context, tx *solana.Transaction, message string, created int) (uint64, error) {
	fee := uint64(FallbackFeePerSignature) * uint64(tx.Message.Header.NumRequiredSignatures)
	quoted, err := b.rpc.GetFeeForMessage(ctx, message, b.cfg.Commitment)
	switch {
	case err != nil:
		b.logger.DebugContext(ctx, "fee quote failed, using fallback", "error", err, "fee", fee)
	case quoted != nil:
		fee = *quoted
	}

	var rent uint64
	if created > 0 {
		perAccount, err := b.rpc.GetMinimumBalanceForRentExemption(ctx, tokenAccountSize, b.cfg.Commitment)
		if err != nil {
			return 0, failure.Wrap(err, failure.ServiceUnavailable, "failed to get rent exemption minimum")
		}
		rent = perAccount * uint64(created)
	}

	if b.balance == nil {
		return fee, nil
	}
	balance, err := b.balance.Balance(ctx)
	if err != nil {
		return 0, failure.Wrap(err, failure.ServiceUnavailable, "failed to check relay balance")
	}
	required := fee + rent + b.cfg.MinReserveLamports
	if balance < required {
		if b.metrics != nil {
			b.metrics.RecordUnderfunded()
		}
		b.logger.WarnContext(ctx, "relay fee payer underfunded",
			"balance", balance,
			"required", required,
			"fee", fee,
			"rent", rent,
		)
		return 0, failure.New(failure.RelayerUnderfunded, "relay is temporarily unable to sponsor transactions")
	}
	return fee, nil
}

// tokenAccountSize is the SPL token account layout size.
const tokenAccountSize = 165

func validateShape(tx *solana.Transaction) error {
	n := len(tx.Message.Instructions)
	if n == 0 || n > maxInstructions {
		return failure.New(failure.Internal, "transaction has %d instructions, expected 1 to %d", n, maxInstructions)
	}
	for i, inst := range tx.Message.Instructions {
		if len(inst.Accounts) > maxAccountsPerInstruction {
			return failure.New(failure.Internal, "instruction %d references %d accounts, maximum is %d", i, len(inst.Accounts), maxAccountsPerInstruction)
		}
	}
	return nil
}
