// Package localnet is an in-process ledger that executes transactions with
// the same all-or-nothing semantics as the cluster. It implements the RPC
// surface the relay, co-signer and watcher use, so the whole tip flow can run
// without a validator.
package localnet

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/brojonat/flowtip/service/program"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

const (
	// BlockhashValidity is how many blocks a blockhash stays usable.
	BlockhashValidity = 150

	// DefaultFeePerSignature is the base fee charged per required signature.
	DefaultFeePerSignature = 5000

	// rentPerByte approximates two years of rent per byte, including the
	// 128-byte account overhead.
	rentPerByte     = 6960
	accountOverhead = 128
)

type txRecord struct {
	slot   uint64
	err    any
	status rpc.ConfirmationStatusType
	events []*program.TipSent
}

// Ledger is safe for concurrent use. Transactions execute one at a time.
type Ledger struct {
	mu sync.Mutex

	state     *state
	processor *program.Processor

	slot        uint64
	blockHeight uint64
	latest      solana.Hash
	blockhashes map[solana.Hash]uint64 // hash -> last valid block height

	txs map[solana.Signature]*txRecord

	feePerSignature uint64
	autoConfirm     bool
	dropSubmissions bool
	unavailable     error

	logger *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithProgramID deploys the FlowTip program at id instead of the default.
func WithProgramID(id solana.PublicKey) Option {
	return func(l *Ledger) {
		l.processor = program.NewProcessor(id)
	}
}

// WithLogger sets the logger used for execution traces.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithFeePerSignature overrides the base fee.
func WithFeePerSignature(lamports uint64) Option {
	return func(l *Ledger) {
		l.feePerSignature = lamports
	}
}

// New returns an empty ledger at block height 1.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		state: &state{
			accounts: make(map[solana.PublicKey]*account),
			rent:     RentExemptMinimum,
		},
		processor:       program.NewProcessor(program.DefaultProgramID),
		blockhashes:     make(map[solana.Hash]uint64),
		txs:             make(map[solana.Signature]*txRecord),
		feePerSignature: DefaultFeePerSignature,
		autoConfirm:     true,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.advanceLocked(1)
	return l
}

// RentExemptMinimum returns the lamports needed to keep size bytes alive.
func RentExemptMinimum(size uint64) uint64 {
	return (size + accountOverhead) * rentPerByte
}

// ProgramID returns the id the FlowTip program is deployed at.
func (l *Ledger) ProgramID() solana.PublicKey {
	return l.processor.ProgramID()
}

// Advance produces n blocks. Blockhashes older than BlockhashValidity blocks
// stop being accepted.
func (l *Ledger) Advance(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.advanceLocked(n)
}

func (l *Ledger) advanceLocked(n int) {
	for range n {
		l.slot++
		l.blockHeight++
		sum := sha256.Sum256([]byte(fmt.Sprintf("localnet-block-%d", l.blockHeight)))
		l.latest = solana.Hash(sum)
		l.blockhashes[l.latest] = l.blockHeight + BlockhashValidity
	}
}

// BlockHeight returns the current block height.
func (l *Ledger) BlockHeight() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.blockHeight
}

// SetAutoConfirm controls whether landed transactions are reported as
// confirmed immediately. When off they stay processed until Confirm.
func (l *Ledger) SetAutoConfirm(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.autoConfirm = on
}

// SetDropSubmissions makes SendTransaction accept and then silently lose
// transactions, as an overloaded leader would.
func (l *Ledger) SetDropSubmissions(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dropSubmissions = on
}

// SetUnavailable makes every RPC call fail with err. Pass nil to recover.
func (l *Ledger) SetUnavailable(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unavailable = err
}

// Confirm promotes a landed transaction to confirmed.
func (l *Ledger) Confirm(sig solana.Signature) {
	l.setStatus(sig, rpc.ConfirmationStatusConfirmed)
}

// Finalize promotes a landed transaction to finalized.
func (l *Ledger) Finalize(sig solana.Signature) {
	l.setStatus(sig, rpc.ConfirmationStatusFinalized)
}

func (l *Ledger) setStatus(sig solana.Signature, status rpc.ConfirmationStatusType) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.txs[sig]; ok {
		rec.status = status
	}
}

// Airdrop credits lamports to addr.
func (l *Ledger) Airdrop(addr solana.PublicKey, lamports uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.getOrCreate(addr).lamports += lamports
}

// CreateMint registers a new mint and returns its address.
func (l *Ledger) CreateMint(decimals uint8) solana.PublicKey {
	l.mu.Lock()
	defer l.mu.Unlock()
	addr := solana.NewWallet().PublicKey()
	l.state.accounts[addr] = &account{
		lamports: RentExemptMinimum(MintSize),
		owner:    solana.TokenProgramID,
		mint:     &mintState{decimals: decimals},
	}
	return addr
}

// CreateTokenAccount creates the associated token account of owner for mint
// without charging anyone.
func (l *Ledger) CreateTokenAccount(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if m := l.state.get(mint); m == nil || m.mint == nil {
		return solana.PublicKey{}, fmt.Errorf("mint %s does not exist", mint)
	}
	if a := l.state.get(addr); a != nil && a.token != nil {
		return addr, nil
	}
	l.state.accounts[addr] = &account{
		lamports: RentExemptMinimum(TokenAccountSize),
		owner:    solana.TokenProgramID,
		token:    &program.TokenAccountState{Mint: mint, Owner: owner},
	}
	return addr, nil
}

// MintTo credits amount to a token account.
func (l *Ledger) MintTo(tokenAccount solana.PublicKey, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.state.get(tokenAccount)
	if a == nil || a.token == nil {
		return fmt.Errorf("token account %s does not exist", tokenAccount)
	}
	a.token.Amount += amount
	if m := l.state.get(a.token.Mint); m != nil && m.mint != nil {
		m.mint.supply += amount
	}
	return nil
}

// Balance returns the lamports held by addr.
func (l *Ledger) Balance(addr solana.PublicKey) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if a := l.state.get(addr); a != nil {
		return a.lamports
	}
	return 0
}

// TokenBalance returns the token amount held by a token account.
func (l *Ledger) TokenBalance(addr solana.PublicKey) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if a := l.state.get(addr); a != nil && a.token != nil {
		return a.token.Amount
	}
	return 0
}

// Profile decodes the creator profile stored at addr.
func (l *Ledger) Profile(addr solana.PublicKey) (*program.CreatorProfile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	data, owner, ok := l.state.Data(addr)
	if !ok || !owner.Equals(l.processor.ProgramID()) {
		return nil, fmt.Errorf("profile %s does not exist", addr)
	}
	return program.DecodeProfile(data)
}

// Events returns the TipSent events emitted by a landed transaction.
func (l *Ledger) Events(sig solana.Signature) []*program.TipSent {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.txs[sig]; ok {
		return rec.events
	}
	return nil
}

func randomSignature() solana.Signature {
	var sig solana.Signature
	_, _ = rand.Read(sig[:])
	return sig
}
