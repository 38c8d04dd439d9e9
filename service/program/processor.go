package program

import (
	"errors"
	"fmt"
	"math"

	flowsolana "github.com/brojonat/flowtip/service/solana"
	"github.com/gagliardetto/solana-go"
)

// TokenAccountState is the part of a token account the program reads.
type TokenAccountState struct {
	Mint   solana.PublicKey
	Owner  solana.PublicKey
	Amount uint64
}

// Ledger is the account state a Processor reads and mutates. All calls made
// for one transaction must be discarded by the implementation if any
// instruction fails.
type Ledger interface {
	// Data returns the account data and owning program.
	Data(addr solana.PublicKey) (data []byte, owner solana.PublicKey, ok bool)
	// CreateAccount allocates space bytes owned by owner, funded by payer.
	CreateAccount(payer, addr, owner solana.PublicKey, space uint64) error
	WriteData(addr solana.PublicKey, data []byte) error

	TokenAccount(addr solana.PublicKey) (TokenAccountState, bool)
	CreateTokenAccount(payer, addr, owner, mint solana.PublicKey) error
	// Transfer moves tokens. It fails with a token program error when the
	// authority does not own source or the balance is insufficient.
	Transfer(source, destination, authority solana.PublicKey, amount uint64) error
}

// TipSent is emitted by a successful send_tip.
type TipSent struct {
	Creator solana.PublicKey `json:"creator"`
	Donor   solana.PublicKey `json:"donor"`
	Amount  uint64           `json:"amount"`
	Handle  string           `json:"handle"`
}

// Processor executes program instructions against a Ledger.
type Processor struct {
	programID solana.PublicKey
}

// NewProcessor returns a processor for the program deployed at programID.
func NewProcessor(programID solana.PublicKey) *Processor {
	return &Processor{programID: programID}
}

// ProgramID returns the id the processor answers to.
func (p *Processor) ProgramID() solana.PublicKey {
	return p.programID
}

// Process runs one instruction. A non-nil event is returned for send_tip.
func (p *Processor) Process(l Ledger, accounts []*solana.AccountMeta, data []byte) (*TipSent, error) {
	inst, err := DecodeInstruction(data)
	if err != nil {
		return nil, fmt.Errorf("invalid instruction data: %w", err)
	}
	switch {
	case inst.Initialize != nil:
		return nil, p.initializeProfile(l, accounts, *inst.Initialize)
	case inst.SendTip != nil:
		return p.sendTip(l, accounts, inst.SendTip.Amount)
	}
	return nil, fmt.Errorf("unsupported instruction %s", inst.Name)
}

func (p *Processor) initializeProfile(l Ledger, accounts []*solana.AccountMeta, args InitializeProfileArgs) error {
	if len(accounts) < 4 {
		return fmt.Errorf("%s: expected at least 4 accounts, got %d", initializeProfileName, len(accounts))
	}
	creator, profileMeta, tokenMeta, mint := accounts[0], accounts[1], accounts[2], accounts[3]

	if !creator.IsSigner {
		return fail(CodeAccountNotSigner)
	}

	switch {
	case len(args.Handle) == 0:
		return fail(CodeHandleEmpty)
	case len(args.Handle) > flowsolana.MaxHandleLength:
		return fail(CodeHandleTooLong)
	}
	if err := flowsolana.ValidateHandle(args.Handle); err != nil {
		return fail(CodeInvalidHandleCharacters)
	}

	if err := flowsolana.VerifyProfileAddress(p.programID, args.Handle, args.Nonce, profileMeta.PublicKey); err != nil {
		return fail(CodeAddressMismatch)
	}
	canonical, bump, err := flowsolana.DeriveProfileAddress(p.programID, args.Handle)
	if err != nil || !canonical.Equals(profileMeta.PublicKey) || bump != args.Nonce {
		return fail(CodeAddressMismatch)
	}

	if _, _, exists := l.Data(profileMeta.PublicKey); exists {
		return fail(CodeCreatorAlreadyInitialized)
	}

	expectedToken, err := flowsolana.DeriveTokenAccount(profileMeta.PublicKey, mint.PublicKey)
	if err != nil || !expectedToken.Equals(tokenMeta.PublicKey) {
		return fail(CodeAddressMismatch)
	}
	if existing, ok := l.TokenAccount(tokenMeta.PublicKey); ok {
		if !existing.Owner.Equals(profileMeta.PublicKey) || !existing.Mint.Equals(mint.PublicKey) {
			return fail(CodeAddressMismatch)
		}
	} else if err := l.CreateTokenAccount(creator.PublicKey, tokenMeta.PublicKey, profileMeta.PublicKey, mint.PublicKey); err != nil {
		return err
	}

	if err := l.CreateAccount(creator.PublicKey, profileMeta.PublicKey, p.programID, ProfileAccountSize); err != nil {
		return err
	}
	profile := &CreatorProfile{
		Owner:        creator.PublicKey,
		Handle:       args.Handle,
		TokenAccount: tokenMeta.PublicKey,
		Bump:         args.Nonce,
	}
	encoded, err := profile.Encode()
	if err != nil {
		return err
	}
	return l.WriteData(profileMeta.PublicKey, encoded)
}

func (p *Processor) sendTip(l Ledger, accounts []*solana.AccountMeta, amount uint64) (*TipSent, error) {
	if len(accounts) < 5 {
		return nil, fmt.Errorf("%s: expected at least 5 accounts, got %d", sendTipName, len(accounts))
	}
	donor, donorToken, profileMeta, profileToken, mint := accounts[0], accounts[1], accounts[2], accounts[3], accounts[4]

	if !donor.IsSigner {
		return nil, fail(CodeAccountNotSigner)
	}
	if amount == 0 {
		return nil, fail(CodeInvalidAmount)
	}

	profile, err := p.loadProfile(l, profileMeta.PublicKey)
	if err != nil {
		return nil, err
	}
	if err := flowsolana.VerifyProfileAddress(p.programID, profile.Handle, profile.Bump, profileMeta.PublicKey); err != nil {
		return nil, fail(CodeConstraintSeeds)
	}
	if !profile.TokenAccount.Equals(profileToken.PublicKey) {
		return nil, fail(CodeConstraintAddress)
	}
	if src, ok := l.TokenAccount(donorToken.PublicKey); ok && !src.Mint.Equals(mint.PublicKey) {
		return nil, fail(CodeTokenMintMismatch)
	}

	before, ok := l.TokenAccount(profileToken.PublicKey)
	if !ok {
		return nil, fail(CodeAccountNotInitialized)
	}
	if err := l.Transfer(donorToken.PublicKey, profileToken.PublicKey, donor.PublicKey, amount); err != nil {
		return nil, err
	}
	after, _ := l.TokenAccount(profileToken.PublicKey)

	// Credit what actually arrived, not what was declared.
	if after.Amount < before.Amount {
		return nil, fail(CodeMathOverflow)
	}
	received := after.Amount - before.Amount
	if received == 0 {
		return nil, fail(CodeInvalidAmount)
	}

	total, err := checkedAdd(profile.TotalReceived, received)
	if err != nil {
		return nil, err
	}
	count, err := checkedAdd(profile.TipCount, 1)
	if err != nil {
		return nil, err
	}
	profile.TotalReceived = total
	profile.TipCount = count

	encoded, err := profile.Encode()
	if err != nil {
		return nil, err
	}
	if err := l.WriteData(profileMeta.PublicKey, encoded); err != nil {
		return nil, err
	}

	return &TipSent{
		Creator: profile.Owner,
		Donor:   donor.PublicKey,
		Amount:  received,
		Handle:  profile.Handle,
	}, nil
}

func (p *Processor) loadProfile(l Ledger, addr solana.PublicKey) (*CreatorProfile, error) {
	data, owner, ok := l.Data(addr)
	if !ok || !owner.Equals(p.programID) {
		return nil, fail(CodeAccountNotInitialized)
	}
	profile, err := DecodeProfile(data)
	if err != nil {
		return nil, fail(CodeAccountNotInitialized)
	}
	return profile, nil
}

func checkedAdd(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, fail(CodeMathOverflow)
	}
	return a + b, nil
}

// CodeOf extracts the program error code from err.
func CodeOf(err error) (Code, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code, true
	}
	return 0, false
}
