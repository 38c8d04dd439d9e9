package localnet

import (
	"fmt"

	"github.com/brojonat/flowtip/service/program"
	flowsolana "github.com/brojonat/flowtip/service/solana"
	"github.com/gagliardetto/solana-go"
)

// instructionError is a named runtime failure such as MissingRequiredSignature.
type instructionError struct {
	name string
}

func (e *instructionError) Error() string { return e.name }

var (
	errInsufficientLamports   = &instructionError{"InsufficientFunds"}
	errAccountInUse           = &instructionError{"AccountAlreadyInitialized"}
	errAccountNotFound        = &instructionError{"UninitializedAccount"}
	errAccountDataTooSmall    = &instructionError{"AccountDataTooSmall"}
	errMissingSignature       = &instructionError{"MissingRequiredSignature"}
	errUnsupportedProgram     = &instructionError{"UnsupportedProgramId"}
	errInvalidInstructionData = &instructionError{"InvalidInstructionData"}
	errInvalidSeeds           = &instructionError{"InvalidSeeds"}
	errNotEnoughAccountKeys   = &instructionError{"NotEnoughAccountKeys"}
)

// txFailure records which instruction failed and why.
type txFailure struct {
	index int
	err   error
}

// statusErr renders the failure the way getSignatureStatuses reports it
// after JSON decoding.
func (f *txFailure) statusErr() any {
	var detail any
	if code, ok := program.CodeOf(f.err); ok {
		detail = map[string]any{"Custom": float64(code)}
	} else if ie, ok := f.err.(*instructionError); ok {
		detail = ie.name
	} else {
		detail = errInvalidInstructionData.name
	}
	return map[string]any{"InstructionError": []any{float64(f.index), detail}}
}

// preflightError renders the failure the way sendTransaction reports a
// failed simulation.
func (f *txFailure) preflightError() error {
	if code, ok := program.CodeOf(f.err); ok {
		return fmt.Errorf("Transaction simulation failed: Error processing Instruction %d: custom program error: 0x%x", f.index, uint32(code))
	}
	return fmt.Errorf("Transaction simulation failed: Error processing Instruction %d: %v", f.index, f.err)
}

// resolveAccounts expands a compiled instruction into account metas using
// the message header to decide signer and writable flags.
func resolveAccounts(msg *solana.Message, inst solana.CompiledInstruction) ([]*solana.AccountMeta, error) {
	keys := msg.AccountKeys
	numSigned := int(msg.Header.NumRequiredSignatures)
	roSigned := int(msg.Header.NumReadonlySignedAccounts)
	roUnsigned := int(msg.Header.NumReadonlyUnsignedAccounts)

	metas := make([]*solana.AccountMeta, 0, len(inst.Accounts))
	for _, idx := range inst.Accounts {
		i := int(idx)
		if i >= len(keys) {
			return nil, errNotEnoughAccountKeys
		}
		signer := i < numSigned
		writable := (signer && i < numSigned-roSigned) || (!signer && i < len(keys)-roUnsigned)
		metas = append(metas, solana.NewAccountMeta(keys[i], writable, signer))
	}
	return metas, nil
}

func keysOf(metas []*solana.AccountMeta) []solana.PublicKey {
	out := make([]solana.PublicKey, len(metas))
	for i, m := range metas {
		out[i] = m.PublicKey
	}
	return out
}

// execute runs every instruction of msg against st. st is left partially
// mutated on failure; callers discard it.
func (l *Ledger) execute(st *state, msg *solana.Message) ([]*program.TipSent, *txFailure) {
	var events []*program.TipSent
	for idx, inst := range msg.Instructions {
		if int(inst.ProgramIDIndex) >= len(msg.AccountKeys) {
			return nil, &txFailure{index: idx, err: errNotEnoughAccountKeys}
		}
		programID := msg.AccountKeys[inst.ProgramIDIndex]
		metas, err := resolveAccounts(msg, inst)
		if err != nil {
			return nil, &txFailure{index: idx, err: err}
		}

		var ev *program.TipSent
		switch {
		case programID.Equals(solana.SystemProgramID):
			err = executeSystem(st, metas, inst.Data)
		case programID.Equals(solana.TokenProgramID):
			err = executeToken(st, metas, inst.Data)
		case programID.Equals(solana.SPLAssociatedTokenAccountProgramID):
			err = executeCreateTokenAccount(st, metas, inst.Data)
		case programID.Equals(flowsolana.MemoProgramID):
			err = executeMemo(metas)
		case programID.Equals(l.processor.ProgramID()):
			ev, err = l.processor.Process(st, metas, inst.Data)
		default:
			err = errUnsupportedProgram
		}
		if err != nil {
			return nil, &txFailure{index: idx, err: err}
		}
		if ev != nil {
			events = append(events, ev)
		}
	}
	return events, nil
}

func executeSystem(st *state, metas []*solana.AccountMeta, data []byte) error {
	lamports, err := flowsolana.ParseSystemTransfer(data)
	if err != nil {
		return errInvalidInstructionData
	}
	if len(metas) < 2 {
		return errNotEnoughAccountKeys
	}
	if !metas[0].IsSigner {
		return errMissingSignature
	}
	if err := st.debit(metas[0].PublicKey, lamports); err != nil {
		return &program.Error{Code: 1}
	}
	st.getOrCreate(metas[1].PublicKey).lamports += lamports
	return nil
}

func executeToken(st *state, metas []*solana.AccountMeta, data []byte) error {
	t, err := flowsolana.ParseTokenTransfer(data, keysOf(metas))
	if err != nil {
		return errInvalidInstructionData
	}
	authority := metas[2]
	if t.Mint != nil {
		authority = metas[3]
	}
	if !authority.IsSigner {
		return errMissingSignature
	}
	if t.Mint != nil {
		m := st.get(*t.Mint)
		if m == nil || m.mint == nil {
			return &program.Error{Code: tokenErrInvalidMint}
		}
		if m.mint.decimals != *t.Decimals {
			return &program.Error{Code: tokenErrMintDecimalsMismatch}
		}
		if src, ok := st.TokenAccount(t.Source); ok && !src.Mint.Equals(*t.Mint) {
			return &program.Error{Code: program.CodeTokenMintMismatch}
		}
	}
	return st.Transfer(t.Source, t.Destination, t.Authority, t.Amount)
}

// executeCreateTokenAccount handles Create (empty data or 0) and
// CreateIdempotent (1). Accounts: payer, ata, wallet, mint.
func executeCreateTokenAccount(st *state, metas []*solana.AccountMeta, data []byte) error {
	if len(metas) < 4 {
		return errNotEnoughAccountKeys
	}
	idempotent := len(data) > 0 && data[0] == 1
	if len(data) > 0 && data[0] > 1 {
		return errInvalidInstructionData
	}
	payer, ata, wallet, mint := metas[0], metas[1], metas[2], metas[3]
	if !payer.IsSigner {
		return errMissingSignature
	}
	expected, err := flowsolana.DeriveTokenAccount(wallet.PublicKey, mint.PublicKey)
	if err != nil || !expected.Equals(ata.PublicKey) {
		return errInvalidSeeds
	}
	if existing, ok := st.TokenAccount(ata.PublicKey); ok {
		if idempotent && existing.Owner.Equals(wallet.PublicKey) && existing.Mint.Equals(mint.PublicKey) {
			return nil
		}
		return errAccountInUse
	}
	return st.CreateTokenAccount(payer.PublicKey, ata.PublicKey, wallet.PublicKey, mint.PublicKey)
}

// executeMemo requires every listed account to have signed.
func executeMemo(metas []*solana.AccountMeta) error {
	for _, m := range metas {
		if !m.IsSigner {
			return errMissingSignature
		}
	}
	return nil
}
