package localnet

import (
	"encoding/binary"

	"github.com/brojonat/flowtip/service/program"
	"github.com/gagliardetto/solana-go"
)

const (
	// TokenAccountSize is the SPL token account layout size.
	TokenAccountSize = 165
	// MintSize is the SPL mint layout size.
	MintSize = 82
)

type account struct {
	lamports uint64
	owner    solana.PublicKey
	data     []byte

	token *program.TokenAccountState
	mint  *mintState
}

type mintState struct {
	decimals uint8
	supply   uint64
}

func (a *account) clone() *account {
	c := &account{
		lamports: a.lamports,
		owner:    a.owner,
		data:     append([]byte(nil), a.data...),
	}
	if a.token != nil {
		t := *a.token
		c.token = &t
	}
	if a.mint != nil {
		m := *a.mint
		c.mint = &m
	}
	return c
}

// encodedData returns the bytes an RPC node would serve for the account.
func (a *account) encodedData() []byte {
	switch {
	case a.token != nil:
		return encodeTokenAccount(a.token)
	case a.mint != nil:
		return encodeMint(a.mint)
	}
	return a.data
}

// encodeTokenAccount writes the SPL token account layout:
// mint, owner, amount, delegate option, state, native option, delegated
// amount, close authority option.
func encodeTokenAccount(t *program.TokenAccountState) []byte {
	out := make([]byte, TokenAccountSize)
	copy(out[0:32], t.Mint[:])
	copy(out[32:64], t.Owner[:])
	binary.LittleEndian.PutUint64(out[64:72], t.Amount)
	out[108] = 1 // initialized
	return out
}

func encodeMint(m *mintState) []byte {
	out := make([]byte, MintSize)
	binary.LittleEndian.PutUint64(out[36:44], m.supply)
	out[44] = m.decimals
	out[45] = 1 // initialized
	return out
}

// state is a mutable copy of the ledger used while executing one
// transaction. It implements program.Ledger.
type state struct {
	accounts map[solana.PublicKey]*account
	rent     func(size uint64) uint64
}

func (s *state) clone() *state {
	c := &state{
		accounts: make(map[solana.PublicKey]*account, len(s.accounts)),
		rent:     s.rent,
	}
	for k, v := range s.accounts {
		c.accounts[k] = v.clone()
	}
	return c
}

func (s *state) get(addr solana.PublicKey) *account {
	return s.accounts[addr]
}

func (s *state) getOrCreate(addr solana.PublicKey) *account {
	a, ok := s.accounts[addr]
	if !ok {
		a = &account{owner: solana.SystemProgramID}
		s.accounts[addr] = a
	}
	return a
}

func (s *state) debit(addr solana.PublicKey, lamports uint64) error {
	a := s.get(addr)
	if a == nil || a.lamports < lamports {
		return errInsufficientLamports
	}
	a.lamports -= lamports
	return nil
}

func (s *state) Data(addr solana.PublicKey) ([]byte, solana.PublicKey, bool) {
	a := s.get(addr)
	if a == nil || a.token != nil || a.mint != nil || len(a.data) == 0 {
		return nil, solana.PublicKey{}, false
	}
	return a.data, a.owner, true
}

func (s *state) CreateAccount(payer, addr, owner solana.PublicKey, space uint64) error {
	if existing := s.get(addr); existing != nil && (len(existing.data) > 0 || existing.token != nil || existing.mint != nil) {
		return errAccountInUse
	}
	rent := s.rent(space)
	if err := s.debit(payer, rent); err != nil {
		return err
	}
	a := s.getOrCreate(addr)
	a.lamports += rent
	a.owner = owner
	a.data = make([]byte, space)
	return nil
}

func (s *state) WriteData(addr solana.PublicKey, data []byte) error {
	a := s.get(addr)
	if a == nil {
		return errAccountNotFound
	}
	if len(data) > len(a.data) {
		return errAccountDataTooSmall
	}
	copy(a.data, data)
	return nil
}

func (s *state) TokenAccount(addr solana.PublicKey) (program.TokenAccountState, bool) {
	a := s.get(addr)
	if a == nil || a.token == nil {
		return program.TokenAccountState{}, false
	}
	return *a.token, true
}

func (s *state) CreateTokenAccount(payer, addr, owner, mint solana.PublicKey) error {
	if m := s.get(mint); m == nil || m.mint == nil {
		return &program.Error{Code: tokenErrInvalidMint}
	}
	if existing := s.get(addr); existing != nil && existing.token != nil {
		return errAccountInUse
	}
	rent := s.rent(TokenAccountSize)
	if err := s.debit(payer, rent); err != nil {
		return err
	}
	a := s.getOrCreate(addr)
	a.lamports += rent
	a.owner = solana.TokenProgramID
	a.token = &program.TokenAccountState{Mint: mint, Owner: owner}
	return nil
}

func (s *state) Transfer(source, destination, authority solana.PublicKey, amount uint64) error {
	src, dst := s.get(source), s.get(destination)
	if src == nil || src.token == nil || dst == nil || dst.token == nil {
		return &program.Error{Code: tokenErrUninitializedState}
	}
	if !src.token.Owner.Equals(authority) {
		return &program.Error{Code: program.CodeTokenOwnerMismatch}
	}
	if !src.token.Mint.Equals(dst.token.Mint) {
		return &program.Error{Code: program.CodeTokenMintMismatch}
	}
	if src.token.Amount < amount {
		return &program.Error{Code: program.CodeTokenInsufficientFunds}
	}
	if dst.token.Amount > ^uint64(0)-amount {
		return &program.Error{Code: tokenErrOverflow}
	}
	src.token.Amount -= amount
	dst.token.Amount += amount
	return nil
}

// SPL token codes used only by the ledger.
const (
	tokenErrInvalidMint          program.Code = 2
	tokenErrOverflow             program.Code = 14
	tokenErrUninitializedState   program.Code = 17
	tokenErrMintDecimalsMismatch program.Code = 18
)
