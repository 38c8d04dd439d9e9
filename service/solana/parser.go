package solana

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/gagliardetto/solana-go"
)

// Well-known program IDs
var (
	SystemProgramID          = solana.SystemProgramID
	TokenProgramID           = solana.TokenProgramID
	AssociatedTokenProgramID = solana.SPLAssociatedTokenAccountProgramID
	MemoProgramID            = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")
)

// System Program instruction types
const (
	SystemProgramTransferInstruction = uint32(2)
)

// Token Program instruction types
const (
	TokenProgramTransferInstruction        = uint8(3)
	TokenProgramTransferCheckedInstruction = uint8(12)
)

// TokenTransfer is a decoded SPL token Transfer or TransferChecked.
type TokenTransfer struct {
	Source      solana.PublicKey
	Mint        *solana.PublicKey // only set for TransferChecked
	Destination solana.PublicKey
	Authority   solana.PublicKey
	Amount      uint64
	Decimals    *uint8
}

// ProgramDecoder names the instruction type of a custom program and, when the
// instruction moves tokens, the declared amount.
type ProgramDecoder func(data []byte) (typ string, amount *uint64, err error)

// DescribeOption registers additional programs with DescribeTransaction.
type DescribeOption func(map[solana.PublicKey]namedDecoder)

type namedDecoder struct {
	name   string
	decode ProgramDecoder
}

// WithProgram teaches DescribeTransaction how to label a custom program.
func WithProgram(programID solana.PublicKey, name string, decode ProgramDecoder) DescribeOption {
	return func(m map[solana.PublicKey]namedDecoder) {
		m[programID] = namedDecoder{name: name, decode: decode}
	}
}

// DescribeTransaction summarizes a legacy transaction. Instructions it cannot
// decode are still listed with their program id.
func DescribeTransaction(tx *solana.Transaction, opts ...DescribeOption) (*TransactionSummary, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction is nil")
	}
	custom := make(map[solana.PublicKey]namedDecoder)
	for _, opt := range opts {
		opt(custom)
	}

	msg := tx.Message
	keys := msg.AccountKeys
	summary := &TransactionSummary{
		RecentBlockhash: msg.RecentBlockhash.String(),
		Signers:         []string{},
		MissingSigners:  []string{},
		Instructions:    make([]InstructionSummary, 0, len(msg.Instructions)),
	}
	if len(keys) > 0 {
		summary.FeePayer = keys[0].String()
	}

	numSigners := int(msg.Header.NumRequiredSignatures)
	for i := 0; i < numSigners && i < len(keys); i++ {
		summary.Signers = append(summary.Signers, keys[i].String())
		if i >= len(tx.Signatures) || tx.Signatures[i] == (solana.Signature{}) {
			summary.MissingSigners = append(summary.MissingSigners, keys[i].String())
		}
	}

	for idx, inst := range msg.Instructions {
		if int(inst.ProgramIDIndex) >= len(keys) {
			return nil, fmt.Errorf("instruction %d: program index out of bounds", idx)
		}
		programID := keys[inst.ProgramIDIndex]
		accounts, err := instructionAccounts(inst, keys)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", idx, err)
		}
		is := InstructionSummary{
			ProgramID: programID.String(),
			Program:   "unknown",
			Type:      "unknown",
			Accounts:  len(accounts),
		}

		switch {
		case programID.Equals(SystemProgramID):
			is.Program = "system"
			if amount, err := ParseSystemTransfer(inst.Data); err == nil {
				is.Type = "transfer"
				is.Amount = &amount
				if len(accounts) >= 2 {
					is.Source = strPtr(accounts[0].String())
					is.Destination = strPtr(accounts[1].String())
				}
			}

		case programID.Equals(TokenProgramID):
			is.Program = "token"
			if t, err := ParseTokenTransfer(inst.Data, accounts); err == nil {
				is.Type = "transfer"
				if t.Mint != nil {
					is.Type = "transfer_checked"
					is.Mint = strPtr(t.Mint.String())
				}
				is.Amount = &t.Amount
				is.Decimals = t.Decimals
				is.Source = strPtr(t.Source.String())
				is.Destination = strPtr(t.Destination.String())
				is.Authority = strPtr(t.Authority.String())
			}

		case programID.Equals(AssociatedTokenProgramID):
			is.Program = "associated_token"
			is.Type = "create"
			if len(inst.Data) > 0 && inst.Data[0] == 1 {
				is.Type = "create_idempotent"
			}
			if len(accounts) >= 4 {
				is.Destination = strPtr(accounts[1].String())
				is.Authority = strPtr(accounts[2].String())
				is.Mint = strPtr(accounts[3].String())
			}

		case programID.Equals(MemoProgramID):
			is.Program = "memo"
			is.Type = "memo"
			memo := ParseMemo(inst.Data)
			is.Memo = &memo

		default:
			if d, ok := custom[programID]; ok {
				is.Program = d.name
				if d.decode != nil {
					if typ, amount, err := d.decode(inst.Data); err == nil {
						is.Type = typ
						is.Amount = amount
					}
				}
			}
		}

		summary.Instructions = append(summary.Instructions, is)
	}

	return summary, nil
}

func instructionAccounts(inst solana.CompiledInstruction, keys []solana.PublicKey) ([]solana.PublicKey, error) {
	out := make([]solana.PublicKey, 0, len(inst.Accounts))
	for _, idx := range inst.Accounts {
		if int(idx) >= len(keys) {
			return nil, fmt.Errorf("account index %d out of bounds", idx)
		}
		out = append(out, keys[idx])
	}
	return out, nil
}

// ParseSystemTransfer extracts the lamports of a System Program Transfer.
func ParseSystemTransfer(data []byte) (uint64, error) {
	// [0..4]  = instruction type (u32, 2 for Transfer)
	// [4..12] = lamports (u64)
	if len(data) < 12 {
		return 0, fmt.Errorf("instruction data too short: %d bytes", len(data))
	}
	instructionType := binary.LittleEndian.Uint32(data[0:4])
	if instructionType != SystemProgramTransferInstruction {
		return 0, fmt.Errorf("not a transfer instruction: type %d", instructionType)
	}
	return binary.LittleEndian.Uint64(data[4:12]), nil
}

// ParseTokenTransfer decodes an SPL Token Transfer or TransferChecked given the
// instruction's resolved accounts.
func ParseTokenTransfer(data []byte, accounts []solana.PublicKey) (*TokenTransfer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty instruction data")
	}

	switch data[0] {
	case TokenProgramTransferInstruction:
		// [0] type, [1..9] amount
		// accounts: [source, destination, authority]
		if len(data) < 9 {
			return nil, fmt.Errorf("transfer instruction data too short")
		}
		if len(accounts) < 3 {
			return nil, fmt.Errorf("transfer missing accounts")
		}
		return &TokenTransfer{
			Source:      accounts[0],
			Destination: accounts[1],
			Authority:   accounts[2],
			Amount:      binary.LittleEndian.Uint64(data[1:9]),
		}, nil

	case TokenProgramTransferCheckedInstruction:
		// [0] type, [1..9] amount, [9] decimals
		// accounts: [source, mint, destination, authority]
		if len(data) < 10 {
			return nil, fmt.Errorf("transferChecked instruction data too short")
		}
		if len(accounts) < 4 {
			return nil, fmt.Errorf("transferChecked missing accounts")
		}
		mint := accounts[1]
		decimals := data[9]
		return &TokenTransfer{
			Source:      accounts[0],
			Mint:        &mint,
			Destination: accounts[2],
			Authority:   accounts[3],
			Amount:      binary.LittleEndian.Uint64(data[1:9]),
			Decimals:    &decimals,
		}, nil

	default:
		return nil, fmt.Errorf("unknown token instruction type: %d", data[0])
	}
}

// ParseMemo returns memo text. Memos written by some wallets are base64
// encoded; those are decoded when the result is valid UTF-8.
func ParseMemo(data []byte) string {
	memo := string(data)
	if decoded, err := base64.StdEncoding.DecodeString(memo); err == nil && len(decoded) > 0 && utf8.Valid(decoded) {
		return string(decoded)
	}
	return memo
}

func strPtr(s string) *string {
	return &s
}
