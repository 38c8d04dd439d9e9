package program

import (
	"bytes"
	"fmt"

	flowsolana "github.com/brojonat/flowtip/service/solana"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// InitializeProfileArgs are the arguments of initialize_creator_profile.
type InitializeProfileArgs struct {
	Handle string
	Nonce  uint8
}

// SendTipArgs are the arguments of send_tip.
type SendTipArgs struct {
	Amount uint64
}

// Instruction is a decoded program instruction. Exactly one of the argument
// pointers is set.
type Instruction struct {
	Name       string
	Initialize *InitializeProfileArgs
	SendTip    *SendTipArgs
}

func encodeInstruction(d Discriminator, args any) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(d[:])
	if err := bin.NewBorshEncoder(buf).Encode(args); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeInstruction parses instruction data.
func DecodeInstruction(data []byte) (*Instruction, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("instruction data too short: %d bytes", len(data))
	}
	var d Discriminator
	copy(d[:], data[:8])
	dec := bin.NewBorshDecoder(data[8:])

	switch d {
	case InitializeProfileDiscriminator:
		var args InitializeProfileArgs
		if err := dec.Decode(&args); err != nil {
			return nil, fmt.Errorf("failed to decode %s args: %w", initializeProfileName, err)
		}
		return &Instruction{Name: initializeProfileName, Initialize: &args}, nil
	case SendTipDiscriminator:
		var args SendTipArgs
		if err := dec.Decode(&args); err != nil {
			return nil, fmt.Errorf("failed to decode %s args: %w", sendTipName, err)
		}
		return &Instruction{Name: sendTipName, SendTip: &args}, nil
	default:
		return nil, fmt.Errorf("unknown instruction discriminator %x", d[:])
	}
}

// DescribeInstruction matches flowsolana.ProgramDecoder so transaction
// summaries can label program calls.
func DescribeInstruction(data []byte) (string, *uint64, error) {
	inst, err := DecodeInstruction(data)
	if err != nil {
		return "", nil, err
	}
	if inst.SendTip != nil {
		amount := inst.SendTip.Amount
		return inst.Name, &amount, nil
	}
	return inst.Name, nil, nil
}

// NewInitializeProfileInstruction builds initialize_creator_profile for
// creator. The profile address, nonce and profile token account are derived
// from handle.
func NewInitializeProfileInstruction(programID, creator, mint solana.PublicKey, handle string) (solana.Instruction, error) {
	profile, nonce, err := flowsolana.DeriveProfileAddress(programID, handle)
	if err != nil {
		return nil, err
	}
	tokenAccount, err := flowsolana.DeriveTokenAccount(profile, mint)
	if err != nil {
		return nil, err
	}
	data, err := encodeInstruction(InitializeProfileDiscriminator, InitializeProfileArgs{Handle: handle, Nonce: nonce})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", initializeProfileName, err)
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(creator, true, true),
		solana.NewAccountMeta(profile, true, false),
		solana.NewAccountMeta(tokenAccount, true, false),
		solana.NewAccountMeta(mint, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SPLAssociatedTokenAccountProgramID, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(solana.SysVarRentPubkey, false, false),
	}
	return solana.NewInstruction(programID, accounts, data), nil
}

// SendTipAccounts are the accounts send_tip operates on.
type SendTipAccounts struct {
	Donor               solana.PublicKey
	DonorTokenAccount   solana.PublicKey
	Profile             solana.PublicKey
	ProfileTokenAccount solana.PublicKey
	Mint                solana.PublicKey
}

// NewSendTipInstruction builds send_tip. The donor authorizes the token
// movement and must sign.
func NewSendTipInstruction(programID solana.PublicKey, accts SendTipAccounts, amount uint64) (solana.Instruction, error) {
	data, err := encodeInstruction(SendTipDiscriminator, SendTipArgs{Amount: amount})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", sendTipName, err)
	}
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(accts.Donor, true, true),
		solana.NewAccountMeta(accts.DonorTokenAccount, true, false),
		solana.NewAccountMeta(accts.Profile, true, false),
		solana.NewAccountMeta(accts.ProfileTokenAccount, true, false),
		solana.NewAccountMeta(accts.Mint, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}
	return solana.NewInstruction(programID, accounts, data), nil
}
