package program

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// ProfileAccountSize is the allocated size of a profile account:
// discriminator, owner, handle (length prefix + up to 32 bytes), token
// account, bump, two counters.
const ProfileAccountSize = 8 + 32 + 4 + 32 + 32 + 1 + 8 + 8

// CreatorProfile is the on-chain record of a creator.
type CreatorProfile struct {
	Owner         solana.PublicKey
	Handle        string
	TokenAccount  solana.PublicKey
	Bump          uint8
	TotalReceived uint64
	TipCount      uint64
}

// Encode serializes the profile into a zero-padded buffer of
// ProfileAccountSize bytes.
func (p *CreatorProfile) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteBytes(ProfileAccountDiscriminator[:], false); err != nil {
		return nil, fmt.Errorf("failed to write discriminator: %w", err)
	}
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("failed to encode creator profile: %w", err)
	}
	if buf.Len() > ProfileAccountSize {
		return nil, fmt.Errorf("encoded profile is %d bytes, exceeds %d", buf.Len(), ProfileAccountSize)
	}
	out := make([]byte, ProfileAccountSize)
	copy(out, buf.Bytes())
	return out, nil
}

// DecodeProfile parses account data written by Encode. Trailing padding is
// ignored.
func DecodeProfile(data []byte) (*CreatorProfile, error) {
	if len(data) < len(ProfileAccountDiscriminator) {
		return nil, fmt.Errorf("account data too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:8], ProfileAccountDiscriminator[:]) {
		return nil, fmt.Errorf("account is not a creator profile")
	}
	var p CreatorProfile
	if err := bin.NewBorshDecoder(data[8:]).Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode creator profile: %w", err)
	}
	return &p, nil
}
