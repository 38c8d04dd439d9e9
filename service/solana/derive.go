package solana

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/brojonat/flowtip/service/failure"
	"github.com/gagliardetto/solana-go"
)

const (
	// ProfileSeed prefixes every creator profile address derivation.
	ProfileSeed = "creator_profile"

	// MaxHandleLength is the longest handle in bytes. It is also the longest
	// seed the runtime accepts.
	MaxHandleLength = 32
)

var handleRegex = regexp.MustCompile(`^[a-z0-9_]+$`)

// ErrNoValidBump is returned when no bump in 255..0 yields an off-curve
// address. It indicates a configuration problem and is never retried.
var ErrNoValidBump = errors.New("no valid bump for program address")

// ValidateHandle checks the handle bounds and charset.
func ValidateHandle(handle string) error {
	if handle == "" {
		return failure.New(failure.InvalidInput, "handle cannot be empty")
	}
	if len(handle) > MaxHandleLength {
		return failure.New(failure.InvalidInput, "handle too long: %d bytes (max %d)", len(handle), MaxHandleLength)
	}
	if !handleRegex.MatchString(handle) {
		return failure.New(failure.InvalidInput, "handle %q may only contain a-z, 0-9 and _", handle)
	}
	return nil
}

// ProfileSeeds returns the seeds for a handle without the bump.
func ProfileSeeds(handle string) [][]byte {
	return [][]byte{[]byte(ProfileSeed), []byte(handle)}
}

// DeriveProfileAddress finds the canonical profile address for handle under
// programID along with its bump. It is pure: the same inputs always produce
// the same output.
func DeriveProfileAddress(programID solana.PublicKey, handle string) (solana.PublicKey, uint8, error) {
	if err := ValidateHandle(handle); err != nil {
		return solana.PublicKey{}, 0, err
	}
	addr, bump, err := solana.FindProgramAddress(ProfileSeeds(handle), programID)
	if err != nil {
		return solana.PublicKey{}, 0, failure.Wrap(
			fmt.Errorf("%w: %v", ErrNoValidBump, err),
			failure.Internal,
			fmt.Sprintf("failed to derive profile address for %q", handle),
		)
	}
	return addr, bump, nil
}

// VerifyProfileAddress recreates the address from handle and bump and checks
// it against addr.
func VerifyProfileAddress(programID solana.PublicKey, handle string, bump uint8, addr solana.PublicKey) error {
	if err := ValidateHandle(handle); err != nil {
		return err
	}
	seeds := append(ProfileSeeds(handle), []byte{bump})
	derived, err := solana.CreateProgramAddress(seeds, programID)
	if err != nil {
		return failure.Wrap(err, failure.AddressMismatch, "bump does not produce a valid program address")
	}
	if !derived.Equals(addr) {
		return failure.New(failure.AddressMismatch, "profile address %s does not match derivation %s", addr, derived)
	}
	return nil
}

// DeriveTokenAccount returns the associated token account of owner for mint.
// owner may be a program-derived address.
func DeriveTokenAccount(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, failure.Wrap(
			fmt.Errorf("%w: %v", ErrNoValidBump, err),
			failure.Internal,
			"failed to derive token account",
		)
	}
	return addr, nil
}
