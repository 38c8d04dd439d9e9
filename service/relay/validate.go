package relay

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/brojonat/flowtip/service/failure"
	"github.com/gagliardetto/solana-go"
)

const (
	maxAddressLength = 100 // base58 keys are at most 44 chars
	maxMemoLength    = 256
)

// base58 alphabet: no 0, O, I or l
var validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)

var sqlPatterns = []string{"drop ", "delete ", "insert ", "update ", "select ", "--", "/*", "*/", ";"}

// ParseAddress screens and decodes a base58 account key. field names the
// input in the error message.
func ParseAddress(field, address string) (solana.PublicKey, error) {
	if address == "" {
		return solana.PublicKey{}, failure.New(failure.InvalidInput, "%s is required", field)
	}
	if len(address) > maxAddressLength {
		return solana.PublicKey{}, failure.New(failure.InvalidInput, "%s too long: maximum length is %d characters", field, maxAddressLength)
	}
	if hasControl(address) {
		return solana.PublicKey{}, failure.New(failure.InvalidInput, "invalid characters in %s: control characters not allowed", field)
	}

	lower := strings.ToLower(address)
	for _, pattern := range sqlPatterns {
		if strings.Contains(lower, pattern) {
			return solana.PublicKey{}, failure.New(failure.InvalidInput, "invalid characters in %s: suspicious pattern detected", field)
		}
	}

	if !validAddressRegex.MatchString(address) {
		return solana.PublicKey{}, failure.New(failure.InvalidInput, "invalid %s format: must contain only valid base58 characters", field)
	}

	pk, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return solana.PublicKey{}, failure.Wrap(err, failure.InvalidInput, "invalid "+field)
	}
	return pk, nil
}

func validateMemo(memo string) error {
	if len(memo) > maxMemoLength {
		return failure.New(failure.InvalidInput, "memo too long: maximum length is %d bytes", maxMemoLength)
	}
	if hasControl(memo) {
		return failure.New(failure.InvalidInput, "invalid characters in memo: control characters not allowed")
	}
	return nil
}

func hasControl(s string) bool {
	for _, r := range s {
		if r == 0 || unicode.IsControl(r) {
			return true
		}
	}
	return false
}
