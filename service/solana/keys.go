package solana

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// LoadPrivateKey accepts either a base58 encoded 64-byte secret key or a path
// to a solana-keygen JSON file.
func LoadPrivateKey(value string) (solana.PrivateKey, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("private key is empty")
	}

	if strings.HasPrefix(value, "[") {
		return PrivateKeyFromJSON([]byte(value))
	}

	if _, err := os.Stat(value); err == nil {
		key, err := solana.PrivateKeyFromSolanaKeygenFile(value)
		if err != nil {
			return nil, fmt.Errorf("failed to read keygen file: %w", err)
		}
		return key, checkKeypair(key)
	}

	key, err := solana.PrivateKeyFromBase58(value)
	if err != nil {
		return nil, fmt.Errorf("invalid base58 private key: %w", err)
	}
	return key, checkKeypair(key)
}

// PrivateKeyFromJSON parses the byte-array format written by solana-keygen.
func PrivateKeyFromJSON(data []byte) (solana.PrivateKey, error) {
	var values []int
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("invalid keypair JSON: %w", err)
	}
	key := make([]byte, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("invalid keypair JSON: byte %d out of range", i)
		}
		key[i] = byte(v)
	}
	pk := solana.PrivateKey(key)
	return pk, checkKeypair(pk)
}

// checkKeypair verifies that the trailing 32 bytes are the public half of the
// leading seed.
func checkKeypair(key solana.PrivateKey) error {
	if len(key) != ed25519.PrivateKeySize {
		return fmt.Errorf("invalid keypair length: %d bytes (want %d)", len(key), ed25519.PrivateKeySize)
	}
	derived := ed25519.NewKeyFromSeed(key[:ed25519.SeedSize])
	if !bytes.Equal(derived[ed25519.SeedSize:], key[ed25519.SeedSize:]) {
		return fmt.Errorf("invalid keypair: public key does not match secret")
	}
	return nil
}
