// Package program models the FlowTip creator profile program: its account
// layout, instruction encoding, error codes and state transitions.
package program

import (
	"crypto/sha256"

	"github.com/gagliardetto/solana-go"
)

// DefaultProgramID is the deployed FlowTip program.
var DefaultProgramID = solana.MustPublicKeyFromBase58("2ZxirQjK8vJ5yvGWbX3XGEybE6wBiFFCBzPwJc9V3fhm")

const (
	initializeProfileName = "initialize_creator_profile"
	sendTipName           = "send_tip"
	profileAccountName    = "CreatorProfile"
	tipSentEventName      = "TipSent"
)

// Discriminator is the 8-byte prefix identifying an instruction, account or
// event type.
type Discriminator [8]byte

func discriminator(namespace, name string) Discriminator {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var d Discriminator
	copy(d[:], sum[:8])
	return d
}

var (
	InitializeProfileDiscriminator = discriminator("global", initializeProfileName)
	SendTipDiscriminator           = discriminator("global", sendTipName)
	ProfileAccountDiscriminator    = discriminator("account", profileAccountName)
	TipSentEventDiscriminator      = discriminator("event", tipSentEventName)
)
