package nats

import (
	"fmt"
	"time"
)

// TipEvent is published when a tip's confirmation status changes.
// It is published to the subject "tips.{recipient}" in JetStream.
type TipEvent struct {
	// Tip identifiers
	Signature string `json:"signature"`
	TipID     string `json:"tip_id,omitempty"`

	// Parties
	Recipient string  `json:"recipient"`
	Sender    string  `json:"sender"`
	Handle    *string `json:"handle,omitempty"`

	// Tip details, amount in the token's smallest unit
	Amount int64  `json:"amount"`
	Status string `json:"status"` // pending, confirmed, failed
	Reason string `json:"reason,omitempty"`
	Kind   string `json:"kind,omitempty"`
	Slot   uint64 `json:"slot,omitempty"`

	// Metadata
	PublishedAt time.Time `json:"published_at"`
}

// Subject returns the subject the event is published to.
func (e *TipEvent) Subject() string {
	return SubjectFor(e.Recipient)
}

// SubjectFor returns the subject for a recipient, or the wildcard for all
// recipients when address is empty.
func SubjectFor(address string) string {
	if address == "" {
		return StreamSubjects
	}
	return fmt.Sprintf("tips.%s", address)
}
