package nats

import (
	"time"
)

// Settlement event types published on "settlements.{wallet_address}".
const (
	EventTypeSettlementStarted   = "settlement_started"
	EventTypeSettlementSucceeded = "settlement_succeeded"
	EventTypeSettlementFailed    = "settlement_failed"
)

// SettlementEvent represents a settlement lifecycle event published to NATS.
// Each event is published to the subjects of both participants so either
// side can follow the attempt.
type SettlementEvent struct {
	// Event identifiers
	EventType     string `json:"event_type"`
	CorrelationID string `json:"correlation_id"`

	// Participants
	WalletAddress  string `json:"wallet_address"`
	OnRampAddress  string `json:"on_ramp_address"`
	OffRampAddress string `json:"off_ramp_address"`

	// Settlement details
	Amount float64 `json:"amount"`
	TxHash string  `json:"tx_hash,omitempty"`
	Reason string  `json:"reason,omitempty"`

	// Metadata
	PublishedAt time.Time `json:"published_at"`
}
