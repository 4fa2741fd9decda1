package ledger

import "time"

// OffRampIntent is a standing request recorded on the ledger by a party who
// wants to cash an on-chain balance out to fiat. The ledger owns intents;
// this service only reads them.
type OffRampIntent struct {
	Address        string    `json:"address"`
	Email          string    `json:"email"`
	AmountReserved string    `json:"amount_reserved"` // wei, decimal string
	QueuedAt       time.Time `json:"queued_at"`
}

// Receipt statuses reported by the gateway for a submitted transaction.
const (
	ReceiptStatusPending = "pending"
	ReceiptStatusSuccess = "success"
	ReceiptStatusFailed  = "failed"
)

// Receipt is the confirmation state of a submitted ledger transaction.
type Receipt struct {
	TxHash       string  `json:"tx_hash"`
	Status       string  `json:"status"`
	RevertReason *string `json:"revert_reason,omitempty"`
}

// OnRampParams contains the parameters for the on-ramp settlement
// instruction. Signature and Timestamp come from the payment attestation;
// the contract verifies them before moving balance.
type OnRampParams struct {
	Amount            float64 `json:"amount"` // fiat amount paid
	OffRamperAddress  string  `json:"off_ramper_address"`
	SenderEmail       string  `json:"sender_email"`
	ReceiverEmail     string  `json:"receiver_email"`
	TransactionAmount float64 `json:"transaction_amount"` // on-chain amount to transfer
	Signature         string  `json:"signature"`
	Timestamp         string  `json:"timestamp"`
}
