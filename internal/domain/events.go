package domain

import (
	"encoding/json"
	"time"
)

// Ledger event types, published on the signal bus and forwarded to the
// notifier and the WebSocket hub.
const (
	EventMarketCreated  = "market_created"
	EventDeposit        = "deposit_received"
	EventBetPlaced      = "bet_placed"
	EventMarketResolved = "market_resolved"
	EventClaimPaid      = "claim_paid"
	EventFeesWithdrawn  = "fees_withdrawn"
	EventError          = "error"
)

// EventChannel is the bus channel carrying all ledger events.
const EventChannel = "wagerpool:events"

// LedgerEvent is the wire shape of a ledger event. Amount fields are decimal
// strings so consumers never lose precision to JSON numbers.
type LedgerEvent struct {
	Type       string    `json:"type"`
	MarketID   int64     `json:"market_id,omitempty"`
	Question   string    `json:"question,omitempty"`
	Deadline   string    `json:"deadline,omitempty"`
	Account    string    `json:"account,omitempty"`
	Side       string    `json:"side,omitempty"`
	Amount     string    `json:"amount,omitempty"`
	Fee        string    `json:"fee,omitempty"`
	OutcomeYes bool      `json:"outcome_yes,omitempty"`
	Message    string    `json:"message,omitempty"`
	At         time.Time `json:"at"`
}

// Encode marshals the event for the bus. Marshal of this shape cannot fail;
// the error return mirrors json.Marshal for callers that check anyway.
func (e LedgerEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}
