// Package events carries ledger events from the append-only log to
// subscribers: in-process websocket clients and the external message buses.
package events

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/kramik-ledger-api/internal/models"
)

// Message is the bus representation of a persisted ledger event.
type Message struct {
	Source      string          `json:"source"`
	EventID     string          `json:"event_id"`
	BlockNumber uint64          `json:"block_number"`
	TxHash      string          `json:"tx_hash"`
	LogIndex    int             `json:"log_index"`
	Contract    string          `json:"contract"`
	Name        string          `json:"name"`
	Address     string          `json:"address"`
	Payload     json.RawMessage `json:"payload"`
	EmittedAt   time.Time       `json:"emitted_at"`
}

// NewMessage converts a stored event into a bus message stamped with the source node.
func NewMessage(event models.LedgerEvent, source string) Message {
	return Message{
		Source:      source,
		EventID:     event.EventID,
		BlockNumber: event.BlockNumber,
		TxHash:      event.TxHash,
		LogIndex:    event.LogIndex,
		Contract:    event.Contract,
		Name:        event.Name,
		Address:     event.Address,
		Payload:     json.RawMessage(event.Payload),
		EmittedAt:   event.EmittedAt,
	}
}
