package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/kramik-ledger-api/internal/models"
)

// EventListRequest filters the event log.
type EventListRequest struct {
	Address string `validate:"omitempty,eth_addr"`
	Name    string `validate:"omitempty,max=64,alphanum"`
	After   uint
	Limit   int `validate:"gte=0,lte=500"`
}

// EventResponse serializes a ledger event.
type EventResponse struct {
	ID          uint            `json:"id"`
	EventID     string          `json:"event_id"`
	BlockNumber uint64          `json:"block_number"`
	TxHash      string          `json:"tx_hash"`
	LogIndex    int             `json:"log_index"`
	Contract    string          `json:"contract"`
	Name        string          `json:"name"`
	Address     string          `json:"address,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	EmittedAt   time.Time       `json:"emitted_at"`
	Published   bool            `json:"published"`
}

// NewEventResponses maps stored events.
func NewEventResponses(events []models.LedgerEvent) []EventResponse {
	responses := make([]EventResponse, 0, len(events))
	for _, event := range events {
		responses = append(responses, EventResponse{
			ID:          event.ID,
			EventID:     event.EventID,
			BlockNumber: event.BlockNumber,
			TxHash:      event.TxHash,
			LogIndex:    event.LogIndex,
			Contract:    event.Contract,
			Name:        event.Name,
			Address:     event.Address,
			Payload:     json.RawMessage(event.Payload),
			EmittedAt:   event.EmittedAt,
			Published:   event.PublishedAt != nil,
		})
	}
	return responses
}

// EventListResponse is one page of the event log.
type EventListResponse struct {
	Items  []EventResponse `json:"items"`
	NextID uint            `json:"next_id"`
}
