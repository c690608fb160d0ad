package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventSaleCreated       = "sale.created"
	EventSaleGeocoded      = "sale.geocoded"
	EventSaleStatusChanged = "sale.status_changed"
	EventStatusesSwept     = "sale.statuses_reconciled"
)

// Envelope is the canonical event wrapper published to NATS.
type Envelope struct {
	ID        uuid.UUID       `json:"id"`
	EventType string          `json:"event_type"`
	Version   string          `json:"version"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// SaleCreated is the inbound creation notification. Delivery is at-least-once,
// so handlers must tolerate duplicates.
type SaleCreated struct {
	SaleID    string    `json:"sale_id"`
	Sale      Sale      `json:"sale"`
	Timestamp time.Time `json:"timestamp"`
}

// SaleGeocoded is emitted after a sale's location has been persisted.
type SaleGeocoded struct {
	SaleID    string    `json:"sale_id"`
	Location  Location  `json:"location"`
	Geohash   string    `json:"geohash"`
	FromCache bool      `json:"from_cache"`
	Timestamp time.Time `json:"timestamp"`
}

// SaleStatusChanged is emitted for each committed lifecycle transition.
type SaleStatusChanged struct {
	SaleID    string    `json:"sale_id"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
