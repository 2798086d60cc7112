package models

import (
	"encoding/json"
	"time"
)

// Event types emitted by the lifecycle ledger.
const (
	EventInvoiceMinted     = "INVOICE_MINTED"
	EventInvoiceRegistered = "INVOICE_REGISTERED"
	EventInvoiceAccepted   = "INVOICE_ACCEPTED"
	EventInvoiceFunded     = "INVOICE_FUNDED"
	EventInvoiceSettled    = "INVOICE_SETTLED"
	EventInvoiceDefaulted  = "INVOICE_DEFAULTED"
)

// Event is an append-only audit record. There is no update or delete path;
// rows are written once per lifecycle transition.
type Event struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	TokenID   uint64    `gorm:"index;not null" json:"tokenId"`
	EventType string    `gorm:"type:varchar(32);not null" json:"eventType"`
	Payload   string    `gorm:"type:text" json:"payload"`
	TxRef     string    `json:"txRef"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// NewEvent marshals the payload snapshot into an Event row.
func NewEvent(tokenID uint64, eventType string, payload any, txRef string) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		TokenID:   tokenID,
		EventType: eventType,
		Payload:   string(raw),
		TxRef:     txRef,
	}, nil
}
