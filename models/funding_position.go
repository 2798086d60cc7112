package models

import "time"

// FundingPosition statuses.
const (
	PositionFunded    = "funded"
	PositionSettled   = "settled"
	PositionDefaulted = "defaulted"
)

// FundingPosition records one funder's stake in one invoice. TokenID is the
// primary key, so at most one position can ever exist per invoice.
// PurchasePrice and FaceValue are frozen at funding time; settlement always
// pays FaceValue to the funder.
type FundingPosition struct {
	TokenID       uint64 `gorm:"primaryKey" json:"tokenId"`
	Funder        string `gorm:"index;not null" json:"funder"`
	PurchasePrice int64  `gorm:"not null" json:"purchasePrice"`
	FaceValue     int64  `gorm:"not null" json:"faceValue"`

	FundedAt time.Time `gorm:"autoCreateTime" json:"fundedAt"`
	DueDate  time.Time `json:"dueDate"`

	Status    string     `gorm:"type:varchar(16);not null;default:'funded'" json:"status"`
	SettledAt *time.Time `json:"settledAt,omitempty"`
}
