package models

import (
	"time"
)

// Invoice lifecycle statuses. Transitions are strictly ordered; settled and
// defaulted are terminal.
const (
	StatusPendingVerification = "pending_verification"
	StatusMinted              = "minted"
	StatusRegistered          = "registered"
	StatusBuyerAccepted       = "buyer_accepted"
	StatusFunded              = "funded"
	StatusSettled             = "settled"
	StatusDefaulted           = "defaulted"
)

type Invoice struct {
	TokenID     uint64 `gorm:"primaryKey;autoIncrement" json:"tokenId"`
	InvoiceHash string `gorm:"uniqueIndex;not null" json:"invoiceHash"`

	Supplier      string `gorm:"index;not null" json:"supplier"`
	Buyer         string `gorm:"index;not null" json:"buyer"`
	InvoiceNumber string `gorm:"not null" json:"invoiceNumber"`

	// FaceValue is in the smallest currency unit. Never a float.
	FaceValue int64  `gorm:"not null" json:"faceValue"`
	Currency  string `gorm:"type:varchar(8);default:'INR'" json:"currency"`

	IssueDate time.Time `json:"issueDate"`
	DueDate   time.Time `json:"dueDate"`

	TokenURI     string `json:"tokenUri"`
	FileMetadata string `gorm:"type:text" json:"fileMetadata,omitempty"`

	Status string `gorm:"type:varchar(24);not null;default:'pending_verification'" json:"status"`

	GSTVerified       bool `gorm:"default:false" json:"gstVerified"`
	ERPVerified       bool `gorm:"default:false" json:"erpVerified"`
	LogisticsVerified bool `gorm:"default:false" json:"logisticsVerified"`

	RegisteredAt time.Time `gorm:"autoCreateTime" json:"registeredAt"`
}

// FullyVerified reports whether all three external checks passed.
func (i *Invoice) FullyVerified() bool {
	return i.GSTVerified && i.ERPVerified && i.LogisticsVerified
}
