package models

import "time"

// Account is a settlement-currency balance row backing the token ledger.
// Balance is in the smallest currency unit.
type Account struct {
	Address   string    `gorm:"primaryKey" json:"address"`
	Balance   int64     `gorm:"not null;default:0" json:"balance"`
	UpdatedAt time.Time `json:"updatedAt"`
}
