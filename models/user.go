package models

import (
	"time"

	"desupply-backend/utils"

	"gorm.io/gorm"
)

// Participant roles.
const (
	RoleSupplier = "supplier"
	RoleBuyer    = "buyer"
	RoleLender   = "lender"
)

type User struct {
	Address     string `gorm:"primaryKey" json:"address"`
	Role        string `gorm:"type:varchar(20);not null" json:"role"` // supplier, buyer or lender
	CompanyName string `json:"companyName"`
	PAN         string `json:"pan"`
	GSTIN       string `gorm:"index" json:"gstin"`
	Phone       string `json:"phone"`
	Email       string `gorm:"index" json:"email"`
	Password    string `gorm:"not null" json:"-"`

	KYCStatus string `gorm:"type:varchar(20);default:'none'" json:"kycStatus"`

	LastLogin *time.Time `json:"lastLogin,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Hash password before creating
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	hashed, err := utils.HashPassword(u.Password)
	if err != nil {
		return err
	}
	u.Password = hashed
	return
}
