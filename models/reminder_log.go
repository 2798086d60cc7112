// models/reminder_log.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentReminderLog records one due-date payment reminder sent to a buyer.
type PaymentReminderLog struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key"`
	TokenID      uint64    `gorm:"index;not null"`
	Buyer        string    `gorm:"index;not null"`
	Message      string    `gorm:"type:text"`
	Status       string    `gorm:"type:varchar(20)"` // sent, failed
	ErrorMessage string    `gorm:"type:text"`
	Channel      string    `gorm:"type:varchar(20)"` // whatsapp, sms
	SentAt       time.Time
}

func (r *PaymentReminderLog) BeforeCreate(tx *gorm.DB) (err error) {
	r.ID = uuid.New()
	return
}
