package models

import "time"

// ReputationScore is a per-identity counter. Every participant starts at 100.
// Blacklisted latches the first time the score crosses the threshold and is
// only ever cleared administratively, never by this system.
type ReputationScore struct {
	Identity    string    `gorm:"primaryKey" json:"identity"`
	Score       int       `gorm:"not null" json:"score"`
	Blacklisted bool      `gorm:"not null;default:false" json:"blacklisted"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
