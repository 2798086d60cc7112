package services

import (
	"context"

	"desupply-backend/models"

	"gorm.io/gorm"
)

// EventService is the append-only audit log. Rows are written once per
// lifecycle transition and never updated or deleted.
type EventService struct {
	db *gorm.DB
}

func NewEventService(db *gorm.DB) *EventService {
	return &EventService{db: db}
}

// Append writes an event outside of any caller transaction.
func (s *EventService) Append(ctx context.Context, tokenID uint64, eventType string, payload any, txRef string) (*models.Event, error) {
	return s.AppendIn(s.db.WithContext(ctx), tokenID, eventType, payload, txRef)
}

// AppendIn writes an event inside the caller's transaction so the audit row
// commits atomically with the transition it records.
func (s *EventService) AppendIn(tx *gorm.DB, tokenID uint64, eventType string, payload any, txRef string) (*models.Event, error) {
	event, err := models.NewEvent(tokenID, eventType, payload, txRef)
	if err != nil {
		return nil, err
	}
	if err := tx.Create(event).Error; err != nil {
		return nil, err
	}
	return event, nil
}

// ByToken returns the event history for an invoice, newest first.
func (s *EventService) ByToken(ctx context.Context, tokenID uint64) ([]models.Event, error) {
	var events []models.Event
	err := s.db.WithContext(ctx).
		Where("token_id = ?", tokenID).
		Order("id DESC").
		Find(&events).Error
	return events, err
}
