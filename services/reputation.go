package services

import (
	"context"
	"errors"

	"desupply-backend/models"

	"gorm.io/gorm"
)

// StartingScore is every identity's initial reputation.
const StartingScore = 100

// ReputationService is a pure counter with a blacklist threshold predicate.
// Reward and penalty magnitudes are the caller's policy, not this
// component's.
type ReputationService struct {
	db        *gorm.DB
	threshold int
}

func NewReputationService(db *gorm.DB, threshold int) *ReputationService {
	return &ReputationService{db: db, threshold: threshold}
}

// Get returns the identity's score, defaulting to the starting score for
// identities that have never been adjusted. The default is not persisted.
func (s *ReputationService) Get(ctx context.Context, identity string) (*models.ReputationScore, error) {
	var score models.ReputationScore
	err := s.db.WithContext(ctx).First(&score, "identity = ?", identity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.ReputationScore{Identity: identity, Score: StartingScore}, nil
		}
		return nil, err
	}
	return &score, nil
}

// Adjust applies delta to the identity's score. Blacklisted latches the
// first time the score drops to or below the threshold; it is never cleared
// here.
func (s *ReputationService) Adjust(ctx context.Context, identity string, delta int) (*models.ReputationScore, error) {
	var out *models.ReputationScore
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		score, err := s.AdjustIn(tx, identity, delta)
		if err != nil {
			return err
		}
		out = score
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AdjustIn applies the adjustment inside the caller's transaction, so a
// settlement reward or default penalty commits atomically with the
// transition that caused it. The increment is a single UPDATE expression,
// never a read-modify-write: settlements of distinct invoices sharing a
// party run in parallel transactions, and each adjustment must survive the
// other.
func (s *ReputationService) AdjustIn(tx *gorm.DB, identity string, delta int) (*models.ReputationScore, error) {
	res := tx.Model(&models.ReputationScore{}).
		Where("identity = ?", identity).
		Update("score", gorm.Expr("score + ?", delta))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		err := tx.Create(&models.ReputationScore{Identity: identity, Score: StartingScore + delta}).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost the insert race; the row exists now.
			err = tx.Model(&models.ReputationScore{}).
				Where("identity = ?", identity).
				Update("score", gorm.Expr("score + ?", delta)).Error
		}
		if err != nil {
			return nil, err
		}
	}

	// Latch server-side so the threshold is checked against the current
	// score, not a stale read.
	if err := tx.Model(&models.ReputationScore{}).
		Where("identity = ? AND score <= ? AND blacklisted = ?", identity, s.threshold, false).
		Update("blacklisted", true).Error; err != nil {
		return nil, err
	}

	var score models.ReputationScore
	if err := tx.First(&score, "identity = ?", identity).Error; err != nil {
		return nil, err
	}
	return &score, nil
}

// IsBlacklisted reports whether the identity has crossed the threshold.
func (s *ReputationService) IsBlacklisted(ctx context.Context, identity string) (bool, error) {
	score, err := s.Get(ctx, identity)
	if err != nil {
		return false, err
	}
	return score.Blacklisted, nil
}
