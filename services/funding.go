package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"desupply-backend/config"
	"desupply-backend/models"

	"gorm.io/gorm"
)

// FundingEngine drives the registered → buyer_accepted → funded → settled
// lifecycle, with funded → defaulted on due-date breach. It owns the
// FundingPosition records and every invoice status transition past
// registration.
//
// Safety model: a per-token mutex serializes transitions on one invoice
// while distinct invoices proceed in parallel, and every status write is a
// compare-and-set on the expected pre-state inside a transaction. The
// external asset transfer is the only blocking call; it runs under the lock
// after the state precheck, so at most one transfer can happen per
// transition even under concurrent callers.
type FundingEngine struct {
	db         *gorm.DB
	assets     AssetLedger
	events     *EventService
	reputation *ReputationService
	policy     config.Policy

	mu    sync.Mutex
	locks map[uint64]*sync.Mutex
}

func NewFundingEngine(db *gorm.DB, assets AssetLedger, events *EventService, reputation *ReputationService, policy config.Policy) *FundingEngine {
	return &FundingEngine{
		db:         db,
		assets:     assets,
		events:     events,
		reputation: reputation,
		policy:     policy,
		locks:      make(map[uint64]*sync.Mutex),
	}
}

func (e *FundingEngine) lockToken(tokenID uint64) func() {
	e.mu.Lock()
	lock, ok := e.locks[tokenID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[tokenID] = lock
	}
	e.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func (e *FundingEngine) loadInvoice(ctx context.Context, tokenID uint64) (*models.Invoice, error) {
	var invoice models.Invoice
	err := e.db.WithContext(ctx).First(&invoice, "token_id = ?", tokenID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

// transfer wraps the asset ledger call with the configured timeout. A hang
// becomes a typed failure instead of an indeterminate invoice.
func (e *FundingEngine) transfer(ctx context.Context, from, to string, amount int64) (string, error) {
	callCtx := ctx
	if e.policy.TransferTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.policy.TransferTimeout)
		defer cancel()
	}

	ref, err := e.assets.Transfer(callCtx, from, to, amount)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", models.ErrTransferTimeout
		}
		return "", fmt.Errorf("%w: %v", models.ErrTransferFailed, err)
	}
	return ref, nil
}

// casStatus moves the invoice status from expected to next, failing if the
// row is no longer in the expected state.
func casStatus(tx *gorm.DB, tokenID uint64, expected, next string) error {
	res := tx.Model(&models.Invoice{}).
		Where("token_id = ? AND status = ?", tokenID, expected).
		Update("status", next)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrInvalidState
	}
	return nil
}

// Accept records the buyer's one-time irrevocable commitment to pay at due
// date. Only the invoice's buyer may accept, and only from registered.
func (e *FundingEngine) Accept(ctx context.Context, tokenID uint64, caller string) (*models.Invoice, error) {
	unlock := e.lockToken(tokenID)
	defer unlock()

	invoice, err := e.loadInvoice(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if caller != invoice.Buyer {
		return nil, models.ErrUnauthorized
	}
	if invoice.Status != models.StatusRegistered {
		return nil, models.ErrInvalidState
	}

	blacklisted, err := e.reputation.IsBlacklisted(ctx, caller)
	if err != nil {
		return nil, err
	}
	if blacklisted {
		return nil, models.ErrBlacklisted
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := casStatus(tx, tokenID, models.StatusRegistered, models.StatusBuyerAccepted); err != nil {
			return err
		}
		_, err := e.events.AppendIn(tx, tokenID, models.EventInvoiceAccepted, map[string]any{
			"tokenId": tokenID,
			"buyer":   caller,
		}, "")
		return err
	})
	if err != nil {
		return nil, err
	}

	invoice.Status = models.StatusBuyerAccepted
	return invoice, nil
}

// Fund purchases the whole invoice: the purchase price moves from the funder
// to the supplier, and the funding position is created atomically with the
// status change. If the transfer fails or times out, nothing is written. Two
// funders racing on the same invoice get exactly one success; the loser sees
// InvalidState at the precheck because the lock serializes them.
func (e *FundingEngine) Fund(ctx context.Context, tokenID uint64, funder string, purchasePrice int64) (*models.FundingPosition, error) {
	unlock := e.lockToken(tokenID)
	defer unlock()

	invoice, err := e.loadInvoice(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if invoice.Status != models.StatusBuyerAccepted {
		return nil, models.ErrInvalidState
	}
	if purchasePrice <= 0 || purchasePrice > invoice.FaceValue {
		return nil, models.ErrInvalidAmount
	}

	blacklisted, err := e.reputation.IsBlacklisted(ctx, funder)
	if err != nil {
		return nil, err
	}
	if blacklisted {
		return nil, models.ErrBlacklisted
	}

	txRef, err := e.transfer(ctx, funder, invoice.Supplier, purchasePrice)
	if err != nil {
		return nil, err
	}

	position := &models.FundingPosition{
		TokenID:       tokenID,
		Funder:        funder,
		PurchasePrice: purchasePrice,
		FaceValue:     invoice.FaceValue,
		DueDate:       invoice.DueDate,
		Status:        models.PositionFunded,
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := casStatus(tx, tokenID, models.StatusBuyerAccepted, models.StatusFunded); err != nil {
			return err
		}
		if err := tx.Create(position).Error; err != nil {
			return err
		}
		_, err := e.events.AppendIn(tx, tokenID, models.EventInvoiceFunded, map[string]any{
			"tokenId":       tokenID,
			"funder":        funder,
			"purchasePrice": purchasePrice,
			"faceValue":     invoice.FaceValue,
			"supplier":      invoice.Supplier,
		}, txRef)
		return err
	})
	if err != nil {
		// The transfer already settled on the asset ledger; losing the
		// position write here would strand it. The lock makes the CAS
		// unraceable, so this only fires on storage failure.
		log.Printf("funding commit failed after transfer %s for token %d: %v", txRef, tokenID, err)
		return nil, err
	}

	return position, nil
}

// Settle pays the funder the face value, never the purchase price. Buyer
// only, funded only. Settlement also rewards all three parties for the
// completed cycle.
func (e *FundingEngine) Settle(ctx context.Context, tokenID uint64, caller string) (*models.FundingPosition, error) {
	unlock := e.lockToken(tokenID)
	defer unlock()

	invoice, err := e.loadInvoice(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if caller != invoice.Buyer {
		return nil, models.ErrUnauthorized
	}
	if invoice.Status != models.StatusFunded {
		return nil, models.ErrInvalidState
	}

	var position models.FundingPosition
	if err := e.db.WithContext(ctx).First(&position, "token_id = ?", tokenID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}

	txRef, err := e.transfer(ctx, invoice.Buyer, position.Funder, position.FaceValue)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := casStatus(tx, tokenID, models.StatusFunded, models.StatusSettled); err != nil {
			return err
		}

		res := tx.Model(&models.FundingPosition{}).
			Where("token_id = ? AND status = ?", tokenID, models.PositionFunded).
			Updates(map[string]interface{}{
				"status":     models.PositionSettled,
				"settled_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.ErrInvalidState
		}

		if _, err := e.events.AppendIn(tx, tokenID, models.EventInvoiceSettled, map[string]any{
			"tokenId":   tokenID,
			"buyer":     invoice.Buyer,
			"funder":    position.Funder,
			"faceValue": position.FaceValue,
		}, txRef); err != nil {
			return err
		}

		// Completed cycle rewards all three parties.
		for _, identity := range []string{invoice.Supplier, invoice.Buyer, position.Funder} {
			if _, err := e.reputation.AdjustIn(tx, identity, e.policy.SettleReward); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("settlement commit failed after transfer %s for token %d: %v", txRef, tokenID, err)
		return nil, err
	}

	position.Status = models.PositionSettled
	position.SettledAt = &now
	return &position, nil
}

// ExpireOverdue sweeps funded invoices past their due date into defaulted
// and penalizes the buyer. One-way: a defaulted invoice never returns to
// funded. Returns the number of invoices defaulted.
func (e *FundingEngine) ExpireOverdue(ctx context.Context) (int, error) {
	var overdue []models.Invoice
	err := e.db.WithContext(ctx).
		Where("status = ? AND due_date < ?", models.StatusFunded, time.Now().UTC()).
		Find(&overdue).Error
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, invoice := range overdue {
		if err := e.expireOne(ctx, invoice.TokenID); err != nil {
			if errors.Is(err, models.ErrInvalidState) {
				// Settled between the sweep query and the lock. Not a default.
				continue
			}
			log.Printf("failed to expire token %d: %v", invoice.TokenID, err)
			continue
		}
		expired++
	}
	return expired, nil
}

func (e *FundingEngine) expireOne(ctx context.Context, tokenID uint64) error {
	unlock := e.lockToken(tokenID)
	defer unlock()

	invoice, err := e.loadInvoice(ctx, tokenID)
	if err != nil {
		return err
	}
	if invoice.Status != models.StatusFunded || invoice.DueDate.After(time.Now().UTC()) {
		return models.ErrInvalidState
	}

	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := casStatus(tx, tokenID, models.StatusFunded, models.StatusDefaulted); err != nil {
			return err
		}

		res := tx.Model(&models.FundingPosition{}).
			Where("token_id = ? AND status = ?", tokenID, models.PositionFunded).
			Update("status", models.PositionDefaulted)
		if res.Error != nil {
			return res.Error
		}

		if _, err := e.events.AppendIn(tx, tokenID, models.EventInvoiceDefaulted, map[string]any{
			"tokenId": tokenID,
			"buyer":   invoice.Buyer,
			"dueDate": invoice.DueDate.UTC().Format(time.RFC3339),
		}, ""); err != nil {
			return err
		}

		_, err := e.reputation.AdjustIn(tx, invoice.Buyer, -e.policy.DefaultPenalty)
		return err
	})
}

// Position returns the funding position for an invoice, if any.
func (e *FundingEngine) Position(ctx context.Context, tokenID uint64) (*models.FundingPosition, error) {
	var position models.FundingPosition
	err := e.db.WithContext(ctx).First(&position, "token_id = ?", tokenID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &position, nil
}
