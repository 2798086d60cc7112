package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"desupply-backend/models"

	"gorm.io/gorm"
)

// RegistryService owns the canonical invoice records: it assigns token ids,
// enforces content-hash uniqueness and performs the minted → registered
// transition.
type RegistryService struct {
	db         *gorm.DB
	events     *EventService
	reputation *ReputationService
}

func NewRegistryService(db *gorm.DB, events *EventService, reputation *ReputationService) *RegistryService {
	return &RegistryService{db: db, events: events, reputation: reputation}
}

// InvoiceHash is the deterministic digest identifying the economic event.
// Encoding: the six economic fields joined with '\n' in a fixed order:
// supplier, buyer, invoice number, amount in smallest units (base 10),
// due date and issue date as UTC yyyy-mm-dd. Stable across processes, so the
// same invoice always collides with itself.
func InvoiceHash(draft models.InvoiceDraft) string {
	canonical := strings.Join([]string{
		draft.Supplier,
		draft.Buyer,
		draft.InvoiceNumber,
		strconv.FormatInt(draft.Amount, 10),
		draft.DueDate.UTC().Format("2006-01-02"),
		draft.IssueDate.UTC().Format("2006-01-02"),
	}, "\n")
	sum := sha256.Sum256([]byte(canonical))
	return "0x" + hex.EncodeToString(sum[:])
}

// Mint persists a verified draft as a minted invoice and assigns its token
// id. Precondition: the draft has passed the verification gate; the three
// verification flags are recorded as true. A duplicate hash is rejected
// without creating a new identity.
func (s *RegistryService) Mint(ctx context.Context, draft models.InvoiceDraft, fileMetadata string) (*models.Invoice, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	blacklisted, err := s.reputation.IsBlacklisted(ctx, draft.Supplier)
	if err != nil {
		return nil, err
	}
	if blacklisted {
		return nil, models.ErrBlacklisted
	}

	currency := draft.Currency
	if currency == "" {
		currency = "INR"
	}
	tokenURI := draft.MetadataURI
	if tokenURI == "" {
		tokenURI = "ipfs://mock/" + draft.InvoiceNumber
	}

	invoice := &models.Invoice{
		InvoiceHash:       InvoiceHash(draft),
		Supplier:          draft.Supplier,
		Buyer:             draft.Buyer,
		InvoiceNumber:     draft.InvoiceNumber,
		FaceValue:         draft.Amount,
		Currency:          currency,
		IssueDate:         draft.IssueDate,
		DueDate:           draft.DueDate,
		TokenURI:          tokenURI,
		FileMetadata:      fileMetadata,
		Status:            models.StatusMinted,
		GSTVerified:       true,
		ERPVerified:       true,
		LogisticsVerified: true,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(invoice).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return models.ErrDuplicateInvoice
			}
			return err
		}

		_, err := s.events.AppendIn(tx, invoice.TokenID, models.EventInvoiceMinted, map[string]any{
			"supplier":      invoice.Supplier,
			"buyer":         invoice.Buyer,
			"invoiceNumber": invoice.InvoiceNumber,
			"amount":        invoice.FaceValue,
			"tokenId":       invoice.TokenID,
			"invoiceHash":   invoice.InvoiceHash,
		}, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// RegisterForFunding moves a minted invoice into the fundable state. The
// parameters must match the minted record; the compare-and-set on status
// makes a second registration fail rather than silently succeed.
func (s *RegistryService) RegisterForFunding(ctx context.Context, tokenID uint64, faceValue int64, buyer string, dueDate time.Time) (*models.Invoice, error) {
	var invoice models.Invoice

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&invoice, "token_id = ?", tokenID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.ErrNotFound
			}
			return err
		}

		if invoice.Status != models.StatusMinted {
			return models.ErrAlreadyRegistered
		}
		if faceValue != invoice.FaceValue || buyer != invoice.Buyer || !sameDay(dueDate, invoice.DueDate) {
			return models.ErrValidation
		}

		res := tx.Model(&models.Invoice{}).
			Where("token_id = ? AND status = ?", tokenID, models.StatusMinted).
			Update("status", models.StatusRegistered)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.ErrAlreadyRegistered
		}
		invoice.Status = models.StatusRegistered

		_, err := s.events.AppendIn(tx, tokenID, models.EventInvoiceRegistered, map[string]any{
			"tokenId": tokenID,
			"amount":  faceValue,
			"buyer":   buyer,
			"dueDate": dueDate.UTC().Format(time.RFC3339),
		}, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// sameDay compares due dates at day precision in UTC, the same granularity
// the invoice hash encodes them with.
func sameDay(a, b time.Time) bool {
	return a.UTC().Format("2006-01-02") == b.UTC().Format("2006-01-02")
}

// Get returns the canonical invoice record.
func (s *RegistryService) Get(ctx context.Context, tokenID uint64) (*models.Invoice, error) {
	var invoice models.Invoice
	err := s.db.WithContext(ctx).First(&invoice, "token_id = ?", tokenID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

// ListVerified returns fully verified invoices, newest first. This is the
// marketplace projection; it carries no business logic.
func (s *RegistryService) ListVerified(ctx context.Context) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := s.db.WithContext(ctx).
		Where("gst_verified = ? AND erp_verified = ? AND logistics_verified = ?", true, true, true).
		Order("registered_at DESC").
		Find(&invoices).Error
	return invoices, err
}
