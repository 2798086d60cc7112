package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"desupply-backend/config"
	"desupply-backend/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an isolated in-memory database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Invoice{},
		&models.FundingPosition{},
		&models.ReputationScore{},
		&models.Event{},
		&models.Account{},
		&models.PaymentReminderLog{},
	))
	return db
}

func testPolicy() config.Policy {
	return config.Policy{
		SettleReward:       10,
		DefaultPenalty:     25,
		BlacklistThreshold: 0,
		TransferTimeout:    2 * time.Second,
		OracleTimeout:      2 * time.Second,
	}
}

// testLedger bundles the wired components most tests need.
type testLedger struct {
	db         *gorm.DB
	events     *EventService
	reputation *ReputationService
	registry   *RegistryService
	assets     *MemoryAssetLedger
	engine     *FundingEngine
}

func newTestLedger(t *testing.T) *testLedger {
	t.Helper()

	db := newTestDB(t)
	events := NewEventService(db)
	reputation := NewReputationService(db, testPolicy().BlacklistThreshold)
	registry := NewRegistryService(db, events, reputation)
	assets := NewMemoryAssetLedger()
	engine := NewFundingEngine(db, assets, events, reputation, testPolicy())

	return &testLedger{
		db:         db,
		events:     events,
		reputation: reputation,
		registry:   registry,
		assets:     assets,
		engine:     engine,
	}
}

const (
	testSupplier = "0xSupplier"
	testBuyer    = "0xBuyer"
	testLender   = "0xLender"
)

func testDraft(invoiceNumber string) models.InvoiceDraft {
	return models.InvoiceDraft{
		Supplier:      testSupplier,
		Buyer:         testBuyer,
		InvoiceNumber: invoiceNumber,
		Amount:        50000,
		Currency:      "USDC",
		GSTIN:         "27AAPFU0939F1ZV",
		IssueDate:     time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		DueDate:       time.Now().UTC().AddDate(0, 0, 30),
	}
}

// mintRegistered mints a draft and registers it for funding.
func (tl *testLedger) mintRegistered(t *testing.T, invoiceNumber string) *models.Invoice {
	t.Helper()

	draft := testDraft(invoiceNumber)
	invoice, err := tl.registry.Mint(context.Background(), draft, "")
	require.NoError(t, err)

	invoice, err = tl.registry.RegisterForFunding(context.Background(), invoice.TokenID, invoice.FaceValue, invoice.Buyer, invoice.DueDate)
	require.NoError(t, err)
	return invoice
}

// mintAccepted additionally records the buyer's acceptance.
func (tl *testLedger) mintAccepted(t *testing.T, invoiceNumber string) *models.Invoice {
	t.Helper()

	invoice := tl.mintRegistered(t, invoiceNumber)
	invoice, err := tl.engine.Accept(context.Background(), invoice.TokenID, testBuyer)
	require.NoError(t, err)
	return invoice
}
