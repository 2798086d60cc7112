package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"desupply-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func balance(t *testing.T, tl *testLedger, address string) int64 {
	t.Helper()
	b, err := tl.assets.BalanceOf(context.Background(), address)
	require.NoError(t, err)
	return b
}

func TestAccept(t *testing.T) {
	t.Run("only the buyer may accept", func(t *testing.T) {
		tl := newTestLedger(t)
		invoice := tl.mintRegistered(t, "INV-001")

		_, err := tl.engine.Accept(context.Background(), invoice.TokenID, testLender)
		assert.ErrorIs(t, err, models.ErrUnauthorized)
	})

	t.Run("moves registered to buyer_accepted", func(t *testing.T) {
		tl := newTestLedger(t)
		invoice := tl.mintRegistered(t, "INV-001")

		accepted, err := tl.engine.Accept(context.Background(), invoice.TokenID, testBuyer)
		require.NoError(t, err)
		assert.Equal(t, models.StatusBuyerAccepted, accepted.Status)
	})

	t.Run("acceptance is one-time", func(t *testing.T) {
		tl := newTestLedger(t)
		invoice := tl.mintRegistered(t, "INV-001")

		_, err := tl.engine.Accept(context.Background(), invoice.TokenID, testBuyer)
		require.NoError(t, err)

		_, err = tl.engine.Accept(context.Background(), invoice.TokenID, testBuyer)
		assert.ErrorIs(t, err, models.ErrInvalidState)
	})

	t.Run("unknown token", func(t *testing.T) {
		tl := newTestLedger(t)
		_, err := tl.engine.Accept(context.Background(), 42, testBuyer)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("blacklisted buyer is rejected", func(t *testing.T) {
		tl := newTestLedger(t)
		invoice := tl.mintRegistered(t, "INV-001")

		_, err := tl.reputation.Adjust(context.Background(), testBuyer, -100)
		require.NoError(t, err)

		_, err = tl.engine.Accept(context.Background(), invoice.TokenID, testBuyer)
		assert.ErrorIs(t, err, models.ErrBlacklisted)
	})
}

func TestFund(t *testing.T) {
	t.Run("pays the supplier the purchase price", func(t *testing.T) {
		tl := newTestLedger(t)
		invoice := tl.mintAccepted(t, "INV-001")
		require.NoError(t, tl.assets.Mint(context.Background(), testLender, 100000))

		position, err := tl.engine.Fund(context.Background(), invoice.TokenID, testLender, 46000)
		require.NoError(t, err)

		assert.Equal(t, int64(46000), position.PurchasePrice)
		assert.Equal(t, int64(50000), position.FaceValue)
		assert.Equal(t, models.PositionFunded, position.Status)
		assert.Equal(t, int64(46000), balance(t, tl, testSupplier))
		assert.Equal(t, int64(54000), balance(t, tl, testLender))

		updated, err := tl.registry.Get(context.Background(), invoice.TokenID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusFunded, updated.Status)
	})

	t.Run("requires buyer acceptance first", func(t *testing.T) {
		tl := newTestLedger(t)
		invoice := tl.mintRegistered(t, "INV-001")
		require.NoError(t, tl.assets.Mint(context.Background(), testLender, 100000))

		_, err := tl.engine.Fund(context.Background(), invoice.TokenID, testLender, 46000)
		assert.ErrorIs(t, err, models.ErrInvalidState)
	})

	t.Run("rejects a premium purchase price with no state change", func(t *testing.T) {
		tl := newTestLedger(t)
		invoice := tl.mintAccepted(t, "INV-001")
		require.NoError(t, tl.assets.Mint(context.Background(), testLender, 100000))

		_, err := tl.engine.Fund(context.Background(), invoice.TokenID, testLender, 50001)
		assert.ErrorIs(t, err, models.ErrInvalidAmount)

		_, err = tl.engine.Fund(context.Background(), invoice.TokenID, testLender, 0)
		assert.ErrorIs(t, err, models.ErrInvalidAmount)

		updated, err := tl.registry.Get(context.Background(), invoice.TokenID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusBuyerAccepted, updated.Status)
		assert.Equal(t, int64(100000), balance(t, tl, testLender))
	})

	t.Run("funding at par is allowed", func(t *testing.T) {
		tl := newTestLedger(t)
		invoice := tl.mintAccepted(t, "INV-001")
		require.NoError(t, tl.assets.Mint(context.Background(), testLender, 100000))

		position, err := tl.engine.Fund(context.Background(), invoice.TokenID, testLender, 50000)
		require.NoError(t, err)
		assert.Equal(t, int64(50000), position.PurchasePrice)
	})

	t.Run("transfer failure leaves the invoice fundable", func(t *testing.T) {
		tl := newTestLedger(t)
		invoice := tl.mintAccepted(t, "INV-001")
		require.NoError(t, tl.assets.Mint(context.Background(), testLender, 100000))

		tl.assets.FailNext(errors.New("rpc unavailable"))
		_, err := tl.engine.Fund(context.Background(), invoice.TokenID, testLender, 46000)
		assert.ErrorIs(t, err, models.ErrTransferFailed)

		updated, err := tl.registry.Get(context.Background(), invoice.TokenID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusBuyerAccepted, updated.Status)

		_, err = tl.engine.Position(context.Background(), invoice.TokenID)
		assert.ErrorIs(t, err, models.ErrNotFound)

		// Safe to retry after the failure
		position, err := tl.engine.Fund(context.Background(), invoice.TokenID, testLender, 46000)
		require.NoError(t, err)
		assert.Equal(t, models.PositionFunded, position.Status)
	})

	t.Run("transfer hang becomes a timeout with no partial state", func(t *testing.T) {
		tl := newTestLedger(t)
		tl.engine.policy.TransferTimeout = 50 * time.Millisecond
		invoice := tl.mintAccepted(t, "INV-001")
		require.NoError(t, tl.assets.Mint(context.Background(), testLender, 100000))

		tl.assets.SetDelay(500 * time.Millisecond)
		_, err := tl.engine.Fund(context.Background(), invoice.TokenID, testLender, 46000)
		assert.ErrorIs(t, err, models.ErrTransferTimeout)

		updated, err := tl.registry.Get(context.Background(), invoice.TokenID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusBuyerAccepted, updated.Status)
		assert.Equal(t, int64(100000), balance(t, tl, testLender))
	})

	t.Run("insufficient balance surfaces as transfer failure", func(t *testing.T) {
		tl := newTestLedger(t)
		invoice := tl.mintAccepted(t, "INV-001")
		require.NoError(t, tl.assets.Mint(context.Background(), testLender, 1000))

		_, err := tl.engine.Fund(context.Background(), invoice.TokenID, testLender, 46000)
		assert.ErrorIs(t, err, models.ErrTransferFailed)
	})

	t.Run("blacklisted funder is rejected", func(t *testing.T) {
		tl := newTestLedger(t)
		invoice := tl.mintAccepted(t, "INV-001")
		require.NoError(t, tl.assets.Mint(context.Background(), testLender, 100000))

		_, err := tl.reputation.Adjust(context.Background(), testLender, -100)
		require.NoError(t, err)

		_, err = tl.engine.Fund(context.Background(), invoice.TokenID, testLender, 46000)
		assert.ErrorIs(t, err, models.ErrBlacklisted)
	})

	t.Run("concurrent funders get exactly one position", func(t *testing.T) {
		tl := newTestLedger(t)
		invoice := tl.mintAccepted(t, "INV-001")

		otherLender := "0xLender2"
		require.NoError(t, tl.assets.Mint(context.Background(), testLender, 100000))
		require.NoError(t, tl.assets.Mint(context.Background(), otherLender, 100000))

		var wg sync.WaitGroup
		results := make([]error, 2)
		funders := []string{testLender, otherLender}
		for i, funder := range funders {
			wg.Add(1)
			go func(i int, funder string) {
				defer wg.Done()
				_, results[i] = tl.engine.Fund(context.Background(), invoice.TokenID, funder, 46000)
			}(i, funder)
		}
		wg.Wait()

		winners := 0
		for _, err := range results {
			if err == nil {
				winners++
			} else {
				assert.ErrorIs(t, err, models.ErrInvalidState)
			}
		}
		assert.Equal(t, 1, winners)

		var positions int64
		tl.db.Model(&models.FundingPosition{}).Count(&positions)
		assert.Equal(t, int64(1), positions)

		// Exactly one debit happened across both funders
		total := balance(t, tl, testLender) + balance(t, tl, otherLender)
		assert.Equal(t, int64(154000), total)
		assert.Equal(t, int64(46000), balance(t, tl, testSupplier))
	})
}

func TestSettle(t *testing.T) {
	fund := func(t *testing.T, tl *testLedger) *models.Invoice {
		invoice := tl.mintAccepted(t, "INV-001")
		require.NoError(t, tl.assets.Mint(context.Background(), testLender, 100000))
		require.NoError(t, tl.assets.Mint(context.Background(), testBuyer, 100000))
		_, err := tl.engine.Fund(context.Background(), invoice.TokenID, testLender, 46000)
		require.NoError(t, err)
		return invoice
	}

	t.Run("pays the funder face value, not purchase price", func(t *testing.T) {
		tl := newTestLedger(t)
		invoice := fund(t, tl)

		lenderBefore := balance(t, tl, testLender)
		position, err := tl.engine.Settle(context.Background(), invoice.TokenID, testBuyer)
		require.NoError(t, err)

		assert.Equal(t, models.PositionSettled, position.Status)
		require.NotNil(t, position.SettledAt)
		assert.Equal(t, int64(50000), balance(t, tl, testLender)-lenderBefore)

		updated, err := tl.registry.Get(context.Background(), invoice.TokenID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusSettled, updated.Status)
	})

	t.Run("only the buyer may settle", func(t *testing.T) {
		tl := newTestLedger(t)
		invoice := fund(t, tl)

		_, err := tl.engine.Settle(context.Background(), invoice.TokenID, testLender)
		assert.ErrorIs(t, err, models.ErrUnauthorized)
	})

	t.Run("rewards all three parties", func(t *testing.T) {
		tl := newTestLedger(t)
		invoice := fund(t, tl)

		_, err := tl.engine.Settle(context.Background(), invoice.TokenID, testBuyer)
		require.NoError(t, err)

		for _, identity := range []string{testSupplier, testBuyer, testLender} {
			score, err := tl.reputation.Get(context.Background(), identity)
			require.NoError(t, err)
			assert.Equal(t, 110, score.Score, identity)
		}
	})

	t.Run("settled is terminal", func(t *testing.T) {
		tl := newTestLedger(t)
		invoice := fund(t, tl)

		_, err := tl.engine.Settle(context.Background(), invoice.TokenID, testBuyer)
		require.NoError(t, err)

		_, err = tl.engine.Settle(context.Background(), invoice.TokenID, testBuyer)
		assert.ErrorIs(t, err, models.ErrInvalidState)
		_, err = tl.engine.Accept(context.Background(), invoice.TokenID, testBuyer)
		assert.ErrorIs(t, err, models.ErrInvalidState)
		_, err = tl.engine.Fund(context.Background(), invoice.TokenID, testLender, 46000)
		assert.ErrorIs(t, err, models.ErrInvalidState)
	})

	t.Run("transfer failure leaves the invoice funded", func(t *testing.T) {
		tl := newTestLedger(t)
		invoice := fund(t, tl)

		tl.assets.FailNext(errors.New("rpc unavailable"))
		_, err := tl.engine.Settle(context.Background(), invoice.TokenID, testBuyer)
		assert.ErrorIs(t, err, models.ErrTransferFailed)

		updated, err := tl.registry.Get(context.Background(), invoice.TokenID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusFunded, updated.Status)

		position, err := tl.engine.Position(context.Background(), invoice.TokenID)
		require.NoError(t, err)
		assert.Equal(t, models.PositionFunded, position.Status)
	})
}

func TestExpireOverdue(t *testing.T) {
	fundOverdue := func(t *testing.T, tl *testLedger) *models.Invoice {
		invoice := tl.mintAccepted(t, "INV-001")
		require.NoError(t, tl.assets.Mint(context.Background(), testLender, 100000))
		_, err := tl.engine.Fund(context.Background(), invoice.TokenID, testLender, 46000)
		require.NoError(t, err)

		past := time.Now().UTC().AddDate(0, 0, -1)
		require.NoError(t, tl.db.Model(&models.Invoice{}).
			Where("token_id = ?", invoice.TokenID).
			Update("due_date", past).Error)
		return invoice
	}

	t.Run("defaults funded invoices past due date and penalizes the buyer", func(t *testing.T) {
		tl := newTestLedger(t)
		invoice := fundOverdue(t, tl)

		expired, err := tl.engine.ExpireOverdue(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, expired)

		updated, err := tl.registry.Get(context.Background(), invoice.TokenID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusDefaulted, updated.Status)

		position, err := tl.engine.Position(context.Background(), invoice.TokenID)
		require.NoError(t, err)
		assert.Equal(t, models.PositionDefaulted, position.Status)

		score, err := tl.reputation.Get(context.Background(), testBuyer)
		require.NoError(t, err)
		assert.Equal(t, 75, score.Score)

		events, err := tl.events.ByToken(context.Background(), invoice.TokenID)
		require.NoError(t, err)
		assert.Equal(t, models.EventInvoiceDefaulted, events[0].EventType)
	})

	t.Run("defaulted is terminal", func(t *testing.T) {
		tl := newTestLedger(t)
		invoice := fundOverdue(t, tl)

		_, err := tl.engine.ExpireOverdue(context.Background())
		require.NoError(t, err)

		require.NoError(t, tl.assets.Mint(context.Background(), testBuyer, 100000))
		_, err = tl.engine.Settle(context.Background(), invoice.TokenID, testBuyer)
		assert.ErrorIs(t, err, models.ErrInvalidState)
	})

	t.Run("leaves invoices that are not yet due alone", func(t *testing.T) {
		tl := newTestLedger(t)
		invoice := tl.mintAccepted(t, "INV-001")
		require.NoError(t, tl.assets.Mint(context.Background(), testLender, 100000))
		_, err := tl.engine.Fund(context.Background(), invoice.TokenID, testLender, 46000)
		require.NoError(t, err)

		expired, err := tl.engine.ExpireOverdue(context.Background())
		require.NoError(t, err)
		assert.Zero(t, expired)
	})

	t.Run("sweep is idempotent", func(t *testing.T) {
		tl := newTestLedger(t)
		fundOverdue(t, tl)

		_, err := tl.engine.ExpireOverdue(context.Background())
		require.NoError(t, err)
		expired, err := tl.engine.ExpireOverdue(context.Background())
		require.NoError(t, err)
		assert.Zero(t, expired)

		score, err := tl.reputation.Get(context.Background(), testBuyer)
		require.NoError(t, err)
		assert.Equal(t, 75, score.Score)
	})
}

// Full happy path with the numbers from the product demo: 50,000 face value
// funded at 46,000, settled at face value for a 4,000 return.
func TestEndToEndLifecycle(t *testing.T) {
	tl := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, tl.assets.Mint(ctx, testBuyer, 100000))
	require.NoError(t, tl.assets.Mint(ctx, testLender, 100000))

	invoice := tl.mintRegistered(t, "INV-DEMO-001")

	_, err := tl.engine.Accept(ctx, invoice.TokenID, testBuyer)
	require.NoError(t, err)

	supplierBefore := balance(t, tl, testSupplier)
	_, err = tl.engine.Fund(ctx, invoice.TokenID, testLender, 46000)
	require.NoError(t, err)
	assert.Equal(t, int64(46000), balance(t, tl, testSupplier)-supplierBefore)

	lenderBefore := balance(t, tl, testLender)
	_, err = tl.engine.Settle(ctx, invoice.TokenID, testBuyer)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), balance(t, tl, testLender)-lenderBefore)
	assert.Equal(t, int64(104000), balance(t, tl, testLender))

	final, err := tl.registry.Get(ctx, invoice.TokenID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSettled, final.Status)

	events, err := tl.events.ByToken(ctx, invoice.TokenID)
	require.NoError(t, err)
	require.Len(t, events, 5)

	// Newest first
	expected := []string{
		models.EventInvoiceSettled,
		models.EventInvoiceFunded,
		models.EventInvoiceAccepted,
		models.EventInvoiceRegistered,
		models.EventInvoiceMinted,
	}
	for i, event := range events {
		assert.Equal(t, expected[i], event.EventType)
	}
}
