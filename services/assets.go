package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"desupply-backend/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AssetLedger is the external settlement-currency primitive. Transfer is
// all-or-nothing: it either moves the full amount and returns a reference,
// or moves nothing and returns an error. The funding engine never retries a
// transfer on its own.
type AssetLedger interface {
	Transfer(ctx context.Context, from, to string, amount int64) (string, error)
	BalanceOf(ctx context.Context, address string) (int64, error)
	Mint(ctx context.Context, address string, amount int64) error
}

// TokenLedger keeps balances in the accounts table. The debit is conditional
// on the current balance covering the amount, so a transfer can never
// overdraw or half-apply.
type TokenLedger struct {
	db *gorm.DB
}

func NewTokenLedger(db *gorm.DB) *TokenLedger {
	return &TokenLedger{db: db}
}

func (l *TokenLedger) Transfer(ctx context.Context, from, to string, amount int64) (string, error) {
	if amount <= 0 {
		return "", models.ErrInvalidAmount
	}
	if from == to {
		return "", fmt.Errorf("%w: self transfer", models.ErrValidation)
	}

	ref := "transfer-" + uuid.NewString()
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		debit := tx.Model(&models.Account{}).
			Where("address = ? AND balance >= ?", from, amount).
			Update("balance", gorm.Expr("balance - ?", amount))
		if debit.Error != nil {
			return debit.Error
		}
		if debit.RowsAffected == 0 {
			return models.ErrInsufficientBalance
		}

		credit := tx.Model(&models.Account{}).
			Where("address = ?", to).
			Update("balance", gorm.Expr("balance + ?", amount))
		if credit.Error != nil {
			return credit.Error
		}
		if credit.RowsAffected == 0 {
			return tx.Create(&models.Account{Address: to, Balance: amount}).Error
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return ref, nil
}

func (l *TokenLedger) BalanceOf(ctx context.Context, address string) (int64, error) {
	var account models.Account
	err := l.db.WithContext(ctx).First(&account, "address = ?", address).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, nil
		}
		return 0, err
	}
	return account.Balance, nil
}

// Mint credits an account out of thin air. Exposed for demo seeding and
// tests, the same way the source chain used an open-mint test token.
func (l *TokenLedger) Mint(ctx context.Context, address string, amount int64) error {
	if amount <= 0 {
		return models.ErrInvalidAmount
	}
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		credit := tx.Model(&models.Account{}).
			Where("address = ?", address).
			Update("balance", gorm.Expr("balance + ?", amount))
		if credit.Error != nil {
			return credit.Error
		}
		if credit.RowsAffected == 0 {
			return tx.Create(&models.Account{Address: address, Balance: amount}).Error
		}
		return nil
	})
}

// MemoryAssetLedger is an in-memory AssetLedger for tests. It can be told to
// reject the next transfer or to stall long enough to trip the caller's
// timeout.
type MemoryAssetLedger struct {
	mu        sync.Mutex
	balances  map[string]int64
	transfers []MemoryTransfer
	nextErr   error
	delay     time.Duration
}

// MemoryTransfer captures one executed transfer for assertions.
type MemoryTransfer struct {
	Ref    string
	From   string
	To     string
	Amount int64
}

func NewMemoryAssetLedger() *MemoryAssetLedger {
	return &MemoryAssetLedger{balances: make(map[string]int64)}
}

// FailNext makes the next Transfer call return err without moving funds.
func (m *MemoryAssetLedger) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextErr = err
}

// SetDelay stalls every Transfer call for d before applying it.
func (m *MemoryAssetLedger) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

func (m *MemoryAssetLedger) Transfer(ctx context.Context, from, to string, amount int64) (string, error) {
	if amount <= 0 {
		return "", models.ErrInvalidAmount
	}

	m.mu.Lock()
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.nextErr != nil {
		err := m.nextErr
		m.nextErr = nil
		return "", err
	}
	if m.balances[from] < amount {
		return "", models.ErrInsufficientBalance
	}

	m.balances[from] -= amount
	m.balances[to] += amount

	ref := "memtransfer-" + uuid.NewString()
	m.transfers = append(m.transfers, MemoryTransfer{Ref: ref, From: from, To: to, Amount: amount})
	return ref, nil
}

func (m *MemoryAssetLedger) BalanceOf(_ context.Context, address string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[address], nil
}

func (m *MemoryAssetLedger) Mint(_ context.Context, address string, amount int64) error {
	if amount <= 0 {
		return models.ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[address] += amount
	return nil
}

// Transfers returns a snapshot of executed transfers.
func (m *MemoryAssetLedger) Transfers() []MemoryTransfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MemoryTransfer(nil), m.transfers...)
}
