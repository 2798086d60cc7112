package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReputation(t *testing.T) {
	t.Run("unknown identity starts at 100", func(t *testing.T) {
		tl := newTestLedger(t)

		score, err := tl.reputation.Get(context.Background(), "0xNobody")
		require.NoError(t, err)
		assert.Equal(t, 100, score.Score)
		assert.False(t, score.Blacklisted)
	})

	t.Run("adjustments accumulate from the starting score", func(t *testing.T) {
		tl := newTestLedger(t)

		score, err := tl.reputation.Adjust(context.Background(), testSupplier, 10)
		require.NoError(t, err)
		assert.Equal(t, 110, score.Score)

		score, err = tl.reputation.Adjust(context.Background(), testSupplier, -25)
		require.NoError(t, err)
		assert.Equal(t, 85, score.Score)
	})

	t.Run("blacklists at zero or below", func(t *testing.T) {
		tl := newTestLedger(t)

		score, err := tl.reputation.Adjust(context.Background(), testBuyer, -99)
		require.NoError(t, err)
		assert.Equal(t, 1, score.Score)
		assert.False(t, score.Blacklisted)

		score, err = tl.reputation.Adjust(context.Background(), testBuyer, -1)
		require.NoError(t, err)
		assert.Zero(t, score.Score)
		assert.True(t, score.Blacklisted)

		blacklisted, err := tl.reputation.IsBlacklisted(context.Background(), testBuyer)
		require.NoError(t, err)
		assert.True(t, blacklisted)
	})

	t.Run("parallel adjustments are never lost", func(t *testing.T) {
		tl := newTestLedger(t)

		var wg sync.WaitGroup
		for i := 0; i < 30; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := tl.reputation.Adjust(context.Background(), testSupplier, 1)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		score, err := tl.reputation.Get(context.Background(), testSupplier)
		require.NoError(t, err)
		assert.Equal(t, 130, score.Score)
	})

	t.Run("blacklist latches even if the score recovers", func(t *testing.T) {
		tl := newTestLedger(t)

		_, err := tl.reputation.Adjust(context.Background(), testBuyer, -150)
		require.NoError(t, err)

		score, err := tl.reputation.Adjust(context.Background(), testBuyer, 200)
		require.NoError(t, err)
		assert.Equal(t, 150, score.Score)
		assert.True(t, score.Blacklisted)
	})
}
