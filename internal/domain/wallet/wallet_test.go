package wallet

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/dalasi-wallet-core/internal/domain/shared"
)

func newTestWallet(t *testing.T, available int64) *Wallet {
	t.Helper()
	w, err := New(uuid.New(), shared.CurrencyGMD)
	require.NoError(t, err)
	w.AvailableBalance = available
	return w
}

func TestNew(t *testing.T) {
	accountID := uuid.New()

	t.Run("creates active wallet with zero balances", func(t *testing.T) {
		w, err := New(accountID, shared.CurrencyUSD)
		require.NoError(t, err)
		assert.Equal(t, accountID, w.AccountID)
		assert.Equal(t, shared.CurrencyUSD, w.Currency)
		assert.Equal(t, StatusActive, w.Status)
		assert.Zero(t, w.AvailableBalance)
		assert.Zero(t, w.PendingBalance)
		assert.Zero(t, w.TotalBalance())
	})

	t.Run("rejects unsupported currency", func(t *testing.T) {
		_, err := New(accountID, shared.Currency("EUR"))
		assert.ErrorIs(t, err, shared.ErrInvalidCurrency)
	})
}

func TestWallet_Reserve(t *testing.T) {
	t.Run("moves funds from available to pending", func(t *testing.T) {
		w := newTestWallet(t, 100000) // 1000.00 GMD

		err := w.Reserve(30000)
		require.NoError(t, err)
		assert.Equal(t, int64(70000), w.AvailableBalance)
		assert.Equal(t, int64(30000), w.PendingBalance)
		assert.Equal(t, int64(100000), w.TotalBalance())
	})

	t.Run("fails on insufficient available funds", func(t *testing.T) {
		w := newTestWallet(t, 100)

		err := w.Reserve(101)
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.Equal(t, int64(100), w.AvailableBalance)
		assert.Zero(t, w.PendingBalance)
	})

	t.Run("does not count pending funds as available", func(t *testing.T) {
		w := newTestWallet(t, 100)
		require.NoError(t, w.Reserve(60))

		err := w.Reserve(50)
		assert.ErrorIs(t, err, ErrInsufficientFunds)
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		w := newTestWallet(t, 100)
		assert.ErrorIs(t, w.Reserve(0), ErrInvalidAmount)
		assert.ErrorIs(t, w.Reserve(-5), ErrInvalidAmount)
	})

	t.Run("rejects deactivated wallet", func(t *testing.T) {
		w := newTestWallet(t, 100)
		w.Deactivate()
		assert.ErrorIs(t, w.Reserve(10), ErrWalletDeactivated)
	})
}

func TestWallet_CommitReservation(t *testing.T) {
	t.Run("removes reserved funds entirely", func(t *testing.T) {
		w := newTestWallet(t, 100000)
		require.NoError(t, w.Reserve(30000))

		err := w.CommitReservation(30000)
		require.NoError(t, err)
		assert.Equal(t, int64(70000), w.AvailableBalance)
		assert.Zero(t, w.PendingBalance)
		assert.Equal(t, int64(70000), w.TotalBalance())
	})

	t.Run("fails when pending is smaller than amount", func(t *testing.T) {
		w := newTestWallet(t, 100)
		require.NoError(t, w.Reserve(40))

		err := w.CommitReservation(50)
		assert.ErrorIs(t, err, ErrPendingUnderflow)
	})
}

func TestWallet_ReleaseReservation(t *testing.T) {
	t.Run("restores available balance exactly", func(t *testing.T) {
		w := newTestWallet(t, 5000)
		require.NoError(t, w.Reserve(1234))
		require.NoError(t, w.ReleaseReservation(1234))

		assert.Equal(t, int64(5000), w.AvailableBalance)
		assert.Zero(t, w.PendingBalance)
	})

	t.Run("fails when pending is smaller than amount", func(t *testing.T) {
		w := newTestWallet(t, 5000)
		err := w.ReleaseReservation(1)
		assert.ErrorIs(t, err, ErrPendingUnderflow)
	})
}

func TestWallet_Credit(t *testing.T) {
	t.Run("adds directly to available", func(t *testing.T) {
		w := newTestWallet(t, 10)
		require.NoError(t, w.Credit(90))
		assert.Equal(t, int64(100), w.AvailableBalance)
	})

	t.Run("rejects deactivated wallet", func(t *testing.T) {
		w := newTestWallet(t, 10)
		w.Deactivate()
		assert.ErrorIs(t, w.Credit(1), ErrWalletDeactivated)
	})
}

// The balance invariant must hold after any sequence of mutations.
func TestWallet_InvariantAcrossLifecycle(t *testing.T) {
	w := newTestWallet(t, 100000)

	steps := []func() error{
		func() error { return w.Reserve(25000) },
		func() error { return w.Credit(5000) },
		func() error { return w.Reserve(10000) },
		func() error { return w.ReleaseReservation(25000) },
		func() error { return w.CommitReservation(10000) },
	}

	total := w.TotalBalance()
	for i, step := range steps {
		require.NoError(t, step(), "step %d", i)
		assert.GreaterOrEqual(t, w.AvailableBalance, int64(0))
		assert.GreaterOrEqual(t, w.PendingBalance, int64(0))
		assert.Equal(t, w.AvailableBalance+w.PendingBalance, w.TotalBalance())
	}

	// 100000 + 5000 credit - 10000 committed
	assert.Equal(t, total+5000-10000, w.TotalBalance())
}
