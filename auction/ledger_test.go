package auction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLedger(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.Credit(bidder1, ether(5))

	tests := []struct {
		name    string
		run     func() error
		wantErr error
	}{
		{
			name: "deposit",
			run:  func() error { return l.Deposit(ctx, "a/1/bid/b1", bidder1, ether(2)) },
		},
		{
			name: "replayed deposit is a no-op",
			run:  func() error { return l.Deposit(ctx, "a/1/bid/b1", bidder1, ether(2)) },
		},
		{
			name:    "reused key with other amount",
			run:     func() error { return l.Deposit(ctx, "a/1/bid/b1", bidder1, ether(3)) },
			wantErr: ErrConflict,
		},
		{
			name:    "deposit above balance",
			run:     func() error { return l.Deposit(ctx, "a/2/bid/b1", bidder1, ether(4)) },
			wantErr: ErrInsufficientBalance,
		},
		{
			name:    "payout above held",
			run:     func() error { return l.Payout(ctx, "a/settle/payout/s", seller, ether(3)) },
			wantErr: ErrInsufficientBalance,
		},
		{
			name: "payout",
			run:  func() error { return l.Payout(ctx, "a/settle/payout/s", seller, ether(2)) },
		},
		{
			name: "replayed payout is a no-op",
			run:  func() error { return l.Payout(ctx, "a/settle/payout/s", seller, ether(2)) },
		},
		{
			name:    "missing key",
			run:     func() error { return l.Refund(ctx, "", bidder1, ether(1)) },
			wantErr: ErrInvalidParameters,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.True(t, l.Balance(bidder1).Eq(ether(3)))
	assert.True(t, l.Balance(seller).Eq(ether(2)))
	assert.True(t, l.Held().IsZero())
	assert.True(t, l.Applied("a/1/bid/b1"))
	assert.False(t, l.Applied("a/2/bid/b1"))
}

func TestMemoryLedgerRefund(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.Credit(bidder2, ether(1))

	require.NoError(t, l.Deposit(ctx, "k/deposit", bidder2, ether(1)))
	assert.True(t, l.Balance(bidder2).IsZero())

	require.NoError(t, l.Refund(ctx, "k/refund", bidder2, ether(1)))
	require.NoError(t, l.Refund(ctx, "k/refund", bidder2, ether(1)))
	assert.True(t, l.Balance(bidder2).Eq(ether(1)))

	err := l.Payout(ctx, "k/refund", bidder2, ether(1))
	assert.ErrorIs(t, err, ErrConflict)
}
