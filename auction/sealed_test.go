package auction

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealedBidPhysicalItemScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	params := sealedParams()
	params.Item = physicalItem()
	a := env.create(t, params)

	sellerBefore := env.ledger.Balance(seller)

	_, err := env.engine.SubmitBid(ctx, a.ID, bidder1, milliEther(2000))
	require.NoError(t, err)

	view, err := env.engine.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, view.SealedBids, "sealed bids must stay hidden before close")

	_, err = env.engine.RevealWinner(ctx, a.ID)
	require.ErrorIs(t, err, ErrNotExpired)

	env.clock.Advance(3601)
	revealed, err := env.engine.RevealWinner(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusEnded, revealed.Status)
	assert.Equal(t, bidder1, revealed.HighestBidder)
	require.NotNil(t, revealed.Escrow)
	assert.True(t, revealed.Escrow.IsActive)
	assert.Equal(t, EscrowFunded, revealed.Escrow.State)
	assert.True(t, revealed.Escrow.Amount.Eq(milliEther(2000)))
	assert.True(t, revealed.Escrow.Fee.Eq(milliEther(40)))

	_, err = env.engine.ConfirmReceived(ctx, a.ID, bidder2)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = env.engine.ConfirmReceived(ctx, a.ID, bidder1)
	require.ErrorIs(t, err, ErrNotShipped)

	_, err = env.engine.ConfirmShipped(ctx, a.ID, bidder1, "TRACK123")
	require.ErrorIs(t, err, ErrUnauthorized)

	shipped, err := env.engine.ConfirmShipped(ctx, a.ID, seller, "TRACK123")
	require.NoError(t, err)
	assert.Equal(t, "TRACK123", shipped.Escrow.TrackingNumber)
	assert.Equal(t, EscrowShipped, shipped.Escrow.State)

	_, err = env.engine.ConfirmShipped(ctx, a.ID, seller, "TRACK456")
	require.ErrorIs(t, err, ErrAlreadyShipped)

	received, err := env.engine.ConfirmReceived(ctx, a.ID, bidder1)
	require.NoError(t, err)
	assert.Equal(t, StatusSettled, received.Status)
	assert.True(t, received.Escrow.ItemReceived)
	assert.True(t, received.Escrow.PaymentReleased)
	assert.False(t, received.Escrow.IsActive)

	want := new(uint256.Int).Add(sellerBefore, milliEther(2000-40))
	assert.True(t, env.ledger.Balance(seller).Eq(want), "seller balance %s", env.ledger.Balance(seller).Dec())
	assert.True(t, env.ledger.Balance(feeRecipient).Eq(milliEther(40)))
	assert.True(t, env.ledger.Held().IsZero())

	_, err = env.engine.ConfirmReceived(ctx, a.ID, bidder1)
	require.ErrorIs(t, err, ErrAlreadySettled)
	assert.True(t, env.ledger.Balance(seller).Eq(want), "payment must never be released twice")

	assert.Contains(t, env.emitter.types(), EventItemShipped)
	assert.Contains(t, env.emitter.types(), EventItemReceived)
	assert.Contains(t, env.emitter.types(), EventPaymentReleased)
}

func TestSealedBidLatestOverwrite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.create(t, sealedParams())

	_, err := env.engine.SubmitBid(ctx, a.ID, bidder1, milliEther(1500))
	require.NoError(t, err)
	_, err = env.engine.SubmitBid(ctx, a.ID, bidder2, milliEther(1100))
	require.NoError(t, err)
	env.clock.Advance(10)
	_, err = env.engine.SubmitBid(ctx, a.ID, bidder1, milliEther(1200))
	require.NoError(t, err)

	own, err := env.engine.SealedBid(ctx, a.ID, bidder1)
	require.NoError(t, err)
	assert.True(t, own.Amount.Eq(milliEther(1200)))
	assert.True(t, env.ledger.Balance(bidder1).Eq(milliEther(8800)))

	env.clock.Advance(3600)
	got, err := env.engine.RevealWinner(ctx, a.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusSettled, got.Status)
	assert.Equal(t, bidder1, got.HighestBidder)
	assert.True(t, got.HighestBid.Eq(milliEther(1200)))
	assert.True(t, env.ledger.Balance(bidder2).Eq(ether(10)), "loser is refunded")
	assert.True(t, env.ledger.Balance(seller).Eq(milliEther(1200)))
	assert.True(t, env.ledger.Held().IsZero())
}

func TestSealedBidTieGoesToEarliest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.create(t, sealedParams())

	_, err := env.engine.SubmitBid(ctx, a.ID, bidder2, milliEther(1500))
	require.NoError(t, err)
	env.clock.Advance(5)
	_, err = env.engine.SubmitBid(ctx, a.ID, bidder1, milliEther(1500))
	require.NoError(t, err)
	_, err = env.engine.SubmitBid(ctx, a.ID, bidder3, milliEther(1400))
	require.NoError(t, err)

	env.clock.Advance(3600)
	got, err := env.engine.RevealWinner(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, bidder2, got.HighestBidder)
	assert.Equal(t, []Address{bidder2, bidder1, bidder3}, got.SealedBidders())
}

func TestSealedWinnerIsMaximum(t *testing.T) {
	a := newAuction("sealed", sealedParams(), startTime)
	amounts := []uint64{1300, 2100, 1700, 2099}
	bidders := []Address{"0xa", "0xb", "0xc", "0xd"}
	for i, amt := range amounts {
		a.SealedBids[bidders[i]] = &SealedBid{
			Bidder:      bidders[i],
			Amount:      milliEther(amt),
			SubmittedAt: startTime + int64(i),
			Sequence:    uint64(i + 1),
		}
	}

	w := sealedWinner(a)
	require.NotNil(t, w)
	assert.Equal(t, Address("0xb"), w.Bidder)
	for _, bid := range a.SealedBids {
		assert.False(t, bid.Amount.Gt(w.Amount))
	}
}

func TestSubmitBidValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.create(t, sealedParams())

	_, err := env.engine.SubmitBid(ctx, a.ID, bidder1, milliEther(999))
	assert.ErrorIs(t, err, ErrBidTooLow)

	_, err = env.engine.SubmitBid(ctx, a.ID, seller, milliEther(1500))
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = env.engine.SubmitBid(ctx, a.ID, "", milliEther(1500))
	assert.ErrorIs(t, err, ErrUnauthorized)

	env.clock.Advance(3600)
	_, err = env.engine.SubmitBid(ctx, a.ID, bidder1, milliEther(1500))
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestRevealWinnerWithoutBids(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.create(t, sealedParams())

	env.clock.Advance(3600)
	_, err := env.engine.RevealWinner(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNoBids)

	got, err := env.engine.Settle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSettled, got.Status)
	assert.Equal(t, OutcomeNoSale, got.Outcome)
}

func TestRevealWinnerTwice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	params := sealedParams()
	params.Item = physicalItem()
	a := env.create(t, params)

	_, err := env.engine.SubmitBid(ctx, a.ID, bidder1, milliEther(1500))
	require.NoError(t, err)
	env.clock.Advance(3600)

	_, err = env.engine.RevealWinner(ctx, a.ID)
	require.NoError(t, err)
	_, err = env.engine.RevealWinner(ctx, a.ID)
	assert.ErrorIs(t, err, ErrAlreadySettled)
	_, err = env.engine.Settle(ctx, a.ID)
	assert.ErrorIs(t, err, ErrAlreadySettled)
}

func TestSealedReserveNotMet(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	params := sealedParams()
	params.ReservePrice = ether(3)
	a := env.create(t, params)

	_, err := env.engine.SubmitBid(ctx, a.ID, bidder1, ether(2))
	require.NoError(t, err)
	_, err = env.engine.SubmitBid(ctx, a.ID, bidder2, milliEther(1500))
	require.NoError(t, err)

	env.clock.Advance(3600)
	got, err := env.engine.RevealWinner(ctx, a.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusSettled, got.Status)
	assert.Equal(t, OutcomeNoSale, got.Outcome)
	assert.Nil(t, got.Escrow)
	assert.True(t, env.ledger.Balance(bidder1).Eq(ether(10)))
	assert.True(t, env.ledger.Balance(bidder2).Eq(ether(10)))
	assert.True(t, env.ledger.Balance(seller).IsZero())
	assert.True(t, env.ledger.Held().IsZero())
}
