package auction

import (
	"github.com/holiman/uint256"
)

// englishMinimum 下一口最低出價
func englishMinimum(a *Auction) (*uint256.Int, bool) {
	step := uint256.NewInt(1)
	if !a.HighestBidder.IsZero() && a.MinIncrement != nil && !a.MinIncrement.IsZero() {
		step = a.MinIncrement
	}
	return new(uint256.Int).AddOverflow(a.CurrentPrice, step)
}

func placeEnglishBid(a *Auction, p *plan, bidder Address, amount *uint256.Int, now int64) error {
	const op = "PlaceBid"
	if a.Type != TypeEnglish {
		return NewError(op, KindInvalidState, "auction %s is a %s auction", a.ID, a.Type)
	}
	if err := a.requireBiddable(op, bidder, now); err != nil {
		return err
	}

	minimum, overflow := englishMinimum(a)
	if overflow || amount == nil || amount.Lt(minimum) {
		return NewError(op, KindBidTooLow, "bid must be at least %s", minimum.Dec())
	}

	seq := seqKey(a.nextSequence())
	p.deposit(ledgerKey(a.ID, seq, "bid", string(bidder)), bidder, amount)
	if !a.HighestBidder.IsZero() {
		p.refund(ledgerKey(a.ID, seq, "outbid", string(a.HighestBidder)), a.HighestBidder, a.HighestBid, flagAttempt)
	}

	a.HighestBidder = bidder
	a.HighestBid = amount.Clone()
	a.CurrentPrice = amount.Clone()
	p.emit(EventBidPlaced, bidder, amount, "sequence", seq)
	return nil
}
