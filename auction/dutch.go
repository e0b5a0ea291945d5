package auction

import (
	"github.com/holiman/uint256"
)

// dutchPrice = max(reserve, starting - decrement * floor((now - start) / interval))
func dutchPrice(a *Auction, now int64) *uint256.Int {
	floor := new(uint256.Int)
	if a.ReservePrice != nil {
		floor.Set(a.ReservePrice)
	}
	if a.Dutch == nil || a.Dutch.DecrementInterval <= 0 || now <= a.StartTime {
		return a.StartingPrice.Clone()
	}

	steps := uint64((now - a.StartTime) / a.Dutch.DecrementInterval)
	drop, overflow := new(uint256.Int).MulOverflow(a.Dutch.DecrementAmount, uint256.NewInt(steps))
	if overflow || !drop.Lt(a.StartingPrice) {
		return floor
	}
	price := new(uint256.Int).Sub(a.StartingPrice, drop)
	if price.Lt(floor) {
		return floor
	}
	return price
}

func acceptDutchPrice(a *Auction, p *plan, buyer Address, payment *uint256.Int, now int64) error {
	const op = "AcceptCurrentPrice"
	if a.Type != TypeDutch {
		return NewError(op, KindInvalidState, "auction %s is a %s auction", a.ID, a.Type)
	}
	if err := a.requireBiddable(op, buyer, now); err != nil {
		return err
	}

	price := dutchPrice(a, now)
	if payment == nil || payment.Lt(price) {
		return NewError(op, KindBidTooLow, "payment must cover current price %s", price.Dec())
	}

	seq := seqKey(a.nextSequence())
	p.deposit(ledgerKey(a.ID, seq, "accept", string(buyer)), buyer, price)

	a.HighestBidder = buyer
	a.HighestBid = price.Clone()
	a.CurrentPrice = price.Clone()
	if err := a.transition(op, StatusEnded); err != nil {
		return err
	}
	p.emit(EventPriceAccepted, buyer, price, "sequence", seq)
	p.emit(EventAuctionEnded, buyer, price, "reason", "accepted")
	return nil
}
