package auction

import (
	"strconv"

	"github.com/holiman/uint256"
)

func (a *Auction) purchasedBy(buyer Address) uint64 {
	var total uint64
	for _, p := range a.Purchases {
		if p.Buyer == buyer {
			total += p.Quantity
		}
	}
	return total
}

func purchaseFixed(a *Auction, p *plan, buyer Address, quantity uint64, payment *uint256.Int, now int64) error {
	const op = "Purchase"
	if a.Type != TypeFixedSwap || a.Fixed == nil {
		return NewError(op, KindInvalidState, "auction %s is a %s auction", a.ID, a.Type)
	}
	if err := a.requireBiddable(op, buyer, now); err != nil {
		return err
	}

	terms := a.Fixed
	if quantity == 0 {
		return NewError(op, KindInvalidParameters, "quantity must be positive")
	}
	if quantity > terms.RemainingQuantity {
		return NewError(op, KindInvalidParameters, "only %d units remaining", terms.RemainingQuantity)
	}
	if terms.MaxPerBuyer > 0 && a.purchasedBy(buyer)+quantity > terms.MaxPerBuyer {
		return NewError(op, KindInvalidParameters, "purchase exceeds limit of %d per buyer", terms.MaxPerBuyer)
	}
	expected, overflow := new(uint256.Int).MulOverflow(terms.FixedPrice, uint256.NewInt(quantity))
	if overflow {
		return NewError(op, KindInvalidParameters, "purchase amount overflows")
	}
	if payment == nil || !payment.Eq(expected) {
		return NewError(op, KindInvalidParameters, "payment must equal %s", expected.Dec())
	}

	seq := a.nextSequence()
	key := seqKey(seq)
	p.deposit(ledgerKey(a.ID, key, "purchase", string(buyer)), buyer, expected)

	a.Purchases = append(a.Purchases, &Purchase{
		Buyer:    buyer,
		Quantity: quantity,
		Amount:   expected.Clone(),
		At:       now,
		Sequence: seq,
	})
	terms.RemainingQuantity -= quantity
	// 固定價格拍賣的 HighestBid 記錄累計收入
	a.HighestBid = new(uint256.Int).Add(a.HighestBid, expected)
	a.HighestBidder = buyer
	p.emit(EventPurchased, buyer, expected, "quantity", strconv.FormatUint(quantity, 10), "sequence", key)

	if terms.RemainingQuantity == 0 {
		if err := a.transition(op, StatusEnded); err != nil {
			return err
		}
		p.emit(EventAuctionEnded, buyer, a.HighestBid, "reason", "sold_out")
	}
	return nil
}
