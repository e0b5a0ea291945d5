package auction

import (
	"github.com/holiman/uint256"
)

// earlyTerminated 荷式已被接受或固定價格已售完
func earlyTerminated(a *Auction) bool {
	switch a.Type {
	case TypeDutch:
		return !a.HighestBidder.IsZero()
	case TypeFixedSwap:
		return a.Fixed != nil && a.Fixed.RemainingQuantity == 0
	}
	return false
}

func closeAuction(a *Auction, p *plan, now int64) error {
	const op = "Close"
	switch a.Status {
	case StatusSettled:
		return NewError(op, KindAlreadySettled, "auction %s is settled", a.ID)
	case StatusDisputed:
		return NewError(op, KindInvalidState, "auction %s is under dispute", a.ID)
	case StatusEnded:
		p.unchanged = true
		return nil
	case StatusPending:
		return NewError(op, KindNotExpired, "auction %s has not started", a.ID)
	}
	if !a.IsExpired(now) && !earlyTerminated(a) {
		return NewError(op, KindNotExpired, "auction %s ends at %d", a.ID, a.EndTime)
	}
	if err := a.transition(op, StatusEnded); err != nil {
		return err
	}
	p.unchanged = false
	p.emit(EventAuctionEnded, "", a.HighestBid, "reason", "expired")
	return nil
}

// determineWinner 依拍賣類型決定得標者與成交金額
func determineWinner(a *Auction) (Address, *uint256.Int) {
	switch a.Type {
	case TypeSealedBid:
		w := sealedWinner(a)
		if w == nil {
			return "", nil
		}
		a.HighestBidder = w.Bidder
		a.HighestBid = w.Amount.Clone()
		a.CurrentPrice = w.Amount.Clone()
		return w.Bidder, w.Amount.Clone()
	case TypeFixedSwap:
		if len(a.Purchases) == 0 {
			return "", nil
		}
		return a.HighestBidder, a.HighestBid.Clone()
	default:
		if a.HighestBidder.IsZero() {
			return "", nil
		}
		return a.HighestBidder, a.HighestBid.Clone()
	}
}

func reserveApplies(a *Auction, policy Policy) bool {
	if a.ReservePrice == nil || a.ReservePrice.IsZero() {
		return false
	}
	switch a.Type {
	case TypeDutch, TypeSealedBid:
		return true
	case TypeEnglish:
		return policy.EnforceEnglishReserve
	}
	return false
}

func settleAuction(a *Auction, p *plan, policy Policy, now int64) error {
	const op = "Settle"
	switch a.Status {
	case StatusSettled:
		return NewError(op, KindAlreadySettled, "auction %s is settled", a.ID)
	case StatusDisputed:
		return NewError(op, KindInvalidState, "auction %s is under dispute", a.ID)
	case StatusPending, StatusActive:
		if err := closeAuction(a, p, now); err != nil {
			return err
		}
	case StatusEnded:
		if a.Outcome != OutcomeOpen || a.Escrow != nil {
			return NewError(op, KindAlreadySettled, "auction %s is already settled into escrow", a.ID)
		}
	}
	p.unchanged = false

	winner, amount := determineWinner(a)

	// 密封出價的落選者在結算時退款，押金金額此時才公開
	for _, bidder := range a.SealedBidders() {
		bid := a.SealedBids[bidder]
		p.disclose(sealedDepositKey(a.ID, bid.Sequence, bidder), bidder, bid.Amount)
		if bidder == winner {
			continue
		}
		p.refund(ledgerKey(a.ID, "settle", "refund", string(bidder)), bidder, a.SealedBids[bidder].Amount)
	}
	if a.Type == TypeSealedBid && !winner.IsZero() {
		p.emit(EventWinnerRevealed, winner, amount)
	}

	if winner.IsZero() {
		return settleNoSale(op, a, p, "no_bids")
	}

	if reserveApplies(a, policy) && amount.Lt(a.ReservePrice) {
		fee := EscrowFee(amount, policy.NoSaleFeeBps)
		p.refund(ledgerKey(a.ID, "settle", "refund", string(winner)), winner, new(uint256.Int).Sub(amount, fee))
		p.payout(ledgerKey(a.ID, "settle", "no-sale-fee"), policy.FeeRecipient, fee)
		return settleNoSale(op, a, p, "reserve_not_met")
	}

	a.Outcome = OutcomeSold
	if !a.Item.IsPhysical {
		p.payout(ledgerKey(a.ID, "settle", "payout", string(a.Seller)), a.Seller, amount)
		if err := a.transition(op, StatusSettled); err != nil {
			return err
		}
		p.emit(EventAuctionSettled, winner, amount, "seller", string(a.Seller))
		return nil
	}

	a.Escrow = newEscrow(a, winner, amount, policy.FeeBps, now)
	p.emit(EventEscrowCreated, winner, amount,
		"seller", string(a.Seller), "fee", a.Escrow.Fee.Dec())
	return nil
}

func settleNoSale(op string, a *Auction, p *plan, reason string) error {
	a.Outcome = OutcomeNoSale
	if err := a.transition(op, StatusSettled); err != nil {
		return err
	}
	p.emit(EventNoSale, "", a.HighestBid, "reason", reason)
	return nil
}
