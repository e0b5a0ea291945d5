package auction

import (
	"cmp"

	"github.com/holiman/uint256"
)

// compareSubmission 先比提交時間再比序號
func compareSubmission(x, y *SealedBid) int {
	if c := cmp.Compare(x.SubmittedAt, y.SubmittedAt); c != 0 {
		return c
	}
	return cmp.Compare(x.Sequence, y.Sequence)
}

// sealedWinner 最高出價者，同額時最早提交者勝出
func sealedWinner(a *Auction) *SealedBid {
	var winner *SealedBid
	for _, bid := range a.SealedBids {
		if winner == nil {
			winner = bid
			continue
		}
		switch c := bid.Amount.Cmp(winner.Amount); {
		case c > 0:
			winner = bid
		case c == 0 && compareSubmission(bid, winner) < 0:
			winner = bid
		}
	}
	return winner
}

func sealedDepositKey(auctionID string, seq uint64, bidder Address) string {
	return ledgerKey(auctionID, seqKey(seq), "sealed", string(bidder))
}

func submitSealedBid(a *Auction, p *plan, bidder Address, amount *uint256.Int, now int64) error {
	const op = "SubmitBid"
	if a.Type != TypeSealedBid {
		return NewError(op, KindInvalidState, "auction %s is a %s auction", a.ID, a.Type)
	}
	if err := a.requireBiddable(op, bidder, now); err != nil {
		return err
	}
	if amount == nil || amount.Lt(a.StartingPrice) {
		return NewError(op, KindBidTooLow, "bid must be at least %s", a.StartingPrice.Dec())
	}

	seq := a.nextSequence()
	key := seqKey(seq)
	p.deposit(sealedDepositKey(a.ID, seq, bidder), bidder, amount, flagConcealed)
	if prev, ok := a.SealedBids[bidder]; ok {
		p.refund(ledgerKey(a.ID, key, "resubmit", string(bidder)), bidder, prev.Amount, flagConcealed, flagAttempt)
	}

	if a.SealedBids == nil {
		a.SealedBids = make(map[Address]*SealedBid)
	}
	a.SealedBids[bidder] = &SealedBid{
		Bidder:      bidder,
		Amount:      amount.Clone(),
		SubmittedAt: now,
		Sequence:    seq,
	}
	// 金額不出現在事件裡
	p.emit(EventSealedBidSubmitted, bidder, nil, "sequence", key)
	return nil
}

// revealWinner 結束後任何人都能揭曉，並在同一次操作內完成結算
func revealWinner(a *Auction, p *plan, policy Policy, now int64) error {
	const op = "RevealWinner"
	if a.Type != TypeSealedBid {
		return NewError(op, KindInvalidState, "auction %s is a %s auction", a.ID, a.Type)
	}

	switch a.Status {
	case StatusSettled, StatusDisputed:
		return NewError(op, KindAlreadySettled, "auction %s is %s", a.ID, a.Status)
	case StatusPending:
		return NewError(op, KindNotExpired, "auction %s has not started", a.ID)
	case StatusActive:
		if !a.IsExpired(now) {
			return NewError(op, KindNotExpired, "auction %s ends at %d", a.ID, a.EndTime)
		}
	case StatusEnded:
		if a.Outcome != OutcomeOpen || a.Escrow != nil {
			return NewError(op, KindAlreadySettled, "winner of auction %s already revealed", a.ID)
		}
	}
	if len(a.SealedBids) == 0 {
		return NewError(op, KindNoBids, "auction %s received no bids", a.ID)
	}

	if a.Status == StatusActive {
		if err := closeAuction(a, p, now); err != nil {
			return err
		}
	}
	return settleAuction(a, p, policy, now)
}
