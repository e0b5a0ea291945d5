package auction

import (
	"context"
	"errors"
)

// 生命週期事件類型
const (
	EventAuctionCreated     = "auction.created"
	EventBidPlaced          = "auction.bid_placed"
	EventSealedBidSubmitted = "auction.sealed_bid_submitted"
	EventPriceAccepted      = "auction.price_accepted"
	EventPurchased          = "auction.purchased"
	EventAuctionEnded       = "auction.ended"
	EventWinnerRevealed     = "auction.winner_revealed"
	EventAuctionSettled     = "auction.settled"
	EventNoSale             = "auction.no_sale"
	EventEscrowCreated      = "escrow.created"
	EventItemShipped        = "escrow.item_shipped"
	EventItemReceived       = "escrow.item_received"
	EventPaymentReleased    = "escrow.payment_released"
	EventDisputeRaised      = "escrow.dispute_raised"
	EventDisputeResolved    = "escrow.dispute_resolved"
	EventTransfer           = "ledger.transfer"
)

// Event 金額以十進位字串表示，方便序列化
type Event struct {
	Type       string            `json:"type" msgpack:"type"`
	AuctionID  string            `json:"auctionId" msgpack:"auctionId"`
	Actor      Address           `json:"actor,omitempty" msgpack:"actor,omitempty"`
	Amount     string            `json:"amount,omitempty" msgpack:"amount,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty" msgpack:"attributes,omitempty"`
	Time       int64             `json:"time" msgpack:"time"`
}

type Emitter interface {
	Emit(evt Event) error
}

type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) error { return nil }

// MultiEmitter 依序送往所有 Emitter，回傳合併後的錯誤
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(evt Event) error {
	var errs []error
	for _, e := range m {
		if err := e.Emit(evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Arbiter 接收爭議，裁決後呼叫 Engine.ResolveDispute
type Arbiter interface {
	Submit(ctx context.Context, auctionID string, reason string) error
}

type NoopArbiter struct{}

func (NoopArbiter) Submit(context.Context, string, string) error { return nil }
