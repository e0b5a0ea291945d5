package redis

import (
	"context"
	"errors"
	"fmt"

	"bidvault/auction"
)

// EventEmitter 把拍賣事件寫入事件 stream，供交易紀錄 worker 消費
type EventEmitter struct {
	producer IProducer[auction.Event]
}

var _ auction.Emitter = (*EventEmitter)(nil)

func NewEventEmitter(producer IProducer[auction.Event]) (*EventEmitter, error) {
	if producer == nil {
		return nil, errors.New("producer cannot be nil")
	}
	return &EventEmitter{producer: producer}, nil
}

func (e *EventEmitter) Emit(evt auction.Event) error {
	const op = "EventEmitter.Emit"
	if err := e.producer.Publish(evt); err != nil {
		return fmt.Errorf("[%s] Fail to publish %s, err=%w", op, evt.Type, err)
	}
	return nil
}

// DisputeSubmission 送往外部仲裁者的爭議
type DisputeSubmission struct {
	AuctionID   string `msgpack:"auctionId"`
	Reason      string `msgpack:"reason"`
	SubmittedAt int64  `msgpack:"submittedAt"`
}

// Arbiter 把爭議寫入仲裁 stream，仲裁結果經由 API 回呼 ResolveDispute
type Arbiter struct {
	producer IProducer[DisputeSubmission]
	clock    auction.Clock
}

var _ auction.Arbiter = (*Arbiter)(nil)

func NewArbiter(producer IProducer[DisputeSubmission], clock auction.Clock) (*Arbiter, error) {
	if producer == nil {
		return nil, errors.New("producer cannot be nil")
	}
	if clock == nil {
		clock = auction.SystemClock{}
	}
	return &Arbiter{producer: producer, clock: clock}, nil
}

func (a *Arbiter) Submit(ctx context.Context, auctionID string, reason string) error {
	const op = "Arbiter.Submit"
	if err := ctx.Err(); err != nil {
		return err
	}
	err := a.producer.Publish(DisputeSubmission{
		AuctionID:   auctionID,
		Reason:      reason,
		SubmittedAt: a.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("[%s] Fail to submit dispute for %s, err=%w", op, auctionID, err)
	}
	return nil
}
