package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

type engineOptions struct {
	clock   Clock
	locker  Locker
	emitter Emitter
	arbiter Arbiter
	logger  *slog.Logger
	policy  Policy
	newID   func() (string, error)
}

type Option func(*engineOptions)

// WithClock 設置時間來源
func WithClock(clock Clock) Option {
	return func(o *engineOptions) {
		o.clock = clock
	}
}

// WithLocker 設置拍賣鎖，多實例部署時使用分散式鎖
func WithLocker(locker Locker) Option {
	return func(o *engineOptions) {
		o.locker = locker
	}
}

// WithEmitter 設置事件發送器
func WithEmitter(emitter Emitter) Option {
	return func(o *engineOptions) {
		o.emitter = emitter
	}
}

// WithArbiter 設置爭議仲裁者
func WithArbiter(arbiter Arbiter) Option {
	return func(o *engineOptions) {
		o.arbiter = arbiter
	}
}

// WithLogger 設置日誌記錄器
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithPolicy 設置手續費與結算規則
func WithPolicy(policy Policy) Option {
	return func(o *engineOptions) {
		o.policy = policy
	}
}

// WithIDGenerator 設置拍賣 id 產生器
func WithIDGenerator(fn func() (string, error)) Option {
	return func(o *engineOptions) {
		o.newID = fn
	}
}

func newUUIDv7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Engine 串接出價、結算與託管規則。
// 同一拍賣的寫入經由 Locker 序列化，狀態與帳本移動一起提交。
type Engine struct {
	store   Store
	ledger  Ledger
	clock   Clock
	locker  Locker
	emitter Emitter
	arbiter Arbiter
	policy  Policy
	newID   func() (string, error)
	logger  *slog.Logger
}

func NewEngine(store Store, ledger Ledger, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if ledger == nil {
		return nil, errors.New("ledger cannot be nil")
	}

	// 默認選項
	options := engineOptions{
		clock:   SystemClock{},
		locker:  NewKeyedMutex(),
		emitter: NoopEmitter{},
		arbiter: NoopArbiter{},
		logger:  slog.Default(),
		policy:  DefaultPolicy(),
		newID:   newUUIDv7,
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	if err := options.policy.validate(); err != nil {
		return nil, err
	}

	return &Engine{
		store:   store,
		ledger:  ledger,
		clock:   options.clock,
		locker:  options.locker,
		emitter: options.emitter,
		arbiter: options.arbiter,
		policy:  options.policy,
		newID:   options.newID,
		logger:  options.logger.With(slog.String("caller", "Engine")),
	}, nil
}

func (e *Engine) Policy() Policy {
	return e.policy
}

func (e *Engine) Create(ctx context.Context, params CreateParams) (*Auction, error) {
	const op = "Engine.Create"
	if err := params.validate(e.policy.Limits); err != nil {
		return nil, err
	}

	id, err := e.newID()
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to generate auction id, err=%w", op, err)
	}
	now := e.clock.Now()
	a := newAuction(id, params, now)
	if err := e.store.Create(ctx, a); err != nil {
		return nil, err
	}

	p := newPlan(a, now)
	p.emit(EventAuctionCreated, a.Seller, a.StartingPrice,
		"type", a.Type.String(), "status", a.Status.String())
	e.publish(p.events)

	e.logger.Info("auction created",
		slog.String("auctionID", a.ID),
		slog.String("type", a.Type.String()),
		slog.String("seller", a.Seller.String()),
	)
	return a.publicView(now), nil
}

// Get 讀取不加鎖
func (e *Engine) Get(ctx context.Context, id string) (*Auction, error) {
	a, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := e.clock.Now()
	a.activate(now)
	return a.publicView(now), nil
}

func (e *Engine) List(ctx context.Context, filter ListFilter) ([]*Auction, error) {
	now := e.clock.Now()
	filter.Now = now
	list, err := e.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]*Auction, len(list))
	for i, a := range list {
		a.activate(now)
		out[i] = a.publicView(now)
	}
	return out, nil
}

// CurrentPrice 荷式拍賣依呼叫時間計算，其他類型回傳紀錄中的價格
func (e *Engine) CurrentPrice(ctx context.Context, id string) (*uint256.Int, error) {
	a, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := e.clock.Now()
	a.activate(now)
	if a.Type == TypeDutch && a.Status == StatusActive {
		return dutchPrice(a, now), nil
	}
	return a.CurrentPrice.Clone(), nil
}

// SealedBid 出價者只能查看自己的密封出價
func (e *Engine) SealedBid(ctx context.Context, id string, caller Address) (*SealedBid, error) {
	const op = "Engine.SealedBid"
	a, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	bid, ok := a.SealedBids[caller]
	if !ok {
		return nil, NewError(op, KindNotFound, "no sealed bid from %s", caller)
	}
	c := *bid
	c.Amount = bid.Amount.Clone()
	return &c, nil
}

func (e *Engine) PlaceBid(ctx context.Context, id string, bidder Address, amount *uint256.Int) (*Auction, error) {
	return e.mutate(ctx, "Engine.PlaceBid", id, func(a *Auction, p *plan, now int64) error {
		return placeEnglishBid(a, p, bidder, amount, now)
	})
}

func (e *Engine) AcceptCurrentPrice(ctx context.Context, id string, buyer Address, payment *uint256.Int) (*Auction, error) {
	return e.mutate(ctx, "Engine.AcceptCurrentPrice", id, func(a *Auction, p *plan, now int64) error {
		return acceptDutchPrice(a, p, buyer, payment, now)
	})
}

func (e *Engine) SubmitBid(ctx context.Context, id string, bidder Address, amount *uint256.Int) (*Auction, error) {
	return e.mutate(ctx, "Engine.SubmitBid", id, func(a *Auction, p *plan, now int64) error {
		return submitSealedBid(a, p, bidder, amount, now)
	})
}

func (e *Engine) RevealWinner(ctx context.Context, id string) (*Auction, error) {
	return e.mutate(ctx, "Engine.RevealWinner", id, func(a *Auction, p *plan, now int64) error {
		return revealWinner(a, p, e.policy, now)
	})
}

func (e *Engine) Purchase(ctx context.Context, id string, buyer Address, quantity uint64, payment *uint256.Int) (*Auction, error) {
	return e.mutate(ctx, "Engine.Purchase", id, func(a *Auction, p *plan, now int64) error {
		return purchaseFixed(a, p, buyer, quantity, payment, now)
	})
}

func (e *Engine) Close(ctx context.Context, id string) (*Auction, error) {
	return e.mutate(ctx, "Engine.Close", id, func(a *Auction, p *plan, now int64) error {
		return closeAuction(a, p, now)
	})
}

func (e *Engine) Settle(ctx context.Context, id string) (*Auction, error) {
	return e.mutate(ctx, "Engine.Settle", id, func(a *Auction, p *plan, now int64) error {
		return settleAuction(a, p, e.policy, now)
	})
}

func (e *Engine) ConfirmShipped(ctx context.Context, id string, caller Address, trackingNumber string) (*Auction, error) {
	return e.mutate(ctx, "Engine.ConfirmShipped", id, func(a *Auction, p *plan, now int64) error {
		return confirmShipped(a, p, caller, trackingNumber, now)
	})
}

func (e *Engine) ConfirmReceived(ctx context.Context, id string, caller Address) (*Auction, error) {
	return e.mutate(ctx, "Engine.ConfirmReceived", id, func(a *Auction, p *plan, now int64) error {
		return confirmReceived(a, p, caller, e.policy.FeeRecipient, now)
	})
}

func (e *Engine) RaiseDispute(ctx context.Context, id string, caller Address, reason string) (*Auction, error) {
	return e.mutate(ctx, "Engine.RaiseDispute", id, func(a *Auction, p *plan, now int64) error {
		return raiseDispute(a, p, caller, reason, now)
	})
}

func (e *Engine) ResolveDispute(ctx context.Context, id string, caller Address, resolution Resolution) (*Auction, error) {
	return e.mutate(ctx, "Engine.ResolveDispute", id, func(a *Auction, p *plan, now int64) error {
		return resolveDispute(a, p, caller, resolution, e.policy, now)
	})
}

// mutate 在拍賣鎖內讀取、套用規則、執行帳本移動並提交。
// 任一步失敗時狀態不變，已扣的押金會被退回。
func (e *Engine) mutate(ctx context.Context, op string, id string, fn func(a *Auction, p *plan, now int64) error) (*Auction, error) {
	lockCtx, unlock, err := e.locker.Lock(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to acquire auction lock, err=%w", op, err)
	}
	defer unlock()

	now := e.clock.Now()
	current, err := e.store.Get(lockCtx, id)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	activated := next.activate(now)
	p := newPlan(next, now)
	if err := fn(next, p, now); err != nil {
		return nil, err
	}
	if p.unchanged && !activated {
		return next.publicView(now), nil
	}

	applied, err := e.applyTransfers(lockCtx, op, p.transfers)
	if err != nil {
		e.rollback(lockCtx, op, current, p, next.Sequence, applied)
		return nil, err
	}

	if p.dispute != nil {
		if err := e.arbiter.Submit(lockCtx, next.ID, p.dispute.reason); err != nil {
			return nil, fmt.Errorf("[%s] Fail to submit dispute to arbiter, err=%w", op, err)
		}
	}

	if err := e.store.Update(lockCtx, next); err != nil {
		e.rollback(lockCtx, op, current, p, next.Sequence, applied)
		return nil, err
	}

	e.publish(p.events)
	for _, t := range applied {
		e.publish([]Event{transferEvent(next.ID, t, now, p.has(t.Key, flagConcealed))})
	}
	for _, t := range p.disclosures {
		e.publish([]Event{transferEvent(next.ID, t, now, false)})
	}
	return next.publicView(now), nil
}

func (e *Engine) applyTransfers(ctx context.Context, op string, transfers []Transfer) ([]Transfer, error) {
	applied := make([]Transfer, 0, len(transfers))
	for _, t := range transfers {
		if err := execute(ctx, e.ledger, t); err != nil {
			var domainErr *Error
			if errors.As(err, &domainErr) {
				return applied, err
			}
			return applied, fmt.Errorf("[%s] Fail to %s %s for %s, err=%w", op, t.Kind, t.Amount.Dec(), t.Party, err)
		}
		applied = append(applied, t)
	}
	return applied, nil
}

// rollback 沖回本次已套用的押金與含本次序號的退款，並消耗掉這次的序號，
// 讓重試使用新的冪等鍵。結算類的移動使用固定鍵，重試時直接重放。
func (e *Engine) rollback(ctx context.Context, op string, current *Auction, p *plan, seq uint64, applied []Transfer) {
	if len(applied) == 0 {
		return
	}
	logger := e.logger.With(slog.String("op", op), slog.String("auctionID", current.ID))

	for i := len(applied) - 1; i >= 0; i-- {
		t := applied[i]
		revert := Transfer{Key: t.Key + "/revert", Party: t.Party, Amount: t.Amount}
		switch {
		case t.Kind == TransferDeposit:
			revert.Kind = TransferRefund
		case t.Kind == TransferRefund && p.has(t.Key, flagAttempt):
			revert.Kind = TransferDeposit
		default:
			logger.Error("ledger transfer applied without state commit",
				slog.String("key", t.Key),
				slog.String("kind", t.Kind.String()),
				slog.String("amount", t.Amount.Dec()),
			)
			continue
		}
		if err := execute(ctx, e.ledger, revert); err != nil {
			logger.Error("Fail to revert transfer",
				slog.String("key", t.Key),
				slog.String("kind", t.Kind.String()),
				slog.Any("error", err),
			)
			continue
		}
		e.publish([]Event{transferEvent(current.ID, revert, e.clock.Now(), p.has(t.Key, flagConcealed))})
	}

	if seq <= current.Sequence {
		return
	}
	burned := current.Clone()
	burned.Sequence = seq
	if err := e.store.Update(ctx, burned); err != nil {
		logger.Error("Fail to persist burned sequence", slog.Uint64("sequence", seq), slog.Any("error", err))
	}
}

func (e *Engine) publish(events []Event) {
	for _, evt := range events {
		if err := e.emitter.Emit(evt); err != nil {
			e.logger.Warn("Fail to emit event",
				slog.String("type", evt.Type),
				slog.String("auctionID", evt.AuctionID),
				slog.Any("error", err),
			)
		}
	}
}

// transferEvent concealed 時不帶金額，結算時再以相同的 key 補發
func transferEvent(auctionID string, t Transfer, now int64, concealed bool) Event {
	evt := Event{
		Type:      EventTransfer,
		AuctionID: auctionID,
		Actor:     t.Party,
		Attributes: map[string]string{
			"kind": t.Kind.String(),
			"key":  t.Key,
		},
		Time: now,
	}
	if concealed {
		evt.Attributes["concealed"] = "true"
	} else {
		evt.Amount = t.Amount.Dec()
	}
	return evt
}
