package auction

import (
	"context"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
)

type TransferKind uint8

const (
	TransferDeposit TransferKind = iota + 1
	TransferPayout
	TransferRefund
)

var transferKindNames = map[TransferKind]string{
	TransferDeposit: "deposit",
	TransferPayout:  "payout",
	TransferRefund:  "refund",
}

func (k TransferKind) String() string {
	if name, ok := transferKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("TransferKind(%d)", uint8(k))
}

// Transfer 一筆帶冪等鍵的資金移動
type Transfer struct {
	Kind   TransferKind
	Key    string
	Party  Address
	Amount *uint256.Int
}

func (t Transfer) sameAs(o Transfer) bool {
	return t.Kind == o.Kind && t.Party == o.Party && t.Amount.Eq(o.Amount)
}

// Ledger 是外部的價值轉移層。
// 同一個 key 最多生效一次；以不同參數重用 key 回傳 Conflict。
type Ledger interface {
	Deposit(ctx context.Context, key string, payer Address, amount *uint256.Int) error
	Payout(ctx context.Context, key string, recipient Address, amount *uint256.Int) error
	Refund(ctx context.Context, key string, payer Address, amount *uint256.Int) error
}

func execute(ctx context.Context, l Ledger, t Transfer) error {
	switch t.Kind {
	case TransferDeposit:
		return l.Deposit(ctx, t.Key, t.Party, t.Amount)
	case TransferPayout:
		return l.Payout(ctx, t.Key, t.Party, t.Amount)
	case TransferRefund:
		return l.Refund(ctx, t.Key, t.Party, t.Amount)
	default:
		return NewError("Ledger.execute", KindInvalidParameters, "unknown transfer kind %d", t.Kind)
	}
}

// CheckTransfer 供 Ledger 實作共用的重放檢查。
// 回傳 true 表示 key 已套用過且參數相同。
func CheckTransfer(op string, applied Transfer, incoming Transfer) (bool, error) {
	if applied.sameAs(incoming) {
		return true, nil
	}
	return false, NewError(op, KindConflict, "idempotency key %q reused with different parameters", incoming.Key)
}

// MemoryLedger 記憶體帳本，託管金額集中在 held
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[Address]*uint256.Int
	held     *uint256.Int
	applied  map[string]Transfer
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[Address]*uint256.Int),
		held:     new(uint256.Int),
		applied:  make(map[string]Transfer),
	}
}

// Credit 入金，測試與開發環境使用
func (l *MemoryLedger) Credit(party Address, amount *uint256.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balanceOf(party).Add(l.balanceOf(party), amount)
}

func (l *MemoryLedger) Balance(party Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceOf(party).Clone()
}

func (l *MemoryLedger) Held() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held.Clone()
}

func (l *MemoryLedger) Applied(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.applied[key]
	return ok
}

func (l *MemoryLedger) balanceOf(party Address) *uint256.Int {
	b, ok := l.balances[party]
	if !ok {
		b = new(uint256.Int)
		l.balances[party] = b
	}
	return b
}

func (l *MemoryLedger) Deposit(_ context.Context, key string, payer Address, amount *uint256.Int) error {
	const op = "MemoryLedger.Deposit"
	return l.apply(op, Transfer{Kind: TransferDeposit, Key: key, Party: payer, Amount: amount})
}

func (l *MemoryLedger) Payout(_ context.Context, key string, recipient Address, amount *uint256.Int) error {
	const op = "MemoryLedger.Payout"
	return l.apply(op, Transfer{Kind: TransferPayout, Key: key, Party: recipient, Amount: amount})
}

func (l *MemoryLedger) Refund(_ context.Context, key string, payer Address, amount *uint256.Int) error {
	const op = "MemoryLedger.Refund"
	return l.apply(op, Transfer{Kind: TransferRefund, Key: key, Party: payer, Amount: amount})
}

func (l *MemoryLedger) apply(op string, t Transfer) error {
	if t.Key == "" || t.Party.IsZero() || t.Amount == nil {
		return NewError(op, KindInvalidParameters, "key, party and amount are required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if prev, ok := l.applied[t.Key]; ok {
		_, err := CheckTransfer(op, prev, t)
		return err
	}

	switch t.Kind {
	case TransferDeposit:
		balance := l.balanceOf(t.Party)
		if balance.Lt(t.Amount) {
			return NewError(op, KindInsufficientBalance, "balance %s is below %s", balance.Dec(), t.Amount.Dec())
		}
		balance.Sub(balance, t.Amount)
		l.held.Add(l.held, t.Amount)
	default:
		if l.held.Lt(t.Amount) {
			return NewError(op, KindInsufficientBalance, "escrow holds %s, cannot release %s", l.held.Dec(), t.Amount.Dec())
		}
		l.held.Sub(l.held, t.Amount)
		balance := l.balanceOf(t.Party)
		balance.Add(balance, t.Amount)
	}

	t.Amount = t.Amount.Clone()
	l.applied[t.Key] = t
	return nil
}
