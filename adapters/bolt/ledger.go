package bolt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/holiman/uint256"
	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"

	"bidvault/auction"
)

var (
	bucketBalances  = []byte("balances")
	bucketTransfers = []byte("transfers")
	bucketMeta      = []byte("meta")

	keyHeld = []byte("held")
)

// transferRecord 以冪等鍵儲存的轉帳紀錄
type transferRecord struct {
	Kind      auction.TransferKind `msgpack:"kind"`
	Party     string               `msgpack:"party"`
	Amount    []byte               `msgpack:"amount"`
	AppliedAt int64                `msgpack:"appliedAt"`
}

func (r transferRecord) toTransfer(key string) auction.Transfer {
	return auction.Transfer{
		Kind:   r.Kind,
		Key:    key,
		Party:  auction.Address(r.Party),
		Amount: new(uint256.Int).SetBytes(r.Amount),
	}
}

// Ledger 以 bbolt 實作的帳本；每個冪等鍵在同一個 transaction 內檢查並寫入
type Ledger struct {
	db     *bbolt.DB
	clock  auction.Clock
	logger *slog.Logger
}

var _ auction.Ledger = (*Ledger)(nil)

type LedgerOption func(*Ledger)

// WithLedgerClock 設置紀錄時間來源
func WithLedgerClock(clock auction.Clock) LedgerOption {
	return func(l *Ledger) {
		l.clock = clock
	}
}

// WithLedgerLogger 設置日誌記錄器
func WithLedgerLogger(logger *slog.Logger) LedgerOption {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// Open 開啟 (或建立) 帳本檔案並確保 bucket 存在
func Open(path string, opts ...LedgerOption) (*Ledger, error) {
	const op = "bolt.Open"
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to open %s, err=%w", op, path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketBalances, bucketTransfers, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("[%s] Fail to create buckets, err=%w", op, err)
	}

	l := &Ledger{
		db:     db,
		clock:  auction.SystemClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(slog.String("caller", "bolt.Ledger"))
	return l, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

func readAmount(b *bbolt.Bucket, key []byte) *uint256.Int {
	return new(uint256.Int).SetBytes(b.Get(key))
}

func writeAmount(b *bbolt.Bucket, key []byte, v *uint256.Int) error {
	buf := v.Bytes32()
	return b.Put(key, buf[:])
}

// Credit 入金，由帳本營運者呼叫
func (l *Ledger) Credit(party auction.Address, amount *uint256.Int) error {
	const op = "bolt.Ledger.Credit"
	if party.IsZero() || amount == nil {
		return auction.NewError(op, auction.KindInvalidParameters, "party and amount are required")
	}
	return l.db.Update(func(tx *bbolt.Tx) error {
		balances := tx.Bucket(bucketBalances)
		balance := readAmount(balances, []byte(party))
		sum, overflow := new(uint256.Int).AddOverflow(balance, amount)
		if overflow {
			return auction.NewError(op, auction.KindInvalidParameters, "balance of %s overflows", party)
		}
		return writeAmount(balances, []byte(party), sum)
	})
}

func (l *Ledger) Balance(party auction.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := l.db.View(func(tx *bbolt.Tx) error {
		out = readAmount(tx.Bucket(bucketBalances), []byte(party))
		return nil
	})
	return out, err
}

// Held 目前託管中的總額
func (l *Ledger) Held() (*uint256.Int, error) {
	var out *uint256.Int
	err := l.db.View(func(tx *bbolt.Tx) error {
		out = readAmount(tx.Bucket(bucketMeta), keyHeld)
		return nil
	})
	return out, err
}

// Transfer 依冪等鍵查詢已套用的轉帳
func (l *Ledger) Transfer(key string) (auction.Transfer, bool, error) {
	var (
		out   auction.Transfer
		found bool
	)
	err := l.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketTransfers).Get([]byte(key))
		if raw == nil {
			return nil
		}
		var rec transferRecord
		if err := msgpack.Unmarshal(raw, &rec); err != nil {
			return err
		}
		out, found = rec.toTransfer(key), true
		return nil
	})
	return out, found, err
}

func (l *Ledger) Deposit(ctx context.Context, key string, payer auction.Address, amount *uint256.Int) error {
	const op = "bolt.Ledger.Deposit"
	return l.apply(ctx, op, auction.Transfer{Kind: auction.TransferDeposit, Key: key, Party: payer, Amount: amount})
}

func (l *Ledger) Payout(ctx context.Context, key string, recipient auction.Address, amount *uint256.Int) error {
	const op = "bolt.Ledger.Payout"
	return l.apply(ctx, op, auction.Transfer{Kind: auction.TransferPayout, Key: key, Party: recipient, Amount: amount})
}

func (l *Ledger) Refund(ctx context.Context, key string, payer auction.Address, amount *uint256.Int) error {
	const op = "bolt.Ledger.Refund"
	return l.apply(ctx, op, auction.Transfer{Kind: auction.TransferRefund, Key: key, Party: payer, Amount: amount})
}

func (l *Ledger) apply(ctx context.Context, op string, t auction.Transfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.Key == "" || t.Party.IsZero() || t.Amount == nil {
		return auction.NewError(op, auction.KindInvalidParameters, "key, party and amount are required")
	}

	replayed := false
	err := l.db.Update(func(tx *bbolt.Tx) error {
		transfers := tx.Bucket(bucketTransfers)
		if raw := transfers.Get([]byte(t.Key)); raw != nil {
			var rec transferRecord
			if err := msgpack.Unmarshal(raw, &rec); err != nil {
				return fmt.Errorf("[%s] Fail to decode transfer %s, err=%w", op, t.Key, err)
			}
			ok, err := auction.CheckTransfer(op, rec.toTransfer(t.Key), t)
			replayed = ok
			return err
		}

		balances := tx.Bucket(bucketBalances)
		meta := tx.Bucket(bucketMeta)
		balance := readAmount(balances, []byte(t.Party))
		held := readAmount(meta, keyHeld)

		switch t.Kind {
		case auction.TransferDeposit:
			if balance.Lt(t.Amount) {
				return auction.NewError(op, auction.KindInsufficientBalance, "balance %s is below %s", balance.Dec(), t.Amount.Dec())
			}
			balance.Sub(balance, t.Amount)
			held.Add(held, t.Amount)
		case auction.TransferPayout, auction.TransferRefund:
			if held.Lt(t.Amount) {
				return auction.NewError(op, auction.KindInsufficientBalance, "escrow holds %s, cannot release %s", held.Dec(), t.Amount.Dec())
			}
			held.Sub(held, t.Amount)
			balance.Add(balance, t.Amount)
		default:
			return auction.NewError(op, auction.KindInvalidParameters, "unknown transfer kind %d", t.Kind)
		}

		amount := t.Amount.Bytes32()
		raw, err := msgpack.Marshal(transferRecord{
			Kind:      t.Kind,
			Party:     string(t.Party),
			Amount:    amount[:],
			AppliedAt: l.clock.Now(),
		})
		if err != nil {
			return err
		}
		if err := transfers.Put([]byte(t.Key), raw); err != nil {
			return err
		}
		if err := writeAmount(balances, []byte(t.Party), balance); err != nil {
			return err
		}
		return writeAmount(meta, keyHeld, held)
	})
	if err != nil {
		var domainErr *auction.Error
		if errors.As(err, &domainErr) {
			return err
		}
		return fmt.Errorf("[%s] Fail to apply %s, err=%w", op, t.Key, err)
	}
	if replayed {
		l.logger.Debug("transfer replayed", slog.String("key", t.Key))
	}
	return nil
}
