package redis

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"

	"bidvault/auction"
)

// Locker 以 AutoRenewMutex 實作跨實例的拍賣鎖，key 為 <prefix>auction:<id>:lock
type Locker struct {
	rs      *redsync.Redsync
	prefix  string
	options autoRenewMutexOptions
	logger  *slog.Logger
}

var _ auction.Locker = (*Locker)(nil)

type LockerOption func(*Locker)

// WithLockerPrefix 設置 key 前綴
func WithLockerPrefix(prefix string) LockerOption {
	return func(l *Locker) {
		l.prefix = prefix
	}
}

// WithLockerLogger 設置日誌記錄器
func WithLockerLogger(logger *slog.Logger) LockerOption {
	return func(l *Locker) {
		l.logger = logger
	}
}

// WithLockerMutexOptions 傳入 AutoRenewMutex 的選項
func WithLockerMutexOptions(opts ...AutoRenewMutexOption) LockerOption {
	return func(l *Locker) {
		l.options = buildAutoRenewMutexOptions(opts)
	}
}

func NewLocker(client *redis.Client, opts ...LockerOption) (*Locker, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	l := &Locker{
		rs:      redsync.New(goredis.NewPool(client)),
		options: buildAutoRenewMutexOptions(nil),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(slog.String("caller", "Locker"))
	return l, nil
}

func (l *Locker) key(id string) string {
	return l.prefix + "auction:" + id + ":lock"
}

func (l *Locker) Lock(ctx context.Context, id string) (context.Context, func(), error) {
	mutex := newAutoRenewMutex(l.rs, l.key(id), l.options)
	lockCtx, err := mutex.Lock(ctx)
	if err != nil {
		return nil, nil, err
	}
	return lockCtx, func() {
		if ok, err := mutex.Unlock(); err != nil || !ok {
			l.logger.Warn("Fail to release auction lock",
				slog.String("auctionID", id),
				slog.Bool("released", ok),
				slog.Any("error", err),
			)
		}
	}, nil
}
