package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"bidvault/auction"
)

// CachedStore 以 redis hash 快取拍賣快照，寫入時同步更新 (write-through)。
// 持久化仍由內層 Store 負責，快取失效不影響正確性。
type CachedStore struct {
	inner   auction.Store
	client  *redis.Client
	logger  *slog.Logger
	options StoreOptions
}

var _ auction.Store = (*CachedStore)(nil)

// StoreOptions 定義了 CachedStore 的配置選項
type StoreOptions struct {
	Prefix string
	TTL    time.Duration
	Logger *slog.Logger
}

type StoreOption func(*StoreOptions)

// WithStorePrefix 設定 key 前綴
func WithStorePrefix(prefix string) StoreOption {
	return func(o *StoreOptions) {
		o.Prefix = prefix
	}
}

// WithStoreTTL 設定快照過期時間
func WithStoreTTL(ttl time.Duration) StoreOption {
	return func(o *StoreOptions) {
		o.TTL = ttl
	}
}

// WithStoreLogger 設置日誌記錄器
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(o *StoreOptions) {
		o.Logger = logger
	}
}

// NewCachedStore 建立一個包裝 inner 的快取 Store
func NewCachedStore(inner auction.Store, client *redis.Client, opts ...StoreOption) (*CachedStore, error) {
	if inner == nil {
		return nil, errors.New("inner store cannot be nil")
	}
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}

	// 默認選項
	options := StoreOptions{
		TTL:    10 * time.Minute,
		Logger: slog.Default(),
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	return &CachedStore{
		inner:   inner,
		client:  client,
		logger:  options.Logger.With(slog.String("caller", "CachedStore")),
		options: options,
	}, nil
}

func (s *CachedStore) key(id string) string {
	return s.options.Prefix + "auction:" + id + ":snapshot"
}

// saveScript 原子性地刪除並設定新的 hash 欄位
// 只在新版本不小於快取中的版本時寫入，避免較舊的快照覆蓋較新的
var saveScript = redis.NewScript(`
local key = KEYS[1]
local version = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])
local cached = tonumber(redis.call('HGET', key, 'version') or '0')
if cached > version then
    return 0
end
redis.call('DEL', key)
redis.call('HSET', key, 'version', ARGV[1], 'data', ARGV[3])
if ttl > 0 then
    redis.call('PEXPIRE', key, ttl)
end
return 1
`)

// load 從快取讀取，未命中時回傳 nil
func (s *CachedStore) load(ctx context.Context, id string) (*auction.Auction, error) {
	const op = "redis.CachedStore.load"
	result, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to get hash, err=%w", op, err)
	}
	// key 不存在時 redis 回傳空 map
	if len(result) == 0 {
		return nil, nil
	}
	a, err := DecodeSnapshot(result["data"])
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to decode snapshot, err=%w", op, err)
	}
	return a, nil
}

func (s *CachedStore) save(ctx context.Context, a *auction.Auction) {
	data, err := EncodeSnapshot(a)
	if err != nil {
		s.logger.Warn("Fail to encode snapshot", slog.String("auctionID", a.ID), slog.Any("error", err))
		return
	}
	err = saveScript.Run(ctx, s.client, []string{s.key(a.ID)},
		strconv.FormatUint(a.Version, 10),
		s.options.TTL.Milliseconds(),
		data,
	).Err()
	if err != nil {
		s.logger.Warn("Fail to save snapshot", slog.String("auctionID", a.ID), slog.Any("error", err))
	}
}

func (s *CachedStore) invalidate(ctx context.Context, id string) {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		s.logger.Warn("Fail to invalidate snapshot", slog.String("auctionID", id), slog.Any("error", err))
	}
}

func (s *CachedStore) Create(ctx context.Context, a *auction.Auction) error {
	if err := s.inner.Create(ctx, a); err != nil {
		return err
	}
	s.save(ctx, a)
	return nil
}

func (s *CachedStore) Get(ctx context.Context, id string) (*auction.Auction, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		s.logger.Warn("cache unavailable, falling back", slog.String("auctionID", id), slog.Any("error", err))
	}
	if a != nil {
		return a, nil
	}

	a, err = s.inner.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.save(ctx, a)
	return a, nil
}

func (s *CachedStore) Update(ctx context.Context, a *auction.Auction) error {
	if err := s.inner.Update(ctx, a); err != nil {
		// 版本衝突代表快取可能已過時
		if auction.KindOf(err) == auction.KindConflict {
			s.invalidate(ctx, a.ID)
		}
		return err
	}
	s.save(ctx, a)
	return nil
}

// List 直接查詢內層 Store
func (s *CachedStore) List(ctx context.Context, filter auction.ListFilter) ([]*auction.Auction, error) {
	return s.inner.List(ctx, filter)
}
