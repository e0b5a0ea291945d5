package auction

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// ListFilter 零值欄位代表不過濾
type ListFilter struct {
	Status Status
	Type   Type
	Seller Address
	Limit  int
	Offset int
	// Now 不為 0 時，已到開始時間的 pending 拍賣視為 active
	Now int64
}

// EffectiveStatus 尚未寫回的開始狀態也算進去
func (f ListFilter) EffectiveStatus(a *Auction) Status {
	if f.Now > 0 && a.Status == StatusPending && f.Now >= a.StartTime {
		return StatusActive
	}
	return a.Status
}

func (f ListFilter) Match(a *Auction) bool {
	if f.Status != 0 && f.EffectiveStatus(a) != f.Status {
		return false
	}
	if f.Type != 0 && a.Type != f.Type {
		return false
	}
	if !f.Seller.IsZero() && a.Seller != f.Seller {
		return false
	}
	return true
}

// Store 持久化拍賣紀錄。
// Update 以 Version 做樂觀鎖，成功後 Version 加一。
type Store interface {
	Create(ctx context.Context, a *Auction) error
	Get(ctx context.Context, id string) (*Auction, error)
	Update(ctx context.Context, a *Auction) error
	List(ctx context.Context, filter ListFilter) ([]*Auction, error)
}

type MemoryStore struct {
	mu       sync.RWMutex
	auctions map[string]*Auction
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{auctions: make(map[string]*Auction)}
}

func (s *MemoryStore) Create(_ context.Context, a *Auction) error {
	const op = "MemoryStore.Create"
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.auctions[a.ID]; ok {
		return NewError(op, KindConflict, "auction %s already exists", a.ID)
	}
	a.Version = 1
	s.auctions[a.ID] = a.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Auction, error) {
	const op = "MemoryStore.Get"
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.auctions[id]
	if !ok {
		return nil, NewError(op, KindNotFound, "auction %s not found", id)
	}
	return a.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, a *Auction) error {
	const op = "MemoryStore.Update"
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.auctions[a.ID]
	if !ok {
		return NewError(op, KindNotFound, "auction %s not found", a.ID)
	}
	if stored.Version != a.Version {
		return NewError(op, KindConflict, "auction %s version %d, stored %d", a.ID, a.Version, stored.Version)
	}
	a.Version++
	s.auctions[a.ID] = a.Clone()
	return nil
}

func (s *MemoryStore) List(_ context.Context, filter ListFilter) ([]*Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Auction, 0)
	for _, a := range s.auctions {
		if filter.Match(a) {
			out = append(out, a.Clone())
		}
	}
	SortAuctions(out)
	return Paginate(out, filter), nil
}

// SortAuctions 依建立時間新到舊排序
func SortAuctions(list []*Auction) {
	slices.SortFunc(list, func(x, y *Auction) int {
		if x.CreatedAt != y.CreatedAt {
			if x.CreatedAt > y.CreatedAt {
				return -1
			}
			return 1
		}
		return strings.Compare(y.ID, x.ID)
	})
}

func Paginate(list []*Auction, filter ListFilter) []*Auction {
	if filter.Offset > 0 {
		if filter.Offset >= len(list) {
			return []*Auction{}
		}
		list = list[filter.Offset:]
	}
	if filter.Limit > 0 && len(list) > filter.Limit {
		list = list[:filter.Limit]
	}
	return list
}
