package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bidvault/auction"
	"bidvault/models"
)

// Open 連線到 postgres 並 migrate 所有 model
func Open(dsn string) (*gorm.DB, error) {
	const op = "postgres.Open"
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to connect database, err=%w", op, err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	const op = "postgres.Migrate"
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("[%s] Fail to migrate, err=%w", op, err)
	}
	return nil
}

// Store 以 gorm 實作 auction.Store
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

var _ auction.Store = (*Store)(nil)

func NewStore(db *gorm.DB, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger.With(slog.String("caller", "postgres.Store"))}, nil
}

func (s *Store) withChildren(tx *gorm.DB) *gorm.DB {
	return tx.
		Preload("SealedBids").
		Preload("Purchases", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		Preload("Escrow")
}

func (s *Store) Create(ctx context.Context, a *auction.Auction) error {
	const op = "postgres.Store.Create"
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Auction{}).Where("id = ?", a.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("[%s] Fail to check auction, err=%w", op, err)
		}
		if count > 0 {
			return auction.NewError(op, auction.KindConflict, "auction %s already exists", a.ID)
		}

		a.Version = 1
		m := toModel(a)
		if err := tx.Omit(clause.Associations).Create(m).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return auction.NewError(op, auction.KindConflict, "auction %s already exists", a.ID)
			}
			return fmt.Errorf("[%s] Fail to create auction, err=%w", op, err)
		}
		return s.replaceChildren(tx, op, m)
	})
}

func (s *Store) Get(ctx context.Context, id string) (*auction.Auction, error) {
	const op = "postgres.Store.Get"
	var m models.Auction
	err := s.withChildren(s.db.WithContext(ctx)).Where("id = ?", id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, auction.NewError(op, auction.KindNotFound, "auction %s not found", id)
		}
		return nil, fmt.Errorf("[%s] Fail to query auction, err=%w", op, err)
	}
	return fromModel(&m)
}

// Update 以 version 做條件更新，子表整批替換
func (s *Store) Update(ctx context.Context, a *auction.Auction) error {
	const op = "postgres.Store.Update"
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m := toModel(a)
		m.Version = a.Version + 1

		result := tx.Model(&models.Auction{}).
			Where("id = ? AND version = ?", a.ID, a.Version).
			Select("*").
			Omit(clause.Associations).
			Updates(m)
		if result.Error != nil {
			return fmt.Errorf("[%s] Fail to update auction, err=%w", op, result.Error)
		}
		if result.RowsAffected == 0 {
			var stored models.Auction
			if err := tx.Select("version").Where("id = ?", a.ID).First(&stored).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return auction.NewError(op, auction.KindNotFound, "auction %s not found", a.ID)
				}
				return fmt.Errorf("[%s] Fail to query auction, err=%w", op, err)
			}
			return auction.NewError(op, auction.KindConflict, "auction %s version %d, stored %d", a.ID, a.Version, stored.Version)
		}
		return s.replaceChildren(tx, op, m)
	})
	if err != nil {
		return err
	}
	a.Version++
	return nil
}

func (s *Store) replaceChildren(tx *gorm.DB, op string, m *models.Auction) error {
	if err := tx.Where("auction_id = ?", m.ID).Delete(&models.SealedBid{}).Error; err != nil {
		return fmt.Errorf("[%s] Fail to clear sealed bids, err=%w", op, err)
	}
	if len(m.SealedBids) > 0 {
		if err := tx.Create(&m.SealedBids).Error; err != nil {
			return fmt.Errorf("[%s] Fail to save sealed bids, err=%w", op, err)
		}
	}

	if err := tx.Where("auction_id = ?", m.ID).Delete(&models.Purchase{}).Error; err != nil {
		return fmt.Errorf("[%s] Fail to clear purchases, err=%w", op, err)
	}
	if len(m.Purchases) > 0 {
		if err := tx.Create(&m.Purchases).Error; err != nil {
			return fmt.Errorf("[%s] Fail to save purchases, err=%w", op, err)
		}
	}

	if m.Escrow != nil {
		if err := tx.Save(m.Escrow).Error; err != nil {
			return fmt.Errorf("[%s] Fail to save escrow, err=%w", op, err)
		}
	}
	return nil
}

func (s *Store) List(ctx context.Context, filter auction.ListFilter) ([]*auction.Auction, error) {
	const op = "postgres.Store.List"
	query := s.withChildren(s.db.WithContext(ctx)).Model(&models.Auction{})
	switch {
	case filter.Status == 0:
	case filter.Now > 0 && filter.Status == auction.StatusPending:
		query = query.Where("status = ? AND start_time > ?", auction.StatusPending.String(), filter.Now)
	case filter.Now > 0 && filter.Status == auction.StatusActive:
		// 到了開始時間但還沒被寫回的 pending 也算 active
		query = query.Where("(status = ? OR (status = ? AND start_time <= ?))",
			auction.StatusActive.String(), auction.StatusPending.String(), filter.Now)
	default:
		query = query.Where("status = ?", filter.Status.String())
	}
	if filter.Type != 0 {
		query = query.Where("type = ?", filter.Type.String())
	}
	if !filter.Seller.IsZero() {
		query = query.Where("seller = ?", string(filter.Seller))
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []models.Auction
	if err := query.Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("[%s] Fail to list auctions, err=%w", op, err)
	}

	out := make([]*auction.Auction, 0, len(rows))
	for i := range rows {
		a, err := fromModel(&rows[i])
		if err != nil {
			s.logger.Error("skipping unreadable auction", slog.String("auctionID", rows[i].ID), slog.Any("error", err))
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
