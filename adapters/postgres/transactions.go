package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bidvault/auction"
	"bidvault/models"
)

// TransactionLog 把 ledger.transfer 事件寫成交易紀錄
type TransactionLog struct {
	db *gorm.DB
}

func NewTransactionLog(db *gorm.DB) (*TransactionLog, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	return &TransactionLog{db: db}, nil
}

// Record 只處理轉帳事件，其他事件略過；相同冪等鍵重複寫入不產生新紀錄。
// 密封押金先以空金額寫入，結算時的補發事件再填上金額。
func (l *TransactionLog) Record(ctx context.Context, evt auction.Event) error {
	const op = "postgres.TransactionLog.Record"
	if evt.Type != auction.EventTransfer {
		return nil
	}
	key := evt.Attributes["key"]
	if key == "" {
		return fmt.Errorf("[%s] transfer event of %s has no key", op, evt.AuctionID)
	}

	record := models.Transaction{
		IdempotencyKey: key,
		AuctionID:      evt.AuctionID,
		Kind:           evt.Attributes["kind"],
		Party:          string(evt.Actor),
		Amount:         evt.Amount,
		OccurredAt:     evt.Time,
	}
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "idempotency_key"}}, DoNothing: true}).
			Create(&record)
		if result.Error != nil {
			return fmt.Errorf("[%s] Fail to insert transaction %s, err=%w", op, key, result.Error)
		}
		if result.RowsAffected > 0 || evt.Amount == "" {
			return nil
		}
		err := tx.Model(&models.Transaction{}).
			Where("idempotency_key = ? AND amount = ?", key, "").
			Update("amount", evt.Amount).Error
		if err != nil {
			return fmt.Errorf("[%s] Fail to disclose transaction %s, err=%w", op, key, err)
		}
		return nil
	})
}

// ListByAuction 依時間與寫入順序回傳拍賣的交易紀錄
func (l *TransactionLog) ListByAuction(ctx context.Context, auctionID string) ([]models.Transaction, error) {
	const op = "postgres.TransactionLog.ListByAuction"
	var rows []models.Transaction
	err := l.db.WithContext(ctx).
		Where("auction_id = ?", auctionID).
		Order("occurred_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to list transactions, err=%w", op, err)
	}
	return rows, nil
}

// ListByParty 錢包的交易紀錄，新到舊，limit <= 0 時不限筆數
func (l *TransactionLog) ListByParty(ctx context.Context, party auction.Address, offset, limit int) ([]models.Transaction, error) {
	const op = "postgres.TransactionLog.ListByParty"
	var rows []models.Transaction
	query := l.db.WithContext(ctx).
		Where("party = ?", string(party)).
		Order("occurred_at DESC").
		Order("id DESC").
		Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("[%s] Fail to list transactions, err=%w", op, err)
	}
	return rows, nil
}
