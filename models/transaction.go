package models

// Transaction 交易紀錄，由事件 worker 寫入。
// IdempotencyKey 為帳本的冪等鍵，重複投遞的事件不會產生第二筆。
type Transaction struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement"`
	IdempotencyKey string `gorm:"type:varchar(255);not null;uniqueIndex"`
	AuctionID      string `gorm:"type:varchar(64);not null;index"`
	Kind           string `gorm:"type:varchar(16);not null"`
	Party          string `gorm:"type:varchar(128);not null;index"`
	Amount         string `gorm:"type:varchar(78);not null"`
	OccurredAt     int64  `gorm:"not null"`
}
