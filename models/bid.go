package models

// SealedBid 密封出價，每位出價者一筆，重新提交時覆寫
type SealedBid struct {
	AuctionID   string `gorm:"type:varchar(64);primaryKey"`
	Bidder      string `gorm:"type:varchar(128);primaryKey"`
	Amount      string `gorm:"type:varchar(78);not null"`
	SubmittedAt int64  `gorm:"not null"`
	Sequence    uint64 `gorm:"not null"`
}

// Purchase Fixed-Swap 的購買紀錄，依 Sequence 排序
type Purchase struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	AuctionID string `gorm:"type:varchar(64);not null;index"`
	Buyer     string `gorm:"type:varchar(128);not null"`
	Quantity  uint64 `gorm:"not null"`
	Amount    string `gorm:"type:varchar(78);not null"`
	At        int64  `gorm:"not null"`
	Sequence  uint64 `gorm:"not null"`
}
