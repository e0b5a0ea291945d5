package models

// Escrow 實體商品成交後的託管紀錄
type Escrow struct {
	AuctionID       string `gorm:"type:varchar(64);primaryKey"`
	Seller          string `gorm:"type:varchar(128);not null"`
	Buyer           string `gorm:"type:varchar(128);not null;index"`
	Amount          string `gorm:"type:varchar(78);not null"`
	Fee             string `gorm:"type:varchar(78);not null"`
	FeeBps          uint64 `gorm:"not null"`
	State           string `gorm:"type:varchar(16);not null"`
	IsActive        bool   `gorm:"not null"`
	TrackingNumber  string `gorm:"type:varchar(255)"`
	ItemReceived    bool   `gorm:"not null"`
	PaymentReleased bool   `gorm:"not null"`
	DisputeReason   string `gorm:"type:text"`
	DisputedBy      string `gorm:"type:varchar(128)"`
	Resolution      string `gorm:"type:varchar(16);not null"`
	FundedAt        int64
	ShippedAt       int64
	ReceivedAt      int64
	ReleasedAt      int64
}
