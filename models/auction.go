package models

import (
	"bidvault/auction"
)

// Auction 拍賣主表；金額以十進位字串儲存，避免 256 位數值在不同資料庫間失真
type Auction struct {
	ID            string `gorm:"type:varchar(64);primaryKey"`
	Type          string `gorm:"type:varchar(16);not null;index"`
	Seller        string `gorm:"type:varchar(128);not null;index"`
	Title         string `gorm:"type:varchar(255);not null"`
	Description   string `gorm:"type:text;not null"`
	StartingPrice string `gorm:"type:varchar(78);not null"`
	ReservePrice  string `gorm:"type:varchar(78)"`
	MinIncrement  string `gorm:"type:varchar(78)"`
	CurrentPrice  string `gorm:"type:varchar(78);not null"`
	HighestBidder string `gorm:"type:varchar(128)"`
	HighestBid    string `gorm:"type:varchar(78);not null"`
	CreatedAt     int64  `gorm:"not null;index;autoCreateTime:false"`
	StartTime     int64  `gorm:"not null"`
	EndTime       int64  `gorm:"not null"`
	Status        string `gorm:"type:varchar(16);not null;index"`
	Outcome       string `gorm:"type:varchar(16);not null"`
	Sequence      uint64 `gorm:"not null"`
	Version       uint64 `gorm:"not null"`

	Item  auction.Item            `gorm:"type:text;serializer:json"`
	Dutch *auction.DutchSchedule  `gorm:"type:text;serializer:json"`
	Fixed *auction.FixedSwapTerms `gorm:"type:text;serializer:json"`

	// 外鍵關聯
	SealedBids []SealedBid `gorm:"foreignKey:AuctionID;constraint:OnDelete:CASCADE"`
	Purchases  []Purchase  `gorm:"foreignKey:AuctionID;constraint:OnDelete:CASCADE"`
	Escrow     *Escrow     `gorm:"foreignKey:AuctionID;constraint:OnDelete:CASCADE"`
}
