package models

// Image 商品圖片上傳紀錄，用於每小時上傳次數限制
type Image struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	Uploader  string `gorm:"type:varchar(128);not null;index:idx_image_uploader_time"`
	URL       string `gorm:"type:text;not null"`
	CreatedAt int64  `gorm:"not null;index:idx_image_uploader_time;autoCreateTime:false"`
}
