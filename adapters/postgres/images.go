package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"bidvault/auction"
	"bidvault/models"
)

// ImageLog 記錄商品圖片上傳
type ImageLog struct {
	db *gorm.DB
}

func NewImageLog(db *gorm.DB) (*ImageLog, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	return &ImageLog{db: db}, nil
}

// CountSince 回傳 uploader 在 since(含) 之後上傳的張數
func (l *ImageLog) CountSince(ctx context.Context, uploader auction.Address, since int64) (int64, error) {
	const op = "postgres.ImageLog.CountSince"
	var count int64
	err := l.db.WithContext(ctx).
		Model(&models.Image{}).
		Where("uploader = ? AND created_at >= ?", string(uploader), since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("[%s] Fail to count uploaded images, err=%w", op, err)
	}
	return count, nil
}

func (l *ImageLog) Record(ctx context.Context, uploader auction.Address, url string, at int64) error {
	const op = "postgres.ImageLog.Record"
	image := models.Image{
		Uploader:  string(uploader),
		URL:       url,
		CreatedAt: at,
	}
	if err := l.db.WithContext(ctx).Create(&image).Error; err != nil {
		return fmt.Errorf("[%s] Fail to create image, err=%w", op, err)
	}
	return nil
}
