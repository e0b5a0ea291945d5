package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"bidvault/adapters/s3"
)

const uploadWindowSeconds = 60 * 60

// Upload an item image, the body is the raw image
// (POST /images)
func (s *Server) UploadImage(c *gin.Context) {
	const op = "UploadImage"
	ctx := c.Request.Context()
	caller := callerFrom(c)
	now := s.clock.Now()

	// 檢查是否達到上傳限制
	if limit := s.options.uploadsPerHour; limit > 0 {
		count, err := s.imageLog.CountSince(ctx, caller, now-uploadWindowSeconds)
		if err != nil {
			s.writeError(c, op, err)
			return
		}
		if count >= limit {
			s.metrics.observeRejectedUpload("rate_limited")
			c.JSON(http.StatusTooManyRequests, errorResponse{Message: "image upload limit reached, try again later"})
			return
		}
	}

	// 限制圖片
	// 	1. 小於5MB
	// 	2. MIME類型為不包含腳本的圖片檔案
	url, err := s.images.Upload(ctx, c.Request.Body)
	var tooLarge *s3.TooLargeError
	switch {
	case errors.As(err, &tooLarge):
		s.metrics.observeRejectedUpload("too_large")
		c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Message: err.Error()})
		return
	case errors.Is(err, s3.ErrUnsupportedImage):
		s.metrics.observeRejectedUpload("unsupported_type")
		badRequest(c, err.Error())
		return
	case err != nil:
		s.writeError(c, op, err)
		return
	}

	// 在DB紀錄圖片的上傳紀錄
	if err := s.imageLog.Record(ctx, caller, url, now); err != nil {
		s.writeError(c, op, err)
		return
	}
	s.logger.Info("Image uploaded", slog.String("uploader", caller.String()), slog.String("url", url))
	c.Header("Location", url)
	c.JSON(http.StatusCreated, imageResponse{URL: url})
}
