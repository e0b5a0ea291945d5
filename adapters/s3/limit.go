package s3

import (
	"fmt"
	"io"
)

// TooLargeError 上傳內容超過大小上限
type TooLargeError struct {
	Limit int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("image exceeds limit of %s", FormatBytes(e.Limit))
}

// ReadLimited 讀完 r，超過 limit 時回傳 *TooLargeError
func ReadLimited(r io.Reader, limit int64) ([]byte, error) {
	// 多讀一個 byte 才能分辨「剛好等於上限」與「超過上限」
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, &TooLargeError{Limit: limit}
	}
	return data, nil
}

var byteUnits = []string{"KB", "MB", "GB", "TB"}

// FormatBytes 以 1024 為底轉成易讀的大小
func FormatBytes(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%d bytes", n)
	}
	value := float64(n) / 1024
	unit := 0
	for value >= 1024 && unit < len(byteUnits)-1 {
		value /= 1024
		unit++
	}
	return fmt.Sprintf("%.2f %s", value, byteUnits[unit])
}
