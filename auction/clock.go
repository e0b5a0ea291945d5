package auction

import "time"

// Clock 提供 UTC 秒數，每次呼叫只讀一次
type Clock interface {
	Now() int64
}

type ClockFunc func() int64

func (f ClockFunc) Now() int64 {
	return f()
}

type SystemClock struct{}

func (SystemClock) Now() int64 {
	return time.Now().UTC().Unix()
}
