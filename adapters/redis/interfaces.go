package redis

import (
	"context"
)

// IProducer 定義了 Producer 的操作介面
type IProducer[T any] interface {
	Start()
	Publish(data T) error
	Close()
}

// IGroupConsumer 定義了 GroupConsumer 的操作介面
type IGroupConsumer[T any] interface {
	Start(handler Handler[T]) error
	Close() error
}

// IAutoRenewMutex 定義了 AutoRenewMutex 的操作介面
type IAutoRenewMutex interface {
	Lock(ctx context.Context) (context.Context, error)
	Unlock() (bool, error)
	Valid() bool
}

var (
	_ IProducer[struct{}]      = (*Producer[struct{}])(nil)
	_ IGroupConsumer[struct{}] = (*GroupConsumer[struct{}])(nil)
	_ IAutoRenewMutex          = (*AutoRenewMutex)(nil)
)
