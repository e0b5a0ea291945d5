package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Handler 處理單則消息；回傳錯誤時消息會被移到 dead-letter stream
type Handler[T any] func(ctx context.Context, data T) error

type GroupConsumer[T any] struct {
	client     *redis.Client
	stream     string
	group      string
	consumer   string
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.Mutex
	closed     bool
	logger     *slog.Logger
	mutex      IAutoRenewMutex
	options    groupConsumerOptions[T]
}

type groupConsumerOptions[T any] struct {
	logger         *slog.Logger
	parseFunc      func(map[string]any) (T, error)
	batchSize      int64
	blockTimeout   time.Duration
	mutex          IAutoRenewMutex
	strictOrdering bool
}

type GroupConsumerOption[T any] func(*groupConsumerOptions[T])

// WithGroupConsumerLogger 設置日誌記錄器
func WithGroupConsumerLogger[T any](logger *slog.Logger) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.logger = logger
	}
}

// WithGroupConsumerParseFunc 設置消息解析函數
func WithGroupConsumerParseFunc[T any](fn func(map[string]any) (T, error)) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.parseFunc = fn
	}
}

// WithGroupConsumerBatchSize 每次讀取的消息數
func WithGroupConsumerBatchSize[T any](n int64) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.batchSize = n
	}
}

// WithGroupConsumerBlockTimeout 設置阻塞讀取超時時間
func WithGroupConsumerBlockTimeout[T any](d time.Duration) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.blockTimeout = d
	}
}

// WithGroupConsumerMutex 注入 mutex，主要用於測試
func WithGroupConsumerMutex[T any](mutex IAutoRenewMutex) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.mutex = mutex
	}
}

// WithGroupConsumerStrictOrdering 同一 group 同時只有一個 consumer 在處理
func WithGroupConsumerStrictOrdering[T any](strict bool) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.strictOrdering = strict
	}
}

func NewGroupConsumer[T any](
	client *redis.Client,
	stream, group, consumer string,
	opts ...GroupConsumerOption[T],
) (*GroupConsumer[T], error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" || group == "" || consumer == "" {
		return nil, errors.New("stream, group and consumer cannot be empty")
	}

	// 默認選項
	options := groupConsumerOptions[T]{
		logger:       slog.Default(),
		parseFunc:    DefaultParseFromMessage[T],
		batchSize:    10,
		blockTimeout: time.Second,
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	gc := &GroupConsumer[T]{
		client:   client,
		stream:   stream,
		group:    group,
		consumer: consumer,
		closed:   true,
		logger: options.logger.With(
			slog.String("caller", "GroupConsumer"),
			slog.String("stream", stream),
			slog.String("group", group),
			slog.String("consumer", consumer),
		),
		options: options,
	}

	if options.strictOrdering {
		gc.mutex = options.mutex
		if gc.mutex == nil {
			gc.mutex = NewAutoRenewMutex(client, fmt.Sprintf("lock:%s:%s", stream, group), WithAutoRenewMutexSkipLockError(true))
		}
	}
	return gc, nil
}

func (c *GroupConsumer[T]) deadLetterStream() string {
	return c.stream + ":dead-letter"
}

// ensureGroup 建立 consumer group，已存在時忽略
func (c *GroupConsumer[T]) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// Start 建立 group 並在背景以 handler 處理消息
func (c *GroupConsumer[T]) Start(handler Handler[T]) error {
	const op = "GroupConsumer.Start"
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		return nil
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := c.ensureGroup(ctx); err != nil {
		cancel()
		return fmt.Errorf("[%s] Fail to create consumer group, err=%w", op, err)
	}
	c.cancelFunc = cancel
	c.closed = false
	c.logger.Info("starting group consumer")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.logger.Info("group consumer goroutine stopped")

		for ctx.Err() == nil {
			workCtx := ctx
			if c.options.strictOrdering {
				var err error
				// workCtx 會在失去鎖時被取消
				workCtx, err = c.mutex.Lock(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					c.logger.Error("failed to acquire lock", slog.Any("error", err))
					continue
				}
			}

			err := c.consume(workCtx, handler)
			if c.options.strictOrdering {
				c.mutex.Unlock()
			}
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				c.logger.Error("error processing messages, restarting", slog.Any("error", err))
			}
		}
	}()
	return nil
}

func (c *GroupConsumer[T]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.logger.Info("closing group consumer")
	c.closed = true
	c.cancelFunc()
	c.mu.Unlock()

	c.wg.Wait()
	c.logger.Info("group consumer closed gracefully")
	return nil
}

// consume 先處理本 consumer 尚未 ack 的消息，再讀新消息
func (c *GroupConsumer[T]) consume(ctx context.Context, handler Handler[T]) error {
	for {
		n, err := c.read(ctx, "0", handler)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
	}
	for {
		if _, err := c.read(ctx, ">", handler); err != nil {
			return err
		}
	}
}

func (c *GroupConsumer[T]) read(ctx context.Context, id string, handler Handler[T]) (int, error) {
	block := c.options.blockTimeout
	if id != ">" {
		block = -1
	}
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, id},
		Count:    c.options.batchSize,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("xreadgroup: %w", err)
	}

	count := 0
	for _, s := range streams {
		for _, message := range s.Messages {
			if err := c.process(ctx, message, handler); err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}

// process 成功則 ack；解析或處理失敗的消息重試也不會成功，移到 dead-letter
func (c *GroupConsumer[T]) process(ctx context.Context, message redis.XMessage, handler Handler[T]) error {
	logger := c.logger.With(slog.String("messageId", message.ID))

	data, err := c.options.parseFunc(message.Values)
	if err != nil {
		logger.Error("failed to parse message", slog.Any("error", err))
		return c.moveToDeadLetter(ctx, message, err)
	}

	if err := handler(ctx, data); err != nil {
		if ctx.Err() != nil {
			// 留在 pending，下一輪優先處理
			return ctx.Err()
		}
		logger.Error("failed to handle message", slog.Any("error", err))
		return c.moveToDeadLetter(ctx, message, err)
	}

	if err := c.client.XAck(ctx, c.stream, c.group, message.ID).Err(); err != nil {
		return fmt.Errorf("failed to ack message %s: %w", message.ID, err)
	}
	return nil
}

func (c *GroupConsumer[T]) moveToDeadLetter(ctx context.Context, message redis.XMessage, cause error) error {
	values := make(map[string]any, len(message.Values)+1)
	for k, v := range message.Values {
		values[k] = v
	}
	values["error"] = cause.Error()

	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.deadLetterStream(),
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("failed to move message to dead letter queue: %w", err)
	}
	return c.client.XAck(ctx, c.stream, c.group, message.ID).Err()
}
