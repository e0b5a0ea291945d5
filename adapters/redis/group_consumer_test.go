package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestNewGroupConsumer(t *testing.T) {
	tests := []struct {
		name     string
		client   *redis.Client
		stream   string
		group    string
		consumer string
		errMsg   string
	}{
		{
			name:     "valid configuration",
			client:   redis.NewClient(&redis.Options{}),
			stream:   "s",
			group:    "g",
			consumer: "c",
		},
		{
			name:     "nil client",
			stream:   "s",
			group:    "g",
			consumer: "c",
			errMsg:   "redis client cannot be nil",
		},
		{
			name:     "empty group",
			client:   redis.NewClient(&redis.Options{}),
			stream:   "s",
			consumer: "c",
			errMsg:   "stream, group and consumer cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer goleak.VerifyNone(t)

			gc, err := NewGroupConsumer[TestMessage](tt.client, tt.stream, tt.group, tt.consumer)
			if tt.errMsg != "" {
				assert.EqualError(t, err, tt.errMsg)
				assert.Nil(t, gc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, gc)
			}
			if tt.client != nil {
				tt.client.Close()
			}
		})
	}
}

func publishTestMessages(t *testing.T, client *redis.Client, stream string, msgs ...TestMessage) {
	t.Helper()
	for _, msg := range msgs {
		values, err := DefaultParseToMessage(msg)
		require.NoError(t, err)
		require.NoError(t, client.XAdd(context.Background(), &redis.XAddArgs{Stream: stream, Values: values}).Err())
	}
}

type collector struct {
	mu   sync.Mutex
	seen []string
}

func (c *collector) handle(_ context.Context, msg TestMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, msg.ID)
	return nil
}

func (c *collector) ids() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.seen...)
}

func TestGroupConsumer_StartStop(t *testing.T) {
	t.Run("start creates the group", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		_, client, cleanup := setupMiniredis(t)
		defer cleanup()

		gc, err := NewGroupConsumer[TestMessage](client, "s", "g", "c",
			WithGroupConsumerBlockTimeout[TestMessage](50*time.Millisecond))
		require.NoError(t, err)

		c := &collector{}
		require.NoError(t, gc.Start(c.handle))
		require.NoError(t, gc.Start(c.handle)) // no-op

		// 不存在的 group 會回傳 NOGROUP
		_, err = client.XPending(context.Background(), "s", "g").Result()
		assert.NoError(t, err)

		assert.NoError(t, gc.Close())
		assert.NoError(t, gc.Close())
	})

	t.Run("existing group is reused", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		_, client, cleanup := setupMiniredis(t)
		defer cleanup()

		require.NoError(t, client.XGroupCreateMkStream(context.Background(), "s", "g", "0").Err())

		gc, err := NewGroupConsumer[TestMessage](client, "s", "g", "c",
			WithGroupConsumerBlockTimeout[TestMessage](50*time.Millisecond))
		require.NoError(t, err)
		require.NoError(t, gc.Start((&collector{}).handle))
		assert.NoError(t, gc.Close())
	})

	t.Run("nil handler", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		_, client, cleanup := setupMiniredis(t)
		defer cleanup()

		gc, err := NewGroupConsumer[TestMessage](client, "s", "g", "c")
		require.NoError(t, err)
		assert.Error(t, gc.Start(nil))
	})
}

func TestGroupConsumer_MessageProcessing(t *testing.T) {
	t.Run("handles and acks messages in order", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		_, client, cleanup := setupMiniredis(t)
		defer cleanup()

		gc, err := NewGroupConsumer[TestMessage](client, "s", "g", "c",
			WithGroupConsumerBlockTimeout[TestMessage](50*time.Millisecond),
			WithGroupConsumerBatchSize[TestMessage](2))
		require.NoError(t, err)

		c := &collector{}
		require.NoError(t, gc.Start(c.handle))

		for i := 0; i < 5; i++ {
			publishTestMessages(t, client, "s", TestMessage{ID: fmt.Sprint(i)})
		}

		assert.Eventually(t, func() bool { return len(c.ids()) == 5 }, 2*time.Second, 10*time.Millisecond)
		require.NoError(t, gc.Close())

		assert.Equal(t, []string{"0", "1", "2", "3", "4"}, c.ids())
		pending, err := client.XPending(context.Background(), "s", "g").Result()
		require.NoError(t, err)
		assert.Zero(t, pending.Count)
	})

	t.Run("failed messages go to dead letter", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		_, client, cleanup := setupMiniredis(t)
		defer cleanup()

		gc, err := NewGroupConsumer[TestMessage](client, "s", "g", "c",
			WithGroupConsumerBlockTimeout[TestMessage](50*time.Millisecond))
		require.NoError(t, err)

		c := &collector{}
		require.NoError(t, gc.Start(func(ctx context.Context, msg TestMessage) error {
			if msg.ID == "bad" {
				return errors.New("boom")
			}
			return c.handle(ctx, msg)
		}))

		publishTestMessages(t, client, "s", TestMessage{ID: "bad"}, TestMessage{ID: "good"})

		assert.Eventually(t, func() bool { return len(c.ids()) == 1 }, 2*time.Second, 10*time.Millisecond)
		require.NoError(t, gc.Close())

		dead, err := client.XRange(context.Background(), "s:dead-letter", "-", "+").Result()
		require.NoError(t, err)
		require.Len(t, dead, 1)
		assert.Equal(t, "boom", dead[0].Values["error"])
		got, err := DefaultParseFromMessage[TestMessage](dead[0].Values)
		require.NoError(t, err)
		assert.Equal(t, "bad", got.ID)
	})

	t.Run("unparsable messages go to dead letter", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		_, client, cleanup := setupMiniredis(t)
		defer cleanup()

		require.NoError(t, client.XAdd(context.Background(), &redis.XAddArgs{
			Stream: "s",
			Values: map[string]any{"data": "!!not-base64!!"},
		}).Err())

		gc, err := NewGroupConsumer[TestMessage](client, "s", "g", "c",
			WithGroupConsumerBlockTimeout[TestMessage](50*time.Millisecond))
		require.NoError(t, err)
		require.NoError(t, gc.Start((&collector{}).handle))

		assert.Eventually(t, func() bool {
			n, err := client.XLen(context.Background(), "s:dead-letter").Result()
			return err == nil && n == 1
		}, 2*time.Second, 10*time.Millisecond)
		require.NoError(t, gc.Close())
	})
}

func TestGroupConsumer_PendingMessages(t *testing.T) {
	defer goleak.VerifyNone(t)
	_, client, cleanup := setupMiniredis(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, client.XGroupCreateMkStream(ctx, "s", "g", "0").Err())
	publishTestMessages(t, client, "s", TestMessage{ID: "left-over"})

	// 模擬上次執行讀取後尚未 ack 就停止
	_, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    "g",
		Consumer: "c",
		Streams:  []string{"s", ">"},
		Count:    1,
		Block:    -1,
	}).Result()
	require.NoError(t, err)

	gc, err := NewGroupConsumer[TestMessage](client, "s", "g", "c",
		WithGroupConsumerBlockTimeout[TestMessage](50*time.Millisecond))
	require.NoError(t, err)

	c := &collector{}
	require.NoError(t, gc.Start(c.handle))
	assert.Eventually(t, func() bool { return len(c.ids()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, gc.Close())

	assert.Equal(t, []string{"left-over"}, c.ids())
	pending, err := client.XPending(ctx, "s", "g").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}

func TestGroupConsumer_StrictOrdering(t *testing.T) {
	defer goleak.VerifyNone(t)
	_, client, cleanup := setupMiniredis(t)
	defer cleanup()

	var (
		mu       sync.Mutex
		inside   int
		maxSeen  int
		handled  int
		handlers = make([]*GroupConsumer[TestMessage], 0, 2)
	)
	handle := func(context.Context, TestMessage) error {
		mu.Lock()
		inside++
		if inside > maxSeen {
			maxSeen = inside
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		inside--
		handled++
		mu.Unlock()
		return nil
	}

	for _, name := range []string{"c1", "c2"} {
		gc, err := NewGroupConsumer[TestMessage](client, "s", "g", name,
			WithGroupConsumerBlockTimeout[TestMessage](50*time.Millisecond),
			WithGroupConsumerStrictOrdering[TestMessage](true),
			WithGroupConsumerMutex[TestMessage](NewAutoRenewMutex(client, "lock:s:g",
				WithAutoRenewMutexRetryDelay(10*time.Millisecond))))
		require.NoError(t, err)
		require.NoError(t, gc.Start(handle))
		handlers = append(handlers, gc)
	}

	for i := 0; i < 10; i++ {
		publishTestMessages(t, client, "s", TestMessage{ID: fmt.Sprint(i)})
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return handled == 10
	}, 3*time.Second, 10*time.Millisecond)

	for _, gc := range handlers {
		require.NoError(t, gc.Close())
	}
	assert.Equal(t, 1, maxSeen)
}
