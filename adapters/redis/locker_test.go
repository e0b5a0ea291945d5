package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestNewLocker(t *testing.T) {
	locker, err := NewLocker(nil)
	assert.Error(t, err)
	assert.Nil(t, locker)
}

func TestLocker_Lock(t *testing.T) {
	t.Run("lock key layout", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		s, client, cleanup := setupMiniredis(t)
		defer cleanup()

		locker, err := NewLocker(client, WithLockerPrefix("bidvault:"))
		require.NoError(t, err)

		ctx, unlock, err := locker.Lock(context.Background(), "a1")
		require.NoError(t, err)
		assert.True(t, s.Exists("bidvault:auction:a1:lock"))

		unlock()
		assert.False(t, s.Exists("bidvault:auction:a1:lock"))
		assert.Error(t, ctx.Err())
	})

	t.Run("serialises callers on the same auction", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		_, client, cleanup := setupMiniredis(t)
		defer cleanup()

		locker, err := NewLocker(client, WithLockerMutexOptions(
			WithAutoRenewMutexRetryDelay(5*time.Millisecond),
		))
		require.NoError(t, err)

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			inside  int
			maxSeen int
		)
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, unlock, err := locker.Lock(context.Background(), "a1")
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()

				time.Sleep(10 * time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				unlock()
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, maxSeen)
	})

	t.Run("different auctions do not block each other", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		_, client, cleanup := setupMiniredis(t)
		defer cleanup()

		locker, err := NewLocker(client)
		require.NoError(t, err)

		_, unlock1, err := locker.Lock(context.Background(), "a1")
		require.NoError(t, err)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_, unlock2, err := locker.Lock(ctx, "a2")
		require.NoError(t, err)

		unlock2()
		unlock1()
	})
}
