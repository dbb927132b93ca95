package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestNewGroupWorker(t *testing.T) {
	client, _, cleanup := setupTest(t)
	defer cleanup()

	t.Run("nil client", func(t *testing.T) {
		_, err := NewGroupWorker[TestEvent](nil, "events", "writers", "w1")
		assert.Error(t, err)
	})

	t.Run("missing identifiers", func(t *testing.T) {
		_, err := NewGroupWorker[TestEvent](client, "", "writers", "w1")
		assert.Error(t, err)
		_, err = NewGroupWorker[TestEvent](client, "events", "", "w1")
		assert.Error(t, err)
		_, err = NewGroupWorker[TestEvent](client, "events", "writers", "")
		assert.Error(t, err)
	})

	t.Run("success", func(t *testing.T) {
		w, err := NewGroupWorker[TestEvent](client, "events", "writers", "w1")
		assert.NoError(t, err)
		assert.NotNil(t, w)
	})
}

// passthroughMutex 讓嚴格順序模式的測試不經過真正的分散式鎖
type passthroughMutex struct{}

func (passthroughMutex) Lock(ctx context.Context) (context.Context, error) { return ctx, nil }
func (passthroughMutex) Unlock() (bool, error)                             { return true, nil }
func (passthroughMutex) Valid() bool                                       { return true }

func TestGroupWorker_Subscribe(t *testing.T) {
	t.Run("delivers message and acks on done", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		client, mock, cleanup := setupTest(t)
		defer cleanup()

		event := TestEvent{ID: "b1", Amount: 18.5}
		encoded, err := EncodeMessage(event)
		require.NoError(t, err)

		mock.ExpectXReadGroup(&redis.XReadGroupArgs{
			Group:    "writers",
			Consumer: "w1",
			Streams:  []string{"events", ">"},
			Count:    1,
			Block:    time.Second,
		}).SetVal([]redis.XStream{
			{
				Stream: "events",
				Messages: []redis.XMessage{
					{ID: "1-0", Values: encoded},
				},
			},
		})
		mock.ExpectXAck("events", "writers", "1-0").SetVal(1)

		w, err := NewGroupWorker[TestEvent](client, "events", "writers", "w1")
		require.NoError(t, err)
		require.NoError(t, w.Start())
		defer w.Close()

		select {
		case msg := <-w.Subscribe():
			assert.Equal(t, event.ID, msg.Data.ID)
			assert.NoError(t, msg.Done(context.Background()))
			// 重複確認不應該觸發第二次 XACK
			assert.NoError(t, msg.Done(context.Background()))
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for message")
		}
	})

	t.Run("fail moves message to dead letter", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		client, mock, cleanup := setupTest(t)
		defer cleanup()

		event := TestEvent{ID: "b2", Amount: 12.0}
		encoded, err := EncodeMessage(event)
		require.NoError(t, err)

		mock.ExpectXReadGroup(&redis.XReadGroupArgs{
			Group:    "writers",
			Consumer: "w1",
			Streams:  []string{"events", ">"},
			Count:    1,
			Block:    time.Second,
		}).SetVal([]redis.XStream{
			{
				Stream: "events",
				Messages: []redis.XMessage{
					{ID: "2-0", Values: encoded},
				},
			},
		})

		mock.ExpectXAdd(&redis.XAddArgs{
			Stream: "events:dead-letter",
			Values: []any{"error", "persist error", "payload", encoded["payload"]},
		}).SetVal("2-1")
		mock.ExpectXAck("events", "writers", "2-0").SetVal(1)

		w, err := NewGroupWorker[TestEvent](client, "events", "writers", "w1")
		require.NoError(t, err)
		require.NoError(t, w.Start())
		defer w.Close()

		select {
		case msg := <-w.Subscribe():
			assert.NoError(t, msg.Fail(context.Background(), errors.New("persist error")))
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for message")
		}
	})

	t.Run("trimmed pending message is skipped", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		client, mock, cleanup := setupTest(t)
		defer cleanup()

		event := TestEvent{ID: "b3", Amount: 42.0}
		encoded, err := EncodeMessage(event)
		require.NoError(t, err)

		// pending 清單裡有一條已經被 stream 修剪掉的訊息
		mock.ExpectXPendingExt(&redis.XPendingExtArgs{
			Stream: "events",
			Group:  "writers",
			Start:  "-",
			End:    "+",
			Count:  100,
		}).SetVal([]redis.XPendingExt{
			{ID: "1-0", Consumer: "w1"},
		})
		mock.ExpectXRangeN("events", "1-0", "1-0", 1).SetVal([]redis.XMessage{})
		mock.ExpectXAck("events", "writers", "1-0").SetVal(1)

		mock.ExpectXReadGroup(&redis.XReadGroupArgs{
			Group:    "writers",
			Consumer: "w1",
			Streams:  []string{"events", ">"},
			Count:    1,
			Block:    time.Second,
		}).SetVal([]redis.XStream{
			{
				Stream: "events",
				Messages: []redis.XMessage{
					{ID: "2-0", Values: encoded},
				},
			},
		})
		mock.ExpectXAck("events", "writers", "2-0").SetVal(1)

		w, err := NewGroupWorker[TestEvent](client, "events", "writers", "w1",
			WithGroupWorkerStrictOrdering[TestEvent](true),
			WithGroupWorkerMutex[TestEvent](passthroughMutex{}),
		)
		require.NoError(t, err)
		require.NoError(t, w.Start())
		defer w.Close()

		// 修剪掉的訊息不該以零值出現在下游，收到的必須是後面那條
		select {
		case msg := <-w.Subscribe():
			assert.Equal(t, event.ID, msg.Data.ID)
			assert.Equal(t, event.Amount, msg.Data.Amount)
			assert.NoError(t, msg.Done(context.Background()))
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for message")
		}
	})

	t.Run("close is idempotent", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		client, _, cleanup := setupTest(t)
		defer cleanup()

		w, err := NewGroupWorker[TestEvent](client, "events", "writers", "w1")
		require.NoError(t, err)
		require.NoError(t, w.Start())
		require.NoError(t, w.Close())
		require.NoError(t, w.Close())
	})
}
