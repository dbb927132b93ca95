package sse_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"agrinet/adapters/sse"
)

func TestChannel_SubscribeAndBroadcast(t *testing.T) {
	c := sse.NewChannel[Event]()

	ch1 := c.Subscribe()
	ch2 := c.Subscribe()
	assert.False(t, c.IsIdle())

	msg := Event{Data: "new bid"}
	c.Broadcast(msg)

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case got := <-ch:
			assert.Equal(t, msg, got)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive broadcast")
		}
	}
}

func TestChannel_Unsubscribe(t *testing.T) {
	c := sse.NewChannel[Event]()

	ch := c.Subscribe()
	c.Unsubscribe(ch)

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed")
	assert.True(t, c.IsIdle())

	// 重複取消訂閱不應該panic
	c.Unsubscribe(ch)
}

func TestChannel_UnsubscribeAll(t *testing.T) {
	c := sse.NewChannel[Event]()

	ch1 := c.Subscribe()
	ch2 := c.Subscribe()
	c.UnsubscribeAll()

	_, ok := <-ch1
	assert.False(t, ok)
	_, ok = <-ch2
	assert.False(t, ok)
	assert.True(t, c.IsIdle())
}

func TestChannel_SlowSubscriberDoesNotBlock(t *testing.T) {
	c := sse.NewChannel[Event]()

	// 這個訂閱者從不讀取
	_ = c.Subscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// 超過緩衝大小的廣播也不應該卡住
		for i := 0; i < 100; i++ {
			c.Broadcast(Event{Data: "flood"})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on slow subscriber")
	}
}
