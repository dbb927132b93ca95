package sse_test

import (
	"io"
	"log"
	"sync"

	"agrinet/adapters/sse"
)

func init() {
	// 將日誌輸出重定向到io.Discard
	log.SetOutput(io.Discard)
}

// Event 是測試用的訊息內容
type Event struct {
	Data string `json:"data"`
}

// loopback 是一組共用同一條通道的 publisher/reader，
// 模擬訊息經過 Redis stream 繞一圈回來的行為
type loopback struct {
	mu     sync.Mutex
	ch     chan sse.Envelope[Event]
	closed bool
}

func newLoopback() *loopback {
	return &loopback{ch: make(chan sse.Envelope[Event], 16)}
}

func (l *loopback) Start() {}

func (l *loopback) Publish(data sse.Envelope[Event]) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.ch <- data
	return nil
}

func (l *loopback) Subscribe() <-chan sse.Envelope[Event] {
	return l.ch
}

func (l *loopback) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.ch)
}
