package sse

import (
	"context"
	"log/slog"
	"sync"

	streamredis "agrinet/adapters/redis"
)

// ConnectionManager 管理多個 SSE 頻道的訂閱與發布
// 發布走 Redis stream，再由每個節點的 Reader 收回來廣播，
// 因此多個服務實例的訂閱者都能收到同一則訊息
type ConnectionManager[T any] struct {
	logger *slog.Logger

	mu     sync.RWMutex
	wg     sync.WaitGroup
	active bool

	publisher streamredis.IPublisher[Envelope[T]]
	reader    streamredis.IReader[Envelope[T]]
	channels  map[string]IChannel[T]
}

// NewConnectionManager 建立一個新的連線管理器
// publisher 和 reader 應指向同一個 Redis stream
func NewConnectionManager[T any](
	publisher streamredis.IPublisher[Envelope[T]],
	reader streamredis.IReader[Envelope[T]],
	logger *slog.Logger,
) IConnectionManager[T] {
	if logger == nil {
		logger = slog.Default()
	}

	return &ConnectionManager[T]{
		logger:    logger.With(slog.String("caller", "ConnectionManager")),
		publisher: publisher,
		reader:    reader,
		channels:  make(map[string]IChannel[T]),
		active:    true,
	}
}

func (cm *ConnectionManager[T]) Start() {
	cm.publisher.Start()
	cm.reader.Start()

	// 把 stream 收到的訊息轉發給對應頻道的本地訂閱者
	cm.wg.Add(1)
	go func() {
		defer cm.wg.Done()
		for envelope := range cm.reader.Subscribe() {
			cm.mu.RLock()
			if channel, ok := cm.channels[envelope.Channel]; ok {
				channel.Broadcast(envelope.Message)
			}
			cm.mu.RUnlock()
		}
	}()
}

func (cm *ConnectionManager[T]) Done() {
	cm.mu.Lock()
	if !cm.active {
		cm.mu.Unlock()
		return
	}
	cm.active = false
	cm.mu.Unlock()

	cm.publisher.Close()
	cm.reader.Close()
	cm.wg.Wait()

	cm.mu.Lock()
	defer cm.mu.Unlock()
	for _, channel := range cm.channels {
		channel.UnsubscribeAll()
	}
	clear(cm.channels)
}

// Subscribe 訂閱指定的頻道，頻道不存在時會自動建立
func (cm *ConnectionManager[T]) Subscribe(channelName string) (<-chan T, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !cm.active {
		return nil, context.Canceled
	}

	c, ok := cm.channels[channelName]
	if !ok {
		c = NewChannel[T]()
		cm.channels[channelName] = c
	}
	return c.Subscribe(), nil
}

// Publish 發布訊息到指定的頻道
func (cm *ConnectionManager[T]) Publish(channelName string, data T) error {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if !cm.active {
		return context.Canceled
	}

	return cm.publisher.Publish(Envelope[T]{
		Channel: channelName,
		Message: data,
	})
}

// Unsubscribe 取消訂閱指定的頻道，頻道清空後會一併移除
func (cm *ConnectionManager[T]) Unsubscribe(channelName string, ch <-chan T) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	c, ok := cm.channels[channelName]
	if !ok {
		return
	}

	c.Unsubscribe(ch)
	if c.IsIdle() {
		delete(cm.channels, channelName)
	}
}
