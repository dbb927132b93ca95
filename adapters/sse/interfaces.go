//go:generate mockgen -package=sse -destination=mock.go -source=interfaces.go

package sse

// Envelope 包裝一則要廣播的訊息和它所屬的頻道
type Envelope[T any] struct {
	Channel string `json:"channel" msgpack:"channel"`
	Message T      `json:"message" msgpack:"message"`
}

// IChannel 定義了單一頻道的訂閱與廣播操作
type IChannel[T any] interface {
	// Subscribe 建立一個新的訂閱並返回接收訊息的通道
	Subscribe() <-chan T
	// Unsubscribe 取消指定通道的訂閱
	Unsubscribe(ch <-chan T)
	// UnsubscribeAll 取消所有訂閱
	UnsubscribeAll()
	// Broadcast 將訊息廣播給所有訂閱者
	Broadcast(message T)
	// IsIdle 檢查是否沒有訂閱者
	IsIdle() bool
}

// IConnectionManager 定義了 SSE 連線管理員的介面
// 訊息透過 Redis stream 跨節點同步，每個節點各自廣播給本地的訂閱者
type IConnectionManager[T any] interface {
	// Start 啟動管理器，開始處理訊息的接收與廣播
	Start()
	// Done 停止管理器，釋放所有資源
	Done()
	// Subscribe 訂閱指定頻道，返回接收訊息的唯讀通道
	Subscribe(channelName string) (<-chan T, error)
	// Publish 將資料推送到指定頻道
	Publish(channelName string, data T) error
	// Unsubscribe 取消訂閱指定頻道
	Unsubscribe(channelName string, ch <-chan T)
}
