//go:generate mockgen -package=redis -destination=mock.go -source=interfaces.go

package redis

import (
	"context"
)

// IPublisher 定義了 stream 發布端的操作介面
type IPublisher[T any] interface {
	Start()
	Publish(data T) error
	Close()
}

// IReader 定義了 stream 廣播讀取端的操作介面
// 每個 Reader 獨立讀取，彼此不分攤訊息，適合做事件廣播
type IReader[T any] interface {
	Start()
	Subscribe() <-chan T
	Close()
}

// IGroupWorker 定義了 consumer group 工作端的操作介面
// 同一個 group 的多個 worker 分攤訊息，用於把出價寫回資料庫
type IGroupWorker[T any] interface {
	Start() error
	Subscribe() <-chan *Message[T]
	Close() error
}

// IAutoRenewMutex 定義了自動續期分散式鎖的操作介面
type IAutoRenewMutex interface {
	Lock(ctx context.Context) (context.Context, error)
	Unlock() (bool, error)
	Valid() bool
}

// IStore 定義了 Redis hash 儲存的操作介面
type IStore interface {
	Load(ctx context.Context, name string) (map[string]string, error)
	Save(ctx context.Context, name string, data map[string]string) error
	Drop(ctx context.Context, name string) error
}
