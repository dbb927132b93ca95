//go:generate mockgen -package=session -destination=mock.go -source=interfaces.go

package session

import "context"

// IStore 定義 session 資料的持久層操作
type IStore interface {
	Load(ctx context.Context, name string) (map[string]string, error)
	Save(ctx context.Context, name string, data map[string]string) error
	Drop(ctx context.Context, name string) error
}

// ISession 定義單一會話的操作
type ISession interface {
	Load() error
	Get(key string) string
	Set(key, value string)
	Delete(key string)
	Clear()
	Save() error
	// Destroy 清空並從儲存層移除整個會話
	Destroy() error
}
