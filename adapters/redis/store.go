package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store 提供基於 Redis hash 的資料儲存，主要給 session 層使用
type Store struct {
	client  *redis.Client
	options storeOptions
}

type storeOptions struct {
	prefix string
	ttl    time.Duration
}

type StoreOption func(*storeOptions)

// WithStorePrefix 設定 key 前綴
func WithStorePrefix(prefix string) StoreOption {
	return func(o *storeOptions) {
		o.prefix = prefix
	}
}

// WithStoreTTL 設定資料的存活時間，零值代表永久保存
func WithStoreTTL(ttl time.Duration) StoreOption {
	return func(o *storeOptions) {
		o.ttl = ttl
	}
}

func NewStore(client *redis.Client, opts ...StoreOption) IStore {
	options := storeOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	return &Store{
		client:  client,
		options: options,
	}
}

// Load 載入指定名稱的資料，key 不存在時返回空 map
func (s *Store) Load(ctx context.Context, name string) (map[string]string, error) {
	const op = "redis.Store.Load"
	key := s.options.prefix + name

	result, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get hash: %w", op, err)
	}
	return result, nil
}

// saveScript 原子性地覆寫 hash 並設定過期時間
// ARGV[1] 是毫秒 TTL，0 代表不過期，其餘是欄位與值
var saveScript = redis.NewScript(`
local key = KEYS[1]
local ttl = tonumber(ARGV[1])
redis.call('DEL', key)
if #ARGV > 1 then
    redis.call('HSET', key, unpack(ARGV, 2))
    if ttl > 0 then
        redis.call('PEXPIRE', key, ttl)
    end
end
return 1
`)

// Save 覆寫指定名稱的資料
// NOTE: 舊資料會先被刪除，整個過程是原子性的
func (s *Store) Save(ctx context.Context, name string, data map[string]string) error {
	const op = "redis.Store.Save"
	key := s.options.prefix + name

	args := make([]any, 0, len(data)*2+1)
	args = append(args, strconv.FormatInt(s.options.ttl.Milliseconds(), 10))
	for k, v := range data {
		args = append(args, k, v)
	}

	if err := saveScript.Run(ctx, s.client, []string{key}, args...).Err(); err != nil {
		return fmt.Errorf("%s: failed to execute save script: %w", op, err)
	}
	return nil
}

// Drop 刪除指定名稱的資料
func (s *Store) Drop(ctx context.Context, name string) error {
	const op = "redis.Store.Drop"
	key := s.options.prefix + name

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%s: failed to delete key: %w", op, err)
	}
	return nil
}
