package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestStore_Load(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(mock redismock.ClientMock)
		session  string
		expected map[string]string
		wantErr  bool
	}{
		{
			name: "success",
			setup: func(mock redismock.ClientMock) {
				mock.ExpectHGetAll("session:abc").SetVal(map[string]string{
					"user_id": "42",
					"role":    "farmer",
				})
			},
			session: "abc",
			expected: map[string]string{
				"user_id": "42",
				"role":    "farmer",
			},
		},
		{
			name: "missing_key",
			setup: func(mock redismock.ClientMock) {
				mock.ExpectHGetAll("session:nope").SetVal(map[string]string{})
			},
			session:  "nope",
			expected: map[string]string{},
		},
		{
			name: "redis_error",
			setup: func(mock redismock.ClientMock) {
				mock.ExpectHGetAll("session:abc").
					SetErr(errors.New("redis connection error"))
			},
			session:  "abc",
			wantErr:  true,
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// 準備測試環境
			client, mock, cleanup := setupTest(t)
			defer cleanup()

			tt.setup(mock)

			store := NewStore(client, WithStorePrefix("session:"))

			// 執行測試
			got, err := store.Load(context.Background(), tt.session)

			// 驗證結果
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestStore_Save(t *testing.T) {
	tests := []struct {
		name    string
		opts    []StoreOption
		setup   func(mock redismock.ClientMock)
		session string
		data    map[string]string
		wantErr bool
	}{
		{
			name: "success_without_ttl",
			opts: []StoreOption{WithStorePrefix("session:")},
			setup: func(mock redismock.ClientMock) {
				mock.ExpectEvalSha(
					saveScript.Hash(),
					[]string{"session:abc"},
					[]interface{}{"0", "user_id", "42"},
				).SetVal(1)
			},
			session: "abc",
			data:    map[string]string{"user_id": "42"},
		},
		{
			name: "success_with_ttl",
			opts: []StoreOption{WithStorePrefix("session:"), WithStoreTTL(time.Minute)},
			setup: func(mock redismock.ClientMock) {
				mock.ExpectEvalSha(
					saveScript.Hash(),
					[]string{"session:abc"},
					[]interface{}{"60000", "user_id", "42"},
				).SetVal(1)
			},
			session: "abc",
			data:    map[string]string{"user_id": "42"},
		},
		{
			name: "empty_data",
			opts: []StoreOption{WithStorePrefix("session:")},
			setup: func(mock redismock.ClientMock) {
				mock.ExpectEvalSha(
					saveScript.Hash(),
					[]string{"session:abc"},
					[]interface{}{"0"},
				).SetVal(1)
			},
			session: "abc",
			data:    map[string]string{},
		},
		{
			name: "redis_error",
			opts: []StoreOption{WithStorePrefix("session:")},
			setup: func(mock redismock.ClientMock) {
				mock.ExpectEvalSha(
					saveScript.Hash(),
					[]string{"session:abc"},
					[]interface{}{"0", "user_id", "42"},
				).SetErr(redis.ErrClosed)
			},
			session: "abc",
			data:    map[string]string{"user_id": "42"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// 準備測試環境
			client, mock, cleanup := setupTest(t)
			defer cleanup()

			tt.setup(mock)

			store := NewStore(client, tt.opts...)

			// 執行測試
			err := store.Save(context.Background(), tt.session, tt.data)

			// 驗證結果
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestStore_Drop(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		client, mock, cleanup := setupTest(t)
		defer cleanup()

		mock.ExpectDel("session:abc").SetVal(1)

		store := NewStore(client, WithStorePrefix("session:"))
		assert.NoError(t, store.Drop(context.Background(), "abc"))
	})

	t.Run("redis_error", func(t *testing.T) {
		client, mock, cleanup := setupTest(t)
		defer cleanup()

		mock.ExpectDel("session:abc").SetErr(redis.ErrClosed)

		store := NewStore(client, WithStorePrefix("session:"))
		assert.Error(t, store.Drop(context.Background(), "abc"))
	})
}
