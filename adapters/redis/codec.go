package redis

import (
	"encoding/base64"
	"errors"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrPointerType 代表傳入了指標類型，序列化只接受值類型
var ErrPointerType = errors.New("pointer type is not allowed")

// EncodeMessage 把 struct 序列化成可以放進 stream 的 map
// 內容走 msgpack 再 base64，避免 Redis 對二進位欄位的編碼問題
func EncodeMessage[T any](data T) (map[string]any, error) {
	if reflect.TypeOf(data).Kind() == reflect.Ptr {
		return nil, ErrPointerType
	}

	bytes, err := msgpack.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("msgpack marshal error: %w", err)
	}

	return map[string]any{
		"payload": base64.StdEncoding.EncodeToString(bytes),
	}, nil
}

// DecodeMessage 把 stream 訊息還原成 struct
func DecodeMessage[T any](message map[string]any) (T, error) {
	var result T
	if reflect.TypeOf(result).Kind() == reflect.Ptr {
		return result, ErrPointerType
	}
	if len(message) == 0 {
		return result, nil
	}

	payload, ok := message["payload"].(string)
	if !ok {
		return result, fmt.Errorf("payload field not found or invalid type")
	}

	bytes, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return result, fmt.Errorf("base64 decode error: %w", err)
	}

	if err := msgpack.Unmarshal(bytes, &result); err != nil {
		return result, fmt.Errorf("msgpack unmarshal error: %w", err)
	}
	return result, nil
}
