package api

import "time"

type ServerConfig struct {
	// ID 是這個服務實例的識別碼，作為 consumer group 的 consumer 名稱
	ID string

	DB      DBConfig
	Redis   RedisConfig
	S3      S3Config
	Session SessionConfig
	SMS     SMSConfig
}

type DBConfig struct {
	User     string
	Password string
	Host     string
	Port     int
	Database string
	Schema   string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// KeyPrefix 加在所有 key 前面，讓多個環境能共用同一個 Redis
	KeyPrefix string
	// ConsumerGroup 是出價持久化 worker 的 consumer group 名稱
	ConsumerGroup string
	// ExpireTime 是最高出價快取和估價快取的存活時間
	ExpireTime time.Duration

	StreamKeys RedisStreamKeys
}

type RedisStreamKeys struct {
	// BidStream 承載所有出價事件，worker 和 SSE 都從這裡讀
	BidStream string
	// SSEStream 承載跨節點的 SSE 廣播訊息
	SSEStream string
}

type S3Config struct {
	AccessKeyID      string
	SecretAccessKey  string
	Endpoint         string
	Bucket           string
	PublicBaseURL    string
	RateLimitPerHour int64
}

type SessionConfig struct {
	KeyForCookie string
	CookieMaxAge time.Duration
}

type SMSConfig struct {
	BaseURL  string
	APIKey   string
	SenderID string
	// WebhookToken 用於驗證 inbound webhook 的來源
	WebhookToken string
}
