package api

import (
	"time"

	"github.com/google/uuid"
)

// BidInfoUser 是出價事件中攜帶的買家摘要
type BidInfoUser struct {
	ID   uuid.UUID `msgpack:"id"`
	Name string    `msgpack:"name"`
}

// BidInfo 是寫進出價 stream 的事件內容
// worker 從這裡還原出 Bid 紀錄，SSE 從這裡組出廣播訊息
type BidInfo struct {
	ListingID uuid.UUID   `msgpack:"listing_id"`
	User      BidInfoUser `msgpack:"user"`
	Amount    float64     `msgpack:"amount"`
	Message   *string     `msgpack:"message"`
	CreatedAt time.Time   `msgpack:"created_at"`
}

// 出價事件的種類
const (
	BidEventPlaced   = "bid"
	BidEventAccepted = "accepted"
	BidEventRejected = "rejected"
)

// BidEvent 是推送給 SSE 訂閱者的出價通知
type BidEvent struct {
	Kind   string    `json:"kind" msgpack:"kind"`
	Amount float64   `json:"amount" msgpack:"amount"`
	User   string    `json:"user" msgpack:"user"`
	IsTop  bool      `json:"isTop" msgpack:"is_top"`
	Time   time.Time `json:"time" msgpack:"time"`
}
