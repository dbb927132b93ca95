package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"

	internalRedis "agrinet/adapters/redis"
	"agrinet/market"
	"agrinet/models"
)

type bidResponse struct {
	ID        string     `json:"id"`
	ListingID string     `json:"listingId"`
	UserID    string     `json:"userId"`
	UserName  string     `json:"userName"`
	Amount    float64    `json:"amount"`
	Message   *string    `json:"message"`
	Status    string     `json:"status"`
	CreatedAt *time.Time `json:"createdAt"`
}

func newBidResponse(bid models.Bid) bidResponse {
	response := bidResponse{
		ID:        bid.ID.String(),
		ListingID: bid.ListingID.String(),
		UserID:    bid.UserID.String(),
		UserName:  bid.User.Name,
		Amount:    bid.Amount,
		Message:   bid.Message,
		Status:    bid.Status,
	}
	if bid.Model != nil {
		response.CreatedAt = &bid.Model.CreatedAt
	}
	return response
}

// ListBids 回傳刊登的出價，新的在前
func (server *ServerImpl) ListBids(c *gin.Context) {
	const op = "api.ServerImpl.ListBids"

	listing, ok := server.loadListing(c, false)
	if !ok {
		return
	}

	bids := []models.Bid{}
	if err := server.db.
		Preload("User").
		Where("listing_id = ?", listing.ID).
		Order("created_at desc").
		Find(&bids).Error; err != nil {
		server.abortWithError(c, op, fmt.Errorf("[%s] Fail to query bids, err=%w", op, err))
		return
	}
	c.JSON(http.StatusOK, lo.Map(bids, func(b models.Bid, _ int) bidResponse {
		return newBidResponse(b)
	}))
}

type placeBidRequest struct {
	Amount  float64 `json:"amount"`
	Message string  `json:"message"`
}

// PlaceBid 對刊登出價
// 出價先進 Redis stream 再由背景 worker 落庫，API 回應不等資料庫寫入。
// 同一刊登的出價在分散式鎖內跑 Lua 腳本，最高價快取的比較與更新是原子的；
// 快取不存在時從資料庫回填後重試一次
func (server *ServerImpl) PlaceBid(c *gin.Context) {
	const op = "api.ServerImpl.PlaceBid"

	user, err := server.currentUser(c)
	if err != nil {
		server.abortWithError(c, op, err)
		return
	}
	listing, ok := server.loadListing(c, false)
	if !ok {
		return
	}
	if !listing.IsActive {
		c.JSON(http.StatusGone, gin.H{"error": "Listing is no longer active"})
		return
	}
	if listing.UserID == user.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Cannot bid on your own listing"})
		return
	}

	request := placeBidRequest{}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if errs := market.ValidateBid(market.BidInput{Amount: request.Amount, Message: request.Message}); errs != nil {
		server.abortWithError(c, op, errs)
		return
	}

	info := BidInfo{
		ListingID: listing.ID,
		User:      BidInfoUser{ID: user.ID, Name: user.Name},
		Amount:    request.Amount,
		CreatedAt: time.Now(),
	}
	if request.Message != "" {
		sanitized := server.htmlChecker.Sanitize(request.Message)
		info.Message = &sanitized
	}
	encoded, err := internalRedis.EncodeMessage(info)
	if err != nil {
		server.abortWithError(c, op, fmt.Errorf("[%s] Fail to encode bid, err=%w", op, err))
		return
	}
	payload := encoded["payload"].(string)

	mutex := internalRedis.NewAutoRenewMutex(server.redisClient, server.bidLockKey(listing.ID))
	lockCtx, err := mutex.Lock(c.Request.Context())
	if err != nil {
		server.abortWithError(c, op, fmt.Errorf("[%s] Fail to acquire bid lock, err=%w", op, err))
		return
	}
	defer mutex.Unlock()

	isTop, err := server.runPlaceBid(lockCtx, listing, request.Amount, payload)
	if err != nil {
		server.abortWithError(c, op, err)
		return
	}

	if err := server.sseManager.Publish(listing.ID.String(), BidEvent{
		Kind:   BidEventPlaced,
		Amount: request.Amount,
		User:   user.Name,
		IsTop:  isTop,
		Time:   info.CreatedAt,
	}); err != nil {
		server.logger.Error("failed to publish bid event", slog.Any("error", err))
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Bid placed", "isTop": isTop})
}

// runPlaceBid 執行出價腳本，必要時從資料庫回填最高價快取後重試
func (server *ServerImpl) runPlaceBid(ctx context.Context, listing *models.Listing, amount float64, payload string) (bool, error) {
	const op = "api.ServerImpl.runPlaceBid"

	keys := []string{server.topBidKey(listing.ID), server.bidStreamKey()}
	args := []any{
		strconv.FormatFloat(amount, 'f', -1, 64),
		payload,
		int(server.config.Redis.ExpireTime.Seconds()),
	}

	for attempt := 0; attempt < 2; attempt++ {
		result, err := PlaceBidScript.Run(ctx, server.redisClient, keys, args...).Int()
		if err != nil {
			return false, fmt.Errorf("[%s] Fail to run bid script, err=%w", op, err)
		}
		switch result {
		case 1:
			return true, nil
		case 0:
			return false, nil
		}

		// 快取不存在，用資料庫目前的最高出價回填
		var current float64
		err = server.db.WithContext(ctx).
			Model(&models.Bid{}).
			Where("listing_id = ?", listing.ID).
			Select("COALESCE(MAX(amount), 0)").
			Scan(&current).Error
		if err != nil {
			return false, fmt.Errorf("[%s] Fail to query current top bid, err=%w", op, err)
		}
		err = server.redisClient.SetNX(
			ctx, server.topBidKey(listing.ID),
			strconv.FormatFloat(current, 'f', -1, 64),
			server.config.Redis.ExpireTime,
		).Err()
		if err != nil {
			return false, fmt.Errorf("[%s] Fail to seed top bid cache, err=%w", op, err)
		}
	}
	return false, fmt.Errorf("[%s] Fail to place bid after seeding top bid cache", op)
}

type decideBidRequest struct {
	Action string `json:"action"`
}

// DecideBid 接受或拒絕出價，只有刊登的擁有者能決定
// 接受出價會在同一個交易內拒絕其餘待決出價、下架刊登並寫入價格歷史，
// 第一個接受的出價生效，之後的決定都會被狀態檢查擋下
func (server *ServerImpl) DecideBid(c *gin.Context) {
	const op = "api.ServerImpl.DecideBid"

	user, err := server.currentUser(c)
	if err != nil {
		server.abortWithError(c, op, err)
		return
	}

	bidID, err := uuid.Parse(c.Param("bidID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bid id"})
		return
	}
	request := decideBidRequest{}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if request.Action != "accept" && request.Action != "reject" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Action must be accept or reject"})
		return
	}

	bid := models.Bid{}
	if err := server.db.Preload("Listing").Preload("User").First(&bid, "id = ?", bidID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Bid not found"})
			return
		}
		server.abortWithError(c, op, fmt.Errorf("[%s] Fail to query bid, err=%w", op, err))
		return
	}
	if bid.Listing.UserID != user.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not the owner of this listing"})
		return
	}
	if bid.Status != models.StatusPending {
		c.JSON(http.StatusConflict, gin.H{"error": "Bid has already been decided"})
		return
	}

	if request.Action == "reject" {
		if err := server.db.Model(&models.Bid{}).
			Where("id = ? AND status = ?", bid.ID, models.StatusPending).
			Update("status", models.StatusRejected).Error; err != nil {
			server.abortWithError(c, op, fmt.Errorf("[%s] Fail to reject bid, err=%w", op, err))
			return
		}
		server.publishDecision(bid, BidEventRejected)
		c.JSON(http.StatusOK, gin.H{"message": "Bid rejected"})
		return
	}

	if err := server.acceptBid(bid); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusConflict, gin.H{"error": "Bid has already been decided"})
			return
		}
		server.abortWithError(c, op, err)
		return
	}

	// 成交後快取沒有意義了
	if err := server.redisClient.Del(c.Request.Context(), server.topBidKey(bid.ListingID)).Err(); err != nil {
		server.logger.Error("failed to drop top bid cache", slog.Any("error", err))
	}

	server.publishDecision(bid, BidEventAccepted)
	c.JSON(http.StatusOK, gin.H{"message": "Bid accepted"})
}

// acceptBid 在單一交易內完成成交：接受這筆出價、拒絕同刊登其餘待決出價、
// 下架刊登並寫入一筆價格歷史。出價已被決定時返回 gorm.ErrRecordNotFound
func (server *ServerImpl) acceptBid(bid models.Bid) error {
	const op = "api.ServerImpl.acceptBid"

	return server.db.Transaction(func(tx *gorm.DB) error {
		// 狀態條件保證只有第一個接受會生效
		result := tx.Model(&models.Bid{}).
			Where("id = ? AND status = ?", bid.ID, models.StatusPending).
			Update("status", models.StatusAccepted)
		if result.Error != nil {
			return fmt.Errorf("[%s] Fail to accept bid, err=%w", op, result.Error)
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		if err := tx.Model(&models.Bid{}).
			Where("listing_id = ? AND status = ? AND id <> ?", bid.ListingID, models.StatusPending, bid.ID).
			Update("status", models.StatusRejected).Error; err != nil {
			return fmt.Errorf("[%s] Fail to reject other bids, err=%w", op, err)
		}

		if err := tx.Model(&models.Listing{}).
			Where("id = ?", bid.ListingID).
			Update("is_active", false).Error; err != nil {
			return fmt.Errorf("[%s] Fail to deactivate listing, err=%w", op, err)
		}

		history := models.PriceHistory{
			CropTypeID:   bid.Listing.CropTypeID,
			Location:     bid.Listing.Location,
			Price:        bid.Amount,
			Quality:      bid.Listing.Quality,
			RecordedDate: time.Now(),
		}
		if err := tx.Create(&history).Error; err != nil {
			return fmt.Errorf("[%s] Fail to record price history, err=%w", op, err)
		}
		return nil
	})
}

func (server *ServerImpl) publishDecision(bid models.Bid, kind string) {
	if err := server.sseManager.Publish(bid.ListingID.String(), BidEvent{
		Kind:   kind,
		Amount: bid.Amount,
		User:   bid.User.Name,
		Time:   time.Now(),
	}); err != nil {
		server.logger.Error("failed to publish bid decision event", slog.Any("error", err))
	}
}

// sseKeepAliveInterval 是 SSE 連線的心跳間隔
const sseKeepAliveInterval = 30 * time.Second

// ListingEvents 以 SSE 推送刊登的即時出價動態
func (server *ServerImpl) ListingEvents(c *gin.Context) {
	listing, ok := server.loadListing(c, false)
	if !ok {
		return
	}

	events, err := server.sseManager.Subscribe(listing.ID.String())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Event stream is shutting down"})
		return
	}
	defer server.sseManager.Unsubscribe(listing.ID.String(), events)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.Flush()

	keepAlive := time.NewTicker(sseKeepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-c.Writer.CloseNotify():
			return
		case event, open := <-events:
			if !open {
				return
			}
			c.SSEvent("bid", event)
			c.Writer.Flush()
		case <-keepAlive.C:
			// 空行當心跳，避免中間的代理把閒置連線斷掉
			if _, err := c.Writer.WriteString("\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}
