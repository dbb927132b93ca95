package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/lo"

	"agrinet/market"
	"agrinet/models"
)

// estimateWindow 是估價回看的歷史範圍
const estimateWindow = 90 * 24 * time.Hour

type predictPriceRequest struct {
	CropTypeID string `json:"cropTypeId"`
	Location   string `json:"location"`
	Quality    string `json:"quality"`
}

// PredictPrice 用歷史價格樣本估算合理的開價區間
// 樣本不足時回 422，寧可不給數字也不給誤導的數字；結果會短暫快取
func (server *ServerImpl) PredictPrice(c *gin.Context) {
	const op = "api.ServerImpl.PredictPrice"

	request := predictPriceRequest{}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	cropTypeID, err := uuid.Parse(request.CropTypeID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid crop type id"})
		return
	}
	switch request.Quality {
	case models.QualityPremium, models.QualityStandard, models.QualityBasic:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Quality must be A, B or C"})
		return
	}

	cacheKey := server.estimateCacheKey(cropTypeID, request.Location, request.Quality)
	if cached, err := server.redisClient.Get(c.Request.Context(), cacheKey).Result(); err == nil {
		estimate := market.Estimate{}
		if err := json.Unmarshal([]byte(cached), &estimate); err == nil {
			c.JSON(http.StatusOK, estimate)
			return
		}
	} else if !errors.Is(err, goredis.Nil) {
		server.logger.Error("failed to read estimate cache", slog.Any("error", err))
	}

	histories := []models.PriceHistory{}
	if err := server.db.
		Where("crop_type_id = ? AND recorded_date >= ?", cropTypeID, time.Now().Add(-estimateWindow)).
		Find(&histories).Error; err != nil {
		server.abortWithError(c, op, fmt.Errorf("[%s] Fail to query price history, err=%w", op, err))
		return
	}

	samples := lo.Map(histories, func(h models.PriceHistory, _ int) market.PriceSample {
		return market.PriceSample{
			Price:      h.Price,
			Quality:    h.Quality,
			Location:   h.Location,
			RecordedAt: h.RecordedDate,
		}
	})
	overallAverage := 0.0
	if len(samples) > 0 {
		overallAverage = lo.SumBy(samples, func(s market.PriceSample) float64 { return s.Price }) / float64(len(samples))
	}

	estimate, err := market.BuildEstimate(samples, request.Location, request.Quality, overallAverage)
	if err != nil {
		if errors.Is(err, market.ErrInsufficientData) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Not enough price history for this crop"})
			return
		}
		server.abortWithError(c, op, fmt.Errorf("[%s] Fail to build estimate, err=%w", op, err))
		return
	}

	if encoded, err := json.Marshal(estimate); err == nil {
		if err := server.redisClient.Set(
			c.Request.Context(), cacheKey, encoded, server.config.Redis.ExpireTime,
		).Err(); err != nil {
			server.logger.Error("failed to cache estimate", slog.Any("error", err))
		}
	}
	c.JSON(http.StatusOK, estimate)
}
