package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"agrinet/models"
)

// SnapshotSchedule 是每日行情快照的排程，在每天收盤後執行
const SnapshotSchedule = "30 23 * * *"

// Scheduler 負責背景排程工作
// 目前只有一個工作：把當天的成交行情寫進價格歷史，供估價和需求預測使用
type Scheduler struct {
	cron   *cron.Cron
	db     *gorm.DB
	logger *slog.Logger
}

func NewScheduler(db *gorm.DB, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		cron:   cron.New(),
		db:     db,
		logger: logger.With(slog.String("caller", "Scheduler")),
	}
}

// Start 註冊排程並啟動
func (s *Scheduler) Start() error {
	const op = "Scheduler.Start"
	s.logger.Info("starting scheduler")

	if _, err := s.cron.AddFunc(SnapshotSchedule, s.snapshotDailyPrices); err != nil {
		s.logger.Error("failed to schedule daily price snapshot", slog.Any("error", err))
		return err
	}

	s.cron.Start()
	return nil
}

// Stop 停止排程器，正在執行的工作會跑完
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// priceAggregate 是快照查詢的聚合結果
type priceAggregate struct {
	CropTypeID uuid.UUID
	Location   string
	Quality    string
	AvgPrice   float64
}

// snapshotDailyPrices 聚合過去24小時的成交價寫進價格歷史
// 沒有任何成交的分組改用在售刊登的要價，讓冷門作物也有行情資料
func (s *Scheduler) snapshotDailyPrices() {
	s.logger.Info("running daily price snapshot")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	since := time.Now().Add(-24 * time.Hour)

	// 成交價：已接受的出價
	var accepted []priceAggregate
	err := s.db.WithContext(ctx).
		Model(&models.Bid{}).
		Select("listings.crop_type_id AS crop_type_id, listings.location AS location, listings.quality AS quality, AVG(bids.amount) AS avg_price").
		Joins("JOIN listings ON listings.id = bids.listing_id").
		Where("bids.status = ? AND bids.updated_at >= ?", models.StatusAccepted, since).
		Group("listings.crop_type_id, listings.location, listings.quality").
		Scan(&accepted).Error
	if err != nil {
		s.logger.Error("failed to aggregate accepted bids", slog.Any("error", err))
		return
	}

	seen := make(map[priceKey]bool, len(accepted))
	records := make([]models.PriceHistory, 0, len(accepted))
	for _, row := range accepted {
		seen[priceKey{row.CropTypeID, row.Location, row.Quality}] = true
		records = append(records, models.PriceHistory{
			CropTypeID:   row.CropTypeID,
			Location:     row.Location,
			Quality:      row.Quality,
			Price:        row.AvgPrice,
			RecordedDate: time.Now(),
		})
	}

	// 要價：仍在售的刊登
	var asking []priceAggregate
	err = s.db.WithContext(ctx).
		Model(&models.Listing{}).
		Select("crop_type_id, location, quality, AVG(price) AS avg_price").
		Where("is_active = ?", true).
		Group("crop_type_id, location, quality").
		Scan(&asking).Error
	if err != nil {
		s.logger.Error("failed to aggregate active listings", slog.Any("error", err))
		return
	}

	for _, row := range asking {
		if seen[priceKey{row.CropTypeID, row.Location, row.Quality}] {
			continue
		}
		records = append(records, models.PriceHistory{
			CropTypeID:   row.CropTypeID,
			Location:     row.Location,
			Quality:      row.Quality,
			Price:        row.AvgPrice,
			RecordedDate: time.Now(),
		})
	}

	if len(records) == 0 {
		s.logger.Info("no market activity to snapshot")
		return
	}

	if err := s.db.WithContext(ctx).Create(&records).Error; err != nil {
		s.logger.Error("failed to persist price snapshot", slog.Any("error", err))
		return
	}
	s.logger.Info("daily price snapshot persisted", slog.Int("records", len(records)))
}

type priceKey struct {
	cropTypeID uuid.UUID
	location   string
	quality    string
}
