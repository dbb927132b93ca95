package api

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"agrinet/market"
	"agrinet/models"
)

// 需求預測的觀察窗口，近期和前期各一個窗口長
const forecastWindow = 30 * 24 * time.Hour

// DemandForecast 彙總近期市場活動，回傳各作物的需求指數與趨勢
func (server *ServerImpl) DemandForecast(c *gin.Context) {
	const op = "api.ServerImpl.DemandForecast"

	period, err := market.ParsePeriod(c.Query("period"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid forecast period: %s", c.Query("period"))})
		return
	}

	now := time.Now()
	activities := map[string]*market.CropActivity{}
	touch := func(cropType string) *market.CropActivity {
		if a, ok := activities[cropType]; ok {
			return a
		}
		a := &market.CropActivity{CropType: cropType}
		activities[cropType] = a
		return a
	}

	// 有效刊登的供給量
	supplyRows := []struct {
		CropType string
		ListedKg float64
	}{}
	err = server.db.Model(&models.Listing{}).
		Select("crop_types.name AS crop_type, SUM(listings.quantity) AS listed_kg").
		Joins("JOIN crop_types ON crop_types.id = listings.crop_type_id").
		Where("listings.is_active = ?", true).
		Group("crop_types.name").
		Scan(&supplyRows).Error
	if err != nil {
		server.abortWithError(c, op, fmt.Errorf("[%s] Fail to aggregate listed supply, err=%w", op, err))
		return
	}
	for _, row := range supplyRows {
		touch(row.CropType).ListedKg = row.ListedKg
	}

	// 近期與前期的出價數，用來推趨勢
	countBids := func(from, to time.Time) (map[string]int, error) {
		rows := []struct {
			CropType string
			Bids     int
		}{}
		err := server.db.Model(&models.Bid{}).
			Select("crop_types.name AS crop_type, COUNT(*) AS bids").
			Joins("JOIN listings ON listings.id = bids.listing_id").
			Joins("JOIN crop_types ON crop_types.id = listings.crop_type_id").
			Where("bids.created_at >= ? AND bids.created_at < ?", from, to).
			Group("crop_types.name").
			Scan(&rows).Error
		if err != nil {
			return nil, err
		}
		counts := make(map[string]int, len(rows))
		for _, row := range rows {
			counts[row.CropType] = row.Bids
		}
		return counts, nil
	}

	recent, err := countBids(now.Add(-forecastWindow), now)
	if err != nil {
		server.abortWithError(c, op, fmt.Errorf("[%s] Fail to count recent bids, err=%w", op, err))
		return
	}
	prior, err := countBids(now.Add(-2*forecastWindow), now.Add(-forecastWindow))
	if err != nil {
		server.abortWithError(c, op, fmt.Errorf("[%s] Fail to count prior bids, err=%w", op, err))
		return
	}
	for cropType, count := range recent {
		touch(cropType).RecentBids = count
	}
	for cropType, count := range prior {
		touch(cropType).PriorBids = count
	}

	// 固定輸入順序，讓同指數作物的排序穩定
	names := make([]string, 0, len(activities))
	for name := range activities {
		names = append(names, name)
	}
	sort.Strings(names)
	ordered := make([]market.CropActivity, 0, len(names))
	for _, name := range names {
		ordered = append(ordered, *activities[name])
	}

	c.JSON(http.StatusOK, market.BuildForecast(period, ordered))
}
