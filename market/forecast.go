package market

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrUnknownPeriod 代表不認識的預測區間
var ErrUnknownPeriod = errors.New("unknown forecast period")

// Period 是需求預測的時間範圍
type Period string

const (
	PeriodNextMonth   Period = "next_month"
	PeriodThreeMonths Period = "three_months"
	PeriodSixMonths   Period = "six_months"
)

// ParsePeriod 解析查詢參數中的預測區間，空字串視為 next_month
func ParsePeriod(value string) (Period, error) {
	switch Period(value) {
	case "", PeriodNextMonth:
		return PeriodNextMonth, nil
	case PeriodThreeMonths:
		return PeriodThreeMonths, nil
	case PeriodSixMonths:
		return PeriodSixMonths, nil
	default:
		return "", ErrUnknownPeriod
	}
}

// 需求指數的分級門檻
const (
	highDemandThreshold     = 70
	moderateDemandThreshold = 40
)

// CropActivity 是單一作物在觀察窗口內的市場活動彙總
// RecentBids/PriorBids 分別是近期與前一期的出價數，用來推趨勢
type CropActivity struct {
	CropType   string
	RecentBids int
	PriorBids  int
	ListedKg   float64
}

// SeriesPoint 是圖表上的一個資料點
type SeriesPoint struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

// CropForecast 是單一作物的預測輸出
type CropForecast struct {
	CropType string        `json:"cropType"`
	Index    int           `json:"demandIndex"`
	Trend    int           `json:"trend"`
	Series   []SeriesPoint `json:"series"`
}

// DemandGroups 把作物依需求指數分成三級，供建議文案使用
type DemandGroups struct {
	High     []string `json:"high"`
	Moderate []string `json:"moderate"`
	Low      []string `json:"low"`
}

// Forecast 是完整的需求預測結果
type Forecast struct {
	Period Period         `json:"period"`
	Crops  []CropForecast `json:"crops"`
	Groups DemandGroups   `json:"demandGroups"`
}

// DemandIndex 把市場活動換算成 0-100 的需求指數
// 出價越多指數越高，掛牌供給量越大指數越低；沒有任何活動時為 0
func DemandIndex(bids int, listedKg float64) int {
	if bids <= 0 {
		return 0
	}
	pressure := float64(bids) / (float64(bids) + listedKg/100 + 1)
	return clampIndex(int(math.Round(pressure * 100)))
}

// BuildForecast 從活動彙總產生預測
// 序列是從目前指數出發、依近期對前期的出價變化做線性外插，外插值限制在 0-100
func BuildForecast(period Period, activities []CropActivity) Forecast {
	points := seriesPoints(period)
	crops := make([]CropForecast, 0, len(activities))
	var groups DemandGroups

	for _, a := range activities {
		index := DemandIndex(a.RecentBids, a.ListedKg)
		trend := DemandIndex(a.RecentBids, a.ListedKg) - DemandIndex(a.PriorBids, a.ListedKg)

		series := make([]SeriesPoint, len(points))
		for i, label := range points {
			series[i] = SeriesPoint{
				Label: label,
				Value: clampIndex(index + trend*(i+1)),
			}
		}
		crops = append(crops, CropForecast{
			CropType: a.CropType,
			Index:    index,
			Trend:    trend,
			Series:   series,
		})
	}

	// 指數高的排前面，同指數維持輸入順序
	sort.SliceStable(crops, func(i, j int) bool { return crops[i].Index > crops[j].Index })

	for _, c := range crops {
		switch {
		case c.Index >= highDemandThreshold:
			groups.High = append(groups.High, c.CropType)
		case c.Index >= moderateDemandThreshold:
			groups.Moderate = append(groups.Moderate, c.CropType)
		default:
			groups.Low = append(groups.Low, c.CropType)
		}
	}

	return Forecast{Period: period, Crops: crops, Groups: groups}
}

// seriesPoints 回傳各區間的資料點標籤
// next_month 用週、其餘用月，對齊原本圖表的刻度
func seriesPoints(period Period) []string {
	switch period {
	case PeriodThreeMonths:
		return monthLabels(3)
	case PeriodSixMonths:
		return monthLabels(6)
	default:
		return []string{"Week 1", "Week 2", "Week 3", "Week 4"}
	}
}

func monthLabels(n int) []string {
	labels := make([]string, n)
	for i := range labels {
		labels[i] = fmt.Sprintf("Month %d", i+1)
	}
	return labels
}

func clampIndex(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
