package market

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// MinEstimateSamples 是產生估價需要的最少歷史樣本數
// 低於這個數量時回傳 ErrInsufficientData，而不是偽造一個數字
const MinEstimateSamples = 3

// ErrInsufficientData 代表歷史價格樣本不足，無法產生可信的估價
var ErrInsufficientData = errors.New("insufficient price history")

// PriceSample 是一筆歷史價格樣本
type PriceSample struct {
	Price      float64
	Quality    string
	Location   string
	RecordedAt time.Time
}

// Estimate 是估價結果
// Basis 說明樣本的篩選層級，讓呼叫端知道估價有多貼近查詢條件
type Estimate struct {
	PriceRange       string  `json:"priceRange"`
	MinPrice         float64 `json:"minPrice"`
	MaxPrice         float64 `json:"maxPrice"`
	AveragePrice     float64 `json:"averagePrice"`
	MarketComparison string  `json:"marketComparison"`
	SampleCount      int     `json:"sampleCount"`
	Basis            string  `json:"basis"`
}

// BuildEstimate 從歷史樣本計算估價
// 篩選逐步放寬：先取同地點同品質，不足再取同品質，再不足就用整個作物的樣本
// overallAverage 是該作物跨地點跨品質的平均價，用來判斷市場相對位置
func BuildEstimate(samples []PriceSample, location, quality string, overallAverage float64) (Estimate, error) {
	selected, basis := selectSamples(samples, normalizeKey(location), quality)
	if len(selected) < MinEstimateSamples {
		return Estimate{}, ErrInsufficientData
	}

	minPrice := math.Inf(1)
	maxPrice := math.Inf(-1)
	var sum float64
	for _, s := range selected {
		minPrice = math.Min(minPrice, s.Price)
		maxPrice = math.Max(maxPrice, s.Price)
		sum += s.Price
	}
	avg := sum / float64(len(selected))

	comparison := "below"
	if avg >= overallAverage {
		comparison = "above"
	}

	return Estimate{
		PriceRange:       fmt.Sprintf("₹%.0f-%.0f", minPrice, maxPrice),
		MinPrice:         round2(minPrice),
		MaxPrice:         round2(maxPrice),
		AveragePrice:     round2(avg),
		MarketComparison: comparison,
		SampleCount:      len(selected),
		Basis:            basis,
	}, nil
}

// selectSamples 依序嘗試三個篩選層級，回傳第一個樣本數足夠的集合
func selectSamples(samples []PriceSample, location, quality string) ([]PriceSample, string) {
	byLocationQuality := make([]PriceSample, 0, len(samples))
	byQuality := make([]PriceSample, 0, len(samples))
	for _, s := range samples {
		if s.Quality == quality {
			byQuality = append(byQuality, s)
			if normalizeKey(s.Location) == location {
				byLocationQuality = append(byLocationQuality, s)
			}
		}
	}
	if len(byLocationQuality) >= MinEstimateSamples {
		return byLocationQuality, "location+quality"
	}
	if len(byQuality) >= MinEstimateSamples {
		return byQuality, "quality"
	}
	return samples, "crop"
}

func normalizeKey(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
