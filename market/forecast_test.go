package market_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agrinet/market"
)

func TestParsePeriod(t *testing.T) {
	got, err := market.ParsePeriod("")
	assert.NoError(t, err)
	assert.Equal(t, market.PeriodNextMonth, got)

	got, err = market.ParsePeriod("three_months")
	assert.NoError(t, err)
	assert.Equal(t, market.PeriodThreeMonths, got)

	_, err = market.ParsePeriod("next_year")
	assert.ErrorIs(t, err, market.ErrUnknownPeriod)
}

func TestDemandIndex(t *testing.T) {
	// 沒有出價就沒有需求
	assert.Equal(t, 0, market.DemandIndex(0, 500))

	// 出價越多指數越高
	low := market.DemandIndex(2, 200)
	high := market.DemandIndex(20, 200)
	assert.Greater(t, high, low)

	// 供給越多指數越低
	scarce := market.DemandIndex(10, 100)
	flooded := market.DemandIndex(10, 5000)
	assert.Greater(t, scarce, flooded)

	// 始終落在 0-100
	assert.LessOrEqual(t, market.DemandIndex(100000, 0), 100)
	assert.GreaterOrEqual(t, market.DemandIndex(1, 1000000), 0)
}

func TestBuildForecast(t *testing.T) {
	activities := []market.CropActivity{
		{CropType: "Onions", RecentBids: 3, PriorBids: 3, ListedKg: 2000},
		{CropType: "Tomatoes", RecentBids: 40, PriorBids: 10, ListedKg: 300},
		{CropType: "Wheat", RecentBids: 0, PriorBids: 2, ListedKg: 800},
	}

	fc := market.BuildForecast(market.PeriodNextMonth, activities)

	// next_month 是四個週資料點
	require.Len(t, fc.Crops, 3)
	for _, c := range fc.Crops {
		assert.Len(t, c.Series, 4)
		for _, p := range c.Series {
			assert.GreaterOrEqual(t, p.Value, 0)
			assert.LessOrEqual(t, p.Value, 100)
		}
	}

	// 指數高的作物排在前面
	assert.Equal(t, "Tomatoes", fc.Crops[0].CropType)

	// 沒有出價的作物落在低需求組
	assert.Contains(t, fc.Groups.Low, "Wheat")

	// 每個作物只出現在一個分組
	total := len(fc.Groups.High) + len(fc.Groups.Moderate) + len(fc.Groups.Low)
	assert.Equal(t, 3, total)
}

func TestBuildForecastHorizons(t *testing.T) {
	activities := []market.CropActivity{{CropType: "Tomatoes", RecentBids: 5, ListedKg: 100}}

	assert.Len(t, market.BuildForecast(market.PeriodThreeMonths, activities).Crops[0].Series, 3)
	assert.Len(t, market.BuildForecast(market.PeriodSixMonths, activities).Crops[0].Series, 6)
}
