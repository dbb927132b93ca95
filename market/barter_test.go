package market_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agrinet/market"
)

func barterListing(owner uuid.UUID, crop string, qty, price float64, location string) market.BarterListing {
	return market.BarterListing{
		ListingID: uuid.New(),
		OwnerID:   owner,
		CropType:  crop,
		Quantity:  qty,
		Price:     price,
		Location:  location,
	}
}

func TestScoreMatch(t *testing.T) {
	me := uuid.New()
	other := uuid.New()

	t.Run("same_owner_no_match", func(t *testing.T) {
		a := barterListing(me, "Rice", 50, 40, "Pune")
		b := barterListing(me, "Wheat", 50, 40, "Pune")
		assert.Zero(t, market.ScoreMatch(a, b))
	})

	t.Run("same_crop_no_match", func(t *testing.T) {
		a := barterListing(me, "Rice", 50, 40, "Pune")
		b := barterListing(other, "Rice", 60, 35, "Pune")
		assert.Zero(t, market.ScoreMatch(a, b))
	})

	t.Run("equal_value_same_location_is_best", func(t *testing.T) {
		a := barterListing(me, "Rice", 50, 40, "Pune")
		b := barterListing(other, "Wheat", 100, 20, "Pune")
		assert.InDelta(t, 1.2, market.ScoreMatch(a, b), 1e-9)
	})

	t.Run("unbalanced_value_scores_lower", func(t *testing.T) {
		a := barterListing(me, "Rice", 50, 40, "Pune")
		balanced := barterListing(other, "Wheat", 100, 20, "Nashik")
		lopsided := barterListing(other, "Wheat", 10, 20, "Nashik")
		assert.Greater(t, market.ScoreMatch(a, balanced), market.ScoreMatch(a, lopsided))
	})
}

func TestTopMatches(t *testing.T) {
	me := uuid.New()
	farmerB := uuid.New()
	farmerC := uuid.New()

	mine := []market.BarterListing{
		barterListing(me, "Rice", 50, 40, "Pune"),
	}
	others := []market.BarterListing{
		barterListing(farmerB, "Wheat", 100, 20, "Pune"),   // 等值同地點
		barterListing(farmerC, "Onions", 10, 18, "Nashik"), // 貨值差很多
		barterListing(farmerB, "Rice", 80, 38, "Pune"),     // 同作物，不配對
	}

	matches := market.TopMatches(mine, others, 10)
	require.Len(t, matches, 2)

	// 分數由高到低
	assert.Equal(t, "Wheat", matches[0].TheirListing.CropType)
	assert.Greater(t, matches[0].Score, matches[1].Score)

	// limit 會截斷結果
	assert.Len(t, market.TopMatches(mine, others, 1), 1)

	// 沒有可交換對象時回傳空集合
	assert.Empty(t, market.TopMatches(nil, others, 5))
}
