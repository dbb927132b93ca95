package market

import (
	"sort"

	"github.com/google/uuid"
)

// BarterListing 是參與配對的刊登摘要
type BarterListing struct {
	ListingID uuid.UUID
	OwnerID   uuid.UUID
	OwnerName string
	CropType  string
	Quantity  float64
	Price     float64
	Location  string
}

// BarterMatch 是一組建議的以物易物交換
// Score 越高代表兩邊的貨值越接近，同地點會再加分
type BarterMatch struct {
	MyListing    BarterListing `json:"myListing"`
	TheirListing BarterListing `json:"theirListing"`
	Score        float64       `json:"score"`
}

// 同地點的加分值
const sameLocationBonus = 0.2

// ScoreMatch 計算兩個刊登互換的適配分數
// 同作物或同擁有者不構成交換，回傳 0
func ScoreMatch(mine, theirs BarterListing) float64 {
	if mine.OwnerID == theirs.OwnerID || mine.CropType == theirs.CropType {
		return 0
	}
	myValue := mine.Quantity * mine.Price
	theirValue := theirs.Quantity * theirs.Price
	if myValue <= 0 || theirValue <= 0 {
		return 0
	}
	balance := myValue / theirValue
	if balance > 1 {
		balance = 1 / balance
	}
	score := balance
	if normalizeKey(mine.Location) == normalizeKey(theirs.Location) {
		score += sameLocationBonus
	}
	return score
}

// TopMatches 對我的刊登和其他農夫的刊登做配對，回傳分數最高的前 limit 組
// 分數相同時維持輸入順序
func TopMatches(mine, others []BarterListing, limit int) []BarterMatch {
	matches := make([]BarterMatch, 0)
	for _, m := range mine {
		for _, o := range others {
			score := ScoreMatch(m, o)
			if score <= 0 {
				continue
			}
			matches = append(matches, BarterMatch{MyListing: m, TheirListing: o, Score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
