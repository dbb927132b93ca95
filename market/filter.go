package market

import (
	"errors"
	"strings"
)

var (
	// ErrUnknownSort 代表不認識的排序鍵
	ErrUnknownSort = errors.New("unknown sort option")
	// ErrUnsupportedSort 代表認識但明確不支援的排序鍵
	// 目前只有 nearest：沒有地理座標資料，拒絕而不是默默回傳原順序
	ErrUnsupportedSort = errors.New("unsupported sort option")
)

// SortOption 是刊登列表支援的排序方式
type SortOption string

const (
	SortNewest    SortOption = "newest"
	SortPriceHigh SortOption = "price_high"
	SortPriceLow  SortOption = "price_low"
	sortNearest   SortOption = "nearest"
)

// SortColumn 描述一個排序欄位，由 api 層轉成 SQL 的 ORDER BY
type SortColumn struct {
	Name string
	Desc bool
}

// ParseSortOption 解析查詢參數中的排序鍵
// 空字串視為 newest；nearest 回傳 ErrUnsupportedSort
func ParseSortOption(value string) (SortOption, error) {
	switch SortOption(strings.TrimSpace(value)) {
	case "", SortNewest:
		return SortNewest, nil
	case SortPriceHigh:
		return SortPriceHigh, nil
	case SortPriceLow:
		return SortPriceLow, nil
	case sortNearest:
		return "", ErrUnsupportedSort
	default:
		return "", ErrUnknownSort
	}
}

// OrderColumns 回傳排序鍵對應的欄位序列
// 第二鍵固定為 id 升冪，讓同價的刊登保持穩定的相對順序
func (s SortOption) OrderColumns() []SortColumn {
	var primary SortColumn
	switch s {
	case SortPriceHigh:
		primary = SortColumn{Name: "price", Desc: true}
	case SortPriceLow:
		primary = SortColumn{Name: "price", Desc: false}
	default:
		primary = SortColumn{Name: "created_at", Desc: true}
	}
	return []SortColumn{primary, {Name: "id", Desc: false}}
}

// NormalizeSearch 整理自由文字搜尋字串
// 回傳空字串代表不套用搜尋條件
func NormalizeSearch(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
