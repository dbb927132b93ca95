package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 作物品質等級，A 為頂級、B 為標準、C 為基本
const (
	QualityPremium  = "A"
	QualityStandard = "B"
	QualityBasic    = "C"
)

// Listing 代表農夫刊登的作物出售資訊
// 包含數量(公斤)、單價(每公斤)、品質等級、採收日期與配送條件
// 下架是把 IsActive 設為 false，不做實體刪除
type Listing struct {
	gorm.Model

	ID                uuid.UUID `gorm:"type:uuid;default:public.uuid_generate_v7();primaryKey;<-:false"`
	UserID            uuid.UUID `gorm:"type:uuid;not null;<-:create"`
	CropTypeID        uuid.UUID `gorm:"type:uuid;not null;<-:create"`
	Quantity          float64   `gorm:"type:double precision;not null"`
	Price             float64   `gorm:"type:double precision;not null"`
	Quality           string    `gorm:"type:varchar(1);not null"`
	Description       string    `gorm:"type:text;not null"`
	Location          string    `gorm:"type:varchar(255);not null"`
	HarvestedDate     time.Time `gorm:"type:timestamp with time zone;not null"`
	DeliveryAvailable bool      `gorm:"type:boolean;not null;default:false"`
	DeliveryRadius    *int      `gorm:"type:integer"`
	IsVerified        bool      `gorm:"type:boolean;not null;default:false"`
	IsActive          bool      `gorm:"type:boolean;not null;default:true"`
	ImageURL          *string   `gorm:"type:text"`

	// 外鍵關聯
	User       User
	CropType   CropType
	BidRecords []Bid
}
