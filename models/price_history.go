package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PriceHistory 代表某作物在某地點的成交或掛牌價格樣本
// 只增不改，是價格預估的資料來源；由出價成交與排程快照寫入
type PriceHistory struct {
	gorm.Model

	ID           uuid.UUID `gorm:"type:uuid;default:public.uuid_generate_v7();primaryKey;<-:false"`
	CropTypeID   uuid.UUID `gorm:"type:uuid;not null;<-:create"`
	Location     string    `gorm:"type:varchar(255);not null;<-:create"`
	Price        float64   `gorm:"type:double precision;not null;<-:create"`
	Quality      string    `gorm:"type:varchar(1);not null;<-:create"`
	RecordedDate time.Time `gorm:"type:timestamp with time zone;not null;default:now();<-:create"`

	// 外鍵關聯
	CropType CropType
}
