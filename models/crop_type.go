package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CropType 代表作物種類的參考資料
// 由管理端建立，被 Listing、BarterOffer 和 PriceHistory 引用
type CropType struct {
	gorm.Model

	ID   uuid.UUID `gorm:"type:uuid;default:public.uuid_generate_v7();primaryKey;<-:false"`
	Name string    `gorm:"type:varchar(255);not null;uniqueIndex;<-:create"`
}
