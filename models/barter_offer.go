package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BarterOffer 代表兩個使用者之間以物易物的提案
// 提案方用 OfferCropType/OfferQuantity 交換接收方的 ReceiverCropType/ReceiverQuantity
type BarterOffer struct {
	gorm.Model

	ID                 uuid.UUID `gorm:"type:uuid;default:public.uuid_generate_v7();primaryKey;<-:false"`
	OfferUserID        uuid.UUID `gorm:"type:uuid;not null;<-:create"`
	ReceiverUserID     uuid.UUID `gorm:"type:uuid;not null;<-:create"`
	OfferCropTypeID    uuid.UUID `gorm:"type:uuid;not null;<-:create"`
	OfferQuantity      float64   `gorm:"type:double precision;not null;<-:create"`
	ReceiverCropTypeID uuid.UUID `gorm:"type:uuid;not null;<-:create"`
	ReceiverQuantity   float64   `gorm:"type:double precision;not null;<-:create"`
	Status             string    `gorm:"type:varchar(16);not null;default:'pending'"`

	// 外鍵關聯
	OfferUser        User     `gorm:"foreignKey:OfferUserID"`
	ReceiverUser     User     `gorm:"foreignKey:ReceiverUserID"`
	OfferCropType    CropType `gorm:"foreignKey:OfferCropTypeID"`
	ReceiverCropType CropType `gorm:"foreignKey:ReceiverCropTypeID"`
}
