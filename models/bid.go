package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 出價與以物易物提案共用的狀態
const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

// Bid 代表買家對刊登的出價紀錄
// Amount 是買家願付的每公斤單價，狀態由刊登的擁有者決定
type Bid struct {
	*gorm.Model

	ID        uuid.UUID `gorm:"type:uuid;default:public.uuid_generate_v7();primaryKey;<-:false"`
	ListingID uuid.UUID `gorm:"type:uuid;not null;<-:create"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;<-:create"`
	Amount    float64   `gorm:"type:double precision;not null;<-:create"`
	Message   *string   `gorm:"type:text;<-:create"`
	Status    string    `gorm:"type:varchar(16);not null;default:'pending'"`

	// 外鍵關聯
	User    User
	Listing Listing
}
