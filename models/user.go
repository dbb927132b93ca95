package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 使用者角色
const (
	RoleFarmer = "farmer"
	RoleBuyer  = "buyer"
)

// User 代表市集中的使用者
// 包含登入憑證與聯絡資訊，role 區分農夫(賣方)與買家
type User struct {
	gorm.Model

	ID           uuid.UUID `gorm:"type:uuid;default:public.uuid_generate_v7();primaryKey;<-:false"`
	Username     string    `gorm:"type:varchar(255);not null;uniqueIndex;<-:create"`
	PasswordHash string    `gorm:"type:varchar(255);not null"`
	Name         string    `gorm:"type:varchar(255);not null"`
	Location     string    `gorm:"type:varchar(255);not null"`
	PhoneNumber  string    `gorm:"type:varchar(32);not null"`
	Role         string    `gorm:"type:varchar(16);not null;default:'farmer'"`
}
