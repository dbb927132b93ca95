package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Image 代表使用者上傳的刊登圖片紀錄
// 用於上傳頻率限制，URL 指向 S3 上的公開位址
type Image struct {
	gorm.Model

	ID         uuid.UUID `gorm:"type:uuid;default:public.uuid_generate_v7();primaryKey;<-:false"`
	UploaderID uuid.UUID `gorm:"type:uuid;not null;<-:create"`
	Url        string    `gorm:"type:text;not null;<-:create"`

	Uploader *User `gorm:"foreignKey:UploaderID"`
}
