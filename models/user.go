package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User 代表競標系統中的使用者
// 包含使用者名稱、Email與目前持有的競標點數
type User struct {
	gorm.Model

	ID        uuid.UUID `gorm:"type:uuid;default:public.uuid_generate_v7();primaryKey;<-:false"`
	Username  string    `gorm:"type:varchar(255);not null"`
	Email     string    `gorm:"type:varchar(255);not null;uniqueIndex,where:deleted_at IS NULL"`
	BidPoints int64     `gorm:"type:bigint;not null;default:0"`
	IsAdmin   bool      `gorm:"type:boolean;not null;default:false"`
}
