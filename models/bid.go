package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Bid 代表一筆被接受的出價紀錄
// 紀錄是append-only的，不會被更新或刪除；每場拍賣在任一時刻只會有一筆最新的領先出價。
type Bid struct {
	gorm.Model

	ID        uuid.UUID `gorm:"type:uuid;default:public.uuid_generate_v7();primaryKey;<-:false"`
	AuctionID uuid.UUID `gorm:"type:uuid;not null;index;<-:create"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;<-:create"`
	Amount    int64     `gorm:"type:bigint;not null;<-:create"`

	// 外鍵關聯
	User    User
	Auction Auction
}
