package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// HoldingItem 代表拍賣結束後放入得標者待領區的商品
// 後續的結帳與訂單流程由其他系統負責。
type HoldingItem struct {
	gorm.Model

	ID        uuid.UUID `gorm:"type:uuid;default:public.uuid_generate_v7();primaryKey;<-:false"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index;<-:create"`
	AuctionID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex,where:deleted_at IS NULL;<-:create"`

	// 外鍵關聯
	User    User
	Auction Auction
}
