package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Enrollment 代表使用者已支付入場費並取得某場拍賣的出價資格
// 每個 (auction, user) 只會有一筆，拍賣結束前不會被刪除。
type Enrollment struct {
	gorm.Model

	ID        uuid.UUID `gorm:"type:uuid;default:public.uuid_generate_v7();primaryKey;<-:false"`
	AuctionID uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_enrollment_auction_id_user_id,where:deleted_at IS NULL;not null;<-:create"`
	UserID    uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_enrollment_auction_id_user_id,where:deleted_at IS NULL;not null;<-:create"`

	// 外鍵關聯
	User    User
	Auction Auction
}
