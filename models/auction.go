package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuctionStatus 代表拍賣的生命週期狀態
// 狀態機: pending -(達到最低人數)-> active -(倒數結束)-> completed
type AuctionStatus string

const (
	AuctionPending   AuctionStatus = "pending"
	AuctionActive    AuctionStatus = "active"
	AuctionCompleted AuctionStatus = "completed"
)

// AuctionCategory 代表拍賣商品的類別
type AuctionCategory string

const (
	CategoryCash    AuctionCategory = "cash"
	CategoryProduct AuctionCategory = "product"
	CategoryCoupon  AuctionCategory = "coupon"
)

// Auction 代表一場限時競標
// Deadline 只在 active 狀態有意義；Leader 只有在至少一次出價被接受後才會有值；
// 進入 completed 後 Leader 與 LeaderBidAmount 即凍結。
// Version 用於樂觀鎖，所有對拍賣狀態的部分更新都必須帶上預期版本。
type Auction struct {
	gorm.Model

	ID                  uuid.UUID       `gorm:"type:uuid;default:public.uuid_generate_v7();primaryKey;<-:false"`
	Name                string          `gorm:"type:varchar(255);not null"`
	Description         string          `gorm:"type:text;not null"`
	Category            AuctionCategory `gorm:"type:varchar(32);not null"`
	Status              AuctionStatus   `gorm:"type:varchar(32);not null;default:'pending';index"`
	EntryFee            int64           `gorm:"type:bigint;not null"`
	MinimumParticipants int             `gorm:"type:integer;not null;default:1"`
	Deadline            *time.Time      `gorm:"type:timestamp with time zone"`
	LeaderID            *uuid.UUID      `gorm:"type:uuid"`
	LeaderBidAmount     int64           `gorm:"type:bigint;not null;default:0"`
	WinnerID            *uuid.UUID      `gorm:"type:uuid"`
	Version             uint64          `gorm:"type:bigint;not null;default:0"`

	// 外鍵關聯
	Leader     *User `gorm:"foreignKey:LeaderID"`
	Winner     *User `gorm:"foreignKey:WinnerID"`
	BidRecords []Bid
}
