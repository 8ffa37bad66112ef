//go:generate mockgen -package=auction -destination=mock.go -source=interfaces.go

package auction

import (
	"context"
	"time"

	"github.com/google/uuid"

	"pennybid/models"
)

// AuctionUpdate 描述一次對拍賣可變欄位的部分更新。
// nil 欄位代表不更動；更新必須以樂觀鎖(預期版本)的方式套用。
type AuctionUpdate struct {
	Status          *models.AuctionStatus
	Deadline        *time.Time
	LeaderID        *uuid.UUID
	LeaderBidAmount *int64
	WinnerID        *uuid.UUID
}

// ILedger 定義了仲裁器與排程器對持久層的查詢契約。
// 每個操作各自都是原子的；需要跨多個操作的原子性時使用 InTransaction。
type ILedger interface {
	// GetAuction 讀取最新已提交的拍賣狀態，不存在時回傳 ErrAuctionNotFound
	GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error)
	// ListAuctionsByStatus 列出處於指定狀態的所有拍賣
	ListAuctionsByStatus(ctx context.Context, status models.AuctionStatus) ([]models.Auction, error)
	// UpdateAuctionState 以樂觀鎖更新拍賣欄位，版本不符時回傳 ErrConflict
	UpdateAuctionState(ctx context.Context, id uuid.UUID, expectedVersion uint64, update AuctionUpdate) error
	// AppendBid 新增一筆出價紀錄
	AppendBid(ctx context.Context, auctionID, bidderID uuid.UUID, amount int64) error
	// CountEnrollments 回傳拍賣已報名的人數
	CountEnrollments(ctx context.Context, auctionID uuid.UUID) (int64, error)
	// IsEnrolled 檢查使用者是否已支付該拍賣的入場費
	IsEnrolled(ctx context.Context, auctionID, userID uuid.UUID) (bool, error)
	// CreateEnrollment 建立報名紀錄，重複報名時回傳 ErrAlreadyEnrolled
	CreateEnrollment(ctx context.Context, auctionID, userID uuid.UUID) error
	// ListEnrolledEmails 列出拍賣所有已報名使用者的Email
	ListEnrolledEmails(ctx context.Context, auctionID uuid.UUID) ([]string, error)
	// GetBalance 讀取使用者目前的競標點數
	GetBalance(ctx context.Context, userID uuid.UUID) (int64, error)
	// GetUserEmail 讀取使用者的Email
	GetUserEmail(ctx context.Context, userID uuid.UUID) (string, error)
	// AdjustBalance 調整使用者點數，餘額不足以扣款時回傳 ErrInsufficientBalance
	AdjustBalance(ctx context.Context, userID uuid.UUID, delta int64) error
	// PlaceInHolding 將得標商品放入使用者的待領區
	PlaceInHolding(ctx context.Context, userID, auctionID uuid.UUID) error
	// InTransaction 在單一交易中執行fn；fn回傳錯誤時整筆回滾
	InTransaction(ctx context.Context, fn func(tx ILedger) error) error
}

// IMailer 定義了對外寄送通知的介面，實際遞送由外部服務負責
type IMailer interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// IBroadcaster 定義了即時事件廣播的介面
type IBroadcaster interface {
	Publish(ctx context.Context, event Event) error
}
