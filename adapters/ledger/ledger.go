// Package ledger 以 gorm + PostgreSQL 實作拍賣核心對持久層的查詢契約。
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"pennybid/auction"
	"pennybid/models"
)

// GormLedger 實作了 auction.ILedger。
// 每個方法各自是原子的；InTransaction 將多個操作包進同一筆資料庫交易。
type GormLedger struct {
	db *gorm.DB
}

// NewGormLedger 建立一個新的 GormLedger
func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{db: db}
}

// GetAuction 讀取最新已提交的拍賣狀態
func (l *GormLedger) GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	const op = "GormLedger.GetAuction"
	auctionRecord := models.Auction{ID: id}
	if result := l.db.WithContext(ctx).First(&auctionRecord); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, auction.ErrAuctionNotFound
		}
		return nil, fmt.Errorf("[%s] Fail to find auction, err=%w", op, result.Error)
	}
	return &auctionRecord, nil
}

// ListAuctionsByStatus 列出處於指定狀態的所有拍賣
func (l *GormLedger) ListAuctionsByStatus(ctx context.Context, status models.AuctionStatus) ([]models.Auction, error) {
	const op = "GormLedger.ListAuctionsByStatus"
	var auctions []models.Auction
	if result := l.db.WithContext(ctx).Where("status = ?", status).Find(&auctions); result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to list auctions, err=%w", op, result.Error)
	}
	return auctions, nil
}

// UpdateAuctionState 以樂觀鎖套用部分更新。
// WHERE條件同時比對id與預期版本，沒有命中任何資料列時代表狀態已被並發修改。
func (l *GormLedger) UpdateAuctionState(ctx context.Context, id uuid.UUID, expectedVersion uint64, update auction.AuctionUpdate) error {
	const op = "GormLedger.UpdateAuctionState"

	fields := map[string]any{
		"version": expectedVersion + 1,
	}
	if update.Status != nil {
		fields["status"] = *update.Status
	}
	if update.Deadline != nil {
		fields["deadline"] = *update.Deadline
	}
	if update.LeaderID != nil {
		fields["leader_id"] = *update.LeaderID
	}
	if update.LeaderBidAmount != nil {
		fields["leader_bid_amount"] = *update.LeaderBidAmount
	}
	if update.WinnerID != nil {
		fields["winner_id"] = *update.WinnerID
	}

	result := l.db.WithContext(ctx).Model(&models.Auction{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("[%s] Fail to update auction, err=%w", op, result.Error)
	}
	if result.RowsAffected == 0 {
		// 分辨是版本衝突還是拍賣不存在
		var count int64
		if err := l.db.WithContext(ctx).Model(&models.Auction{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return fmt.Errorf("[%s] Fail to check auction existence, err=%w", op, err)
		}
		if count == 0 {
			return auction.ErrAuctionNotFound
		}
		return auction.ErrConflict
	}
	return nil
}

// AppendBid 新增一筆不可變的出價紀錄
func (l *GormLedger) AppendBid(ctx context.Context, auctionID, bidderID uuid.UUID, amount int64) error {
	const op = "GormLedger.AppendBid"
	bid := models.Bid{
		AuctionID: auctionID,
		UserID:    bidderID,
		Amount:    amount,
	}
	if result := l.db.WithContext(ctx).Create(&bid); result.Error != nil {
		return fmt.Errorf("[%s] Fail to append bid, err=%w", op, result.Error)
	}
	return nil
}

// CountEnrollments 回傳拍賣已報名的人數
func (l *GormLedger) CountEnrollments(ctx context.Context, auctionID uuid.UUID) (int64, error) {
	const op = "GormLedger.CountEnrollments"
	var count int64
	result := l.db.WithContext(ctx).Model(&models.Enrollment{}).
		Where("auction_id = ?", auctionID).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("[%s] Fail to count enrollments, err=%w", op, result.Error)
	}
	return count, nil
}

// IsEnrolled 檢查使用者是否已支付該拍賣的入場費
func (l *GormLedger) IsEnrolled(ctx context.Context, auctionID, userID uuid.UUID) (bool, error) {
	const op = "GormLedger.IsEnrolled"
	var count int64
	result := l.db.WithContext(ctx).Model(&models.Enrollment{}).
		Where("auction_id = ? AND user_id = ?", auctionID, userID).
		Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("[%s] Fail to check enrollment, err=%w", op, result.Error)
	}
	return count > 0, nil
}

// CreateEnrollment 建立報名紀錄
func (l *GormLedger) CreateEnrollment(ctx context.Context, auctionID, userID uuid.UUID) error {
	const op = "GormLedger.CreateEnrollment"
	enrollment := models.Enrollment{
		AuctionID: auctionID,
		UserID:    userID,
	}
	if result := l.db.WithContext(ctx).Create(&enrollment); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return auction.ErrAlreadyEnrolled
		}
		return fmt.Errorf("[%s] Fail to create enrollment, err=%w", op, result.Error)
	}
	return nil
}

// ListEnrolledEmails 列出拍賣所有已報名使用者的Email
func (l *GormLedger) ListEnrolledEmails(ctx context.Context, auctionID uuid.UUID) ([]string, error) {
	const op = "GormLedger.ListEnrolledEmails"
	var emails []string
	result := l.db.WithContext(ctx).Model(&models.Enrollment{}).
		Joins("JOIN users ON users.id = enrollments.user_id").
		Where("enrollments.auction_id = ?", auctionID).
		Pluck("users.email", &emails)
	if result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to list enrolled emails, err=%w", op, result.Error)
	}
	return emails, nil
}

// GetBalance 讀取使用者目前的競標點數
func (l *GormLedger) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	const op = "GormLedger.GetBalance"
	user := models.User{ID: userID}
	if result := l.db.WithContext(ctx).Select("bid_points").First(&user); result.Error != nil {
		return 0, fmt.Errorf("[%s] Fail to find user, err=%w", op, result.Error)
	}
	return user.BidPoints, nil
}

// GetUserEmail 讀取使用者的Email
func (l *GormLedger) GetUserEmail(ctx context.Context, userID uuid.UUID) (string, error) {
	const op = "GormLedger.GetUserEmail"
	user := models.User{ID: userID}
	if result := l.db.WithContext(ctx).Select("email").First(&user); result.Error != nil {
		return "", fmt.Errorf("[%s] Fail to find user, err=%w", op, result.Error)
	}
	return user.Email, nil
}

// AdjustBalance 調整使用者點數。
// 扣款時的餘額檢查直接寫進UPDATE的WHERE條件，避免讀取與寫入之間的競態。
func (l *GormLedger) AdjustBalance(ctx context.Context, userID uuid.UUID, delta int64) error {
	const op = "GormLedger.AdjustBalance"
	query := l.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID)
	if delta < 0 {
		query = query.Where("bid_points >= ?", -delta)
	}
	result := query.Update("bid_points", gorm.Expr("bid_points + ?", delta))
	if result.Error != nil {
		return fmt.Errorf("[%s] Fail to adjust balance, err=%w", op, result.Error)
	}
	if result.RowsAffected == 0 {
		return auction.ErrInsufficientBalance
	}
	return nil
}

// PlaceInHolding 將得標商品放入使用者的待領區
func (l *GormLedger) PlaceInHolding(ctx context.Context, userID, auctionID uuid.UUID) error {
	const op = "GormLedger.PlaceInHolding"
	item := models.HoldingItem{
		UserID:    userID,
		AuctionID: auctionID,
	}
	if result := l.db.WithContext(ctx).Create(&item); result.Error != nil {
		// 重複關閉的防線之一，商品已在待領區就視為完成
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return nil
		}
		return fmt.Errorf("[%s] Fail to place item in holding area, err=%w", op, result.Error)
	}
	return nil
}

// InTransaction 在單一交易中執行fn，fn回傳錯誤時整筆回滾
func (l *GormLedger) InTransaction(ctx context.Context, fn func(tx auction.ILedger) error) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormLedger{db: tx})
	})
}
