package auction

import "errors"

// 出價與報名的拒絕原因，每個前置條件失敗都對應一個獨立的錯誤，
// API層透過 Reason 取得機器可讀的原因字串。
var (
	ErrAuctionNotFound     = errors.New("auction not found")
	ErrAuctionNotActive    = errors.New("auction is not active")
	ErrNotEnrolled         = errors.New("bidder has not paid the entry fee")
	ErrAlreadyLeading      = errors.New("bidder is already the current leader")
	ErrInsufficientBalance = errors.New("insufficient bid points")
	ErrAlreadyEnrolled     = errors.New("entry fee already paid")
	ErrEnrollmentClosed    = errors.New("auction no longer accepts enrollments")

	// ErrConflict 代表commit時前置條件已改變(例如版本不符)，重試一次是安全的
	ErrConflict = errors.New("auction state changed concurrently")
)

// Reason 將拒絕錯誤轉換為API回應使用的原因字串，
// 非拒絕類的錯誤(相依服務失敗等)回傳空字串。
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrAuctionNotFound):
		return "auction_not_found"
	case errors.Is(err, ErrAuctionNotActive):
		return "auction_not_active"
	case errors.Is(err, ErrNotEnrolled):
		return "not_enrolled"
	case errors.Is(err, ErrAlreadyLeading):
		return "already_leading"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrAlreadyEnrolled):
		return "already_enrolled"
	case errors.Is(err, ErrEnrollmentClosed):
		return "enrollment_closed"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return ""
	}
}

// IsRejection 判斷錯誤是否為可直接回覆呼叫端的拒絕，
// 而不是需要回報為伺服器錯誤的相依服務失敗。
func IsRejection(err error) bool {
	return Reason(err) != ""
}
