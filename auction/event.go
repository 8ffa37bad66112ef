package auction

import (
	"time"

	"github.com/google/uuid"
)

// EventType 標記領域事件的種類
type EventType string

const (
	EventBidAccepted      EventType = "bid_accepted"
	EventAuctionActivated EventType = "auction_activated"
	EventAuctionClosed    EventType = "auction_closed"
)

// Event 代表一個不可變的領域事件，描述一次拍賣狀態轉移。
// 事件依發生時間在單一拍賣內有序，且對即時訂閱者採at-least-once遞送，
// 訂閱者必須容忍重複收到同一事件。
//
// PreviousLeaderID 僅供行程內的通知分派使用(被超越者通知)，
// 不屬於對外的事件格式，因此不輸出到JSON。
type Event struct {
	Type      EventType `json:"type" msgpack:"type"`
	AuctionID uuid.UUID `json:"auctionId" msgpack:"auction_id"`

	// bid_accepted 專屬欄位
	BidderID    *uuid.UUID `json:"bidderId,omitempty" msgpack:"bidder_id,omitempty"`
	Amount      *int64     `json:"amount,omitempty" msgpack:"amount,omitempty"`
	NewDeadline *time.Time `json:"newDeadline,omitempty" msgpack:"new_deadline,omitempty"`

	// auction_closed 專屬欄位，沒有任何出價時為空(流拍)
	WinnerID *uuid.UUID `json:"winnerId,omitempty" msgpack:"winner_id,omitempty"`

	PreviousLeaderID *uuid.UUID `json:"-" msgpack:"-"`
}

// NewBidAccepted 建立一個出價被接受的事件
func NewBidAccepted(auctionID, bidderID uuid.UUID, amount int64, newDeadline time.Time, previousLeader *uuid.UUID) Event {
	return Event{
		Type:             EventBidAccepted,
		AuctionID:        auctionID,
		BidderID:         &bidderID,
		Amount:           &amount,
		NewDeadline:      &newDeadline,
		PreviousLeaderID: previousLeader,
	}
}

// NewAuctionActivated 建立一個拍賣開始的事件
func NewAuctionActivated(auctionID uuid.UUID) Event {
	return Event{
		Type:      EventAuctionActivated,
		AuctionID: auctionID,
	}
}

// NewAuctionClosed 建立一個拍賣結束的事件
func NewAuctionClosed(auctionID uuid.UUID, winnerID *uuid.UUID) Event {
	return Event{
		Type:      EventAuctionClosed,
		AuctionID: auctionID,
		WinnerID:  winnerID,
	}
}
