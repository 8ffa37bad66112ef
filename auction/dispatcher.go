package auction

import (
	"context"
	"fmt"
	"log/slog"
)

// Dispatcher 將領域事件對應為對外的Email通知並交給外部mailer遞送。
// 通知是best-effort的：mailer失敗只會被記錄，
// 絕不回滾觸發通知的拍賣狀態轉移。
//
//   - bid_accepted: 通知「前一位」領先者被超越，絕不寄給新的領先者
//   - auction_activated: 通知所有已報名的使用者
//   - auction_closed: 通知得標者(流拍時不寄)
type Dispatcher struct {
	ledger ILedger
	mailer IMailer
	logger *slog.Logger
}

// NewDispatcher 建立一個新的通知分派器
func NewDispatcher(ledger ILedger, mailer IMailer, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		ledger: ledger,
		mailer: mailer,
		logger: logger.With(slog.String("caller", "Dispatcher")),
	}
}

// OnEvent 將單一事件展開為零到多封通知信
func (d *Dispatcher) OnEvent(ctx context.Context, event Event) {
	switch event.Type {
	case EventBidAccepted:
		d.notifyOutbid(ctx, event)
	case EventAuctionActivated:
		d.notifyActivated(ctx, event)
	case EventAuctionClosed:
		d.notifyWinner(ctx, event)
	}
}

// notifyOutbid 通知剛被超越的前一位領先者
func (d *Dispatcher) notifyOutbid(ctx context.Context, event Event) {
	// 第一筆出價沒有前一位領先者，不需要通知任何人
	if event.PreviousLeaderID == nil {
		return
	}

	email, err := d.ledger.GetUserEmail(ctx, *event.PreviousLeaderID)
	if err != nil {
		d.logger.Error("Fail to resolve previous leader email",
			slog.String("auctionID", event.AuctionID.String()),
			slog.Any("error", err))
		return
	}
	body := fmt.Sprintf(
		"You have been outbid in auction %s. Place a new bid to regain the highest bidder position!",
		d.auctionName(ctx, event))
	d.send(ctx, email, "Outbid Notification", body)
}

// notifyActivated 通知所有已報名的使用者拍賣已經開始
func (d *Dispatcher) notifyActivated(ctx context.Context, event Event) {
	emails, err := d.ledger.ListEnrolledEmails(ctx, event.AuctionID)
	if err != nil {
		d.logger.Error("Fail to list enrolled emails",
			slog.String("auctionID", event.AuctionID.String()),
			slog.Any("error", err))
		return
	}
	body := fmt.Sprintf("Auction %s is now active!", d.auctionName(ctx, event))
	for _, email := range emails {
		d.send(ctx, email, "Auction Active", body)
	}
}

// notifyWinner 通知得標者
func (d *Dispatcher) notifyWinner(ctx context.Context, event Event) {
	if event.WinnerID == nil {
		return
	}

	email, err := d.ledger.GetUserEmail(ctx, *event.WinnerID)
	if err != nil {
		d.logger.Error("Fail to resolve winner email",
			slog.String("auctionID", event.AuctionID.String()),
			slog.Any("error", err))
		return
	}
	body := fmt.Sprintf(
		"Congratulations! You won auction %s. The item has been placed in your holding area.",
		d.auctionName(ctx, event))
	d.send(ctx, email, "Auction Won", body)
}

// auctionName 解析拍賣名稱供信件內容使用，失敗時退回使用ID
func (d *Dispatcher) auctionName(ctx context.Context, event Event) string {
	auction, err := d.ledger.GetAuction(ctx, event.AuctionID)
	if err != nil {
		return event.AuctionID.String()
	}
	return auction.Name
}

func (d *Dispatcher) send(ctx context.Context, recipient, subject, body string) {
	if err := d.mailer.Send(ctx, recipient, subject, body); err != nil {
		d.logger.Error("Fail to send notification",
			slog.String("recipient", recipient),
			slog.String("subject", subject),
			slog.Any("error", err))
		return
	}
	d.logger.Debug("Notification sent",
		slog.String("recipient", recipient),
		slog.String("subject", subject))
}
