package auction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pennybid/models"
)

// Acceptance 代表一次成功的出價
type Acceptance struct {
	LeaderID    uuid.UUID
	Amount      int64
	NewDeadline time.Time
}

type arbiterOptions struct {
	gracePeriod time.Duration
	bidCost     int64
	logger      *slog.Logger
	clock       func() time.Time
}

type ArbiterOption func(*arbiterOptions)

// WithArbiterGracePeriod 設定每次出價後延長倒數的時間
func WithArbiterGracePeriod(d time.Duration) ArbiterOption {
	return func(o *arbiterOptions) {
		o.gracePeriod = d
	}
}

// WithArbiterBidCost 設定每次出價扣除的點數
func WithArbiterBidCost(cost int64) ArbiterOption {
	return func(o *arbiterOptions) {
		o.bidCost = cost
	}
}

// WithArbiterLogger 設定日誌記錄器
func WithArbiterLogger(logger *slog.Logger) ArbiterOption {
	return func(o *arbiterOptions) {
		o.logger = logger
	}
}

// WithArbiterClock 設定時間來源，測試用
func WithArbiterClock(clock func() time.Time) ArbiterOption {
	return func(o *arbiterOptions) {
		o.clock = clock
	}
}

// Arbiter 是每場拍賣的出價仲裁器。
// 同一場拍賣的出價會在per-auction互斥區內逐一驗證並提交，
// 確保「已是領先者」與「倒數延長」都是針對一致的前一個狀態計算；
// 不同拍賣之間的出價彼此獨立並行。
// Arbiter 是拍賣 leader/leader_bid_amount/deadline 欄位在active期間的唯一寫入者。
type Arbiter struct {
	ledger  ILedger
	locks   *KeyedMutex
	fanout  *Fanout
	options arbiterOptions
}

// NewArbiter 建立一個新的出價仲裁器
func NewArbiter(ledger ILedger, locks *KeyedMutex, fanout *Fanout, opts ...ArbiterOption) *Arbiter {
	options := arbiterOptions{
		gracePeriod: 30 * time.Second,
		bidCost:     1,
		logger:      slog.Default(),
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(&options)
	}
	options.logger = options.logger.With(slog.String("caller", "Arbiter"))

	return &Arbiter{
		ledger:  ledger,
		locks:   locks,
		fanout:  fanout,
		options: options,
	}
}

// PlaceBid 驗證並提交一筆出價。
// 接受時回傳新的倒數截止時間與領先者；拒絕時回傳對應的sentinel錯誤。
// BidAccepted 事件恰好發出一次，且是在互斥區釋放之後，
// 因此通知與廣播的阻塞不會拖慢同一場拍賣的後續出價。
func (a *Arbiter) PlaceBid(ctx context.Context, auctionID, bidderID uuid.UUID) (*Acceptance, error) {
	const op = "Arbiter.PlaceBid"

	acceptance, event, err := a.commitBid(ctx, auctionID, bidderID)
	if err != nil {
		return nil, err
	}

	a.options.logger.Info("Bid accepted",
		slog.String("auctionID", auctionID.String()),
		slog.String("bidderID", bidderID.String()),
		slog.Int64("amount", acceptance.Amount))
	a.fanout.Emit(ctx, event)
	return acceptance, nil
}

// commitBid 在per-auction互斥區內完成驗證與提交
func (a *Arbiter) commitBid(ctx context.Context, auctionID, bidderID uuid.UUID) (*Acceptance, Event, error) {
	const op = "Arbiter.commitBid"

	unlock := a.locks.Lock(auctionID)
	defer unlock()

	// 取得鎖之後重新讀取並重新驗證所有前置條件，
	// 排隊期間拍賣可能已經被其他出價更新、甚至被排程器關閉
	auction, err := a.ledger.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, Event{}, err
	}
	if auction.Status != models.AuctionActive {
		return nil, Event{}, ErrAuctionNotActive
	}
	enrolled, err := a.ledger.IsEnrolled(ctx, auctionID, bidderID)
	if err != nil {
		return nil, Event{}, fmt.Errorf("[%s] Fail to check enrollment, err=%w", op, err)
	}
	if !enrolled {
		return nil, Event{}, ErrNotEnrolled
	}
	if auction.LeaderID != nil && *auction.LeaderID == bidderID {
		return nil, Event{}, ErrAlreadyLeading
	}
	balance, err := a.ledger.GetBalance(ctx, bidderID)
	if err != nil {
		return nil, Event{}, fmt.Errorf("[%s] Fail to read balance, err=%w", op, err)
	}
	if balance < a.options.bidCost {
		return nil, Event{}, ErrInsufficientBalance
	}

	newAmount := auction.LeaderBidAmount + a.options.bidCost
	newDeadline := a.options.clock().Add(a.options.gracePeriod)
	previousLeader := auction.LeaderID

	// 一旦開始提交就不再理會呼叫端斷線，出價只會完整提交或完整回滾
	commitCtx := context.WithoutCancel(ctx)
	err = a.ledger.InTransaction(commitCtx, func(tx ILedger) error {
		if err := tx.AdjustBalance(commitCtx, bidderID, -a.options.bidCost); err != nil {
			return err
		}
		if err := tx.AppendBid(commitCtx, auctionID, bidderID, newAmount); err != nil {
			return err
		}
		return tx.UpdateAuctionState(commitCtx, auctionID, auction.Version, AuctionUpdate{
			LeaderID:        &bidderID,
			LeaderBidAmount: &newAmount,
			Deadline:        &newDeadline,
		})
	})
	if err != nil {
		if IsRejection(err) {
			return nil, Event{}, err
		}
		return nil, Event{}, fmt.Errorf("[%s] Fail to commit bid, err=%w", op, err)
	}

	acceptance := &Acceptance{
		LeaderID:    bidderID,
		Amount:      newAmount,
		NewDeadline: newDeadline,
	}
	return acceptance, NewBidAccepted(auctionID, bidderID, newAmount, newDeadline, previousLeader), nil
}

// Enroll 為使用者支付入場費並建立出價資格。
// 只有 pending 與 active 狀態的拍賣接受報名；每個 (user, auction) 只能報名一次。
func (a *Arbiter) Enroll(ctx context.Context, auctionID, userID uuid.UUID) error {
	const op = "Arbiter.Enroll"

	unlock := a.locks.Lock(auctionID)
	defer unlock()

	auction, err := a.ledger.GetAuction(ctx, auctionID)
	if err != nil {
		return err
	}
	if auction.Status != models.AuctionPending && auction.Status != models.AuctionActive {
		return ErrEnrollmentClosed
	}
	enrolled, err := a.ledger.IsEnrolled(ctx, auctionID, userID)
	if err != nil {
		return fmt.Errorf("[%s] Fail to check enrollment, err=%w", op, err)
	}
	if enrolled {
		return ErrAlreadyEnrolled
	}

	commitCtx := context.WithoutCancel(ctx)
	err = a.ledger.InTransaction(commitCtx, func(tx ILedger) error {
		if err := tx.AdjustBalance(commitCtx, userID, -auction.EntryFee); err != nil {
			return err
		}
		return tx.CreateEnrollment(commitCtx, auctionID, userID)
	})
	if err != nil {
		if IsRejection(err) {
			return err
		}
		return fmt.Errorf("[%s] Fail to commit enrollment, err=%w", op, err)
	}

	a.options.logger.Info("Entry fee paid",
		slog.String("auctionID", auctionID.String()),
		slog.String("userID", userID.String()),
		slog.Int64("entryFee", auction.EntryFee))
	return nil
}

// BidCost 回傳目前設定的單次出價成本
func (a *Arbiter) BidCost() int64 {
	return a.options.bidCost
}
