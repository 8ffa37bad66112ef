package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"pennybid/models"
)

// ISweepGuard 定義了跨節點sweep鎖的介面。
// 設定之後同一時間只有一個節點會執行狀態掃描，未取得鎖的節點直接跳過該輪。
type ISweepGuard interface {
	Lock(ctx context.Context) (context.Context, error)
	Unlock() (bool, error)
}

// SweepGuardFactory 於每輪掃描前建立一個新的sweep鎖
type SweepGuardFactory func() ISweepGuard

type schedulerOptions struct {
	tickInterval    time.Duration
	initialDuration time.Duration
	logger          *slog.Logger
	clock           func() time.Time
	guardFactory    SweepGuardFactory
}

type SchedulerOption func(*schedulerOptions)

// WithSchedulerTickInterval 設定掃描週期
func WithSchedulerTickInterval(d time.Duration) SchedulerOption {
	return func(o *schedulerOptions) {
		o.tickInterval = d
	}
}

// WithSchedulerInitialDuration 設定拍賣啟動時的初始倒數時間
func WithSchedulerInitialDuration(d time.Duration) SchedulerOption {
	return func(o *schedulerOptions) {
		o.initialDuration = d
	}
}

// WithSchedulerLogger 設定日誌記錄器
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(o *schedulerOptions) {
		o.logger = logger
	}
}

// WithSchedulerClock 設定時間來源，測試用
func WithSchedulerClock(clock func() time.Time) SchedulerOption {
	return func(o *schedulerOptions) {
		o.clock = clock
	}
}

// WithSchedulerSweepGuard 設定跨節點的sweep鎖
func WithSchedulerSweepGuard(factory SweepGuardFactory) SchedulerOption {
	return func(o *schedulerOptions) {
		o.guardFactory = factory
	}
}

// Scheduler 以固定週期掃描拍賣並驅動狀態轉移：
// pending達到最低報名人數時啟動、active超過截止時間時結束並結算得標者。
// 採固定週期輪詢而非per-auction計時器，行程重啟後下一輪掃描即可自我修復，
// 已過期的拍賣會立刻被關閉，且關閉反映的是真正的截止時間。
// Scheduler 是status轉移與啟動時deadline的唯一寫入者。
type Scheduler struct {
	ledger  ILedger
	locks   *KeyedMutex
	fanout  *Fanout
	options schedulerOptions

	// 保證不會有兩輪掃描同時執行；正在執行時的Tick呼叫直接跳過
	sweeping sync.Mutex
}

// NewScheduler 建立一個新的生命週期排程器。
// locks 必須與 Arbiter 共用同一個 KeyedMutex，
// 同一場拍賣的狀態轉移與出價提交才會互相序列化。
func NewScheduler(ledger ILedger, locks *KeyedMutex, fanout *Fanout, opts ...SchedulerOption) *Scheduler {
	options := schedulerOptions{
		tickInterval:    time.Minute,
		initialDuration: 10 * time.Minute,
		logger:          slog.Default(),
		clock:           time.Now,
	}
	for _, opt := range opts {
		opt(&options)
	}
	options.logger = options.logger.With(slog.String("caller", "Scheduler"))

	return &Scheduler{
		ledger:  ledger,
		locks:   locks,
		fanout:  fanout,
		options: options,
	}
}

// Run 以固定週期驅動 Tick，直到ctx被取消為止
func (s *Scheduler) Run(ctx context.Context) {
	s.options.logger.Info("Start lifecycle scheduler",
		slog.Duration("interval", s.options.tickInterval))
	ticker := time.NewTicker(s.options.tickInterval)
	defer ticker.Stop()
	defer s.options.logger.Info("Lifecycle scheduler stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Tick(ctx, s.options.clock()); err != nil {
				s.options.logger.Error("Sweep finished with errors", slog.Any("error", err))
			}
		}
	}
}

// Tick 執行一輪掃描。對已轉移過的狀態是冪等的：再次觀察到completed不會重複關閉。
// 單一拍賣處理失敗不會中斷同輪的其他拍賣，失敗的拍賣會在下一輪重試。
func (s *Scheduler) Tick(ctx context.Context, now time.Time) error {
	const op = "Scheduler.Tick"

	if !s.sweeping.TryLock() {
		s.options.logger.Warn("Previous sweep still running, skip this tick")
		return nil
	}
	defer s.sweeping.Unlock()

	if s.options.guardFactory != nil {
		guard := s.options.guardFactory()
		lockCtx, err := guard.Lock(ctx)
		if err != nil {
			s.options.logger.Info("Sweep lock held by another node, skip this tick", slog.Any("error", err))
			return nil
		}
		defer func() {
			if _, err := guard.Unlock(); err != nil {
				s.options.logger.Warn("Fail to release sweep lock", slog.Any("error", err))
			}
		}()
		ctx = lockCtx
	}

	var errs []error
	if err := s.activatePending(ctx, now); err != nil {
		errs = append(errs, fmt.Errorf("[%s] activate pending auctions, err=%w", op, err))
	}
	if err := s.closeExpired(ctx, now); err != nil {
		errs = append(errs, fmt.Errorf("[%s] close expired auctions, err=%w", op, err))
	}
	return errors.Join(errs...)
}

// activatePending 將已達到最低報名人數的pending拍賣轉為active
func (s *Scheduler) activatePending(ctx context.Context, now time.Time) error {
	pending, err := s.ledger.ListAuctionsByStatus(ctx, models.AuctionPending)
	if err != nil {
		return fmt.Errorf("list pending auctions, err=%w", err)
	}

	var errs []error
	for _, auction := range pending {
		count, err := s.ledger.CountEnrollments(ctx, auction.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("count enrollments for %s, err=%w", auction.ID, err))
			continue
		}
		if count < int64(auction.MinimumParticipants) {
			continue
		}
		if err := s.activate(ctx, auction.ID, now); err != nil {
			errs = append(errs, fmt.Errorf("activate %s, err=%w", auction.ID, err))
		}
	}
	return errors.Join(errs...)
}

// activate 在per-auction互斥區內重新驗證並啟動一場拍賣
func (s *Scheduler) activate(ctx context.Context, auctionID uuid.UUID, now time.Time) error {
	event, err := func() (*Event, error) {
		unlock := s.locks.Lock(auctionID)
		defer unlock()

		auction, err := s.ledger.GetAuction(ctx, auctionID)
		if err != nil {
			return nil, err
		}
		// 可能已被前一輪掃描啟動
		if auction.Status != models.AuctionPending {
			return nil, nil
		}

		status := models.AuctionActive
		deadline := now.Add(s.options.initialDuration)
		if err := s.ledger.UpdateAuctionState(ctx, auctionID, auction.Version, AuctionUpdate{
			Status:   &status,
			Deadline: &deadline,
		}); err != nil {
			return nil, err
		}

		s.options.logger.Info("Auction activated",
			slog.String("auctionID", auctionID.String()),
			slog.Time("deadline", deadline))
		event := NewAuctionActivated(auctionID)
		return &event, nil
	}()
	if err != nil {
		return err
	}
	if event != nil {
		s.fanout.Emit(ctx, *event)
	}
	return nil
}

// closeExpired 結束所有倒數已經結束的active拍賣並結算得標者
func (s *Scheduler) closeExpired(ctx context.Context, now time.Time) error {
	active, err := s.ledger.ListAuctionsByStatus(ctx, models.AuctionActive)
	if err != nil {
		return fmt.Errorf("list active auctions, err=%w", err)
	}

	var errs []error
	for _, auction := range active {
		if auction.Deadline == nil || auction.Deadline.After(now) {
			continue
		}
		if err := s.close(ctx, auction.ID, now); err != nil {
			errs = append(errs, fmt.Errorf("close %s, err=%w", auction.ID, err))
		}
	}
	return errors.Join(errs...)
}

// close 在per-auction互斥區內重新驗證並關閉一場拍賣。
// 關閉前的最後一次讀取才決定得標者，排隊中的出價若已在鎖前提交會被正確計入，
// 而鎖後才進入互斥區的出價會因重新驗證看到completed而被拒絕。
func (s *Scheduler) close(ctx context.Context, auctionID uuid.UUID, now time.Time) error {
	event, err := func() (*Event, error) {
		unlock := s.locks.Lock(auctionID)
		defer unlock()

		auction, err := s.ledger.GetAuction(ctx, auctionID)
		if err != nil {
			return nil, err
		}
		if auction.Status != models.AuctionActive {
			return nil, nil
		}
		// 排隊期間可能有出價又把截止時間往後延了
		if auction.Deadline == nil || auction.Deadline.After(now) {
			return nil, nil
		}

		winner := auction.LeaderID
		status := models.AuctionCompleted
		err = s.ledger.InTransaction(ctx, func(tx ILedger) error {
			if err := tx.UpdateAuctionState(ctx, auctionID, auction.Version, AuctionUpdate{
				Status:   &status,
				WinnerID: winner,
			}); err != nil {
				return err
			}
			if winner != nil {
				return tx.PlaceInHolding(ctx, *winner, auctionID)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		if winner != nil {
			s.options.logger.Info("Auction closed",
				slog.String("auctionID", auctionID.String()),
				slog.String("winnerID", winner.String()))
		} else {
			s.options.logger.Info("Auction closed without bids",
				slog.String("auctionID", auctionID.String()))
		}
		event := NewAuctionClosed(auctionID, winner)
		return &event, nil
	}()
	if err != nil {
		return err
	}
	if event != nil {
		s.fanout.Emit(ctx, *event)
	}
	return nil
}
