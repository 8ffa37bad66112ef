package auction

import (
	"context"
	"log/slog"
)

// EventSink 接收已提交的領域事件
type EventSink interface {
	OnEvent(ctx context.Context, event Event)
}

// Fanout 將單一已提交事件推送給所有下游(即時廣播與通知分派)。
// 事件的遞送是best-effort：任何一個下游失敗只會被記錄，
// 不會回滾觸發該事件的狀態轉移，也不會影響其他下游。
// 呼叫端必須在釋放per-auction互斥區之後才呼叫 Emit。
type Fanout struct {
	broadcaster IBroadcaster
	sinks       []EventSink
	logger      *slog.Logger
}

// NewFanout 建立一個新的事件分發器
func NewFanout(broadcaster IBroadcaster, logger *slog.Logger, sinks ...EventSink) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{
		broadcaster: broadcaster,
		sinks:       sinks,
		logger:      logger.With(slog.String("caller", "Fanout")),
	}
}

// Emit 發布事件給即時訂閱者並觸發通知分派
func (f *Fanout) Emit(ctx context.Context, event Event) {
	if f.broadcaster != nil {
		if err := f.broadcaster.Publish(ctx, event); err != nil {
			f.logger.Error("Fail to broadcast event",
				slog.String("type", string(event.Type)),
				slog.String("auctionID", event.AuctionID.String()),
				slog.Any("error", err))
		}
	}
	for _, sink := range f.sinks {
		sink.OnEvent(ctx, event)
	}
}
