package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"pennybid/adapters/broadcast"
	"pennybid/adapters/ledger"
	"pennybid/adapters/mailer"
	redisAdapter "pennybid/adapters/redis"
	"pennybid/auction"
)

type ServerImpl struct {
	db          *gorm.DB
	redisClient *redis.Client
	stream      *redisAdapter.Stream[broadcast.PublishRequest[auction.Event]]
	manager     broadcast.IManager[auction.Event]
	arbiter     *auction.Arbiter
	scheduler   *auction.Scheduler
	htmlChecker *bluemonday.Policy
	wg          sync.WaitGroup
	cancelFunc  context.CancelFunc

	config ServerConfig
}

// eventBroadcaster 將廣播管理器接上拍賣核心的 IBroadcaster 介面，
// 以拍賣ID作為主題名稱。
type eventBroadcaster struct {
	manager broadcast.IManager[auction.Event]
}

func (b eventBroadcaster) Publish(ctx context.Context, event auction.Event) error {
	return b.manager.Publish(event.AuctionID.String(), event)
}

func NewServer(config ServerConfig) (*ServerImpl, error) {
	const op = "NewServer"

	// 初始化資料庫連線
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s",
		config.DB.User, config.DB.Password, config.DB.Host, config.DB.Port, config.DB.Database, config.DB.Schema)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: config.DB.Schema + ".",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to connect to database, err=%w", op, err)
	}

	// 初始化Redis連線(未設定時以單節點模式運作)
	var redisClient *redis.Client
	var stream *redisAdapter.Stream[broadcast.PublishRequest[auction.Event]]
	managerOpts := []broadcast.ManagerOption[auction.Event]{
		broadcast.WithLogger[auction.Event](slog.Default()),
	}
	if config.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
		stream, err = redisAdapter.NewStream[broadcast.PublishRequest[auction.Event]](
			redisClient,
			config.Redis.StreamKeys.Events,
		)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create event stream, err=%w", op, err)
		}
		managerOpts = append(managerOpts, broadcast.WithEventStream[auction.Event](stream))
	}

	// 初始化廣播管理器
	manager, err := broadcast.NewManager[auction.Event](managerOpts...)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create broadcast manager, err=%w", op, err)
	}

	// 初始化通知分派
	var outboundMailer auction.IMailer = mailer.NopMailer{}
	if config.SMTP.Host != "" {
		outboundMailer = mailer.NewSMTPMailer(
			config.SMTP.Host, config.SMTP.Port,
			config.SMTP.Username, config.SMTP.Password, config.SMTP.From,
		)
	}
	gormLedger := ledger.NewGormLedger(db)
	dispatcher := auction.NewDispatcher(gormLedger, outboundMailer, slog.Default())
	fanout := auction.NewFanout(eventBroadcaster{manager: manager}, slog.Default(), dispatcher)

	// 初始化拍賣核心：仲裁器與排程器共用同一組per-auction鎖
	locks := auction.NewKeyedMutex()
	arbiter := auction.NewArbiter(gormLedger, locks, fanout,
		auction.WithArbiterGracePeriod(config.Auction.GracePeriod),
		auction.WithArbiterBidCost(config.Auction.BidCost),
		auction.WithArbiterLogger(slog.Default()),
	)
	schedulerOpts := []auction.SchedulerOption{
		auction.WithSchedulerTickInterval(config.Auction.TickInterval),
		auction.WithSchedulerInitialDuration(config.Auction.InitialDuration),
		auction.WithSchedulerLogger(slog.Default()),
	}
	if config.Auction.SweepGuard && redisClient != nil {
		lockKey := config.Redis.KeyPrefix + "scheduler:sweep:lock"
		schedulerOpts = append(schedulerOpts, auction.WithSchedulerSweepGuard(func() auction.ISweepGuard {
			return redisAdapter.NewAutoRenewMutex(redisClient, lockKey,
				redisAdapter.WithAutoRenewMutexBlocking(false))
		}))
	}
	scheduler := auction.NewScheduler(gormLedger, locks, fanout, schedulerOpts...)

	return &ServerImpl{
		db:          db,
		redisClient: redisClient,
		stream:      stream,
		manager:     manager,
		arbiter:     arbiter,
		scheduler:   scheduler,
		htmlChecker: bluemonday.UGCPolicy(),
		config:      config,
	}, nil
}

func (impl *ServerImpl) Start() {
	// 啟動廣播管理器
	impl.manager.Start()
	// 啟動生命週期排程器
	ctx, cancel := context.WithCancel(context.Background())
	impl.cancelFunc = cancel
	impl.wg.Add(1)
	go func() {
		defer impl.wg.Done()
		impl.scheduler.Run(ctx)
	}()
}

func (impl *ServerImpl) Close() {
	// 停止排程器
	if impl.cancelFunc != nil {
		impl.cancelFunc()
	}
	impl.wg.Wait()
	// 停止廣播管理器(連帶關閉事件流)
	impl.manager.Done()
	if impl.redisClient != nil {
		if err := impl.redisClient.Close(); err != nil {
			slog.Warn("Fail to close redis client", slog.Any("error", err))
		}
	}
}

// RegisterRoutes 註冊所有HTTP路由
func (impl *ServerImpl) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")

	api.GET("/auction/:auctionID/remaining-time", impl.GetRemainingTime)

	authed := api.Group("", impl.RequireAuth())
	authed.GET("/auctions", impl.ListAuctions)
	authed.GET("/auction/:auctionID", impl.GetAuction)
	authed.GET("/auction/:auctionID/events", impl.StreamAuctionEvents)
	authed.POST("/auction/:auctionID/enroll", impl.PayEntryFee)
	authed.POST("/auction/:auctionID/bids", impl.PlaceBid)

	admin := authed.Group("", impl.RequireAdmin())
	admin.POST("/auction", impl.CreateAuction)
}
