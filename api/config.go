package api

import "time"

type ServerConfig struct {
	// ID 是此節點的識別字串，用於sweep鎖與日誌
	ID string

	Auth    AuthConfig
	DB      DBConfig
	Redis   RedisConfig
	SMTP    SMTPConfig
	Auction AuctionConfig
}

type AuthConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

type DBConfig struct {
	User     string
	Password string
	Host     string
	Port     int
	Database string
	Schema   string
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string

	StreamKeys RedisStreamKeys
}

type RedisStreamKeys struct {
	Events string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// AuctionConfig 集中拍賣核心的策略參數
type AuctionConfig struct {
	// GracePeriod 是每次出價後延長倒數的時間
	GracePeriod time.Duration
	// InitialDuration 是拍賣啟動時的初始倒數時間
	InitialDuration time.Duration
	// TickInterval 是生命週期排程器的掃描週期
	TickInterval time.Duration
	// BidCost 是每次出價扣除的點數
	BidCost int64
	// SweepGuard 啟用跨節點的sweep鎖(需要Redis)
	SweepGuard bool
}
