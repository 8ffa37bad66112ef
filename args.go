package main

import (
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"pennybid/api"
)

func ParseArgs() Args {
	// server config
	pflag.String("server-url", "0.0.0.0:8080", "")
	pflag.String("server-id", "pennybid-0", "")

	// auth config
	pflag.String("auth-secret", "", "")
	pflag.String("auth-issuer", "pennybid", "")
	pflag.String("auth-audience", "pennybid", "")

	// db config
	pflag.String("db-user", "", "")
	pflag.String("db-password", "", "")
	pflag.String("db-host", "", "")
	pflag.Int("db-port", 5432, "")
	pflag.String("db-database", "", "")
	pflag.String("db-schema", "", "")

	// redis config
	pflag.String("redis-addr", "", "")
	pflag.String("redis-password", "", "")
	pflag.Int("redis-db", 15, "")
	pflag.String("redis-key-prefix", "pennybid:", "")

	// redis stream keys
	pflag.String("redis-stream-key-for-events", "pennybid-shared-event-stream", "")

	// smtp config
	pflag.String("smtp-host", "", "")
	pflag.Int("smtp-port", 587, "")
	pflag.String("smtp-username", "", "")
	pflag.String("smtp-password", "", "")
	pflag.String("smtp-from", "", "")

	// auction config
	pflag.Duration("auction-grace-period", 30*time.Second, "")
	pflag.Duration("auction-initial-duration", 10*time.Minute, "")
	pflag.Duration("auction-tick-interval", time.Minute, "")
	pflag.Int64("auction-bid-cost", 1, "")
	pflag.Bool("auction-sweep-guard", false, "")

	// bind pflag to viper
	pflag.Parse()
	viper.BindPFlags(pflag.CommandLine)
	viper.AutomaticEnv()
	viper.SetEnvPrefix("PENNYBID")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// initial arguments
	return Args{
		ServerURL: viper.GetString("server-url"),
		ServerConfig: api.ServerConfig{
			ID: viper.GetString("server-id"),
			Auth: api.AuthConfig{
				Secret:   viper.GetString("auth-secret"),
				Issuer:   viper.GetString("auth-issuer"),
				Audience: viper.GetString("auth-audience"),
			},
			DB: api.DBConfig{
				User:     viper.GetString("db-user"),
				Password: viper.GetString("db-password"),
				Host:     viper.GetString("db-host"),
				Port:     viper.GetInt("db-port"),
				Database: viper.GetString("db-database"),
				Schema:   viper.GetString("db-schema"),
			},
			Redis: api.RedisConfig{
				Addr:      viper.GetString("redis-addr"),
				Password:  viper.GetString("redis-password"),
				DB:        viper.GetInt("redis-db"),
				KeyPrefix: viper.GetString("redis-key-prefix"),
				StreamKeys: api.RedisStreamKeys{
					Events: viper.GetString("redis-stream-key-for-events"),
				},
			},
			SMTP: api.SMTPConfig{
				Host:     viper.GetString("smtp-host"),
				Port:     viper.GetInt("smtp-port"),
				Username: viper.GetString("smtp-username"),
				Password: viper.GetString("smtp-password"),
				From:     viper.GetString("smtp-from"),
			},
			Auction: api.AuctionConfig{
				GracePeriod:     viper.GetDuration("auction-grace-period"),
				InitialDuration: viper.GetDuration("auction-initial-duration"),
				TickInterval:    viper.GetDuration("auction-tick-interval"),
				BidCost:         viper.GetInt64("auction-bid-cost"),
				SweepGuard:      viper.GetBool("auction-sweep-guard"),
			},
		},
	}
}

type Args struct {
	ServerURL    string
	ServerConfig api.ServerConfig
}

func (args Args) Validate() bool {
	return args.ServerURL != "" &&
		args.ServerConfig.Auth.Secret != "" &&
		args.ServerConfig.DB.Host != "" &&
		args.ServerConfig.Auction.GracePeriod > 0 &&
		args.ServerConfig.Auction.InitialDuration > 0 &&
		args.ServerConfig.Auction.TickInterval > 0 &&
		args.ServerConfig.Auction.BidCost > 0
}
