package main

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"bidvault/api"
	"bidvault/auction"
)

func ParseArgs() Args {
	// server config
	pflag.String("server-url", "0.0.0.0:8080", "")
	pflag.String("server-id", hostname(), "instance name, used as redis consumer name")
	pflag.Duration("shutdown-timeout", 10*time.Second, "")

	// log config
	pflag.String("log-level", "info", "debug, info, warn or error")
	pflag.Bool("log-json", false, "")

	// auth config
	pflag.String("auth-public-key-path", "", "PEM public key of the login service, overrides oidc")
	pflag.String("auth-issuer", "", "")
	pflag.String("auth-audience", "", "")

	// oidc config
	pflag.String("oidc-issuer-url", "", "")
	pflag.String("oidc-client-id", "", "")
	pflag.String("oidc-wallet-claim", "wallet", "")

	// s3 config
	pflag.String("s3-endpoint", "", "")
	pflag.String("s3-bucket", "", "")
	pflag.String("s3-public-base-url", "", "")
	pflag.String("s3-access-key-id", "", "")
	pflag.String("s3-secret-access-key", "", "")
	pflag.String("s3-key-prefix", "images", "")
	pflag.Int64("s3-rate-limit-per-hour", 20, "")

	// db config
	pflag.String("db-user", "", "")
	pflag.String("db-password", "", "")
	pflag.String("db-host", "", "")
	pflag.Int("db-port", 5432, "")
	pflag.String("db-database", "", "")
	pflag.String("db-schema", "public", "")

	// redis config
	pflag.String("redis-addr", "", "")
	pflag.String("redis-password", "", "")
	pflag.Int("redis-db", 15, "")
	pflag.String("redis-key-prefix", "bidvault:", "")
	pflag.String("redis-consumer-group", "bidvault-transactions", "")
	pflag.Duration("redis-lock-expiry", 8*time.Second, "")
	pflag.Duration("redis-snapshot-ttl", 10*time.Minute, "")

	// redis stream keys
	pflag.String("redis-stream-key-for-events", "bidvault-events", "")
	pflag.String("redis-stream-key-for-disputes", "bidvault-disputes", "")

	// nats config
	pflag.String("nats-url", "", "")
	pflag.String("nats-subject-prefix", "bidvault", "")

	// ledger config
	pflag.String("ledger-path", "bidvault-ledger.db", "")
	pflag.String("ledger-operator", "", "")

	// engine config
	pflag.Uint64("engine-fee-bps", auction.DefaultFeeBps, "")
	pflag.String("engine-fee-recipient", "", "")
	pflag.String("engine-arbiter", "", "")
	pflag.Bool("engine-enforce-english-reserve", false, "")
	pflag.Uint64("engine-no-sale-fee-bps", 0, "")

	// bind pflag to viper
	pflag.Parse()
	viper.BindPFlags(pflag.CommandLine)
	viper.AutomaticEnv()
	viper.SetEnvPrefix("BIDVAULT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// initial arguments
	return Args{
		ServerURL:       viper.GetString("server-url"),
		ShutdownTimeout: viper.GetDuration("shutdown-timeout"),
		LogLevel:        viper.GetString("log-level"),
		LogJSON:         viper.GetBool("log-json"),
		ServerConfig: api.ServerConfig{
			ID: viper.GetString("server-id"),
			Auth: api.AuthConfig{
				PublicKeyPath: viper.GetString("auth-public-key-path"),
				Issuer:        viper.GetString("auth-issuer"),
				Audience:      viper.GetString("auth-audience"),
			},
			OIDC: api.OIDCConfig{
				IssuerURL:   viper.GetString("oidc-issuer-url"),
				ClientID:    viper.GetString("oidc-client-id"),
				WalletClaim: viper.GetString("oidc-wallet-claim"),
			},
			S3: api.S3Config{
				Endpoint:         viper.GetString("s3-endpoint"),
				Bucket:           viper.GetString("s3-bucket"),
				PublicBaseURL:    viper.GetString("s3-public-base-url"),
				AccessKeyID:      viper.GetString("s3-access-key-id"),
				SecretAccessKey:  viper.GetString("s3-secret-access-key"),
				KeyPrefix:        viper.GetString("s3-key-prefix"),
				RateLimitPerHour: viper.GetInt64("s3-rate-limit-per-hour"),
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
				Addr:          viper.GetString("redis-addr"),
				Password:      viper.GetString("redis-password"),
				DB:            viper.GetInt("redis-db"),
				KeyPrefix:     viper.GetString("redis-key-prefix"),
				ConsumerGroup: viper.GetString("redis-consumer-group"),
				LockExpiry:    viper.GetDuration("redis-lock-expiry"),
				SnapshotTTL:   viper.GetDuration("redis-snapshot-ttl"),
				StreamKeys: api.RedisStreamKeys{
					Events:   viper.GetString("redis-stream-key-for-events"),
					Disputes: viper.GetString("redis-stream-key-for-disputes"),
				},
			},
			NATS: api.NATSConfig{
				URL:           viper.GetString("nats-url"),
				SubjectPrefix: viper.GetString("nats-subject-prefix"),
			},
			Ledger: api.LedgerConfig{
				Path:     viper.GetString("ledger-path"),
				Operator: viper.GetString("ledger-operator"),
			},
			Engine: api.EngineConfig{
				FeeBps:                viper.GetUint64("engine-fee-bps"),
				FeeRecipient:          viper.GetString("engine-fee-recipient"),
				Arbiter:               viper.GetString("engine-arbiter"),
				EnforceEnglishReserve: viper.GetBool("engine-enforce-english-reserve"),
				NoSaleFeeBps:          viper.GetUint64("engine-no-sale-fee-bps"),
			},
		},
	}
}

type Args struct {
	ServerURL       string
	ShutdownTimeout time.Duration
	LogLevel        string
	LogJSON         bool
	ServerConfig    api.ServerConfig
}

func (args Args) Validate() bool {
	config := args.ServerConfig
	hasAuth := config.Auth.PublicKeyPath != "" || (config.OIDC.IssuerURL != "" && config.OIDC.ClientID != "")
	return args.ServerURL != "" &&
		config.ID != "" &&
		config.Redis.Addr != "" &&
		config.DB.Host != "" &&
		config.Ledger.Path != "" &&
		config.Engine.FeeRecipient != "" &&
		config.Engine.Arbiter != "" &&
		hasAuth
}

// Logger 依參數建立 slog logger
func (args Args) Logger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(args.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	options := &slog.HandlerOptions{Level: level}
	if args.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "bidvault"
	}
	return name
}
