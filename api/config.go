package api

import (
	"fmt"
	"time"

	"bidvault/auction"
)

type ServerConfig struct {
	// ID 本實例名稱，作為 redis consumer 名稱
	ID     string
	Auth   AuthConfig
	OIDC   OIDCConfig
	S3     S3Config
	DB     DBConfig
	Redis  RedisConfig
	NATS   NATSConfig
	Ledger LedgerConfig
	Engine EngineConfig
}

// AuthConfig 以自簽 JWT 驗證呼叫者；未設定 PublicKeyPath 時改用 OIDC
type AuthConfig struct {
	PublicKeyPath string
	Issuer        string
	Audience      string
}

type OIDCConfig struct {
	IssuerURL string
	ClientID  string
	// 存放錢包地址的 claim 名稱
	WalletClaim string
}

type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	Bucket          string
	PublicBaseURL   string
	KeyPrefix       string
	// 0 表示不限制
	RateLimitPerHour int64
}

type DBConfig struct {
	User     string
	Password string
	Host     string
	Port     int
	Database string
	Schema   string
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s", c.User, c.Password, c.Host, c.Port, c.Database, c.Schema)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	KeyPrefix     string
	ConsumerGroup string
	LockExpiry    time.Duration
	SnapshotTTL   time.Duration
	StreamKeys    RedisStreamKeys
}

type RedisStreamKeys struct {
	Events   string
	Disputes string
}

// NATSConfig URL 為空時不轉發事件到 NATS
type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

type LedgerConfig struct {
	Path string
	// Operator 唯一可以入金的地址，空字串表示關閉入金
	Operator string
}

type EngineConfig struct {
	FeeBps                uint64
	FeeRecipient          string
	Arbiter               string
	EnforceEnglishReserve bool
	NoSaleFeeBps          uint64
}

// Policy 轉成引擎的結算規則，欄位限制使用預設值
func (c EngineConfig) Policy() auction.Policy {
	policy := auction.DefaultPolicy()
	policy.FeeBps = c.FeeBps
	policy.FeeRecipient = auction.NormalizeAddress(c.FeeRecipient)
	policy.Arbiter = auction.NormalizeAddress(c.Arbiter)
	policy.EnforceEnglishReserve = c.EnforceEnglishReserve
	policy.NoSaleFeeBps = c.NoSaleFeeBps
	return policy
}
