package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"bidvault/adapters/bolt"
	natsAdapter "bidvault/adapters/nats"
	"bidvault/adapters/oidc"
	"bidvault/adapters/postgres"
	redisAdapter "bidvault/adapters/redis"
	"bidvault/adapters/s3"
	"bidvault/auction"
)

type backgroundProducer interface {
	Start()
	Close()
}

// App 串接所有外部依賴的服務實例
type App struct {
	Server *Server

	sync      *TransactionSync
	producers []backgroundProducer
	closers   []func() error
	logger    *slog.Logger
}

func NewApp(ctx context.Context, config ServerConfig, logger *slog.Logger) (_ *App, err error) {
	const op = "NewApp"
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{logger: logger.With(slog.String("caller", "App"))}
	// 初始化失敗時釋放已建立的資源
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	// 初始化資料庫連線
	db, err := postgres.Open(config.DB.DSN())
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to connect to database, err=%w", op, err)
	}
	app.closers = append(app.closers, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	store, err := postgres.NewStore(db, logger)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create auction store, err=%w", op, err)
	}
	transactions, err := postgres.NewTransactionLog(db)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create transaction log, err=%w", op, err)
	}

	// 初始化Redis連線
	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})
	app.closers = append(app.closers, redisClient.Close)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("[%s] Fail to connect to redis, err=%w", op, err)
	}
	cachedStore, err := redisAdapter.NewCachedStore(store, redisClient,
		redisAdapter.WithStorePrefix(config.Redis.KeyPrefix),
		redisAdapter.WithStoreTTL(config.Redis.SnapshotTTL),
		redisAdapter.WithStoreLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create cached store, err=%w", op, err)
	}
	locker, err := redisAdapter.NewLocker(redisClient,
		redisAdapter.WithLockerPrefix(config.Redis.KeyPrefix),
		redisAdapter.WithLockerLogger(logger),
		redisAdapter.WithLockerMutexOptions(redisAdapter.WithAutoRenewMutexExpiry(config.Redis.LockExpiry)),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create locker, err=%w", op, err)
	}

	// 初始化事件與仲裁 stream
	eventProducer, err := redisAdapter.NewProducer[auction.Event](redisClient, config.Redis.StreamKeys.Events,
		redisAdapter.WithProducerLogger[auction.Event](logger),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create event producer, err=%w", op, err)
	}
	disputeProducer, err := redisAdapter.NewProducer[redisAdapter.DisputeSubmission](redisClient, config.Redis.StreamKeys.Disputes,
		redisAdapter.WithProducerLogger[redisAdapter.DisputeSubmission](logger),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create dispute producer, err=%w", op, err)
	}
	app.producers = append(app.producers, eventProducer, disputeProducer)
	streamEmitter, err := redisAdapter.NewEventEmitter(eventProducer)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create event emitter, err=%w", op, err)
	}
	emitters := auction.MultiEmitter{streamEmitter}
	arbiter, err := redisAdapter.NewArbiter(disputeProducer, nil)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create arbiter, err=%w", op, err)
	}

	if config.NATS.URL != "" {
		conn, err := natsAdapter.Connect(config.NATS.URL, logger)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to connect to nats, err=%w", op, err)
		}
		app.closers = append(app.closers, conn.Drain)
		natsEmitter, err := natsAdapter.NewEmitter(conn, config.NATS.SubjectPrefix)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create nats emitter, err=%w", op, err)
		}
		emitters = append(emitters, natsEmitter)
	}

	// 初始化帳本
	ledger, err := bolt.Open(config.Ledger.Path, bolt.WithLedgerLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to open ledger, err=%w", op, err)
	}
	app.closers = append(app.closers, ledger.Close)

	engine, err := auction.NewEngine(cachedStore, ledger,
		auction.WithLocker(locker),
		auction.WithEmitter(emitters),
		auction.WithArbiter(arbiter),
		auction.WithLogger(logger),
		auction.WithPolicy(config.Engine.Policy()),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create engine, err=%w", op, err)
	}

	// 初始化交易紀錄 worker
	groupConsumer, err := redisAdapter.NewGroupConsumer[auction.Event](
		redisClient,
		config.Redis.StreamKeys.Events,
		config.Redis.ConsumerGroup,
		config.ID,
		redisAdapter.WithGroupConsumerLogger[auction.Event](logger),
		redisAdapter.WithGroupConsumerStrictOrdering[auction.Event](true),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create group consumer, err=%w", op, err)
	}
	app.sync, err = NewTransactionSync(groupConsumer, transactions, logger)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create transaction worker, err=%w", op, err)
	}

	authenticator, err := newAuthenticator(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create authenticator, err=%w", op, err)
	}

	options := []ServerOption{
		WithServerLogger(logger),
		WithAuthenticator(authenticator),
		WithTransactions(transactions),
		WithAccounts(ledger, auction.NormalizeAddress(config.Ledger.Operator)),
	}
	// 初始化S3客戶端
	if config.S3.Bucket != "" {
		client, err := s3.NewClient(ctx, s3.ClientConfig{
			Endpoint:        config.S3.Endpoint,
			AccessKeyID:     config.S3.AccessKeyID,
			SecretAccessKey: config.S3.SecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create S3 client, err=%w", op, err)
		}
		images, err := s3.NewImageStore(client, config.S3.Bucket, config.S3.PublicBaseURL, config.S3.KeyPrefix)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create image store, err=%w", op, err)
		}
		imageLog, err := postgres.NewImageLog(db)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create image log, err=%w", op, err)
		}
		options = append(options, WithImages(images, imageLog, config.S3.RateLimitPerHour))
	}

	app.Server, err = NewServer(engine, options...)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create server, err=%w", op, err)
	}
	return app, nil
}

// newAuthenticator 設定了公鑰時使用自簽 JWT，否則使用 OIDC ID token
func newAuthenticator(ctx context.Context, config ServerConfig) (Authenticator, error) {
	if config.Auth.PublicKeyPath != "" {
		pemBytes, err := os.ReadFile(config.Auth.PublicKeyPath)
		if err != nil {
			return nil, err
		}
		key, err := LoadPublicKey(pemBytes)
		if err != nil {
			return nil, err
		}
		return NewJWTAuthenticator(key, config.Auth.Issuer, config.Auth.Audience)
	}
	if config.OIDC.IssuerURL == "" {
		return nil, errors.New("either auth public key or oidc issuer is required")
	}
	verifier, err := oidc.NewVerifier(ctx, config.OIDC.IssuerURL, config.OIDC.ClientID,
		oidc.WithWalletClaim(config.OIDC.WalletClaim),
	)
	if err != nil {
		return nil, err
	}
	return NewOIDCAuthenticator(verifier)
}

func (app *App) Start() error {
	// 啟動producer
	for _, producer := range app.producers {
		producer.Start()
	}
	// 啟動交易紀錄 worker
	return app.sync.Start()
}

// Close 依建立的相反順序釋放資源
func (app *App) Close() {
	if app.sync != nil {
		if err := app.sync.Close(); err != nil {
			app.logger.Warn("Fail to close transaction worker", slog.Any("error", err))
		}
	}
	for _, producer := range app.producers {
		producer.Close()
	}
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			app.logger.Warn("Fail to close resource", slog.Any("error", err))
		}
	}
	app.closers = nil
	app.producers = nil
	app.sync = nil
}
