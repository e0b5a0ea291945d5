package api

import (
	"context"
	"errors"
	"log/slog"

	redisAdapter "bidvault/adapters/redis"
	"bidvault/auction"
)

type TransactionRecorder interface {
	Record(ctx context.Context, evt auction.Event) error
}

// TransactionSync 消費事件 stream，把帳本移動寫回資料庫
type TransactionSync struct {
	consumer redisAdapter.IGroupConsumer[auction.Event]
	recorder TransactionRecorder
	logger   *slog.Logger
}

func NewTransactionSync(consumer redisAdapter.IGroupConsumer[auction.Event], recorder TransactionRecorder, logger *slog.Logger) (*TransactionSync, error) {
	if consumer == nil {
		return nil, errors.New("consumer cannot be nil")
	}
	if recorder == nil {
		return nil, errors.New("recorder cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TransactionSync{
		consumer: consumer,
		recorder: recorder,
		logger:   logger.With(slog.String("caller", "TransactionSync")),
	}, nil
}

func (w *TransactionSync) Start() error {
	w.logger.Info("Start transaction synchronization worker")
	return w.consumer.Start(w.handle)
}

func (w *TransactionSync) Close() error {
	defer w.logger.Info("Transaction synchronization worker stopped")
	return w.consumer.Close()
}

// handle 回傳錯誤時消息會移到 dead-letter stream
func (w *TransactionSync) handle(ctx context.Context, evt auction.Event) error {
	if evt.Type != auction.EventTransfer {
		return nil
	}
	if err := w.recorder.Record(ctx, evt); err != nil {
		w.logger.Error("Fail to synchronize transaction",
			slog.String("auctionID", evt.AuctionID),
			slog.String("key", evt.Attributes["key"]),
			slog.Any("error", err),
		)
		return err
	}
	w.logger.Debug("Synchronize success", slog.String("key", evt.Attributes["key"]))
	return nil
}
