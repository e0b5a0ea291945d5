package nats

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/vmihailenco/msgpack/v5"

	"bidvault/auction"
)

// Publisher 為 *nats.Conn 的發布子集
type Publisher interface {
	Publish(subject string, data []byte) error
}

var _ Publisher = (*nats.Conn)(nil)

// Connect 建立 nats 連線，斷線時自動重連
func Connect(url string, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("caller", "nats"))
	conn, err := nats.Connect(url,
		nats.Name("bidvault"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", slog.Any("error", err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("fail to connect to nats, err=%w", err)
	}
	return conn, nil
}

// Emitter 把拍賣事件以 msgpack 發布到 <prefix>.<event type>
type Emitter struct {
	publisher Publisher
	prefix    string
}

var _ auction.Emitter = (*Emitter)(nil)

func NewEmitter(publisher Publisher, prefix string) (*Emitter, error) {
	if publisher == nil {
		return nil, errors.New("publisher cannot be nil")
	}
	return &Emitter{publisher: publisher, prefix: strings.TrimSuffix(prefix, ".")}, nil
}

func (e *Emitter) Subject(evt auction.Event) string {
	if e.prefix == "" {
		return evt.Type
	}
	return e.prefix + "." + evt.Type
}

func (e *Emitter) Emit(evt auction.Event) error {
	const op = "nats.Emitter.Emit"
	data, err := msgpack.Marshal(evt)
	if err != nil {
		return fmt.Errorf("[%s] Fail to encode event, err=%w", op, err)
	}
	if err := e.publisher.Publish(e.Subject(evt), data); err != nil {
		return fmt.Errorf("[%s] Fail to publish %s, err=%w", op, evt.Type, err)
	}
	return nil
}

// DecodeEvent 為 Emit 的反向操作，供訂閱端使用
func DecodeEvent(data []byte) (auction.Event, error) {
	var evt auction.Event
	if err := msgpack.Unmarshal(data, &evt); err != nil {
		return evt, fmt.Errorf("msgpack unmarshal error: %w", err)
	}
	return evt, nil
}
