// Package broker forwards domain events to NATS.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	lms "github.com/bohemiyan/LMS"
)

// SubjectPrefix is prepended to every event topic.
const SubjectPrefix = "lms."

// Publisher is the part of *nats.Conn the forwarder needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Envelope is the JSON message published for each event.
type Envelope struct {
	Topic       string    `json:"topic"`
	PublishedAt time.Time `json:"published_at"`
	Data        lms.Event `json:"data"`
}

// Forwarder republishes bus events on NATS. Publish failures are logged and
// never reach the code that raised the event.
type Forwarder struct {
	pub Publisher
	log *zap.SugaredLogger
	now func() time.Time
}

func NewForwarder(pub Publisher, log *zap.SugaredLogger) *Forwarder {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Forwarder{pub: pub, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Register subscribes the forwarder to every topic of bus.
func (f *Forwarder) Register(bus *lms.EventBus) {
	for _, topic := range lms.Topics() {
		bus.Subscribe(topic, f.forward)
	}
}

func (f *Forwarder) forward(ctx context.Context, e lms.Event) error {
	if f.pub == nil {
		return nil
	}
	data, err := json.Marshal(Envelope{Topic: e.Topic(), PublishedAt: f.now(), Data: e})
	if err != nil {
		f.log.Warnw("broker: failed to marshal event", "topic", e.Topic(), "error", err)
		return nil
	}

	subject := SubjectPrefix + e.Topic()
	if err := f.pub.Publish(subject, data); err != nil {
		f.log.Warnw("broker: failed to publish event (non-fatal)", "subject", subject, "error", err)
		return nil
	}
	f.log.Debugw("broker: event published", "subject", subject)
	return nil
}

// Connect dials NATS with reconnect logging.
func Connect(url string, log *zap.SugaredLogger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("lms"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnw("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infow("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return nc, nil
}
