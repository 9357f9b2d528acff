// internal/stream/nats.go
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jason-s-yu/sushi/internal/api"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// DefaultNATSPrefix namespaces the session subjects.
const DefaultNATSPrefix = "sushi"

// DialNATS connects to NATS with reconnects enabled and connection state
// changes logged.
func DialNATS(url string, reconnectWait time.Duration, logger *logrus.Logger) (*nats.Conn, error) {
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.WithError(err).Error("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.WithError(err).Error("NATS error")
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// NATSSubject is the subject carrying a session's events.
func NATSSubject(prefix string, sessionID int64) string {
	if prefix == "" {
		prefix = DefaultNATSPrefix
	}
	return fmt.Sprintf("%s.session.%d", prefix, sessionID)
}

// NATSSubscriber receives session events from a NATS subject.
type NATSSubscriber struct {
	Conn   *nats.Conn
	Prefix string
	Logger *logrus.Logger
}

type natsSubscription struct {
	*feed
	conn    *nats.Conn
	sub     *nats.Subscription
	subject string
	logger  *logrus.Logger
}

// Subscribe subscribes to the session subject.
func (s *NATSSubscriber) Subscribe(ctx context.Context, sessionID int64, token string) (Subscription, error) {
	subject := NATSSubject(s.Prefix, sessionID)
	raw := make(chan *nats.Msg, eventBuffer)
	ns, err := s.Conn.ChanSubscribe(subject, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: subscribing to %s: %w", api.ErrNetwork, subject, err)
	}
	if err := s.Conn.FlushWithContext(ctx); err != nil {
		ns.Unsubscribe()
		return nil, fmt.Errorf("%w: flushing subscription %s: %w", api.ErrNetwork, subject, err)
	}

	logger := s.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	sub := &natsSubscription{
		feed:    newFeed(),
		conn:    s.Conn,
		sub:     ns,
		subject: subject,
		logger:  logger,
	}
	status := ns.StatusChanged(nats.SubscriptionClosed)
	logger.WithField("subject", subject).Info("NATS subscription established")
	sub.run(func() { sub.readLoop(raw, status) })
	return sub, nil
}

func (s *natsSubscription) readLoop(raw <-chan *nats.Msg, status <-chan nats.SubStatus) {
	for {
		select {
		case <-s.done:
			return
		case <-status:
			s.fail(ErrClosed)
			return
		case m := <-raw:
			ev, err := Decode(m.Data)
			if err != nil {
				s.logger.WithError(err).WithField("subject", s.subject).Warn("Dropping undecodable push message")
				continue
			}
			if !s.deliver(ev) {
				return
			}
		}
	}
}

// Emit publishes a client notification on the session subject.
func (s *natsSubscription) Emit(ctx context.Context, ev Event) error {
	if s.closed() {
		return ErrClosed
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", ev.Type, err)
	}
	if err := s.conn.Publish(s.subject, data); err != nil {
		return fmt.Errorf("%w: publishing to %s: %w", api.ErrNetwork, s.subject, err)
	}
	return nil
}

// Close unsubscribes and waits for the reader.
func (s *natsSubscription) Close() error {
	return s.shutdown(func() error {
		s.logger.WithField("subject", s.subject).Info("NATS subscription released")
		return s.sub.Unsubscribe()
	})
}
