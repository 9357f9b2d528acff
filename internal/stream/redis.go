// internal/stream/redis.go
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jason-s-yu/sushi/internal/api"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultRedisPrefix namespaces the pub/sub channels.
const DefaultRedisPrefix = "sushi"

// DialRedis connects to Redis and verifies the connection.
func DialRedis(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// RedisChannel is the pub/sub channel carrying a session's events.
func RedisChannel(prefix string, sessionID int64) string {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return fmt.Sprintf("%s:session:%d", prefix, sessionID)
}

// RedisSubscriber receives session events from Redis pub/sub, for deployments
// where the game service fans events out through Redis instead of websockets.
type RedisSubscriber struct {
	Client *redis.Client
	Prefix string
	Logger *logrus.Logger
}

type redisSubscription struct {
	*feed
	client  *redis.Client
	pubsub  *redis.PubSub
	channel string
	logger  *logrus.Logger
}

// Subscribe subscribes to the session's channel and waits for confirmation.
func (s *RedisSubscriber) Subscribe(ctx context.Context, sessionID int64, token string) (Subscription, error) {
	channel := RedisChannel(s.Prefix, sessionID)
	ps := s.Client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("%w: subscribing to %s: %w", api.ErrNetwork, channel, err)
	}

	logger := s.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	sub := &redisSubscription{
		feed:    newFeed(),
		client:  s.Client,
		pubsub:  ps,
		channel: channel,
		logger:  logger,
	}
	logger.WithField("channel", channel).Info("Redis subscription established")
	msgs := ps.Channel()
	sub.run(func() { sub.readLoop(msgs) })
	return sub, nil
}

func (s *redisSubscription) readLoop(msgs <-chan *redis.Message) {
	for {
		select {
		case <-s.done:
			return
		case m, ok := <-msgs:
			if !ok {
				s.fail(ErrClosed)
				return
			}
			ev, err := Decode([]byte(m.Payload))
			if err != nil {
				s.logger.WithError(err).WithField("channel", s.channel).Warn("Dropping undecodable push message")
				continue
			}
			if !s.deliver(ev) {
				return
			}
		}
	}
}

// Emit publishes a client notification on the session channel.
func (s *redisSubscription) Emit(ctx context.Context, ev Event) error {
	if s.closed() {
		return ErrClosed
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", ev.Type, err)
	}
	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		return fmt.Errorf("%w: publishing to %s: %w", api.ErrNetwork, s.channel, err)
	}
	return nil
}

// Close unsubscribes and waits for the reader.
func (s *redisSubscription) Close() error {
	return s.shutdown(func() error {
		s.logger.WithField("channel", s.channel).Info("Redis subscription released")
		return s.pubsub.Close()
	})
}
