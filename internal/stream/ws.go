// internal/stream/ws.go
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/sushi/internal/api"
	"github.com/jason-s-yu/sushi/internal/middleware"
	"github.com/sirupsen/logrus"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsReadLimit    = 1 << 20
)

// WSSubscriber opens websocket subscriptions against the game service's push
// endpoint. One connection is dialed per Subscribe call.
type WSSubscriber struct {
	URL        string
	Logger     *logrus.Logger
	HTTPClient *http.Client
}

type wsSubscription struct {
	*feed
	conn      *websocket.Conn
	cancel    context.CancelFunc
	url       string
	sessionID int64
	logger    *logrus.Logger
}

// Subscribe dials the push endpoint and joins the session room.
func (s *WSSubscriber) Subscribe(ctx context.Context, sessionID int64, token string) (Subscription, error) {
	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+token)

	conn, resp, err := websocket.Dial(ctx, s.URL, &websocket.DialOptions{
		HTTPClient:   s.HTTPClient,
		HTTPHeader:   hdr,
		Subprotocols: []string{Subprotocol},
	})
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: push channel refused credential (%d)", api.ErrAuth, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: dial %s: %w", api.ErrNetwork, s.URL, err)
	}
	conn.SetReadLimit(wsReadLimit)

	join, err := json.Marshal(Event{Type: EventJoinRoom, SessionID: flex(sessionID), Token: token})
	if err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("failed to marshal join message: %w", err)
	}
	wctx, wcancel := context.WithTimeout(ctx, wsWriteTimeout)
	err = conn.Write(wctx, websocket.MessageText, join)
	wcancel()
	if err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("%w: joining session room: %w", api.ErrNetwork, err)
	}

	logger := s.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	readCtx, cancel := context.WithCancel(context.Background())
	sub := &wsSubscription{
		feed:      newFeed(),
		conn:      conn,
		cancel:    cancel,
		url:       s.URL,
		sessionID: sessionID,
		logger:    logger,
	}
	middleware.LogWebSocketConnect(logger, s.URL, sessionID)
	sub.run(func() { sub.readLoop(readCtx) })
	return sub, nil
}

func (s *wsSubscription) readLoop(ctx context.Context) {
	for {
		msgType, data, err := s.conn.Read(ctx)
		if err != nil {
			reason := classifyReadError(err)
			s.fail(reason)
			if !s.closed() {
				middleware.LogWebSocketDisconnect(s.logger, s.url, s.sessionID, reason)
			}
			return
		}
		if msgType != websocket.MessageText {
			s.logger.Warnf("Received non-text message type %d on session %d. Ignoring.", msgType, s.sessionID)
			continue
		}
		ev, err := Decode(data)
		if err != nil {
			s.logger.WithError(err).WithField("session_id", s.sessionID).Warn("Dropping undecodable push message")
			continue
		}
		if !s.deliver(ev) {
			return
		}
	}
}

func classifyReadError(err error) error {
	switch status := websocket.CloseStatus(err); status {
	case InvalidAuthTokenError, InvalidUserIDError:
		return fmt.Errorf("%w: push channel closed with %d", api.ErrAuth, status)
	case InvalidSessionIDError:
		return fmt.Errorf("%w: session does not exist (%d)", ErrRefused, status)
	case BadSubprotocolError:
		return fmt.Errorf("%w: subprotocol %q not supported (%d)", ErrRefused, Subprotocol, status)
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return ErrClosed
	}
	if errors.Is(err, context.Canceled) || strings.Contains(err.Error(), "context canceled") {
		return ErrClosed
	}
	return fmt.Errorf("%w: reading push channel: %w", api.ErrNetwork, err)
}

// Emit writes a client notification on the connection.
func (s *wsSubscription) Emit(ctx context.Context, ev Event) error {
	if s.closed() {
		return ErrClosed
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", ev.Type, err)
	}
	wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	if err := s.conn.Write(wctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("%w: emitting %s: %w", api.ErrNetwork, ev.Type, err)
	}
	return nil
}

// Close sends a normal closure and waits for the reader to exit.
func (s *wsSubscription) Close() error {
	return s.shutdown(func() error {
		// The reader may already have seen the connection die.
		if err := s.conn.Close(websocket.StatusNormalClosure, "leaving session"); err != nil {
			s.logger.WithError(err).Debug("WebSocket close")
		}
		s.cancel()
		middleware.LogWebSocketDisconnect(s.logger, s.url, s.sessionID, nil)
		return nil
	})
}
