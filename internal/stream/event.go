// Package stream delivers push events for one session view.
//
// Delivery is unordered and at-least-once on every transport; consumers must be
// idempotent. A Subscription is owned by exactly one session view and must be
// closed before the view opens another.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jason-s-yu/sushi/internal/models"
)

// EventType names a push event. The values match what the game service emits.
type EventType string

const (
	EventPlayersUpdated  EventType = "updatePlayers"
	EventGameStarted     EventType = "game_started"
	EventRoundStarted    EventType = "round_started"
	EventTurnTimedOut    EventType = "move_timeout"
	EventRoundScored     EventType = "score_round"
	EventGameEnded       EventType = "game_end"
	EventSessionsChanged EventType = "sessions_changed"

	// Sent by the client.
	EventJoinRoom     EventType = "joinSessionRoom"
	EventCardSelected EventType = "cardSelected"
)

var (
	// ErrClosed is reported when the remote end closed the subscription.
	ErrClosed = errors.New("subscription closed by server")
	// ErrRefused is reported when the server will never serve the
	// subscription: the session does not exist or the subprotocol is not
	// supported. Reconnecting cannot succeed.
	ErrRefused = errors.New("subscription refused by server")
)

// Event is the single envelope shared by every transport. Only identifiers,
// turn duration and round number are trusted; everything else is a hint that
// triggers a fetch.
type Event struct {
	ID           string               `json:"id,omitempty"`
	Type         EventType            `json:"type"`
	SessionID    models.FlexInt       `json:"session_id,omitempty"`
	MoveDuration *models.FlexInt      `json:"move_duration,omitempty"`
	RoundNumber  *models.FlexInt      `json:"round_number,omitempty"`
	Players      []models.Participant `json:"players,omitempty"`
	Results      json.RawMessage      `json:"results,omitempty"`

	// Outbound fields.
	Token         string         `json:"token,omitempty"`
	SessionCardID models.FlexInt `json:"session_card_id,omitempty"`
}

// Duration returns the turn duration carried by the event.
func (e Event) Duration() (int, bool) {
	if e.MoveDuration == nil {
		return 0, false
	}
	return e.MoveDuration.Int(), true
}

// Round returns the server round number carried by the event.
func (e Event) Round() (int, bool) {
	if e.RoundNumber == nil || *e.RoundNumber <= 0 {
		return 0, false
	}
	return e.RoundNumber.Int(), true
}

// Decode parses a push message. Both the flat envelope and the
// {"type": ..., "data": {...}} form are accepted.
func Decode(data []byte) (Event, error) {
	var wrapped struct {
		Event
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	ev := wrapped.Event
	if len(wrapped.Data) > 0 && !bytes.Equal(wrapped.Data, []byte("null")) {
		if err := json.Unmarshal(wrapped.Data, &ev); err != nil {
			return Event{}, fmt.Errorf("decode %s payload: %w", wrapped.Type, err)
		}
		if ev.Type == "" {
			ev.Type = wrapped.Type
		}
		if ev.ID == "" {
			ev.ID = wrapped.ID
		}
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("decode event: missing type")
	}
	return ev, nil
}

// Subscriber opens subscriptions on a push transport.
type Subscriber interface {
	Subscribe(ctx context.Context, sessionID int64, token string) (Subscription, error)
}

// Subscription is a live feed of events for one session.
type Subscription interface {
	// Events is closed when the subscription ends for any reason.
	Events() <-chan Event
	// Emit sends a client notification to co-players.
	Emit(ctx context.Context, ev Event) error
	// Err explains why Events closed; nil if the subscription was closed locally.
	Err() error
	// Close releases the subscription and waits for its reader to stop.
	Close() error
}
