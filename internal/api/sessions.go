package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jason-s-yu/sushi/internal/models"
)

type sessionRef struct {
	SessionID int64 `json:"sessionId"`
}

type tokenSessionRef struct {
	Token     string `json:"token"`
	SessionID int64  `json:"sessionId"`
}

// ListSessions returns every open session.
func (c *Client) ListSessions(ctx context.Context) ([]models.SessionSummary, error) {
	var out struct {
		Sessions []models.SessionSummary `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// CreateSession creates a session and returns its id. The creator is joined
// by the server.
func (c *Client) CreateSession(ctx context.Context, name string, moveDuration, capacity int) (int64, error) {
	body := struct {
		Token        string `json:"token"`
		SessionName  string `json:"sessionName"`
		MoveDuration int    `json:"moveDuration"`
		PlayerCount  int    `json:"playerCount"`
	}{c.token, name, moveDuration, capacity}

	var out struct {
		SessionID models.FlexInt `json:"session_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/sessions", body, &out); err != nil {
		return 0, err
	}
	return out.SessionID.Int64(), nil
}

// GetSession returns the session metadata.
func (c *Client) GetSession(ctx context.Context, id int64) (models.Session, error) {
	var out struct {
		Session models.Session `json:"session"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/sessions/%d", id), nil, &out); err != nil {
		return models.Session{}, err
	}
	return out.Session, nil
}

// CheckMembership reports whether the caller belongs to the session. The
// server answers success=false for non-members on some versions, so a refusal
// without an explicit flag counts as "not a member" rather than an error.
func (c *Client) CheckMembership(ctx context.Context, id int64) (bool, error) {
	data, err := c.raw(ctx, http.MethodPost, "/api/is-player-belongs", sessionRef{id})
	if err != nil {
		return false, err
	}
	var out struct {
		envelope
		Belong *bool `json:"belong"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return false, fmt.Errorf("%w: decoding membership: %w", ErrNetwork, err)
	}
	if out.Belong != nil {
		return *out.Belong, nil
	}
	return out.Success, nil
}

// JoinSession adds the caller to a pending session.
func (c *Client) JoinSession(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPost, "/api/join-session", tokenSessionRef{c.token, id}, nil)
}

// LeaveSession removes the caller from the session.
func (c *Client) LeaveSession(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPost, "/api/leave-session", sessionRef{id}, nil)
}

// GetHand returns the caller's cards, top node of each chain first.
func (c *Client) GetHand(ctx context.Context, id int64) ([]*models.CardNode, error) {
	var out struct {
		Cards []*models.CardNode `json:"cards"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/get-player-cards", tokenSessionRef{c.token, id}, &out); err != nil {
		return nil, err
	}
	return out.Cards, nil
}

// GetTable returns every participant's played stacks.
func (c *Client) GetTable(ctx context.Context, id int64) ([]models.TableSeat, error) {
	var out struct {
		Players []models.TableSeat `json:"players"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/get-table-cards", tokenSessionRef{c.token, id}, &out); err != nil {
		return nil, err
	}
	return out.Players, nil
}

// GetScores returns the cumulative score sheet.
func (c *Client) GetScores(ctx context.Context, id int64) (models.ScoreSheet, error) {
	var out struct {
		Scores models.ScoreSheet `json:"scores"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/get-scores", sessionRef{id}, &out); err != nil {
		return nil, err
	}
	return out.Scores, nil
}

// SubmitCard places a hand card for the current turn.
func (c *Client) SubmitCard(ctx context.Context, id, cardID int64) error {
	body := struct {
		Token         string `json:"token"`
		SessionID     int64  `json:"sessionId"`
		SessionCardID int64  `json:"sessionCardId"`
	}{c.token, id, cardID}
	return c.do(ctx, http.MethodPost, "/api/place-card", body, nil)
}
