package models

// SessionStatus is the server-side lifecycle status of a session.
type SessionStatus string

const (
	StatusPending SessionStatus = "pending"
	StatusOngoing SessionStatus = "ongoing"
	StatusEnded   SessionStatus = "ended"
)

// Session mirrors the session metadata returned by the API. The client never
// mutates it; it is replaced whenever a fresh copy is fetched.
type Session struct {
	ID                 FlexInt       `json:"session_id"`
	Name               string        `json:"session_name"`
	MoveDuration       FlexInt       `json:"move_duration"`
	RoundNumber        FlexInt       `json:"round_number"`
	SessionDate        string        `json:"session_date,omitempty"`
	CurrentPlayerCount FlexInt       `json:"current_player_count"`
	MaxPlayerCount     FlexInt       `json:"max_player_count"`
	Status             SessionStatus `json:"status"`
	ScheduledTime      string        `json:"scheduled_time,omitempty"`
	RemainingTime      FlexInt       `json:"remaining_time"`
}

// SessionSummary is the reduced form returned by the session list.
type SessionSummary struct {
	ID                 FlexInt `json:"session_id"`
	Name               string  `json:"session_name"`
	CurrentPlayerCount FlexInt `json:"current_player_count"`
	MaxPlayerCount     FlexInt `json:"max_player_count"`
}

// Full reports whether no more participants can join.
func (s SessionSummary) Full() bool {
	return s.MaxPlayerCount > 0 && s.CurrentPlayerCount >= s.MaxPlayerCount
}
