package models

// Participant is one member of a session as reported by the server.
type Participant struct {
	ID       FlexInt `json:"player_id"`
	Username string  `json:"username"`
}

// Score is a single participant's cumulative score.
type Score struct {
	PlayerID FlexInt `json:"player_id"`
	Username string  `json:"username,omitempty"`
	Score    FlexInt `json:"score"`
}

// ScoreSheet holds every participant's cumulative score. It is always replaced
// wholesale, never merged.
type ScoreSheet []Score

// Total returns the score for a player, or false if the player is not listed.
func (s ScoreSheet) Total(playerID int64) (int64, bool) {
	for _, sc := range s {
		if sc.PlayerID.Int64() == playerID {
			return sc.Score.Int64(), true
		}
	}
	return 0, false
}
