package session

import (
	"encoding/json"

	"github.com/jason-s-yu/sushi/internal/models"
	"github.com/jason-s-yu/sushi/internal/snapshot"
)

// View is a published, read-only copy of the session state.
type View struct {
	SessionID    int64
	State        State
	Session      models.Session
	Participants []models.Participant
	Round        int
	Remaining    int

	Hand     []snapshot.HandStack
	Selected int64
	Table    []snapshot.Seat
	Scores   models.ScoreSheet
	Results  json.RawMessage

	// CanSubmit is true when a selected card could be submitted right now.
	CanSubmit  bool
	Submitting bool
	Submitted  bool

	Connected bool
	// Banner holds retry-capable messages for recoverable failures.
	Banner string
	// Err explains a terminal state: ErrNotAMember or a join rejection for
	// Rejected, api.ErrAuth when the credential was refused.
	Err error
}

// SelectedStack returns the selected hand entry.
func (v View) SelectedStack() (snapshot.HandStack, bool) {
	if v.Selected == 0 {
		return snapshot.HandStack{}, false
	}
	for _, h := range v.Hand {
		if h.CardID == v.Selected {
			return h, true
		}
	}
	return snapshot.HandStack{}, false
}
