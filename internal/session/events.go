package session

import (
	"github.com/jason-s-yu/sushi/internal/snapshot"
	"github.com/jason-s-yu/sushi/internal/stream"
	"github.com/sirupsen/logrus"
)

// handleEvent applies one pushed event. Delivery is unordered and may repeat,
// so every branch is idempotent or guarded against replays.
func (m *Machine) handleEvent(ev stream.Event) {
	log := m.log.WithFields(logrus.Fields{
		"event": string(ev.Type),
		"state": m.state.String(),
	})
	if id := ev.SessionID.Int64(); id != 0 && id != m.cfg.SessionID {
		log.WithField("event_session_id", id).Debug("Dropping event for another session")
		return
	}
	if ev.ID != "" && !m.seen.add(ev.ID) {
		log.WithField("event_id", ev.ID).Debug("Dropping duplicate event")
		return
	}
	log.Debug("Push event received")

	switch ev.Type {
	case stream.EventPlayersUpdated:
		if ev.Players != nil {
			m.participants = ev.Players
		}
		m.refreshMeta(false)

	case stream.EventGameStarted:
		switch m.state {
		case Unjoined:
			m.resyncEntry = true
		case Pending:
			m.transition(Ongoing, "game started")
			if r, ok := ev.Round(); ok {
				m.round = r
				m.lastRoundStart = r
			}
			m.timer.Reset(m.turnDuration(ev))
			m.newTurn()
			m.refresh(snapshot.Hand, snapshot.Table, snapshot.Scores)
		case Ongoing:
			log.Debug("Ignoring repeated game start")
		default:
			log.Debug("Ignoring game start in terminal state")
		}

	case stream.EventRoundStarted:
		switch m.state {
		case Unjoined:
			m.resyncEntry = true
		case Pending:
			log.Warn("Round started before game start; resyncing metadata")
			m.refreshMeta(true)
		case Ongoing:
			r, ok := ev.Round()
			if ok && (r <= m.lastRoundStart || r < m.round) {
				log.WithField("round", r).Debug("Ignoring replayed round start")
				return
			}
			if ok {
				m.round = r
				m.lastRoundStart = r
				// The event is newer than any metadata already in flight.
				m.gen[snapshot.Meta]++
			} else {
				m.round++
				m.refreshMeta(false)
			}
			m.timer.Reset(m.turnDuration(ev))
			m.newTurn()
			m.refresh(snapshot.Hand, snapshot.Table, snapshot.Scores)
		default:
			log.Debug("Ignoring round start in terminal state")
		}

	case stream.EventTurnTimedOut:
		switch m.state {
		case Unjoined:
			m.resyncEntry = true
		case Pending:
			log.Warn("Turn timeout before game start; resyncing metadata")
			m.refreshMeta(true)
		case Ongoing:
			m.timer.Reset(m.turnDuration(ev))
			m.newTurn()
			m.refresh(snapshot.Hand, snapshot.Table)
		default:
			log.Debug("Ignoring turn timeout in terminal state")
		}

	case stream.EventRoundScored:
		switch m.state {
		case Unjoined:
			m.resyncEntry = true
		case Rejected:
		default:
			m.refresh(snapshot.Scores)
		}

	case stream.EventGameEnded:
		if m.state == Rejected {
			log.Debug("Ignoring game end for rejected view")
			return
		}
		m.toEnded("game ended", ev.Results)

	case stream.EventSessionsChanged, stream.EventCardSelected, stream.EventJoinRoom:
		// Informational for this view.

	default:
		log.Warn("Unknown push event")
	}
}

// turnDuration is the duration an event restarts the countdown with. Events
// without one fall back to the session's configured duration.
func (m *Machine) turnDuration(ev stream.Event) int {
	if d, ok := ev.Duration(); ok {
		return d
	}
	return m.session.MoveDuration.Int()
}
