package session

import (
	"context"
	"fmt"
	"time"

	"github.com/jason-s-yu/sushi/internal/api"
	"github.com/jason-s-yu/sushi/internal/models"
	"github.com/jason-s-yu/sushi/internal/snapshot"
	"github.com/jason-s-yu/sushi/internal/stream"
)

// call runs fn on the loop and waits for its result. It fails with ErrStopped
// once Run has returned.
func (m *Machine) call(fn func() error) error {
	errc := make(chan error, 1)
	select {
	case m.cmds <- func() { errc <- fn() }:
	case <-m.done:
		return ErrStopped
	}
	select {
	case err := <-errc:
		return err
	case <-m.done:
		select {
		case err := <-errc:
			return err
		default:
			return ErrStopped
		}
	}
}

// Select marks a hand card for submission. Selecting the current selection
// again clears it.
func (m *Machine) Select(cardID int64) error {
	return m.call(func() error {
		if !m.submitEnabled() {
			return fmt.Errorf("%w: cannot select a card while %s", ErrValidation, m.describeTurn())
		}
		if _, ok := (View{Hand: m.hand, Selected: cardID}).SelectedStack(); !ok {
			return fmt.Errorf("%w: card %d is not in hand", ErrValidation, cardID)
		}
		if m.selected == cardID {
			m.selected = 0
		} else {
			m.selected = cardID
		}
		return nil
	})
}

// Submit plays the selected card. Validation failures are returned
// immediately; the outcome of the request itself is reported on the view.
func (m *Machine) Submit() error {
	return m.call(func() error {
		switch {
		case !m.submitEnabled():
			return fmt.Errorf("%w: cannot submit while %s", ErrValidation, m.describeTurn())
		case m.selected == 0:
			return fmt.Errorf("%w: no card selected", ErrValidation)
		}
		m.submitting = true
		m.clear("submit")
		card, turn, id := m.selected, m.turn, m.cfg.SessionID
		sub, token := m.sub, m.cfg.Token
		m.spawn(func(ctx context.Context) func() {
			ctx, cancel := context.WithTimeout(ctx, m.fetchTimeout())
			defer cancel()
			err := m.cfg.API.SubmitCard(ctx, id, card)
			if err == nil && sub != nil {
				note := stream.Event{
					Type:          stream.EventCardSelected,
					SessionID:     models.FlexInt(id),
					Token:         token,
					SessionCardID: models.FlexInt(card),
				}
				if eerr := sub.Emit(ctx, note); eerr != nil {
					m.log.WithError(eerr).Warn("Could not notify co-players of submission")
				}
			}
			return func() { m.submittedCard(card, turn, err) }
		})
		return nil
	})
}

func (m *Machine) submittedCard(card int64, turn uint64, err error) {
	if turn != m.turn {
		m.log.WithField("card_id", card).Debug("Discarding submit result from an earlier turn")
		return
	}
	m.submitting = false
	if err != nil {
		m.fail("submit", err)
		return
	}
	m.submitted = true
	m.log.WithField("card_id", card).Info("Card submitted")
	m.refresh(snapshot.Hand, snapshot.Table)
}

// Retry repeats whatever failed: entry, join, or any slice fetch.
func (m *Machine) Retry() error {
	return m.call(func() error {
		if m.state == Unjoined {
			m.clear("meta")
			m.clear("join")
			if m.joining || m.entering {
				return nil
			}
			m.enter()
			return nil
		}
		var slices []snapshot.Slice
		for _, s := range []snapshot.Slice{snapshot.Hand, snapshot.Table, snapshot.Scores} {
			if m.failed[s] {
				slices = append(slices, s)
				m.clear(s.String())
			}
		}
		if m.failed[snapshot.Meta] {
			m.clear("meta")
			m.refreshMeta(true)
		}
		m.refresh(slices...)
		m.clear("submit")
		m.clear("leave")
		if m.sub == nil && !m.dialing {
			if m.reconnect != nil {
				m.reconnect.Stop()
				m.reconnect, m.reconnectC = nil, nil
			}
			m.subscribe(true)
		}
		return nil
	})
}

// Leave exits the view. A member of a live session is removed on the server
// first; if that fails the view stays open with a banner.
func (m *Machine) Leave() error {
	return m.call(func() error {
		if m.leaving {
			return nil
		}
		if m.state == Unjoined || m.state.Terminal() {
			m.stop = true
			return nil
		}
		m.leaving = true
		m.clear("leave")
		id := m.cfg.SessionID
		m.spawn(func(ctx context.Context) func() {
			ctx, cancel := context.WithTimeout(ctx, m.fetchTimeout())
			defer cancel()
			err := m.cfg.API.LeaveSession(ctx, id)
			return func() { m.left(err) }
		})
		return nil
	})
}

func (m *Machine) left(err error) {
	m.leaving = false
	if err != nil {
		m.fail("leave", err)
		return
	}
	m.stop = true
}

func (m *Machine) describeTurn() string {
	switch {
	case m.state != Ongoing:
		return m.state.String()
	case m.submitting:
		return "a submission is in flight"
	case m.submitted:
		return "already submitted this turn"
	}
	return "ongoing"
}

func (m *Machine) fetchTimeout() time.Duration {
	if m.cfg.RequestTimeout > 0 {
		return m.cfg.RequestTimeout
	}
	return api.DefaultTimeout
}
