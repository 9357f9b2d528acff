// Package session keeps one player's view of a shared game session consistent
// with the server.
//
// A Machine owns the view. It reconciles pushed events with fetched snapshots
// on a single loop goroutine, drives the turn countdown and publishes an
// immutable View after every change. Nothing in a View is ever mutated after
// it is published.
package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAMember means the caller does not belong to a session that can no
	// longer be joined.
	ErrNotAMember = errors.New("not a member of this session")
	// ErrValidation is returned for commands refused locally, before any
	// request is made.
	ErrValidation = errors.New("validation failure")
	// ErrProtocol marks server data that contradicts the local lifecycle.
	ErrProtocol = errors.New("protocol error")
	// ErrStopped is returned by commands issued after Run has returned.
	ErrStopped = errors.New("session view stopped")
)

// State is the local lifecycle phase of the view.
type State int

const (
	Unjoined State = iota
	Pending
	Ongoing
	Ended
	Rejected
)

func (s State) String() string {
	switch s {
	case Unjoined:
		return "unjoined"
	case Pending:
		return "pending"
	case Ongoing:
		return "ongoing"
	case Ended:
		return "ended"
	case Rejected:
		return "rejected"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further lifecycle transition is possible.
func (s State) Terminal() bool {
	return s == Ended || s == Rejected
}
