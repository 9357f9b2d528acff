package session

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Navigator moves one player between session views. At most one view is live
// at a time: the previous view's Run has returned, and its push subscription
// is closed, before the next view starts entering.
type Navigator struct {
	factory func(sessionID int64) *Machine
	logger  *logrus.Logger

	mu      sync.Mutex
	current *Machine
	cancel  context.CancelFunc
	errc    chan error
}

// NewNavigator returns a navigator that builds machines with factory.
func NewNavigator(factory func(sessionID int64) *Machine, logger *logrus.Logger) *Navigator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Navigator{factory: factory, logger: logger}
}

// Open tears down the current view, if any, and starts a view for sessionID.
// The returned machine is already running; its Run result is delivered on
// Wait.
func (n *Navigator) Open(ctx context.Context, sessionID int64) *Machine {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.closeLocked(); err != nil {
		n.logger.WithError(err).Warn("Previous session view had stopped with an error")
	}

	m := n.factory(sessionID)
	runCtx, cancel := context.WithCancel(ctx)
	errc := make(chan error, 1)
	go func() { errc <- m.Run(runCtx) }()

	n.current, n.cancel, n.errc = m, cancel, errc
	n.logger.WithField("session_id", sessionID).Debug("Opened session view")
	return m
}

// Current returns the live machine, or nil.
func (n *Navigator) Current() *Machine {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

// Wait returns the current view's Run result once it stops on its own, such
// as after Leave or an auth failure.
func (n *Navigator) Wait() <-chan error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.errc
}

// Close tears down the current view and waits for it to release everything.
func (n *Navigator) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closeLocked()
}

func (n *Navigator) closeLocked() error {
	if n.current == nil {
		return nil
	}
	n.cancel()
	<-n.current.Done()
	var err error
	select {
	case err = <-n.errc:
	default:
	}
	n.current, n.cancel, n.errc = nil, nil, nil
	return err
}
