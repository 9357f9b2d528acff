package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jason-s-yu/sushi/internal/models"
	"github.com/jason-s-yu/sushi/internal/stream"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

// fakeAPI is an in-memory game service. Every field is guarded by mu.
type fakeAPI struct {
	mu      sync.Mutex
	session models.Session
	member  bool
	hand    []*models.CardNode
	table   []models.TableSeat
	scores  models.ScoreSheet

	errs  map[string]error
	calls map[string]int
	// holds blocks the nth call of a method until the channel is closed.
	holds map[string]map[int]chan struct{}

	submitted []int64
}

func newFakeAPI(status models.SessionStatus, member bool) *fakeAPI {
	return &fakeAPI{
		session: models.Session{ID: 1, Name: "lunch", MoveDuration: 30, RoundNumber: 1, Status: status},
		member:  member,
		errs:    make(map[string]error),
		calls:   make(map[string]int),
		holds:   make(map[string]map[int]chan struct{}),
	}
}

func (f *fakeAPI) enter(ctx context.Context, method string) error {
	f.mu.Lock()
	f.calls[method]++
	n := f.calls[method]
	hold := f.holds[method][n]
	err := f.errs[method]
	f.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeAPI) hold(method string, n int) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.holds[method] == nil {
		f.holds[method] = make(map[int]chan struct{})
	}
	ch := make(chan struct{})
	f.holds[method][n] = ch
	return ch
}

func (f *fakeAPI) set(fn func(f *fakeAPI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeAPI) fail(method string, err error) {
	f.set(func(f *fakeAPI) { f.errs[method] = err })
}

func (f *fakeAPI) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeAPI) GetSession(ctx context.Context, id int64) (models.Session, error) {
	f.mu.Lock()
	s := f.session
	f.mu.Unlock()
	if err := f.enter(ctx, "GetSession"); err != nil {
		return models.Session{}, err
	}
	return s, nil
}

func (f *fakeAPI) CheckMembership(ctx context.Context, id int64) (bool, error) {
	f.mu.Lock()
	ok := f.member
	f.mu.Unlock()
	if err := f.enter(ctx, "CheckMembership"); err != nil {
		return false, err
	}
	return ok, nil
}

func (f *fakeAPI) GetHand(ctx context.Context, id int64) ([]*models.CardNode, error) {
	f.mu.Lock()
	h := f.hand
	f.mu.Unlock()
	if err := f.enter(ctx, "GetHand"); err != nil {
		return nil, err
	}
	return h, nil
}

func (f *fakeAPI) GetTable(ctx context.Context, id int64) ([]models.TableSeat, error) {
	f.mu.Lock()
	t := f.table
	f.mu.Unlock()
	if err := f.enter(ctx, "GetTable"); err != nil {
		return nil, err
	}
	return t, nil
}

func (f *fakeAPI) GetScores(ctx context.Context, id int64) (models.ScoreSheet, error) {
	f.mu.Lock()
	s := f.scores
	f.mu.Unlock()
	if err := f.enter(ctx, "GetScores"); err != nil {
		return nil, err
	}
	return s, nil
}

func (f *fakeAPI) JoinSession(ctx context.Context, id int64) error {
	if err := f.enter(ctx, "JoinSession"); err != nil {
		return err
	}
	f.set(func(f *fakeAPI) { f.member = true })
	return nil
}

func (f *fakeAPI) LeaveSession(ctx context.Context, id int64) error {
	return f.enter(ctx, "LeaveSession")
}

func (f *fakeAPI) SubmitCard(ctx context.Context, id, cardID int64) error {
	if err := f.enter(ctx, "SubmitCard"); err != nil {
		return err
	}
	f.set(func(f *fakeAPI) { f.submitted = append(f.submitted, cardID) })
	return nil
}

// fakePush hands out fakeSubs and keeps an ordered log of opens and closes
// across every machine using it.
type fakePush struct {
	mu   sync.Mutex
	subs []*fakeSub
	log  []string
	errs []error
}

func (p *fakePush) Subscribe(ctx context.Context, sessionID int64, token string) (stream.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		return nil, err
	}
	s := &fakeSub{
		push:      p,
		sessionID: sessionID,
		events:    make(chan stream.Event, 16),
		done:      make(chan struct{}),
	}
	p.subs = append(p.subs, s)
	p.log = append(p.log, fmt.Sprintf("open %d", sessionID))
	return s, nil
}

func (p *fakePush) failNext(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs = append(p.errs, err)
}

func (p *fakePush) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

func (p *fakePush) latest() *fakeSub {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.subs) == 0 {
		return nil
	}
	return p.subs[len(p.subs)-1]
}

func (p *fakePush) history() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.log...)
}

type fakeSub struct {
	push      *fakePush
	sessionID int64
	events    chan stream.Event
	done      chan struct{}

	mu      sync.Mutex
	err     error
	ended   bool
	closed  bool
	emitted []stream.Event
}

func (s *fakeSub) Events() <-chan stream.Event { return s.events }

func (s *fakeSub) Emit(ctx context.Context, ev stream.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stream.ErrClosed
	}
	s.emitted = append(s.emitted, ev)
	return nil
}

func (s *fakeSub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// drop simulates the transport losing the subscription.
func (s *fakeSub) drop(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.err = err
	s.ended = true
	close(s.events)
}

func (s *fakeSub) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if !s.ended {
		s.ended = true
		close(s.events)
	}
	close(s.done)
	s.mu.Unlock()

	s.push.mu.Lock()
	s.push.log = append(s.push.log, fmt.Sprintf("close %d", s.sessionID))
	s.push.mu.Unlock()
	return nil
}

func (s *fakeSub) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSub) sent() []stream.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]stream.Event(nil), s.emitted...)
}

// harness runs one Machine against the fakes.
type harness struct {
	t      *testing.T
	api    *fakeAPI
	push   *fakePush
	clock  *clockwork.FakeClock
	hook   *test.Hook
	m      *Machine
	errc   chan error
	cancel context.CancelFunc
}

// start runs a machine for session 1. Options run before the machine starts.
func start(t *testing.T, api *fakeAPI, opts ...func(h *harness)) *harness {
	t.Helper()
	logger, hook := test.NewNullLogger()
	h := &harness{
		t:     t,
		api:   api,
		push:  &fakePush{},
		clock: clockwork.NewFakeClock(),
		hook:  hook,
		errc:  make(chan error, 1),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.m = New(Config{
		SessionID:      1,
		Token:          "tok",
		API:            api,
		Push:           h.push,
		Clock:          h.clock,
		Logger:         logger,
		RequestTimeout: time.Second,
		ReconnectWait:  3 * time.Second,
	})
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.errc <- h.m.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.m.Done():
		case <-time.After(2 * time.Second):
			t.Error("machine did not stop")
		}
	})
	return h
}

func (h *harness) waitFor(msg string, cond func(v View) bool) View {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return cond(h.m.View()) }, 2*time.Second, 2*time.Millisecond, msg)
	return h.m.View()
}

func (h *harness) waitState(s State) View {
	h.t.Helper()
	return h.waitFor("state "+s.String(), func(v View) bool { return v.State == s })
}

// connected waits for the push subscription and returns it.
func (h *harness) connected() *fakeSub {
	h.t.Helper()
	h.waitFor("connected", func(v View) bool { return v.Connected })
	return h.push.latest()
}

func (h *harness) send(ev stream.Event) {
	h.t.Helper()
	ev.SessionID = models.FlexInt(h.m.SessionID())
	select {
	case h.connected().events <- ev:
	case <-time.After(time.Second):
		h.t.Fatal("event not accepted")
	}
}

func (h *harness) waitCalls(method string, n int) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return h.api.count(method) >= n }, 2*time.Second, 2*time.Millisecond,
		"%s called %d times", method, n)
}

func (h *harness) result() error {
	h.t.Helper()
	select {
	case err := <-h.errc:
		return err
	case <-time.After(2 * time.Second):
		h.t.Fatal("Run did not return")
		return nil
	}
}

func card(id int64, typ string) *models.CardNode {
	return &models.CardNode{Card: models.Card{PlayerCardSessionCardID: models.FlexInt(id), Type: typ}}
}

func flexPtr(n int64) *models.FlexInt {
	f := models.FlexInt(n)
	return &f
}
