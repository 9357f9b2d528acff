package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jason-s-yu/sushi/internal/api"
	"github.com/jason-s-yu/sushi/internal/auth"
	"github.com/jason-s-yu/sushi/internal/countdown"
	"github.com/jason-s-yu/sushi/internal/models"
	"github.com/jason-s-yu/sushi/internal/snapshot"
	"github.com/jason-s-yu/sushi/internal/stream"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultReconnectWait is the pause before reopening a dropped push channel.
	DefaultReconnectWait = 2 * time.Second

	seenCapacity = 256
)

// API is the request/response surface the view needs. *api.Client satisfies it.
type API interface {
	snapshot.Backend
	JoinSession(ctx context.Context, id int64) error
	LeaveSession(ctx context.Context, id int64) error
	SubmitCard(ctx context.Context, id, cardID int64) error
}

// Config wires a Machine to its collaborators.
type Config struct {
	SessionID int64
	Token     string
	API       API
	Push      stream.Subscriber

	Clock          clockwork.Clock
	Logger         *logrus.Logger
	RequestTimeout time.Duration
	ReconnectWait  time.Duration

	// OnChange, if set, is called on the loop goroutine with every published
	// view. It must not block and must not call back into the Machine.
	OnChange func(View)
}

// Machine owns one session view. Create it with New, drive it with Run, and
// interact with it through the command methods from any goroutine.
type Machine struct {
	cfg   Config
	fetch *snapshot.Fetcher
	clock clockwork.Clock
	log   *logrus.Entry

	cmds    chan func()
	applies chan func()
	done    chan struct{}
	started atomic.Bool
	view    atomic.Pointer[View]

	// Everything below is owned by the loop goroutine.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	state        State
	session      models.Session
	participants []models.Participant
	round        int
	hand         []snapshot.HandStack
	table        []snapshot.Seat
	scores       models.ScoreSheet
	results      []byte
	selected     int64
	submitting   bool
	submitted    bool
	turn         uint64
	timer        *countdown.Timer

	gen         map[snapshot.Slice]uint64
	failed      map[snapshot.Slice]bool
	entering    bool
	joining     bool
	leaving     bool
	resyncEntry bool
	seen        *seenEvents

	// highest server round carried by a round_started event
	lastRoundStart int

	sub        stream.Subscription
	events     <-chan stream.Event
	dialing    bool
	refused    bool
	reconnect  clockwork.Timer
	reconnectC <-chan time.Time
	connected  bool

	problems map[string]string
	termErr  error
	fatal    error
	stop     bool
}

// New returns a Machine for cfg.SessionID. It does nothing until Run is called.
func New(cfg Config) *Machine {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = DefaultReconnectWait
	}
	m := &Machine{
		cfg:      cfg,
		fetch:    snapshot.New(cfg.API, cfg.RequestTimeout, cfg.Logger),
		clock:    cfg.Clock,
		log:      playerLog(cfg),
		cmds:     make(chan func()),
		applies:  make(chan func()),
		done:     make(chan struct{}),
		round:    1,
		timer:    countdown.New(cfg.Clock),
		gen:      make(map[snapshot.Slice]uint64),
		failed:   make(map[snapshot.Slice]bool),
		seen:     newSeenEvents(seenCapacity),
		problems: make(map[string]string),
	}
	m.view.Store(&View{SessionID: cfg.SessionID, State: Unjoined, Round: m.round})
	return m
}

// playerLog tags every line with the session and, for JWT credentials, the
// player the token was issued to.
func playerLog(cfg Config) *logrus.Entry {
	log := cfg.Logger.WithField("session_id", cfg.SessionID)
	if sub, err := auth.Subject(cfg.Token); err == nil {
		log = log.WithField("player", sub)
	}
	return log
}

// SessionID returns the id of the session this machine views.
func (m *Machine) SessionID() int64 { return m.cfg.SessionID }

// View returns the most recently published view.
func (m *Machine) View() View { return *m.view.Load() }

// Done is closed once Run has returned and every resource is released.
func (m *Machine) Done() <-chan struct{} { return m.done }

// Run enters the session and serves it until ctx is canceled, the view is
// left, or the credential is refused. It returns nil on cancel or leave and an
// error wrapping api.ErrAuth when re-authentication is needed. By the time Run
// returns the push subscription is closed and the countdown stopped.
func (m *Machine) Run(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return errors.New("session machine already running")
	}
	defer close(m.done)

	m.ctx, m.cancel = context.WithCancel(ctx)
	defer m.teardown()

	m.log.Info("Entering session view")
	m.subscribe(false)
	m.enter()
	m.publish()

	for {
		select {
		case <-m.ctx.Done():
			m.log.Debug("Session view canceled")
			return nil
		case ev, ok := <-m.events:
			if !ok {
				m.subscriptionLost()
			} else {
				m.handleEvent(ev)
			}
		case apply := <-m.applies:
			apply()
		case fn := <-m.cmds:
			fn()
		case <-m.timer.C():
			m.timer.Tick()
		case <-m.reconnectC:
			m.reconnectC = nil
			m.reconnect = nil
			m.subscribe(true)
		}

		if m.fatal != nil {
			m.termErr = m.fatal
			m.publish()
			m.log.WithError(m.fatal).Error("Session view stopped: credential refused")
			return m.fatal
		}
		m.publish()
		if m.stop {
			m.log.Info("Left session view")
			return nil
		}
	}
}

// teardown releases every resource. In-flight calls are canceled and waited
// for, so none of them can touch the view or leak a subscription afterwards.
func (m *Machine) teardown() {
	m.cancel()
	m.timer.Stop()
	if m.reconnect != nil {
		m.reconnect.Stop()
	}
	m.wg.Wait()
	if m.sub != nil {
		if err := m.sub.Close(); err != nil {
			m.log.WithError(err).Debug("Closing push subscription")
		}
		m.sub = nil
		m.events = nil
	}
	m.connected = false
	v := m.buildView()
	m.view.Store(&v)
}

// spawn runs work off the loop. The closure it returns is applied on the loop,
// unless the view has been torn down by then.
func (m *Machine) spawn(work func(ctx context.Context) func()) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		apply := work(m.ctx)
		if apply == nil {
			return
		}
		select {
		case m.applies <- apply:
		case <-m.ctx.Done():
		}
	}()
}

func (m *Machine) publish() {
	v := m.buildView()
	m.view.Store(&v)
	if m.cfg.OnChange != nil {
		m.cfg.OnChange(v)
	}
}

var bannerOrder = []string{"connection", "join", "meta", "hand", "table", "scores", "submit", "leave"}

func (m *Machine) buildView() View {
	v := View{
		SessionID:    m.cfg.SessionID,
		State:        m.state,
		Session:      m.session,
		Participants: m.participants,
		Round:        m.round,
		Remaining:    m.timer.Remaining(),
		Hand:         m.hand,
		Selected:     m.selected,
		Table:        m.table,
		Scores:       m.scores,
		Results:      m.results,
		Submitting:   m.submitting,
		Submitted:    m.submitted,
		Connected:    m.connected,
		Err:          m.termErr,
	}
	v.CanSubmit = m.submitEnabled() && m.selected != 0
	var msgs []string
	for _, k := range bannerOrder {
		if msg, ok := m.problems[k]; ok {
			msgs = append(msgs, msg)
		}
	}
	v.Banner = strings.Join(msgs, "; ")
	return v
}

func (m *Machine) submitEnabled() bool {
	return m.state == Ongoing && !m.submitting && !m.submitted
}

func (m *Machine) transition(to State, reason string) {
	if m.state == to {
		return
	}
	m.log.WithFields(logrus.Fields{
		"from":  m.state.String(),
		"state": to.String(),
	}).Infof("Session state changed: %s", reason)
	m.state = to
}

// fail turns an error from a call into view state. Auth failures end the view;
// anything else becomes a banner.
func (m *Machine) fail(concern string, err error) {
	switch {
	case errors.Is(err, context.Canceled):
		return
	case errors.Is(err, api.ErrAuth):
		if m.fatal == nil {
			m.fatal = err
		}
		return
	}
	m.problems[concern] = fmt.Sprintf("%s failed: %v (retry available)", concern, err)
}

func (m *Machine) clear(concern string) {
	delete(m.problems, concern)
}

// --- push subscription ---

func (m *Machine) subscribe(resync bool) {
	if m.dialing || m.refused || m.sub != nil || m.cfg.Push == nil {
		return
	}
	m.dialing = true
	push, id, token := m.cfg.Push, m.cfg.SessionID, m.cfg.Token
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		sub, err := push.Subscribe(m.ctx, id, token)
		apply := func() { m.subscribed(sub, err, resync) }
		select {
		case m.applies <- apply:
		case <-m.ctx.Done():
			if sub != nil {
				sub.Close()
			}
		}
	}()
}

func (m *Machine) subscribed(sub stream.Subscription, err error, resync bool) {
	m.dialing = false
	if err != nil {
		if m.pushRefused(err) {
			return
		}
		m.fail("connection", err)
		if m.fatal == nil {
			m.log.WithError(err).Warn("Push channel unavailable; will retry")
			m.scheduleReconnect()
		}
		return
	}
	m.sub = sub
	m.events = sub.Events()
	m.connected = true
	m.clear("connection")
	if resync {
		m.log.Info("Push channel restored; resyncing")
		m.resyncAll()
	}
}

func (m *Machine) subscriptionLost() {
	err := m.sub.Err()
	if cerr := m.sub.Close(); cerr != nil {
		m.log.WithError(cerr).Debug("Closing lost push subscription")
	}
	m.sub = nil
	m.events = nil
	m.connected = false
	if err == nil {
		err = stream.ErrClosed
	}
	if m.pushRefused(err) {
		return
	}
	m.fail("connection", err)
	if m.fatal != nil {
		return
	}
	m.log.WithError(err).Warn("Push channel lost; reconnecting")
	m.scheduleReconnect()
}

// pushRefused handles a push channel that will never serve this session. The
// view ends as Rejected, unless it already finished, and is never redialed.
func (m *Machine) pushRefused(err error) bool {
	if !errors.Is(err, stream.ErrRefused) {
		return false
	}
	m.refused = true
	m.problems["connection"] = fmt.Sprintf("connection failed: %v", err)
	m.log.WithError(err).Error("Push channel refused the session; not reconnecting")
	if !m.state.Terminal() {
		m.termErr = err
		m.timer.Reset(0)
		m.selected = 0
		m.transition(Rejected, "push channel refused the session")
	}
	return true
}

func (m *Machine) scheduleReconnect() {
	if m.reconnect != nil {
		return
	}
	m.reconnect = m.clock.NewTimer(m.cfg.ReconnectWait)
	m.reconnectC = m.reconnect.Chan()
}

// resyncAll refetches every slice once the push channel is back, since
// events may have been missed while it was down.
func (m *Machine) resyncAll() {
	switch m.state {
	case Unjoined:
		m.resyncEntry = true
	case Rejected:
	default:
		m.refreshMeta(true)
		m.refresh(snapshot.Hand, snapshot.Table, snapshot.Scores)
	}
}

// --- snapshot fetches ---

// enter starts the entry sequence: metadata and membership, then a decision.
func (m *Machine) enter() {
	if m.entering || m.state != Unjoined {
		return
	}
	m.entering = true
	m.gen[snapshot.Meta]++
	gen := m.gen[snapshot.Meta]
	m.spawn(func(ctx context.Context) func() {
		r := m.fetch.Fetch(ctx, m.cfg.SessionID, snapshot.Meta)
		return func() { m.entered(r, gen) }
	})
}

func (m *Machine) entered(r snapshot.Result, gen uint64) {
	m.entering = false
	if gen != m.gen[snapshot.Meta] {
		m.log.Debug("Discarding stale entry metadata")
		return
	}
	if r.Err != nil {
		m.fail("meta", r.Err)
		return
	}
	m.clear("meta")
	delete(m.failed, snapshot.Meta)
	m.session = r.Meta.Session
	if m.state != Unjoined {
		// A game_end event finished the view while entry was in flight.
		return
	}

	status := r.Meta.Session.Status
	switch {
	case !r.Meta.Member && status == models.StatusPending:
		m.join()
		return
	case !r.Meta.Member:
		m.termErr = ErrNotAMember
		m.transition(Rejected, fmt.Sprintf("not a member of a %s session", status))
		return
	}
	m.reconcile(r.Meta.Session, true)
	m.afterEntry()
}

func (m *Machine) afterEntry() {
	if m.resyncEntry {
		m.resyncEntry = false
		m.log.Debug("Lifecycle events arrived during entry; resyncing")
		m.refreshMeta(true)
	}
}

func (m *Machine) join() {
	if m.joining {
		return
	}
	m.joining = true
	id := m.cfg.SessionID
	m.spawn(func(ctx context.Context) func() {
		err := m.cfg.API.JoinSession(ctx, id)
		return func() { m.joined(err) }
	})
}

func (m *Machine) joined(err error) {
	m.joining = false
	if m.state != Unjoined {
		return
	}
	if err != nil {
		if errors.Is(err, api.ErrRejected) {
			m.termErr = err
			m.transition(Rejected, "join refused")
			return
		}
		m.fail("join", err)
		return
	}
	m.clear("join")
	m.transition(Pending, "joined")
	m.afterEntry()
}

// refreshMeta refetches metadata. A resync fetch may also restore the
// countdown from the server's remaining time.
func (m *Machine) refreshMeta(resync bool) {
	if m.state == Unjoined {
		m.resyncEntry = true
		return
	}
	m.gen[snapshot.Meta]++
	gen := m.gen[snapshot.Meta]
	m.spawn(func(ctx context.Context) func() {
		r := m.fetch.Fetch(ctx, m.cfg.SessionID, snapshot.Meta)
		return func() { m.applyMeta(r, gen, resync) }
	})
}

// refresh refetches the given non-metadata slices concurrently.
func (m *Machine) refresh(slices ...snapshot.Slice) {
	if len(slices) == 0 {
		return
	}
	gens := make([]uint64, len(slices))
	for i, s := range slices {
		m.gen[s]++
		gens[i] = m.gen[s]
	}
	m.spawn(func(ctx context.Context) func() {
		results := m.fetch.FetchMany(ctx, m.cfg.SessionID, slices...)
		return func() {
			for i, r := range results {
				m.applySlice(r, gens[i])
			}
		}
	})
}

func (m *Machine) applySlice(r snapshot.Result, gen uint64) {
	if gen != m.gen[r.Slice] {
		m.log.WithField("slice", r.Slice.String()).Debug("Discarding stale snapshot")
		return
	}
	if r.Err != nil {
		m.failed[r.Slice] = true
		m.fail(r.Slice.String(), r.Err)
		return
	}
	delete(m.failed, r.Slice)
	m.clear(r.Slice.String())
	switch r.Slice {
	case snapshot.Hand:
		m.hand = r.Hand
		if _, ok := (View{Hand: m.hand, Selected: m.selected}).SelectedStack(); !ok {
			m.selected = 0
		}
	case snapshot.Table:
		m.table = r.Table
	case snapshot.Scores:
		m.scores = r.Scores
	}
}

func (m *Machine) applyMeta(r snapshot.Result, gen uint64, resync bool) {
	if gen != m.gen[snapshot.Meta] {
		m.log.Debug("Discarding stale metadata")
		return
	}
	if r.Err != nil {
		m.failed[snapshot.Meta] = true
		m.fail("meta", r.Err)
		return
	}
	delete(m.failed, snapshot.Meta)
	m.clear("meta")
	m.session = r.Meta.Session
	m.reconcile(r.Meta.Session, resync)
}

// reconcile moves the lifecycle forward to match server metadata. It never
// moves it backwards.
func (m *Machine) reconcile(s models.Session, resync bool) {
	if r := s.RoundNumber.Int(); r > 0 && m.state != Rejected {
		m.round = r
	}
	switch s.Status {
	case models.StatusPending:
		switch m.state {
		case Unjoined:
			m.transition(Pending, "session is pending")
		case Ongoing:
			m.log.WithError(ErrProtocol).Warn("Metadata reports pending while ongoing; keeping local state")
		}
	case models.StatusOngoing:
		switch m.state {
		case Unjoined, Pending:
			m.transition(Ongoing, "session is ongoing")
			// The snapshot already opened this round; a late round_started for
			// it is a replay.
			if s.RoundNumber.Int() > 0 {
				m.lastRoundStart = m.round
			}
			m.timer.Reset(s.RemainingTime.Int())
			m.newTurn()
			m.refresh(snapshot.Hand, snapshot.Table, snapshot.Scores)
		case Ongoing:
			if resync {
				m.timer.Reset(s.RemainingTime.Int())
			}
		}
	case models.StatusEnded:
		switch m.state {
		case Unjoined, Pending, Ongoing:
			m.toEnded("session has ended", nil)
		}
	default:
		m.log.WithError(ErrProtocol).Warnf("Unknown session status %q", s.Status)
	}
}

func (m *Machine) toEnded(reason string, results []byte) {
	if results != nil {
		m.results = results
	}
	if m.state == Ended {
		return
	}
	m.transition(Ended, reason)
	m.timer.Reset(0)
	m.selected = 0
	m.refresh(snapshot.Hand, snapshot.Table, snapshot.Scores)
}

// newTurn re-enables submission for a fresh turn.
func (m *Machine) newTurn() {
	m.turn++
	m.selected = 0
	m.submitted = false
	m.submitting = false
	m.clear("submit")
}
