// Package snapshot queries the authoritative session state in independent
// slices. Each slice replaces its local copy wholesale, and a failure in one
// slice leaves the others untouched.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jason-s-yu/sushi/internal/api"
	"github.com/jason-s-yu/sushi/internal/models"
	"github.com/jason-s-yu/sushi/internal/stack"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Slice identifies one independently fetched part of the session state.
type Slice int

const (
	Meta Slice = iota
	Hand
	Table
	Scores
)

// All lists every slice in fetch order.
var All = []Slice{Meta, Hand, Table, Scores}

func (s Slice) String() string {
	switch s {
	case Meta:
		return "meta"
	case Hand:
		return "hand"
	case Table:
		return "table"
	case Scores:
		return "scores"
	}
	return fmt.Sprintf("slice(%d)", int(s))
}

// Backend is the request/response surface the fetcher reads. *api.Client
// satisfies it.
type Backend interface {
	GetSession(ctx context.Context, id int64) (models.Session, error)
	CheckMembership(ctx context.Context, id int64) (bool, error)
	GetHand(ctx context.Context, id int64) ([]*models.CardNode, error)
	GetTable(ctx context.Context, id int64) ([]models.TableSeat, error)
	GetScores(ctx context.Context, id int64) (models.ScoreSheet, error)
}

// Metadata is the session record together with the caller's membership.
type Metadata struct {
	Session models.Session
	Member  bool
}

// HandStack is one selectable hand entry. CardID is the id submitted when the
// entry is played.
type HandStack struct {
	CardID int64
	Cards  stack.Display
}

// Seat is one participant's played stacks, each bottom to top.
type Seat struct {
	PlayerID int64
	Username string
	Stacks   []stack.Display
}

// Result carries one slice. Only the field matching Slice is set.
type Result struct {
	Slice  Slice
	Meta   Metadata
	Hand   []HandStack
	Table  []Seat
	Scores models.ScoreSheet
	Err    error
}

// Fetcher runs slice queries under a per-request timeout.
type Fetcher struct {
	backend Backend
	timeout time.Duration
	logger  *logrus.Logger
}

// New returns a fetcher over backend. A zero timeout uses api.DefaultTimeout.
func New(backend Backend, timeout time.Duration, logger *logrus.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = api.DefaultTimeout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Fetcher{backend: backend, timeout: timeout, logger: logger}
}

// Metadata fetches the session record and the membership check concurrently.
// Both must succeed.
func (f *Fetcher) Metadata(ctx context.Context, id int64) (Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var md Metadata
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := f.backend.GetSession(gctx, id)
		if err != nil {
			return fmt.Errorf("get session %d: %w", id, err)
		}
		md.Session = s
		return nil
	})
	g.Go(func() error {
		ok, err := f.backend.CheckMembership(gctx, id)
		if err != nil {
			return fmt.Errorf("check membership %d: %w", id, err)
		}
		md.Member = ok
		return nil
	})
	if err := g.Wait(); err != nil {
		return Metadata{}, timeoutAsNetwork(err)
	}
	return md, nil
}

// Hand fetches the caller's hand and converts each chain for display.
func (f *Fetcher) Hand(ctx context.Context, id int64) ([]HandStack, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	tops, err := f.backend.GetHand(ctx, id)
	if err != nil {
		return nil, timeoutAsNetwork(fmt.Errorf("get hand %d: %w", id, err))
	}
	displays := stack.ReconstructAll(tops, f.malformed(id, Hand, 0))
	out := make([]HandStack, 0, len(tops))
	for i, top := range tops {
		if top == nil {
			continue
		}
		cardID := top.PlayerCardSessionCardID.Int64()
		if cardID == 0 {
			cardID = top.Key()
		}
		out = append(out, HandStack{CardID: cardID, Cards: displays[i]})
	}
	return out, nil
}

// Table fetches every participant's played stacks.
func (f *Fetcher) Table(ctx context.Context, id int64) ([]Seat, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	seats, err := f.backend.GetTable(ctx, id)
	if err != nil {
		return nil, timeoutAsNetwork(fmt.Errorf("get table %d: %w", id, err))
	}
	out := make([]Seat, len(seats))
	for i, s := range seats {
		out[i] = Seat{
			PlayerID: s.PlayerID.Int64(),
			Username: s.Username,
			Stacks:   stack.ReconstructAll(s.Cards, f.malformed(id, Table, s.PlayerID.Int64())),
		}
	}
	return out, nil
}

// Scores fetches the cumulative score sheet.
func (f *Fetcher) Scores(ctx context.Context, id int64) (models.ScoreSheet, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	sheet, err := f.backend.GetScores(ctx, id)
	if err != nil {
		return nil, timeoutAsNetwork(fmt.Errorf("get scores %d: %w", id, err))
	}
	return sheet, nil
}

// Fetch runs a single slice query.
func (f *Fetcher) Fetch(ctx context.Context, id int64, s Slice) Result {
	r := Result{Slice: s}
	switch s {
	case Meta:
		r.Meta, r.Err = f.Metadata(ctx, id)
	case Hand:
		r.Hand, r.Err = f.Hand(ctx, id)
	case Table:
		r.Table, r.Err = f.Table(ctx, id)
	case Scores:
		r.Scores, r.Err = f.Scores(ctx, id)
	default:
		r.Err = fmt.Errorf("unknown slice %d", int(s))
	}
	if r.Err != nil && !errors.Is(r.Err, context.Canceled) {
		f.logger.WithFields(logrus.Fields{
			"session_id": id,
			"slice":      s.String(),
		}).WithError(r.Err).Warn("Snapshot fetch failed")
	}
	return r
}

// FetchMany runs the slices concurrently and returns one result per slice in
// the order given. A failed slice never cancels the others.
func (f *Fetcher) FetchMany(ctx context.Context, id int64, slices ...Slice) []Result {
	out := make([]Result, len(slices))
	var g errgroup.Group
	for i, s := range slices {
		g.Go(func() error {
			out[i] = f.Fetch(ctx, id, s)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (f *Fetcher) malformed(id int64, s Slice, playerID int64) func(int, error) {
	return func(idx int, err error) {
		fields := logrus.Fields{
			"session_id": id,
			"slice":      s.String(),
			"index":      idx,
		}
		if playerID != 0 {
			fields["player_id"] = playerID
		}
		f.logger.WithFields(fields).WithError(err).Error("Malformed card chain; rendering empty stack")
	}
}

// timeoutAsNetwork classifies a deadline expiry as a recoverable network
// failure.
func timeoutAsNetwork(err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, api.ErrNetwork) {
		return fmt.Errorf("%w: %w", api.ErrNetwork, err)
	}
	return err
}
