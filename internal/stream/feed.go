package stream

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/sushi/internal/models"
)

// eventBuffer absorbs short bursts while the consumer is busy.
const eventBuffer = 64

// feed is the delivery half every transport shares: a buffered events channel
// owned by a single reader goroutine, and a done channel closed by Close.
type feed struct {
	id     string
	events chan Event
	done   chan struct{}

	once sync.Once
	wg   sync.WaitGroup

	mu  sync.Mutex
	err error
}

func newFeed() *feed {
	return &feed{
		id:     uuid.NewString(),
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
	}
}

func (f *feed) Events() <-chan Event { return f.events }

func (f *feed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// deliver blocks until the event is queued or the feed is closed. Events are
// never dropped while the feed is open.
func (f *feed) deliver(ev Event) bool {
	select {
	case f.events <- ev:
		return true
	case <-f.done:
		return false
	}
}

// fail records the first remote failure. Failures after a local close are
// ignored.
func (f *feed) fail(err error) {
	select {
	case <-f.done:
		return
	default:
	}
	f.mu.Lock()
	if f.err == nil {
		f.err = err
	}
	f.mu.Unlock()
}

// run starts the reader; it closes the events channel when it returns.
func (f *feed) run(read func()) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer close(f.events)
		read()
	}()
}

// shutdown closes done once, runs release, and waits for the reader.
func (f *feed) shutdown(release func() error) error {
	var err error
	f.once.Do(func() {
		close(f.done)
		if release != nil {
			err = release()
		}
	})
	f.wg.Wait()
	return err
}

func (f *feed) closed() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func flex(n int64) models.FlexInt { return models.FlexInt(n) }
