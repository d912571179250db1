// Package store holds the record store adapters behind core.Store: an
// in-memory store for development and tests, and a PostgreSQL store that
// pushes changes through LISTEN/NOTIFY.
package store

import (
	"sync"

	"github.com/JonMunkholm/localfinder/internal/core"
)

// feed delivers snapshots for one subscription on its own goroutine.
// Writers queue snapshots without blocking; callbacks run strictly in queue
// order and never concurrently. A failure is reported once, after which the
// feed is dead.
type feed struct {
	categoryID string
	onChange   func([]core.Record)
	onError    func(error)

	mu      sync.Mutex
	queue   [][]core.Record
	failure error
	wake    chan struct{}

	done     chan struct{}
	stopOnce sync.Once
}

func newFeed(categoryID string, onChange func([]core.Record), onError func(error)) *feed {
	f := &feed{
		categoryID: categoryID,
		onChange:   onChange,
		onError:    onError,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	go f.run()
	return f
}

// push queues a snapshot for delivery.
func (f *feed) push(records []core.Record) {
	f.mu.Lock()
	if f.failure != nil {
		f.mu.Unlock()
		return
	}
	f.queue = append(f.queue, records)
	f.mu.Unlock()
	f.signal()
}

// fail queues err as the feed's final event.
func (f *feed) fail(err error) {
	f.mu.Lock()
	if f.failure == nil {
		f.failure = err
	}
	f.mu.Unlock()
	f.signal()
}

func (f *feed) signal() {
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// stop ends delivery. Safe to call more than once.
func (f *feed) stop() {
	f.stopOnce.Do(func() { close(f.done) })
}

func (f *feed) run() {
	for {
		select {
		case <-f.done:
			return
		case <-f.wake:
		}

		for {
			f.mu.Lock()
			if len(f.queue) == 0 {
				failure := f.failure
				f.mu.Unlock()
				if failure != nil {
					if !f.stopped() && f.onError != nil {
						f.onError(failure)
					}
					f.stop()
					return
				}
				break
			}
			next := f.queue[0]
			f.queue[0] = nil
			f.queue = f.queue[1:]
			f.mu.Unlock()

			if f.stopped() {
				return
			}
			f.onChange(next)
		}
	}
}

func (f *feed) stopped() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// feedSet tracks the live feeds of every category.
type feedSet struct {
	mu    sync.Mutex
	feeds map[string]map[*feed]struct{}
}

func newFeedSet() *feedSet {
	return &feedSet{feeds: make(map[string]map[*feed]struct{})}
}

func (s *feedSet) add(f *feed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.feeds[f.categoryID] == nil {
		s.feeds[f.categoryID] = make(map[*feed]struct{})
	}
	s.feeds[f.categoryID][f] = struct{}{}
}

func (s *feedSet) remove(f *feed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.feeds[f.categoryID], f)
	if len(s.feeds[f.categoryID]) == 0 {
		delete(s.feeds, f.categoryID)
	}
}

// of returns the feeds subscribed to categoryID.
func (s *feedSet) of(categoryID string) []*feed {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*feed, 0, len(s.feeds[categoryID]))
	for f := range s.feeds[categoryID] {
		out = append(out, f)
	}
	return out
}

// categories returns every category with at least one feed.
func (s *feedSet) categories() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.feeds))
	for id := range s.feeds {
		out = append(out, id)
	}
	return out
}

// failAll fails and forgets every feed.
func (s *feedSet) failAll(err error) {
	s.mu.Lock()
	all := s.feeds
	s.feeds = make(map[string]map[*feed]struct{})
	s.mu.Unlock()

	for _, byCategory := range all {
		for f := range byCategory {
			f.fail(err)
		}
	}
}

// unsubscribe returns the core.Unsubscribe handle for f.
func (s *feedSet) unsubscribe(f *feed) core.Unsubscribe {
	var once sync.Once
	return func() {
		once.Do(func() {
			s.remove(f)
			f.stop()
		})
	}
}
