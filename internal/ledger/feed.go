package ledger

import (
	"sync"
	"time"
)

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

type (
	// Op names the mutation that produced a Change.
	Op string

	// Change is emitted once per committed mutation. Seq is strictly
	// increasing in commit order.
	Change struct {
		Seq uint64
		Op  Op
		ID  string
		At  time.Time
	}
)

// feed fans changes out to subscribers. publish never blocks the writer.
type feed struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func newFeed() *feed {
	return &feed{subs: make(map[*Subscription]struct{})}
}

func (f *feed) subscribe() *Subscription {
	s := &Subscription{
		feed:  f,
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	f.mu.Lock()
	f.subs[s] = struct{}{}
	f.mu.Unlock()
	return s
}

func (f *feed) publish(c Change) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for s := range f.subs {
		s.push(c)
	}
}

func (f *feed) remove(s *Subscription) {
	f.mu.Lock()
	delete(f.subs, s)
	f.mu.Unlock()
}

func (f *feed) closeAll() {
	f.mu.Lock()
	subs := make([]*Subscription, 0, len(f.subs))
	for s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.Unlock()
	for _, s := range subs {
		s.Close()
	}
}

func (f *feed) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Subscription receives every change committed after it was created, in
// commit order. The queue is unbounded so nothing is dropped; Ready
// coalesces wake-ups, so a consumer should Drain everything on each signal.
type Subscription struct {
	feed      *feed
	mu        sync.Mutex
	queue     []Change
	ready     chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func (s *Subscription) push(c Change) {
	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		return
	default:
	}
	s.queue = append(s.queue, c)
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Ready is signalled when at least one change is waiting.
func (s *Subscription) Ready() <-chan struct{} {
	return s.ready
}

// Done is closed when the subscription is closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Drain returns and clears the pending changes.
func (s *Subscription) Drain() []Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.queue
	s.queue = nil
	return out
}

// Close detaches the subscription from the ledger. It is idempotent.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.feed.remove(s)
		s.mu.Lock()
		close(s.done)
		s.queue = nil
		s.mu.Unlock()
	})
}
