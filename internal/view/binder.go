// Package view keeps a derived, filtered projection of the ledger up to date
// for any number of observers.
package view

import (
	"context"
	"log/slog"
	"sync"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

const (
	StateLoading State = iota
	StateReady
	StateError
)

type (
	// State is the lifecycle of a View.
	State int

	// View is one computed projection. Records are in ledger order and
	// Totals cover exactly those records. Generation increases by one for
	// every view the binder publishes.
	View struct {
		State             State
		Criteria          core.Criteria
		Records           []core.Transaction
		Totals            core.Totals
		ExpenseByCategory []core.CategoryAmount
		IncomeByCategory  []core.CategoryAmount
		Err               error
		Seq               uint64
		Generation        uint64
	}
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Source is what a Binder reads from. *ledger.Ledger satisfies it.
type Source interface {
	Snapshot(ctx context.Context, from, to int64) (ledger.Snapshot, error)
	Subscribe() *ledger.Subscription
}

// Binder recomputes its View whenever the ledger changes or the criteria
// are replaced. It only runs while at least one observer is attached.
type Binder struct {
	src    Source
	logger *slog.Logger

	mu        sync.Mutex
	criteria  core.Criteria
	version   uint64
	current   View
	observers map[*observer]struct{}
	stop      context.CancelFunc
	loopCtx   context.Context
	kick      chan struct{}
}

type observer struct {
	ch chan View
}

type Option func(*Binder)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Binder) { b.logger = logger }
}

// WithCriteria sets the initial criteria.
func WithCriteria(c core.Criteria) Option {
	return func(b *Binder) { b.criteria = c }
}

func NewBinder(src Source, opts ...Option) *Binder {
	b := &Binder{
		src:       src,
		logger:    slog.Default(),
		observers: make(map[*observer]struct{}),
		kick:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.current = View{State: StateLoading, Criteria: b.criteria}
	return b
}

// SetCriteria replaces the criteria. When several calls race, the view
// eventually reflects the last one; views computed for older criteria are
// discarded.
func (b *Binder) SetCriteria(c core.Criteria) {
	b.mu.Lock()
	b.criteria = c
	b.version++
	b.mu.Unlock()

	select {
	case b.kick <- struct{}{}:
	default:
	}
}

func (b *Binder) Criteria() core.Criteria {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.criteria
}

// Current returns the most recently published view.
func (b *Binder) Current() View {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Active reports whether the recompute loop is running.
func (b *Binder) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stop != nil
}

// Observe attaches an observer until ctx is done. The channel always holds
// the latest view: a slow reader skips intermediate views but never misses
// the newest one. It is closed when ctx ends.
func (b *Binder) Observe(ctx context.Context) <-chan View {
	o := &observer{ch: make(chan View, 1)}

	b.mu.Lock()
	b.observers[o] = struct{}{}
	if b.stop == nil {
		b.start()
	}
	o.ch <- b.current
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.detach(o)
	}()
	return o.ch
}

// start must be called with mu held.
func (b *Binder) start() {
	ctx, cancel := context.WithCancel(context.Background())
	b.stop = cancel
	b.loopCtx = ctx
	b.current = View{
		State:      StateLoading,
		Criteria:   b.criteria,
		Records:    b.current.Records,
		Totals:     b.current.Totals,
		Seq:        b.current.Seq,
		Generation: b.current.Generation,
	}

	// Subscribe before the first snapshot so no change can fall between them.
	sub := b.src.Subscribe()
	go b.run(ctx, sub)
	b.logger.Debug("View binder started")
}

func (b *Binder) detach(o *observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.observers[o]; !ok {
		return
	}
	delete(b.observers, o)
	close(o.ch)

	if len(b.observers) == 0 && b.stop != nil {
		b.stop()
		b.stop = nil
		b.loopCtx = nil
		b.logger.Debug("View binder stopped")
	}
}

func (b *Binder) run(ctx context.Context, sub *ledger.Subscription) {
	defer sub.Close()

	b.recompute(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case <-sub.Ready():
			sub.Drain()
		case <-b.kick:
		}
		// Coalesce whatever else arrived while we were waiting.
		sub.Drain()
		select {
		case <-b.kick:
		default:
		}
		b.recompute(ctx)
	}
}

func (b *Binder) recompute(ctx context.Context) {
	b.mu.Lock()
	criteria, version := b.criteria, b.version
	b.mu.Unlock()

	snap, err := b.src.Snapshot(ctx, criteria.From, criteria.To)
	if ctx.Err() != nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loopCtx != ctx || version != b.version {
		// Stopped, or criteria moved on; a newer recompute is already due.
		return
	}

	next := View{Criteria: criteria, Generation: b.current.Generation + 1}
	if err != nil {
		b.logger.Error("View recompute failed", "error", err)
		next.State = StateError
		next.Err = err
		next.Records = b.current.Records
		next.Totals = b.current.Totals
		next.ExpenseByCategory = b.current.ExpenseByCategory
		next.IncomeByCategory = b.current.IncomeByCategory
		next.Seq = b.current.Seq
	} else {
		records := core.Filter(snap.Records, criteria)
		next.State = StateReady
		next.Records = records
		next.Totals = core.Summarize(records)
		next.ExpenseByCategory = core.GroupByCategory(records, core.KindExpense)
		next.IncomeByCategory = core.GroupByCategory(records, core.KindIncome)
		next.Seq = snap.Seq
	}
	b.publish(next)
}

// publish must be called with mu held.
func (b *Binder) publish(v View) {
	b.current = v
	for o := range b.observers {
		select {
		case <-o.ch:
		default:
		}
		o.ch <- v
	}
}
