package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/vietddude/gigwatch/internal/core/domain"
)

// HistoryFetcher performs the one-time historical backfill.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context) ([]domain.DomainEvent, error)
}

// StreamHandlers receive one category stream's lifecycle.
type StreamHandlers struct {
	OnConnected    func()
	OnDisconnected func()
	OnEvent        func(domain.DomainEvent)
}

// StreamOpener opens a live stream for a category and blocks until ctx is
// cancelled or the stream gives up. Reconnecting is the opener's job.
type StreamOpener interface {
	Open(ctx context.Context, category domain.Category, h StreamHandlers) error
}

// Options configures an Aggregator.
type Options struct {
	Categories []domain.Category
	MaxEvents  int
	BufferSize int
}

// Snapshot is the aggregator's output at one point in time.
type Snapshot struct {
	Events      []domain.DomainEvent
	IsConnected bool
	Connected   map[domain.Category]bool
	// Counts holds buffered live events per category.
	Counts map[domain.Category]int
}

// Filter projects the feed onto one category.
func (s Snapshot) Filter(category domain.Category) []domain.DomainEvent {
	return Filter(s.Events, category)
}

// Aggregator merges one historical backfill with a live stream per category.
type Aggregator struct {
	history HistoryFetcher
	streams StreamOpener
	opts    Options
	log     *slog.Logger

	mu         sync.Mutex
	historical []domain.DomainEvent
	buffers    map[domain.Category]*LiveBuffer
	connected  map[domain.Category]bool
	merged     []domain.DomainEvent

	// notifyMu keeps snapshot publication in mutation order.
	notifyMu  sync.Mutex
	snapshots Notifier[Snapshot]
	events    Notifier[domain.DomainEvent]
}

// NewAggregator creates an aggregator. Categories default to every category
// except "all".
func NewAggregator(history HistoryFetcher, streams StreamOpener, opts Options) *Aggregator {
	if len(opts.Categories) == 0 {
		for _, c := range domain.Categories() {
			if c != domain.CategoryAll {
				opts.Categories = append(opts.Categories, c)
			}
		}
	}

	a := &Aggregator{
		history:   history,
		streams:   streams,
		opts:      opts,
		log:       slog.Default().With("component", "feed"),
		buffers:   make(map[domain.Category]*LiveBuffer, len(opts.Categories)),
		connected: make(map[domain.Category]bool, len(opts.Categories)),
	}
	for _, c := range opts.Categories {
		a.buffers[c] = NewLiveBuffer(opts.BufferSize)
		a.connected[c] = false
	}
	return a
}

// Run performs the backfill and keeps every category stream open until ctx
// is cancelled. It returns once every goroutine it started has exited.
func (a *Aggregator) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	if a.history != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			events, err := a.history.FetchHistory(ctx)
			if err != nil {
				if ctx.Err() == nil {
					a.log.Warn("historical backfill failed", "error", err)
				}
				return
			}
			a.update(func() { a.historical = events })
		}()
	}

	for _, category := range a.opts.Categories {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := a.streams.Open(ctx, category, StreamHandlers{
				OnConnected:    func() { a.setConnected(category, true) },
				OnDisconnected: func() { a.setConnected(category, false) },
				OnEvent:        func(ev domain.DomainEvent) { a.addLive(category, ev) },
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("event stream stopped", "category", category, "error", err)
			}
			a.setConnected(category, false)
		}()
	}

	wg.Wait()
	return ctx.Err()
}

// Snapshot returns the current merged feed and connection state.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// Subscribe registers fn for every snapshot change.
func (a *Aggregator) Subscribe(fn func(Snapshot)) (cancel func()) {
	return a.snapshots.Subscribe(fn)
}

// OnEvent registers fn for every live event as it arrives.
func (a *Aggregator) OnEvent(fn func(domain.DomainEvent)) (cancel func()) {
	return a.events.Subscribe(fn)
}

func (a *Aggregator) addLive(category domain.Category, ev domain.DomainEvent) {
	a.update(func() {
		if buf, ok := a.buffers[category]; ok {
			buf.Add(ev)
		}
	})
	a.events.Publish(ev)
}

func (a *Aggregator) setConnected(category domain.Category, connected bool) {
	a.mu.Lock()
	changed := a.connected[category] != connected
	a.mu.Unlock()
	if !changed {
		return
	}
	a.update(func() { a.connected[category] = connected })
}

// update applies mutate, recomputes the merge and publishes the result.
func (a *Aggregator) update(mutate func()) {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()

	a.mu.Lock()
	mutate()
	a.merged = Merge(a.historical, a.liveLocked(), a.opts.MaxEvents)
	snap := a.snapshotLocked()
	a.mu.Unlock()

	a.snapshots.Publish(snap)
}

// liveLocked returns live events oldest first so later arrivals win the merge.
func (a *Aggregator) liveLocked() []domain.DomainEvent {
	var live []domain.DomainEvent
	for _, c := range a.opts.Categories {
		events := a.buffers[c].Events()
		for i := len(events) - 1; i >= 0; i-- {
			live = append(live, events[i])
		}
	}
	return live
}

func (a *Aggregator) snapshotLocked() Snapshot {
	snap := Snapshot{
		Events:    make([]domain.DomainEvent, len(a.merged)),
		Connected: make(map[domain.Category]bool, len(a.connected)),
		Counts:    make(map[domain.Category]int, len(a.buffers)),
	}
	copy(snap.Events, a.merged)
	for c, ok := range a.connected {
		snap.Connected[c] = ok
		snap.IsConnected = snap.IsConnected || ok
	}
	for c, buf := range a.buffers {
		snap.Counts[c] = buf.Len()
	}
	return snap
}
