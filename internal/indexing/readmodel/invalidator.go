package readmodel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/gigwatch/internal/core/domain"
	"github.com/vietddude/gigwatch/internal/indexing/recovery"
	"github.com/vietddude/gigwatch/internal/infra/chain"
)

// ErrUnwatched is reported while some event kinds could not be watched.
var ErrUnwatched = errors.New("event kinds not watched")

// Invalidator feeds live contract events into Accessors.Observe.
type Invalidator struct {
	source chain.LogSource
	acc    *Accessors
	policy recovery.Policy
	queue  chan domain.DomainEvent
	log    *slog.Logger

	mu     sync.Mutex
	unsubs []chain.Unsubscribe
}

// NewInvalidator creates an invalidator watching source.
func NewInvalidator(source chain.LogSource, acc *Accessors) *Invalidator {
	return &Invalidator{
		source: source,
		acc:    acc,
		// no attempt limit: invalidation stays wanted for the process lifetime
		policy: recovery.Policy{
			InitialDelay:  time.Second,
			MaxDelay:      time.Minute,
			JitterPercent: 10,
		},
		queue: make(chan domain.DomainEvent, 256),
		log:   slog.Default().With("component", "invalidator"),
	}
}

// Run watches every kind until ctx is cancelled. Kinds that fail to
// subscribe are retried in the background with backoff; until then their
// cached read models only expire by TTL.
func (i *Invalidator) Run(ctx context.Context) error {
	defer i.release()

	var wg sync.WaitGroup
	defer wg.Wait()
	if pending := i.watch(ctx, domain.AllKinds()); len(pending) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			i.rewatch(ctx, pending)
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-i.queue:
			i.acc.Observe(ctx, ev)
		}
	}
}

// watch subscribes to kinds and returns those that failed.
func (i *Invalidator) watch(ctx context.Context, kinds []domain.Kind) []domain.Kind {
	var failed []domain.Kind
	for _, kind := range kinds {
		unsub, err := i.source.Watch(ctx, kind, func(batch []domain.DomainEvent) {
			for _, ev := range batch {
				select {
				case i.queue <- ev:
				case <-ctx.Done():
					return
				}
			}
		})
		if err != nil {
			i.log.Warn("watch failed", "kind", kind, "error", err)
			failed = append(failed, kind)
			continue
		}
		i.mu.Lock()
		i.unsubs = append(i.unsubs, unsub)
		i.mu.Unlock()
	}
	return failed
}

func (i *Invalidator) rewatch(ctx context.Context, pending []domain.Kind) {
	err := recovery.Retry(ctx, i.policy, func(ctx context.Context) error {
		pending = i.watch(ctx, pending)
		if len(pending) > 0 {
			return fmt.Errorf("%w: %v", ErrUnwatched, pending)
		}
		return nil
	})
	if err == nil {
		i.log.Info("read-model invalidation restored")
		return
	}
	if ctx.Err() == nil {
		i.log.Error("read-model invalidation incomplete", "error", err)
	}
}

func (i *Invalidator) release() {
	i.mu.Lock()
	unsubs := i.unsubs
	i.unsubs = nil
	i.mu.Unlock()
	for _, u := range unsubs {
		u()
	}
}
