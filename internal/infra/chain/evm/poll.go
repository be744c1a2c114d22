package evm

import (
	"context"
	"time"

	"github.com/vietddude/gigwatch/internal/core/domain"
)

// watchPoll follows the chain head with eth_getLogs, one batch per tick.
// The shared head cache keeps concurrent watches from multiplying head reads.
func (a *Adapter) watchPoll(ctx context.Context, kind domain.Kind, onBatch func([]domain.DomainEvent)) (func(), error) {
	head, err := a.heads.LatestBlock(ctx)
	if err != nil {
		return nil, err
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	go a.pollLoop(pollCtx, kind, head, onBatch)
	return cancel, nil
}

// pollLoop covers at most one getLogs span per tick. When it falls behind
// (provider errors, slow responses) the adaptive controller shortens the
// delay until it has caught up with the head.
func (a *Adapter) pollLoop(ctx context.Context, kind domain.Kind, last uint64, onBatch func([]domain.DomainEvent)) {
	timer := time.NewTimer(a.opts.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		next := a.pollOnce(ctx, kind, &last, onBatch)
		timer.Reset(next)
	}
}

func (a *Adapter) pollOnce(ctx context.Context, kind domain.Kind, last *uint64, onBatch func([]domain.DomainEvent)) time.Duration {
	head, err := a.heads.LatestBlock(ctx)
	if err != nil {
		a.log.Debug("poll head failed", "kind", kind, "error", err)
		return a.opts.PollInterval
	}
	if head <= *last {
		return a.throttle.ComputeInterval(0)
	}

	from := *last + 1
	to := min(head, *last+a.throttle.ComputeSpan(time.Duration(a.lastLatency.Load())))

	// currentBlock 0: everything found at the head is live
	events, err := a.getLogs(ctx, kind, from, to, 0, domain.SourceLive)
	if err != nil {
		// The same range is retried on the next tick
		a.log.Warn("poll logs failed", "kind", kind, "from", from, "to", to, "error", err)
		return a.opts.PollInterval
	}
	*last = to

	if len(events) > 0 && ctx.Err() == nil {
		onBatch(events)
	}
	return a.throttle.ComputeInterval(int64(head - to))
}
