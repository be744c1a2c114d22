package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/gigwatch/internal/core/domain"
)

// DefaultBackfillBlocks is the recent block window covered by a backfill.
const DefaultBackfillBlocks = 1000

// HistorySource is the part of chain.LogSource a backfill needs.
type HistorySource interface {
	LatestBlock(ctx context.Context) (uint64, error)
	FetchHistorical(ctx context.Context, kind domain.Kind, from, to uint64) ([]domain.DomainEvent, error)
}

// Backfill fetches the last window blocks of every kind concurrently.
// A failing kind is logged and contributes nothing; only a failed head
// read fails the backfill. Results are newest block first.
func Backfill(ctx context.Context, src HistorySource, kinds []domain.Kind, window uint64) ([]domain.DomainEvent, error) {
	head, err := src.LatestBlock(ctx)
	if err != nil {
		return nil, fmt.Errorf("backfill head: %w", err)
	}
	from := uint64(0)
	if head > window {
		from = head - window
	}

	results := make([][]domain.DomainEvent, len(kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			events, err := src.FetchHistorical(gctx, kind, from, head)
			if err != nil {
				slog.Warn("backfill kind failed", "kind", kind, "from", from, "to", head, "error", err)
				return nil
			}
			results[i] = events
			return nil
		})
	}
	g.Wait()

	var all []domain.DomainEvent
	for _, events := range results {
		all = append(all, events...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].BlockNumber != all[j].BlockNumber {
			return all[i].BlockNumber > all[j].BlockNumber
		}
		return all[i].LogIndex > all[j].LogIndex
	})
	return all, nil
}

// SourceHistory serves backfills straight from a log source.
type SourceHistory struct {
	Source HistorySource
	Window uint64
}

// FetchHistory implements HistoryFetcher.
func (s SourceHistory) FetchHistory(ctx context.Context) ([]domain.DomainEvent, error) {
	window := s.Window
	if window == 0 {
		window = DefaultBackfillBlocks
	}
	return Backfill(ctx, s.Source, domain.AllKinds(), window)
}
