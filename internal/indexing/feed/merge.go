// Package feed merges historical backfill and live event streams into one
// deduplicated, ordered and bounded feed.
package feed

import (
	"sort"

	"github.com/vietddude/gigwatch/internal/core/domain"
)

// Merge deduplicates by transaction hash with live entries replacing
// historical ones, orders by ObservedAt descending and keeps at most max
// events. max <= 0 keeps everything.
//
// Ties keep the position at which a hash was first seen, so a live
// replacement does not move ahead of equally timed neighbours.
func Merge(historical, live []domain.DomainEvent, max int) []domain.DomainEvent {
	index := make(map[string]int, len(historical)+len(live))
	merged := make([]domain.DomainEvent, 0, len(historical)+len(live))

	insert := func(ev domain.DomainEvent) {
		if i, ok := index[ev.TransactionHash]; ok {
			merged[i] = ev
			return
		}
		index[ev.TransactionHash] = len(merged)
		merged = append(merged, ev)
	}
	for _, ev := range historical {
		insert(ev)
	}
	for _, ev := range live {
		insert(ev)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].ObservedAt > merged[j].ObservedAt
	})

	if max > 0 && len(merged) > max {
		merged = merged[:max]
	}
	return merged
}

// Filter returns the events of a category. It never mutates events.
func Filter(events []domain.DomainEvent, category domain.Category) []domain.DomainEvent {
	out := make([]domain.DomainEvent, 0, len(events))
	for _, ev := range events {
		if category.Includes(ev.Kind) {
			out = append(out, ev)
		}
	}
	return out
}
