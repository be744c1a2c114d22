package feed

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/vietddude/gigwatch/internal/core/domain"
)

type fakeHistory struct {
	mu     sync.Mutex
	head   uint64
	err    error
	failOn domain.Kind
	ranges map[domain.Kind][2]uint64
}

func (f *fakeHistory) LatestBlock(ctx context.Context) (uint64, error) {
	return f.head, f.err
}

func (f *fakeHistory) FetchHistorical(ctx context.Context, kind domain.Kind, from, to uint64) ([]domain.DomainEvent, error) {
	f.mu.Lock()
	if f.ranges == nil {
		f.ranges = make(map[domain.Kind][2]uint64)
	}
	f.ranges[kind] = [2]uint64{from, to}
	f.mu.Unlock()

	if kind == f.failOn {
		return nil, errors.New("rpc down")
	}
	return []domain.DomainEvent{{
		Kind:            kind,
		TransactionHash: "0x" + string(kind),
		BlockNumber:     to - uint64(len(kind)),
		Source:          domain.SourceHistorical,
	}}, nil
}

func TestBackfill_SwallowsPerKindFailure(t *testing.T) {
	src := &fakeHistory{head: 5000, failOn: domain.KindJobCancelled}

	events, err := Backfill(context.Background(), src, domain.AllKinds(), 1000)
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 kinds to contribute, got %d", len(events))
	}
	for _, ev := range events {
		if ev.Kind == domain.KindJobCancelled {
			t.Error("failed kind should contribute nothing")
		}
	}
	for i := 1; i < len(events); i++ {
		if events[i-1].BlockNumber < events[i].BlockNumber {
			t.Errorf("expected newest block first, got %d before %d", events[i-1].BlockNumber, events[i].BlockNumber)
		}
	}
	if r := src.ranges[domain.KindBidPlaced]; r != [2]uint64{4000, 5000} {
		t.Errorf("unexpected window %v", r)
	}
}

func TestBackfill_WindowLargerThanChain(t *testing.T) {
	src := &fakeHistory{head: 10}
	if _, err := Backfill(context.Background(), src, []domain.Kind{domain.KindJobPosted}, 1000); err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if r := src.ranges[domain.KindJobPosted]; r != [2]uint64{0, 10} {
		t.Errorf("expected range clamped at genesis, got %v", r)
	}
}

func TestBackfill_HeadFailure(t *testing.T) {
	src := &fakeHistory{err: errors.New("no head")}
	if _, err := Backfill(context.Background(), src, domain.AllKinds(), 10); err == nil {
		t.Fatal("expected head failure to surface")
	}
}
