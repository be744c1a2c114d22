package chain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/gigwatch/internal/core/domain"
)

type countingHead struct {
	latest    uint64
	callCount int
	err       error
}

func (m *countingHead) fetch(ctx context.Context) (uint64, error) {
	m.callCount++
	return m.latest, m.err
}

func TestHeadCache_CachesResult(t *testing.T) {
	src := &countingHead{latest: 1000}
	cache := NewHeadCache(src.fetch, 3*time.Second)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		got, err := cache.LatestBlock(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != 1000 {
			t.Errorf("expected 1000, got %d", got)
		}
	}
	if src.callCount != 1 {
		t.Errorf("expected 1 fetch, got %d", src.callCount)
	}
}

func TestHeadCache_ExpiresAfterTTL(t *testing.T) {
	src := &countingHead{latest: 1000}
	cache := NewHeadCache(src.fetch, 50*time.Millisecond)

	ctx := context.Background()
	if _, err := cache.LatestBlock(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	time.Sleep(80 * time.Millisecond)
	src.latest = 1001

	got, err := cache.LatestBlock(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1001 || src.callCount != 2 {
		t.Errorf("expected fresh 1001 after 2 fetches, got %d after %d", got, src.callCount)
	}
}

func TestHeadCache_InvalidateAndMonotonic(t *testing.T) {
	src := &countingHead{latest: 1000}
	cache := NewHeadCache(src.fetch, time.Minute)

	ctx := context.Background()
	cache.LatestBlock(ctx)

	// A lagging provider must not move the head backwards
	src.latest = 990
	cache.Invalidate()
	got, _ := cache.LatestBlock(ctx)
	if got != 1000 {
		t.Errorf("expected head to stay at 1000, got %d", got)
	}
	if src.callCount != 2 {
		t.Errorf("expected fetch after invalidate, got %d calls", src.callCount)
	}
}

func TestHeadCache_PropagatesError(t *testing.T) {
	src := &countingHead{err: errors.New("down")}
	if _, err := NewHeadCache(src.fetch, time.Second).LatestBlock(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestValidateRange(t *testing.T) {
	if err := ValidateRange(domain.KindBidPlaced, 10, 5); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange, got %v", err)
	}
	if err := ValidateRange(domain.Kind("Nope"), 1, 5); !errors.Is(err, domain.ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
	if err := ValidateRange(domain.KindBidPlaced, 5, 5); err != nil {
		t.Errorf("single block range should be valid: %v", err)
	}
}
