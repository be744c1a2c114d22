// Package chain defines the boundary between the event pipeline and the
// contract log provider.
package chain

import (
	"context"
	"errors"

	"github.com/vietddude/gigwatch/internal/core/domain"
)

// ErrInvalidRange is returned when fromBlock > toBlock.
var ErrInvalidRange = errors.New("invalid block range")

// Unsubscribe releases a watch. Calling it more than once is a no-op.
type Unsubscribe func()

// LogSource delivers normalized marketplace events, one kind at a time.
// Failures are per kind: callers fetch and watch each kind independently.
type LogSource interface {
	// LatestBlock returns the current chain head.
	LatestBlock(ctx context.Context) (uint64, error)

	// FetchHistorical returns events of kind in [from, to], oldest first.
	FetchHistorical(ctx context.Context, kind domain.Kind, from, to uint64) ([]domain.DomainEvent, error)

	// Watch streams live events of kind to onBatch until the returned
	// Unsubscribe is called. ctx only bounds subscription setup.
	Watch(ctx context.Context, kind domain.Kind, onBatch func([]domain.DomainEvent)) (Unsubscribe, error)

	// ActiveSubscriptions reports how many watches are still open.
	ActiveSubscriptions() int
}

// ValidateRange checks the kind and block range of a historical query.
func ValidateRange(kind domain.Kind, from, to uint64) error {
	if !kind.Valid() {
		return domain.ErrUnknownKind
	}
	if from > to {
		return ErrInvalidRange
	}
	return nil
}
