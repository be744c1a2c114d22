package feed

import "github.com/vietddude/gigwatch/internal/core/domain"

// DefaultBufferSize caps each live stream buffer.
const DefaultBufferSize = 100

// LiveBuffer holds the most recent live events of one stream, newest first.
// It is not deduplicated; Merge does that. Not safe for concurrent use.
type LiveBuffer struct {
	size   int
	events []domain.DomainEvent
}

// NewLiveBuffer creates a buffer holding at most size events.
func NewLiveBuffer(size int) *LiveBuffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &LiveBuffer{size: size, events: make([]domain.DomainEvent, 0, size)}
}

// Add prepends ev, evicting the oldest entry when full.
func (b *LiveBuffer) Add(ev domain.DomainEvent) {
	if len(b.events) < b.size {
		b.events = append(b.events, domain.DomainEvent{})
	}
	copy(b.events[1:], b.events[:len(b.events)-1])
	b.events[0] = ev
}

// Len returns the number of buffered events.
func (b *LiveBuffer) Len() int {
	return len(b.events)
}

// Events returns a copy of the buffer, newest first.
func (b *LiveBuffer) Events() []domain.DomainEvent {
	out := make([]domain.DomainEvent, len(b.events))
	copy(out, b.events)
	return out
}
