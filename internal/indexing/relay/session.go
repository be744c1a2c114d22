// Package relay forwards live contract events to Server-Sent Events clients.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/vietddude/gigwatch/internal/core/domain"
	"github.com/vietddude/gigwatch/internal/indexing/metrics"
	"github.com/vietddude/gigwatch/internal/infra/chain"
)

var (
	// ErrStreamingUnsupported is returned when the response cannot be flushed.
	ErrStreamingUnsupported = errors.New("streaming unsupported")
	// ErrClosed is returned for writes after teardown.
	ErrClosed = errors.New("session closed")
)

// Session is one open event stream. Writes are serialized; teardown runs once.
type Session struct {
	id       string
	category domain.Category
	w        io.Writer
	flusher  http.Flusher
	log      *slog.Logger

	mu     sync.Mutex
	closed bool
	unsubs []chain.Unsubscribe

	once sync.Once
	done chan struct{}
}

// NewSession wraps w. The writer must support flushing.
func NewSession(w http.ResponseWriter, category domain.Category) (*Session, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	id := uuid.NewString()
	metrics.RelayConnections.WithLabelValues(string(category)).Inc()
	return &Session{
		id:       id,
		category: category,
		w:        w,
		flusher:  flusher,
		log:      slog.Default().With("component", "relay", "category", category, "connection", id),
		done:     make(chan struct{}),
	}, nil
}

// ID returns the connection id.
func (s *Session) ID() string { return s.id }

// Done is closed once the session is torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Hold registers an unsubscribe to run on teardown. If the session is
// already closed, unsub runs immediately.
func (s *Session) Hold(unsub chain.Unsubscribe) {
	s.mu.Lock()
	if !s.closed {
		s.unsubs = append(s.unsubs, unsub)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	unsub()
}

// Forward writes one frame per event in arrival order. A failed write
// tears the session down; the error is not surfaced.
func (s *Session) Forward(batch []domain.DomainEvent) {
	for _, ev := range batch {
		if err := s.WriteJSON(ev); err != nil {
			if !errors.Is(err, ErrClosed) {
				metrics.RelayWriteErrorsTotal.Inc()
				s.log.Debug("frame write failed", "tx", ev.TransactionHash, "error", err)
				s.Teardown()
			}
			return
		}
		metrics.RelayFramesTotal.WithLabelValues(string(ev.Kind)).Inc()
	}
}

// WriteJSON writes v as one data frame.
func (s *Session) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return s.write("data: " + string(data) + "\n\n")
}

// Ping writes a comment frame.
func (s *Session) Ping() error {
	return s.write(": ping\n\n")
}

func (s *Session) write(frame string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, err := io.WriteString(s.w, frame); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Teardown releases every held subscription exactly once. Safe to call
// from any goroutine, including from inside Forward.
func (s *Session) Teardown() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		unsubs := s.unsubs
		s.unsubs = nil
		s.mu.Unlock()

		for _, unsub := range unsubs {
			unsub()
		}
		close(s.done)
		metrics.RelayConnections.WithLabelValues(string(s.category)).Dec()
		s.log.Debug("session closed", "subscriptions", len(unsubs))
	})
}
