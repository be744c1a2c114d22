package relay

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/vietddude/gigwatch/internal/core/domain"
	"github.com/vietddude/gigwatch/internal/indexing/feed"
	"github.com/vietddude/gigwatch/internal/indexing/filter"
	"github.com/vietddude/gigwatch/internal/infra/chain"
)

// Options configures a Handler.
type Options struct {
	// Heartbeat is the interval between ": ping" frames; 0 disables them.
	Heartbeat time.Duration
	// BackfillBlocks is the default history window.
	BackfillBlocks uint64
}

// ConnectedFrame is the first frame of every stream.
type ConnectedFrame struct {
	Type         string          `json:"type"`
	Category     domain.Category `json:"category"`
	ConnectionID string          `json:"connectionId"`
	Kinds        []domain.Kind   `json:"kinds"`
	Addresses    []string        `json:"addresses,omitempty"`
	Timestamp    int64           `json:"timestamp"`
}

// ReadyFrame follows the watch setup and lists the kinds actually streaming.
type ReadyFrame struct {
	Type     string          `json:"type"`
	Category domain.Category `json:"category"`
	Kinds    []domain.Kind   `json:"kinds"`
}

// ErrorFrame reports a stream that could not be set up.
type ErrorFrame struct {
	Type     string          `json:"type"`
	Category domain.Category `json:"category"`
	Message  string          `json:"message"`
}

// Handler serves the event stream and history endpoints.
type Handler struct {
	source chain.LogSource
	opts   Options
	log    *slog.Logger
	now    func() time.Time
}

// NewHandler creates a relay over source.
func NewHandler(source chain.LogSource, opts Options) *Handler {
	if opts.BackfillBlocks == 0 {
		opts.BackfillBlocks = feed.DefaultBackfillBlocks
	}
	return &Handler{
		source: source,
		opts:   opts,
		log:    slog.Default().With("component", "relay"),
		now:    time.Now,
	}
}

// Stream handles GET /api/events/stream?category=<cat>[&address=<addr>...].
// Addresses narrow the stream to events involving them.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	category, err := domain.ParseCategory(r.URL.Query().Get("category"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	addresses, err := filter.ParseAddresses(r.URL.Query()["address"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	participants := filter.NewMemoryFilter()
	if err := participants.AddBatch(addresses); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	s, err := NewSession(w, category)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer s.Teardown()

	w.WriteHeader(http.StatusOK)
	kinds := category.Kinds()
	if err := s.WriteJSON(ConnectedFrame{
		Type:         feed.FrameConnected,
		Category:     category,
		ConnectionID: s.ID(),
		Kinds:        kinds,
		Addresses:    participants.Addresses(),
		Timestamp:    h.now().UnixMilli(),
	}); err != nil {
		return
	}

	forward := s.Forward
	if participants.Size() > 0 {
		forward = func(batch []domain.DomainEvent) {
			if selected := filter.Select(participants, batch); len(selected) > 0 {
				s.Forward(selected)
			}
		}
	}

	ctx := r.Context()
	var watching []domain.Kind
	for _, kind := range kinds {
		unsub, err := h.source.Watch(ctx, kind, forward)
		if err != nil {
			h.log.Warn("watch failed", "category", category, "kind", kind, "error", err)
			continue
		}
		s.Hold(unsub)
		watching = append(watching, kind)
	}
	if len(watching) == 0 {
		s.WriteJSON(ErrorFrame{
			Type:     feed.FrameError,
			Category: category,
			Message:  "failed to subscribe to contract events",
		})
		return
	}
	if err := s.WriteJSON(ReadyFrame{Type: feed.FrameReady, Category: category, Kinds: watching}); err != nil {
		return
	}
	h.log.Debug("stream open", "category", category, "connection", s.ID(), "kinds", len(watching))

	var tick <-chan time.Time
	if h.opts.Heartbeat > 0 {
		ticker := time.NewTicker(h.opts.Heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.Done():
			return
		case <-tick:
			if err := s.Ping(); err != nil {
				return
			}
		}
	}
}

// History handles GET /api/events/history?blocks=<n>.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	window := h.opts.BackfillBlocks
	if v := r.URL.Query().Get("blocks"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil || n == 0 {
			http.Error(w, "blocks must be a positive integer", http.StatusBadRequest)
			return
		}
		window = n
	}

	events, err := feed.Backfill(r.Context(), h.source, domain.AllKinds(), window)
	if err != nil {
		h.log.Warn("history failed", "error", err)
		http.Error(w, "chain unavailable", http.StatusBadGateway)
		return
	}
	if events == nil {
		events = []domain.DomainEvent{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(events)
}
