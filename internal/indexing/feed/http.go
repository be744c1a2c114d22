package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/vietddude/gigwatch/internal/core/domain"
	"github.com/vietddude/gigwatch/internal/indexing/filter"
	"github.com/vietddude/gigwatch/internal/infra/sse"
)

// Control frame types sent by the relay alongside events. A stream is
// live once FrameReady arrives; FrameError ends it.
const (
	FrameConnected = "connected"
	FrameReady     = "ready"
	FrameError     = "error"
)

// ErrStreamRejected is reported when the relay could not subscribe to any
// event of the requested category.
var ErrStreamRejected = errors.New("relay rejected stream")

// HTTPStreams opens category streams against a relay server.
type HTTPStreams struct {
	BaseURL string
	Client  *sse.Client
	// Addresses narrows every stream to events involving them.
	Addresses []string
}

// NewHTTPStreams creates a stream opener for the relay at baseURL.
func NewHTTPStreams(baseURL string, client *sse.Client) *HTTPStreams {
	if client == nil {
		client = sse.NewClient(nil)
	}
	return &HTTPStreams{BaseURL: strings.TrimRight(baseURL, "/"), Client: client}
}

// Open implements StreamOpener.
func (s *HTTPStreams) Open(ctx context.Context, category domain.Category, h StreamHandlers) error {
	q := url.Values{"category": {string(category)}}
	for _, a := range s.Addresses {
		q.Add("address", a)
	}
	endpoint := s.BaseURL + "/api/events/stream?" + q.Encode()
	log := slog.Default().With("component", "feed", "category", category)

	// live is only touched from the subscribe goroutine.
	live := false
	markLive := func() {
		if !live {
			live = true
			if h.OnConnected != nil {
				h.OnConnected()
			}
		}
	}

	return s.Client.Subscribe(ctx, endpoint, sse.Handlers{
		OnClose: func(err error) {
			if live {
				live = false
				if h.OnDisconnected != nil {
					h.OnDisconnected()
				}
			}
		},
		OnFrame: func(f sse.Frame) error {
			var head struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			}
			if err := json.Unmarshal(f.Data, &head); err != nil {
				log.Debug("skip undecodable frame", "error", err)
				return sse.ErrControl
			}
			switch head.Type {
			case FrameConnected:
				return sse.ErrControl
			case FrameReady:
				markLive()
				return nil
			case FrameError:
				log.Warn("relay reported stream error", "message", head.Message)
				return fmt.Errorf("%w: %s", ErrStreamRejected, head.Message)
			}

			var ev domain.DomainEvent
			if err := json.Unmarshal(f.Data, &ev); err != nil {
				log.Debug("skip unknown frame", "type", head.Type, "error", err)
				return sse.ErrControl
			}
			markLive()
			if h.OnEvent != nil {
				h.OnEvent(ev)
			}
			return nil
		},
	})
}

// HTTPHistory fetches the backfill from a relay server.
type HTTPHistory struct {
	BaseURL string
	Blocks  uint64
	HTTP    *http.Client
	// Filter drops history events that involve none of its addresses.
	Filter filter.Filter
}

// FetchHistory implements HistoryFetcher.
func (h *HTTPHistory) FetchHistory(ctx context.Context) ([]domain.DomainEvent, error) {
	endpoint := strings.TrimRight(h.BaseURL, "/") + "/api/events/history"
	if h.Blocks > 0 {
		endpoint += "?blocks=" + strconv.FormatUint(h.Blocks, 10)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	client := h.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch history: http %d", resp.StatusCode)
	}

	var events []domain.DomainEvent
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return filter.Select(h.Filter, events), nil
}
