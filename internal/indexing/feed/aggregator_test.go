package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/gigwatch/internal/core/domain"
	"github.com/vietddude/gigwatch/internal/indexing/filter"
	"github.com/vietddude/gigwatch/internal/infra/sse"
)

type staticHistory struct {
	events []domain.DomainEvent
	err    error
}

func (s staticHistory) FetchHistory(ctx context.Context) ([]domain.DomainEvent, error) {
	return s.events, s.err
}

// scriptedStreams fails the categories listed in failing and, for every
// other category, connects and replays its events before blocking.
type scriptedStreams struct {
	failing map[domain.Category]bool
	events  map[domain.Category][]domain.DomainEvent
}

func (s *scriptedStreams) Open(ctx context.Context, category domain.Category, h StreamHandlers) error {
	if s.failing[category] {
		return errors.New("connection refused")
	}
	h.OnConnected()
	for _, ev := range s.events[category] {
		h.OnEvent(ev)
	}
	<-ctx.Done()
	return ctx.Err()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAggregator_CategoryIsolation(t *testing.T) {
	streams := &scriptedStreams{
		failing: map[domain.Category]bool{domain.CategoryJobs: true},
		events: map[domain.Category][]domain.DomainEvent{
			domain.CategoryBids: {bidPlaced("b1", 300), bidPlaced("b2", 400)},
		},
	}
	history := staticHistory{events: []domain.DomainEvent{jobPosted("h1", 100, 5, domain.SourceHistorical)}}

	agg := NewAggregator(history, streams, Options{
		Categories: []domain.Category{domain.CategoryJobs, domain.CategoryBids},
		MaxEvents:  10,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- agg.Run(ctx) }()

	waitFor(t, func() bool { return len(agg.Snapshot().Events) == 3 })

	snap := agg.Snapshot()
	if snap.Connected[domain.CategoryJobs] {
		t.Error("jobs stream should be disconnected")
	}
	if !snap.Connected[domain.CategoryBids] || !snap.IsConnected {
		t.Error("bids stream should stay connected while jobs fails")
	}
	if snap.Counts[domain.CategoryBids] != 2 || snap.Counts[domain.CategoryJobs] != 0 {
		t.Errorf("unexpected counts %v", snap.Counts)
	}
	if got := hashes(snap.Events); got[0] != "b2" || got[2] != "h1" {
		t.Errorf("expected [b2 b1 h1], got %v", got)
	}
	if got := hashes(snap.Filter(domain.CategoryBids)); len(got) != 2 {
		t.Errorf("expected 2 bids, got %v", got)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if agg.Snapshot().IsConnected {
		t.Error("every stream should be disconnected after Run returns")
	}
}

func TestAggregator_HistoryFailureKeepsLive(t *testing.T) {
	streams := &scriptedStreams{events: map[domain.Category][]domain.DomainEvent{
		domain.CategoryBids: {bidPlaced("b1", 1)},
	}}
	agg := NewAggregator(staticHistory{err: errors.New("boom")}, streams, Options{
		Categories: []domain.Category{domain.CategoryBids},
	})

	var mu sync.Mutex
	var live []string
	agg.OnEvent(func(ev domain.DomainEvent) {
		mu.Lock()
		live = append(live, ev.TransactionHash)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go agg.Run(ctx)

	waitFor(t, func() bool { return len(agg.Snapshot().Events) == 1 })

	mu.Lock()
	defer mu.Unlock()
	if len(live) != 1 || live[0] != "b1" {
		t.Errorf("expected live callback for b1, got %v", live)
	}
}

func TestAggregator_SubscribeSeesUpdatesInOrder(t *testing.T) {
	streams := &scriptedStreams{events: map[domain.Category][]domain.DomainEvent{
		domain.CategoryBids: {bidPlaced("b1", 1), bidPlaced("b2", 2), bidPlaced("b3", 3)},
	}}
	agg := NewAggregator(nil, streams, Options{Categories: []domain.Category{domain.CategoryBids}})

	var mu sync.Mutex
	var sizes []int
	cancelSub := agg.Subscribe(func(s Snapshot) {
		mu.Lock()
		sizes = append(sizes, len(s.Events))
		mu.Unlock()
	})
	defer cancelSub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go agg.Run(ctx)

	waitFor(t, func() bool { return len(agg.Snapshot().Events) == 3 })

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(sizes); i++ {
		if sizes[i] < sizes[i-1] {
			t.Fatalf("snapshot sizes went backwards: %v", sizes)
		}
	}
}

func TestAggregator_LiveDuplicateReplacesHistorical(t *testing.T) {
	streams := &scriptedStreams{events: map[domain.Category][]domain.DomainEvent{
		domain.CategoryJobs: {jobPosted("B", 200, 999, domain.SourceLive)},
	}}
	history := staticHistory{events: []domain.DomainEvent{
		jobPosted("A", 100, 1, domain.SourceHistorical),
		jobPosted("B", 90, 1, domain.SourceHistorical),
		jobPosted("C", 80, 1, domain.SourceHistorical),
	}}
	agg := NewAggregator(history, streams, Options{
		Categories: []domain.Category{domain.CategoryJobs},
		MaxEvents:  3,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go agg.Run(ctx)

	waitFor(t, func() bool {
		events := agg.Snapshot().Events
		return len(events) == 3 && events[0].TransactionHash == "B"
	})
	if got := hashes(agg.Snapshot().Events); got[1] != "A" || got[2] != "C" {
		t.Errorf("expected [B A C], got %v", got)
	}
}

func TestHTTPStreams_DecodesRelayFrames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("category") != "bids" {
			http.Error(w, "bad category", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"type\":\"connected\",\"category\":\"bids\"}\n\n"))
		w.Write([]byte("data: {\"type\":\"ready\",\"category\":\"bids\",\"kinds\":[\"BidPlaced\"]}\n\n"))
		w.Write([]byte(": ping\n\n"))
		w.Write([]byte("data: {\"type\":\"Mystery\"}\n\n"))
		w.Write([]byte("data: {\"type\":\"BidPlaced\",\"jobId\":\"7\",\"worker\":\"0xabc\",\"amount\":\"42\",\"transactionHash\":\"0x1\",\"observedAt\":5}\n\n"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan domain.DomainEvent, 1)
	connected := make(chan struct{}, 1)
	streams := NewHTTPStreams(srv.URL+"/", sse.NewClient(srv.Client()))
	go streams.Open(ctx, domain.CategoryBids, StreamHandlers{
		OnConnected:    func() { connected <- struct{}{} },
		OnDisconnected: func() {},
		OnEvent:        func(ev domain.DomainEvent) { got <- ev },
	})

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("stream never connected")
	}
	select {
	case ev := <-got:
		bid, ok := ev.Payload.(domain.BidPlaced)
		if !ok || bid.JobID != 7 || bid.Amount.Int64() != 42 || ev.TransactionHash != "0x1" {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
}

func TestAggregator_RejectedStreamBacksOffAndStaysDisconnected(t *testing.T) {
	var jobsRequests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		category := r.URL.Query().Get("category")
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"type\":\"connected\",\"category\":\"" + category + "\"}\n\n"))
		if category == "jobs" {
			jobsRequests.Add(1)
			w.Write([]byte("data: {\"type\":\"error\",\"category\":\"jobs\",\"message\":\"failed to subscribe to contract events\"}\n\n"))
			return
		}
		w.Write([]byte("data: {\"type\":\"ready\",\"category\":\"bids\",\"kinds\":[\"BidPlaced\"]}\n\n"))
		w.Write([]byte("data: {\"type\":\"BidPlaced\",\"jobId\":\"1\",\"worker\":\"0xw\",\"amount\":\"5\",\"transactionHash\":\"0xb\",\"observedAt\":10}\n\n"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := sse.NewClient(srv.Client())
	client.BaseDelay = 50 * time.Millisecond
	client.MaxDelay = time.Second
	agg := NewAggregator(nil, NewHTTPStreams(srv.URL, client), Options{
		Categories: []domain.Category{domain.CategoryJobs, domain.CategoryBids},
		MaxEvents:  10,
	})

	var jobsConnected atomic.Int32
	cancelSub := agg.Subscribe(func(s Snapshot) {
		if s.Connected[domain.CategoryJobs] {
			jobsConnected.Add(1)
		}
	})
	defer cancelSub()

	ctx, cancel := context.WithTimeout(context.Background(), 600*time.Millisecond)
	defer cancel()
	agg.Run(ctx)

	// 50, 100, 200 and 400ms waits fit about four attempts in the window.
	if n := jobsRequests.Load(); n < 1 || n > 8 {
		t.Errorf("expected a handful of backed-off jobs requests, got %d", n)
	}
	if n := jobsConnected.Load(); n != 0 {
		t.Errorf("jobs reported connected in %d snapshots", n)
	}
	snap := agg.Snapshot()
	if snap.Counts[domain.CategoryBids] != 1 {
		t.Errorf("expected the bids event to be delivered, counts %v", snap.Counts)
	}
}

func TestHTTPHistory_FetchHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/events/history" || r.URL.Query().Get("blocks") != "250" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"type":"JobCancelled","jobId":"3","employer":"0xe","transactionHash":"0x9","blockNumber":12,"observedAt":1000,"source":"historical"}]`))
	}))
	defer srv.Close()

	h := &HTTPHistory{BaseURL: srv.URL, Blocks: 250, HTTP: srv.Client()}
	events, err := h.FetchHistory(context.Background())
	if err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}
	if len(events) != 1 || events[0].Kind != domain.KindJobCancelled || events[0].Source != domain.SourceHistorical {
		t.Fatalf("unexpected events %+v", events)
	}

	others := filter.NewMemoryFilter()
	others.Add("0x00000000000000000000000000000000000000a1")
	narrowed := &HTTPHistory{BaseURL: srv.URL, Blocks: 250, HTTP: srv.Client(), Filter: others}
	if events, err := narrowed.FetchHistory(context.Background()); err != nil || len(events) != 0 {
		t.Fatalf("expected filtered history to be empty, got %+v, %v", events, err)
	}

	bad := &HTTPHistory{BaseURL: srv.URL, Blocks: 1, HTTP: srv.Client()}
	if _, err := bad.FetchHistory(context.Background()); err == nil {
		t.Error("expected error on 404")
	}
}

func TestNotifier_CancelIsIdempotent(t *testing.T) {
	var n Notifier[int]
	var got []int
	cancel := n.Subscribe(func(v int) { got = append(got, v) })
	n.Subscribe(func(v int) { got = append(got, v*10) })

	n.Publish(1)
	cancel()
	cancel()
	n.Publish(2)

	if n.Len() != 1 {
		t.Errorf("expected 1 subscriber, got %d", n.Len())
	}
	want := []int{1, 10, 20}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
