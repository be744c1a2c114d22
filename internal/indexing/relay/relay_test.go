package relay

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/gigwatch/internal/core/domain"
	"github.com/vietddude/gigwatch/internal/infra/chain"
)

type fakeSource struct {
	mu       sync.Mutex
	failing  map[domain.Kind]bool
	batches  map[domain.Kind]func([]domain.DomainEvent)
	watched  chan domain.Kind
	unsubs   map[domain.Kind]int
	active   atomic.Int64
	head     uint64
	history  map[domain.Kind][]domain.DomainEvent
	lastFrom uint64
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		failing: map[domain.Kind]bool{},
		batches: map[domain.Kind]func([]domain.DomainEvent){},
		watched: make(chan domain.Kind, 16),
		unsubs:  map[domain.Kind]int{},
		history: map[domain.Kind][]domain.DomainEvent{},
	}
}

func (f *fakeSource) LatestBlock(ctx context.Context) (uint64, error) { return f.head, nil }

func (f *fakeSource) FetchHistorical(ctx context.Context, kind domain.Kind, from, to uint64) ([]domain.DomainEvent, error) {
	f.mu.Lock()
	f.lastFrom = from
	f.mu.Unlock()
	if f.failing[kind] {
		return nil, errors.New("query failed")
	}
	return f.history[kind], nil
}

func (f *fakeSource) Watch(ctx context.Context, kind domain.Kind, onBatch func([]domain.DomainEvent)) (chain.Unsubscribe, error) {
	if f.failing[kind] {
		return nil, errors.New("subscribe failed")
	}
	f.mu.Lock()
	f.batches[kind] = onBatch
	f.mu.Unlock()
	f.active.Add(1)
	f.watched <- kind

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.unsubs[kind]++
			f.mu.Unlock()
			f.active.Add(-1)
		})
	}, nil
}

func (f *fakeSource) ActiveSubscriptions() int { return int(f.active.Load()) }

func (f *fakeSource) emit(kind domain.Kind, events ...domain.DomainEvent) {
	f.mu.Lock()
	fn := f.batches[kind]
	f.mu.Unlock()
	fn(events)
}

func bid(hash string) domain.DomainEvent {
	return domain.DomainEvent{
		Kind:            domain.KindBidPlaced,
		TransactionHash: hash,
		BlockNumber:     10,
		ObservedAt:      1000,
		Source:          domain.SourceLive,
		Payload:         domain.BidPlaced{JobID: 1, Worker: "0xw", Amount: big.NewInt(5)},
	}
}

func TestSession_TeardownIsIdempotent(t *testing.T) {
	rec := httptest.NewRecorder()
	s, err := NewSession(rec, domain.CategoryBids)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	var calls atomic.Int32
	s.Hold(func() { calls.Add(1) })
	s.Hold(func() { calls.Add(1) })

	s.Teardown()
	s.Teardown()

	if calls.Load() != 2 {
		t.Errorf("expected each unsubscribe once, got %d calls", calls.Load())
	}
	select {
	case <-s.Done():
	default:
		t.Error("Done should be closed")
	}

	s.Forward([]domain.DomainEvent{bid("0x1")})
	if rec.Body.Len() != 0 {
		t.Errorf("frames after teardown should be dropped, got %q", rec.Body.String())
	}

	s.Hold(func() { calls.Add(1) })
	if calls.Load() != 3 {
		t.Error("Hold after teardown should release immediately")
	}
}

func TestSession_ForwardFramesInOrder(t *testing.T) {
	rec := httptest.NewRecorder()
	s, _ := NewSession(rec, domain.CategoryBids)
	defer s.Teardown()

	s.Forward([]domain.DomainEvent{bid("0x1"), bid("0x2")})

	frames := strings.Split(strings.TrimSpace(rec.Body.String()), "\n\n")
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %q", rec.Body.String())
	}
	for i, want := range []string{"0x1", "0x2"} {
		var ev domain.DomainEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(frames[i], "data: ")), &ev); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if ev.TransactionHash != want {
			t.Errorf("frame %d: expected %s, got %s", i, want, ev.TransactionHash)
		}
	}
}

// brokenWriter accepts the connected and ready frames and fails every write after them.
type brokenWriter struct {
	header http.Header
	mu     sync.Mutex
	writes int
}

func (b *brokenWriter) Header() http.Header { return b.header }
func (b *brokenWriter) WriteHeader(int)     {}
func (b *brokenWriter) Flush()              {}
func (b *brokenWriter) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes++
	if b.writes > 2 {
		return 0, errors.New("broken pipe")
	}
	return len(p), nil
}

func TestStream_DisconnectDuringWrite(t *testing.T) {
	src := newFakeSource()
	h := NewHandler(src, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/events/stream?category=bids", nil)
	w := &brokenWriter{header: http.Header{}}

	done := make(chan struct{})
	go func() {
		h.Stream(w, req)
		close(done)
	}()

	select {
	case <-src.watched:
	case <-time.After(2 * time.Second):
		t.Fatal("watch never opened")
	}

	src.emit(domain.KindBidPlaced, bid("0x1"), bid("0x2"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close after write failure")
	}

	if n := src.ActiveSubscriptions(); n != 0 {
		t.Errorf("expected no open subscriptions, got %d", n)
	}
	if n := src.unsubs[domain.KindBidPlaced]; n != 1 {
		t.Errorf("expected exactly one unsubscribe, got %d", n)
	}
}

func readFrame(t *testing.T, r *bufio.Reader) map[string]any {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if data, ok := strings.CutPrefix(strings.TrimRight(line, "\n"), "data: "); ok {
			var m map[string]any
			if err := json.Unmarshal([]byte(data), &m); err != nil {
				t.Fatalf("decode frame %q: %v", data, err)
			}
			return m
		}
	}
}

func TestStream_PartialWatchFailure(t *testing.T) {
	src := newFakeSource()
	src.failing[domain.KindJobPosted] = true
	srv := httptest.NewServer(http.HandlerFunc(NewHandler(src, Options{}).Stream))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?category=all", nil)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("unexpected content type %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	hello := readFrame(t, r)
	if hello["type"] != "connected" || hello["category"] != "all" || hello["connectionId"] == "" {
		t.Fatalf("unexpected connected frame %v", hello)
	}
	if kinds, _ := hello["kinds"].([]any); len(kinds) != 5 {
		t.Errorf("expected 5 kinds, got %v", hello["kinds"])
	}

	for range 4 {
		select {
		case <-src.watched:
		case <-time.After(2 * time.Second):
			t.Fatal("remaining kinds were not watched")
		}
	}
	ready := readFrame(t, r)
	if kinds, _ := ready["kinds"].([]any); ready["type"] != "ready" || len(kinds) != 4 {
		t.Fatalf("expected ready frame with the 4 watched kinds, got %v", ready)
	}

	src.emit(domain.KindBidPlaced, bid("0xbid"))
	frame := readFrame(t, r)
	if frame["type"] != "BidPlaced" || frame["transactionHash"] != "0xbid" {
		t.Errorf("unexpected event frame %v", frame)
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for src.ActiveSubscriptions() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriptions leaked: %d", src.ActiveSubscriptions())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStream_AllWatchesFail(t *testing.T) {
	src := newFakeSource()
	src.failing[domain.KindJobPosted] = true
	srv := httptest.NewServer(http.HandlerFunc(NewHandler(src, Options{}).Stream))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "?category=jobs")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	r := bufio.NewReader(resp.Body)
	if f := readFrame(t, r); f["type"] != "connected" {
		t.Fatalf("expected connected frame first, got %v", f)
	}
	if f := readFrame(t, r); f["type"] != "error" || f["category"] != "jobs" {
		t.Fatalf("expected error frame, got %v", f)
	}
	if _, err := r.ReadString('\n'); err == nil {
		t.Error("expected stream to end after error frame")
	}
}

func TestStream_Heartbeat(t *testing.T) {
	src := newFakeSource()
	srv := httptest.NewServer(http.HandlerFunc(NewHandler(src, Options{Heartbeat: 10 * time.Millisecond}).Stream))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?category=reputation", nil)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	r := bufio.NewReader(resp.Body)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if line == ": ping\n" {
			return
		}
	}
}

func TestStream_BadCategory(t *testing.T) {
	h := NewHandler(newFakeSource(), Options{})
	rec := httptest.NewRecorder()
	h.Stream(rec, httptest.NewRequest(http.MethodGet, "/api/events/stream?category=nope", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHistory(t *testing.T) {
	src := newFakeSource()
	src.head = 500
	src.failing[domain.KindJobCancelled] = true
	src.history[domain.KindBidPlaced] = []domain.DomainEvent{bid("0xa")}
	h := NewHandler(src, Options{BackfillBlocks: 1000})

	rec := httptest.NewRecorder()
	h.History(rec, httptest.NewRequest(http.MethodGet, "/api/events/history?blocks=100", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var events []domain.DomainEvent
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 1 || events[0].TransactionHash != "0xa" {
		t.Errorf("unexpected history %+v", events)
	}
	if src.lastFrom != 400 {
		t.Errorf("expected window starting at 400, got %d", src.lastFrom)
	}

	rec = httptest.NewRecorder()
	h.History(rec, httptest.NewRequest(http.MethodGet, "/api/events/history?blocks=-1", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad blocks, got %d", rec.Code)
	}
}

func TestStream_AddressFilter(t *testing.T) {
	const worker = "0x00000000000000000000000000000000000000b2"
	src := newFakeSource()
	srv := httptest.NewServer(http.HandlerFunc(NewHandler(src, Options{}).Stream))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?category=bids&address="+worker, nil)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	r := bufio.NewReader(resp.Body)
	hello := readFrame(t, r)
	if addrs, _ := hello["addresses"].([]any); len(addrs) != 1 || addrs[0] != worker {
		t.Fatalf("unexpected addresses in connected frame %v", hello["addresses"])
	}
	select {
	case <-src.watched:
	case <-time.After(2 * time.Second):
		t.Fatal("bids were not watched")
	}
	if f := readFrame(t, r); f["type"] != "ready" {
		t.Fatalf("expected ready frame, got %v", f)
	}

	other := bid("0xother")
	mine := bid("0xmine")
	mine.Payload = domain.BidPlaced{JobID: 1, Worker: worker, Amount: big.NewInt(7)}
	src.emit(domain.KindBidPlaced, other, mine)

	frame := readFrame(t, r)
	if frame["transactionHash"] != "0xmine" {
		t.Errorf("expected only the matching bid, got %v", frame)
	}
}

func TestStream_BadAddress(t *testing.T) {
	h := NewHandler(newFakeSource(), Options{})
	rec := httptest.NewRecorder()
	h.Stream(rec, httptest.NewRequest(http.MethodGet, "/?category=bids&address=0x12", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
