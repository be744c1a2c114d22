package sse

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRead_ParsesFrames(t *testing.T) {
	stream := ": ping\n\n" +
		"data: {\"a\":1}\n\n" +
		"event: custom\nid: 7\ndata: line1\ndata: line2\n\n" +
		"data: trailing-without-blank-line\n"

	var frames []Frame
	if err := read(strings.NewReader(stream), func(f Frame) error { frames = append(frames, f); return nil }); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d: %+v", len(frames), frames)
	}
	if string(frames[0].Data) != `{"a":1}` {
		t.Errorf("unexpected first frame: %q", frames[0].Data)
	}
	if frames[1].Event != "custom" || frames[1].ID != "7" || string(frames[1].Data) != "line1\nline2" {
		t.Errorf("unexpected second frame: %+v", frames[1])
	}
}

func TestClient_ReconnectsAfterServerClose(t *testing.T) {
	var conns atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := conns.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "data: frame-%d\n\n", n)
		w.(http.Flusher).Flush()
		if n >= 2 {
			<-r.Context().Done()
		}
	}))
	defer server.Close()

	client := NewClient(nil)
	client.BaseDelay = time.Millisecond
	client.MaxDelay = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	var frames []string
	var opens, closes atomic.Int32
	done := make(chan error, 1)

	go func() {
		done <- client.Subscribe(ctx, server.URL, Handlers{
			OnOpen: func() { opens.Add(1) },
			OnFrame: func(f Frame) error {
				mu.Lock()
				frames = append(frames, string(f.Data))
				n := len(frames)
				mu.Unlock()
				if n == 2 {
					cancel()
				}
				return nil
			},
			OnClose: func(error) { closes.Add(1) },
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("subscribe did not return after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(frames) != 2 || frames[0] != "frame-1" || frames[1] != "frame-2" {
		t.Errorf("unexpected frames: %v", frames)
	}
	if opens.Load() != 2 || closes.Load() != 2 {
		t.Errorf("expected 2 opens and 2 closes, got %d/%d", opens.Load(), closes.Load())
	}
}

func TestClient_PermanentRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown category", http.StatusBadRequest)
	}))
	defer server.Close()

	err := NewClient(nil).Subscribe(context.Background(), server.URL, Handlers{})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 StatusError, got %v", err)
	}
}

func TestClient_BacksOffWithoutProgress(t *testing.T) {
	var conns atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conns.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: hello\n\ndata: refused\n\n")
	}))
	defer server.Close()

	client := NewClient(nil)
	client.BaseDelay = 40 * time.Millisecond
	client.MaxDelay = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	var controls atomic.Int32
	err := client.Subscribe(ctx, server.URL, Handlers{
		OnFrame: func(f Frame) error {
			if string(f.Data) == "hello" {
				controls.Add(1)
				return ErrControl
			}
			return errors.New("stream refused")
		},
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	// 40, 80, 160 and 320ms waits leave room for about four connections.
	if n := conns.Load(); n < 2 || n > 6 {
		t.Errorf("expected backed-off reconnects, got %d connections", n)
	}
	if controls.Load() != conns.Load() {
		t.Errorf("control frame seen %d times over %d connections", controls.Load(), conns.Load())
	}
}

func TestClient_ProgressResetsBackoff(t *testing.T) {
	var conns atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conns.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: event\n\n")
	}))
	defer server.Close()

	client := NewClient(nil)
	client.BaseDelay = 20 * time.Millisecond
	client.MaxDelay = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()
	client.Subscribe(ctx, server.URL, Handlers{OnFrame: func(Frame) error { return nil }})

	// Every connection delivers a payload, so each wait stays at the base delay.
	if n := conns.Load(); n < 8 {
		t.Errorf("expected frequent reconnects after progress, got %d", n)
	}
}
