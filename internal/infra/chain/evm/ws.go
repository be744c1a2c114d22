package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vietddude/gigwatch/internal/core/domain"
	"github.com/vietddude/gigwatch/internal/indexing/recovery"
)

const (
	wsSubscribeTimeout = 30 * time.Second
	wsWriteTimeout     = 10 * time.Second
)

type wsRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type wsMessage struct {
	ID     *uint64         `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Method string `json:"method"`
	Params *struct {
		Subscription string         `json:"subscription"`
		Result       map[string]any `json:"result"`
	} `json:"params"`
}

// wsSubscription is one eth_subscribe("logs") on its own connection.
// A dropped connection is redialed with backoff and the blocks missed
// meanwhile are fetched with eth_getLogs.
type wsSubscription struct {
	a       *Adapter
	kind    domain.Kind
	filter  map[string]any
	onBatch func([]domain.DomainEvent)

	ctx    context.Context
	cancel context.CancelFunc
	resub  *recovery.Resubscriber

	mu        sync.Mutex
	conn      *websocket.Conn
	subID     string
	writeMu   sync.Mutex
	closed    atomic.Bool
	lastBlock atomic.Uint64
}

// watchWS subscribes to contract logs over a dedicated websocket connection.
func (a *Adapter) watchWS(ctx context.Context, kind domain.Kind, onBatch func([]domain.DomainEvent)) (func(), error) {
	filter, err := a.contract.Filter(kind)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &wsSubscription{
		a:       a,
		kind:    kind,
		filter:  filter,
		onBatch: onBatch,
		ctx:     subCtx,
		cancel:  cancel,
		resub:   recovery.NewResubscriber(a.reconnect),
	}
	if err := sub.connect(ctx); err != nil {
		cancel()
		return nil, err
	}
	sub.resub.Connected()

	go sub.run()
	return sub.close, nil
}

// connect dials and subscribes, replacing the current connection.
func (s *wsSubscription) connect(ctx context.Context) error {
	conn, _, err := s.a.dialer.DialContext(ctx, s.a.opts.WSURL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	subID, err := s.subscribe(ctx, conn)
	if err != nil {
		conn.Close()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		conn.Close()
		return context.Canceled
	}
	s.conn, s.subID = conn, subID
	return nil
}

func (s *wsSubscription) current() (*websocket.Conn, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn, s.subID
}

func (s *wsSubscription) subscribe(ctx context.Context, conn *websocket.Conn) (string, error) {
	req := wsRequest{JSONRPC: "2.0", ID: 1, Method: "eth_subscribe", Params: []any{"logs", s.filter}}
	if err := s.write(conn, req); err != nil {
		return "", fmt.Errorf("write subscribe: %w", err)
	}

	deadline := time.Now().Add(wsSubscribeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})

	// Wait for subscription confirmation
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return "", fmt.Errorf("read subscribe confirmation: %w", err)
		}
		if msg.ID == nil || *msg.ID != req.ID {
			continue
		}
		if msg.Error != nil {
			return "", fmt.Errorf("eth_subscribe rejected %d: %s", msg.Error.Code, msg.Error.Message)
		}
		var subID string
		if err := json.Unmarshal(msg.Result, &subID); err != nil || subID == "" {
			return "", fmt.Errorf("invalid subscription id %s", string(msg.Result))
		}
		return subID, nil
	}
}

func (s *wsSubscription) write(conn *websocket.Conn, v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(v)
}

func (s *wsSubscription) close() {
	if s.closed.Swap(true) {
		return
	}
	s.cancel()

	conn, subID := s.current()
	if conn == nil {
		return
	}
	s.write(conn, wsRequest{JSONRPC: "2.0", ID: 2, Method: "eth_unsubscribe", Params: []any{subID}})

	s.writeMu.Lock()
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	conn.Close()
}

func (s *wsSubscription) run() {
	log := s.a.log.With("kind", s.kind)
	for {
		err := s.readLoop()
		if s.closed.Load() {
			return
		}
		log.Warn("log subscription dropped, resubscribing", "error", err)

		err = s.resub.Restore(s.ctx, func(ctx context.Context) error {
			dialCtx, cancel := context.WithTimeout(ctx, wsSubscribeTimeout)
			defer cancel()
			return s.connect(dialCtx)
		})
		if err != nil {
			if !s.closed.Load() {
				log.Error("log subscription lost", "error", err)
			}
			return
		}
		log.Info("log subscription restored")
		s.fillGap()
	}
}

func (s *wsSubscription) readLoop() error {
	conn, subID := s.current()
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		if msg.Method != "eth_subscription" || msg.Params == nil || msg.Params.Subscription != subID {
			continue
		}

		events, err := s.a.toEvents(s.kind, []any{msg.Params.Result}, 0, domain.SourceLive)
		if err != nil {
			s.a.log.Error("bad live log", "kind", s.kind, "error", err)
			continue
		}
		s.deliver(events)
	}
}

// fillGap fetches what was emitted between the last delivered block and
// the head. Logs of the last block may be delivered twice; the feed
// deduplicates by transaction hash.
func (s *wsSubscription) fillGap() {
	last := s.lastBlock.Load()
	if last == 0 {
		return
	}
	head, err := s.a.heads.LatestBlock(s.ctx)
	if err != nil || head < last {
		return
	}
	events, err := s.a.getLogsChunked(s.ctx, s.kind, last, head, 0, domain.SourceLive)
	if err != nil {
		s.a.log.Warn("gap fill failed", "kind", s.kind, "from", last, "to", head, "error", err)
		return
	}
	s.deliver(events)
}

func (s *wsSubscription) deliver(events []domain.DomainEvent) {
	if len(events) == 0 || s.closed.Load() {
		return
	}
	for _, ev := range events {
		if ev.BlockNumber > s.lastBlock.Load() {
			s.lastBlock.Store(ev.BlockNumber)
		}
	}
	s.onBatch(events)
}
