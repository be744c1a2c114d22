package evm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vietddude/gigwatch/internal/core/domain"
	"github.com/vietddude/gigwatch/internal/indexing/metrics"
	"github.com/vietddude/gigwatch/internal/indexing/normalize"
	"github.com/vietddude/gigwatch/internal/indexing/recovery"
	"github.com/vietddude/gigwatch/internal/indexing/throttle"
	"github.com/vietddude/gigwatch/internal/infra/chain"
	"github.com/vietddude/gigwatch/internal/infra/rpc"
)

// Options configures the EVM log source.
type Options struct {
	ContractAddress string
	// WSURL switches live watches from eth_getLogs polling to eth_subscribe.
	WSURL        string
	AvgBlockTime time.Duration
	PollInterval time.Duration
	HeadCacheTTL time.Duration
	// MaxBlockRange caps the span of one eth_getLogs call.
	MaxBlockRange uint64
	// Reconnect governs websocket resubscription.
	Reconnect recovery.Policy
}

// Adapter implements chain.LogSource for the marketplace contract.
type Adapter struct {
	client    rpc.RPCClient
	contract  *Contract
	heads     *chain.HeadCache
	opts      Options
	dialer    *websocket.Dialer
	throttle  *throttle.AdaptiveController
	reconnect recovery.Policy

	subs        atomic.Int64
	lastLatency atomic.Int64
	log         *slog.Logger
	now         func() time.Time
}

var _ chain.LogSource = (*Adapter)(nil)

// NewAdapter creates a log source reading through client.
func NewAdapter(client rpc.RPCClient, opts Options) (*Adapter, error) {
	contract, err := NewContract(opts.ContractAddress)
	if err != nil {
		return nil, err
	}
	if opts.AvgBlockTime <= 0 {
		opts.AvgBlockTime = 2 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 4 * time.Second
	}
	if opts.HeadCacheTTL <= 0 {
		opts.HeadCacheTTL = time.Second
	}
	if opts.Reconnect.Classifier == nil {
		opts.Reconnect.Classifier = recovery.RPCClassifier
	}

	throttleCfg := throttle.DefaultConfig()
	if opts.MaxBlockRange > 0 {
		throttleCfg.MaxBlockRange = opts.MaxBlockRange
		throttleCfg.MinBlockRange = min(throttleCfg.MinBlockRange, opts.MaxBlockRange)
	}

	a := &Adapter{
		client:    client,
		contract:  contract,
		opts:      opts,
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		throttle:  throttle.NewAdaptiveController(opts.PollInterval, throttleCfg),
		reconnect: opts.Reconnect,
		log:       slog.Default().With("component", "evm"),
		now:       time.Now,
	}
	a.heads = chain.NewHeadCache(a.fetchLatestBlock, opts.HeadCacheTTL)
	return a, nil
}

// Contract returns the bound marketplace contract.
func (a *Adapter) Contract() *Contract {
	return a.contract
}

// LatestBlock returns the chain head, cached for HeadCacheTTL.
func (a *Adapter) LatestBlock(ctx context.Context) (uint64, error) {
	return a.heads.LatestBlock(ctx)
}

func (a *Adapter) fetchLatestBlock(ctx context.Context) (uint64, error) {
	result, err := a.client.Execute(ctx, rpc.NewHTTPOperation("eth_blockNumber"))
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber failed: %w", err)
	}

	blockHex, ok := result.(string)
	if !ok {
		return 0, fmt.Errorf("invalid block number response")
	}

	head, err := parseHexString(blockHex)
	if err != nil {
		return 0, err
	}
	metrics.ChainLatestBlock.WithLabelValues(a.contract.Address.Hex()).Set(float64(head))
	return head, nil
}

// FetchHistorical returns events of kind in [from, to], oldest first.
func (a *Adapter) FetchHistorical(ctx context.Context, kind domain.Kind, from, to uint64) ([]domain.DomainEvent, error) {
	if err := chain.ValidateRange(kind, from, to); err != nil {
		return nil, fmt.Errorf("fetch %s [%d, %d]: %w", kind, from, to, err)
	}

	head, err := a.heads.LatestBlock(ctx)
	if err != nil {
		head = to
	}

	events, err := a.getLogsChunked(ctx, kind, from, to, head, domain.SourceHistorical)
	if err != nil {
		return nil, err
	}
	for i := range events {
		events[i].Source = domain.SourceHistorical
	}
	return events, nil
}

// Watch opens a live subscription for kind.
func (a *Adapter) Watch(ctx context.Context, kind domain.Kind, onBatch func([]domain.DomainEvent)) (chain.Unsubscribe, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("watch %q: %w", kind, domain.ErrUnknownKind)
	}

	var (
		stop func()
		err  error
	)
	if a.opts.WSURL != "" {
		stop, err = a.watchWS(ctx, kind, onBatch)
	} else {
		stop, err = a.watchPoll(ctx, kind, onBatch)
	}
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", kind, err)
	}

	a.subs.Add(1)
	metrics.ChainSubscriptions.Inc()

	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			a.subs.Add(-1)
			metrics.ChainSubscriptions.Dec()
		})
	}, nil
}

// ActiveSubscriptions reports open watches.
func (a *Adapter) ActiveSubscriptions() int {
	return int(a.subs.Load())
}

// getLogsChunked splits [from, to] into spans the provider accepts.
func (a *Adapter) getLogsChunked(ctx context.Context, kind domain.Kind, from, to, currentBlock uint64, source domain.Source) ([]domain.DomainEvent, error) {
	span := a.throttle.ComputeSpan(time.Duration(a.lastLatency.Load()))
	var events []domain.DomainEvent
	for _, r := range throttle.Chunks(from, to, span) {
		batch, err := a.getLogs(ctx, kind, r[0], r[1], currentBlock, source)
		if err != nil {
			return nil, err
		}
		events = append(events, batch...)
	}
	return events, nil
}

// getLogs fetches one span. source labels the logs metric.
func (a *Adapter) getLogs(ctx context.Context, kind domain.Kind, from, to, currentBlock uint64, source domain.Source) ([]domain.DomainEvent, error) {
	filter, err := a.contract.Filter(kind)
	if err != nil {
		return nil, err
	}
	filter["fromBlock"] = toHex(from)
	filter["toBlock"] = toHex(to)

	start := time.Now()
	result, err := a.client.Execute(ctx, rpc.NewHTTPOperation("eth_getLogs", filter))
	a.lastLatency.Store(int64(time.Since(start)))
	if err != nil {
		return nil, fmt.Errorf("eth_getLogs %s [%d, %d]: %w", kind, from, to, err)
	}
	if result == nil {
		return nil, nil
	}
	rawLogs, ok := result.([]any)
	if !ok {
		return nil, fmt.Errorf("invalid eth_getLogs response %T", result)
	}
	return a.toEvents(kind, rawLogs, currentBlock, source)
}

// toEvents decodes and normalizes raw JSON-RPC logs.
// Removed logs and logs of another event are dropped.
func (a *Adapter) toEvents(kind domain.Kind, rawLogs []any, currentBlock uint64, source domain.Source) ([]domain.DomainEvent, error) {
	wantTopic, err := a.contract.Topic(kind)
	if err != nil {
		return nil, err
	}

	now := a.now()
	events := make([]domain.DomainEvent, 0, len(rawLogs))
	for _, item := range rawLogs {
		rawMap, ok := item.(map[string]any)
		if !ok {
			continue
		}
		log, err := parseLog(rawMap)
		if err != nil {
			a.log.Warn("skip malformed log", "kind", kind, "error", err)
			continue
		}
		if log.Removed {
			a.log.Debug("drop removed log", "kind", kind, "tx", log.TxHash)
			continue
		}
		if len(log.Topics) == 0 || log.Topics[0] != strings.ToLower(wantTopic.Hex()) {
			continue
		}
		if err := a.contract.DecodeArgs(kind, &log); err != nil {
			a.log.Warn("partial log decode", "kind", kind, "tx", log.TxHash, "error", err)
		}

		ev, err := normalize.Normalize(kind, log, currentBlock, a.opts.AvgBlockTime, now)
		if err != nil {
			if errors.Is(err, normalize.ErrMissingTxHash) {
				return nil, err
			}
			continue
		}
		events = append(events, ev)
	}

	metrics.ChainLogsTotal.WithLabelValues(string(kind), string(source)).Add(float64(len(events)))
	return events, nil
}
