package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RelayConnections tracks open SSE relay sessions per category
	RelayConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gigwatch_relay_connections",
			Help: "Number of open event stream connections",
		},
		[]string{"category"},
	)

	// RelayFramesTotal tracks event frames written to relay clients
	RelayFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gigwatch_relay_frames_total",
			Help: "Total number of event frames written to stream clients",
		},
		[]string{"kind"},
	)

	// RelayWriteErrorsTotal tracks swallowed write failures
	RelayWriteErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gigwatch_relay_write_errors_total",
			Help: "Total number of failed frame writes",
		},
	)

	// ChainSubscriptions tracks open log subscriptions
	ChainSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gigwatch_chain_subscriptions",
			Help: "Number of open contract log subscriptions",
		},
	)

	// ChainLogsTotal tracks logs delivered by the chain adapter
	ChainLogsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gigwatch_chain_logs_total",
			Help: "Total number of contract logs received",
		},
		[]string{"kind", "source"},
	)

	// ChainLatestBlock tracks the latest block height seen
	ChainLatestBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gigwatch_chain_latest_block",
			Help: "Latest block height of the chain",
		},
		[]string{"chain"},
	)

	// RPCCallsTotal tracks RPC calls per provider
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gigwatch_rpc_calls_total",
			Help: "Total number of RPC calls",
		},
		[]string{"provider", "method"},
	)

	// RPCErrorsTotal tracks RPC errors per provider
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gigwatch_rpc_errors_total",
			Help: "Total number of RPC errors",
		},
		[]string{"provider", "error_type"},
	)

	// RPCLatency tracks RPC call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gigwatch_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "method"},
	)

	// ReadModelCacheTotal tracks read-model cache lookups by result (hit, miss, error)
	ReadModelCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gigwatch_readmodel_cache_total",
			Help: "Total number of read-model cache lookups",
		},
		[]string{"query", "result"},
	)

	// LLMRequestsTotal tracks text generation requests by model and outcome
	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gigwatch_llm_requests_total",
			Help: "Total number of text generation requests",
		},
		[]string{"model", "outcome"},
	)
)

var (
	// DBConnectionPoolUsage tracks the percentage of open connections in use
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gigwatch_db_connection_pool_usage",
			Help: "Database connection pool usage percentage",
		},
	)

	// DBBatchSize tracks rows written per batch insert
	DBBatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gigwatch_db_batch_size",
			Help:    "Rows written per batch insert",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
		},
		[]string{"operation"},
	)
)
