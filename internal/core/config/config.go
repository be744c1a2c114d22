package config

import (
	"time"

	redisclient "github.com/vietddude/gigwatch/internal/infra/redis"
	"github.com/vietddude/gigwatch/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Chain    ChainConfig        `yaml:"chain"`
	Feed     FeedConfig         `yaml:"feed"`
	Cache    CacheConfig        `yaml:"cache"`
	Redis    redisclient.Config `yaml:"redis"`
	Database postgres.Config    `yaml:"database"`
	LLM      LLMConfig          `yaml:"llm"`
	Logging  LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port              int           `yaml:"port"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"` // 0 disables SSE heartbeats
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ChainConfig holds settings for the marketplace chain and contract.
type ChainConfig struct {
	ChainID         string           `yaml:"id"`
	ContractAddress string           `yaml:"contract_address"`
	WSURL           string           `yaml:"ws_url"` // empty = poll eth_getLogs
	AvgBlockTime    time.Duration    `yaml:"avg_block_time"`
	PollInterval    time.Duration    `yaml:"poll_interval"`
	BackfillBlocks  uint64           `yaml:"backfill_blocks"`
	HeadCacheTTL    time.Duration    `yaml:"head_cache_ttl"`
	MaxBlockRange   uint64           `yaml:"max_block_range"` // eth_getLogs span cap
	Reconnect       ReconnectConfig  `yaml:"reconnect"`
	Providers       []ProviderConfig `yaml:"providers"`
}

// ReconnectConfig bounds websocket resubscription after a dropped connection.
type ReconnectConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	MaxAttempts  int           `yaml:"max_attempts"` // per outage, negative = unlimited
	StableAfter  time.Duration `yaml:"stable_after"` // uptime that resets the backoff
}

// ProviderConfig holds settings for an RPC provider.
type ProviderConfig struct {
	Name    string        `yaml:"name"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// FeedConfig controls the client-side aggregator.
type FeedConfig struct {
	MaxEvents  int    `yaml:"max_events"`
	BufferSize int    `yaml:"buffer_size"`
	ServerURL  string `yaml:"server_url"`
}

// CacheConfig controls read-model caching.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// LLMConfig holds the text generation service settings.
type LLMConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Models  []string      `yaml:"models"`
	Timeout time.Duration `yaml:"timeout"`
}
