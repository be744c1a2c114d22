package rpc

import (
	"context"
	"fmt"
	"strings"

	"github.com/vietddude/gigwatch/internal/infra/rpc/provider"
	"github.com/vietddude/gigwatch/internal/infra/rpc/routing"
)

// Client is the high-level interface for making RPC calls.
// This is what application layers should use.
type Client struct {
	router  routing.Router
	chainID string
	retry   routing.RetryConfig
}

// NewClient creates a new RPC client for one chain.
func NewClient(chainID string, router routing.Router) *Client {
	return &Client{
		chainID: chainID,
		router:  router,
		retry:   routing.DefaultRetryConfig,
	}
}

// WithRetryConfig overrides the retry policy.
func (c *Client) WithRetryConfig(cfg routing.RetryConfig) *Client {
	c.retry = cfg
	return c
}

// Execute runs an operation with retry and failover across providers.
func (c *Client) Execute(ctx context.Context, op Operation) (any, error) {
	return routing.CallWithRetryAndFailover(ctx, c.router, c.chainID, op, c.retry)
}

// Call makes a JSON-RPC call with automatic failover and retry.
func (c *Client) Call(ctx context.Context, method string, params []any) (any, error) {
	return c.Execute(ctx, NewHTTPOperation(method, params...))
}

// ChainID returns the chain this client talks to.
func (c *Client) ChainID() string {
	return c.chainID
}

// GetProviderStats returns monitoring stats for all providers.
func (c *Client) GetProviderStats() map[string]provider.MonitorStats {
	providers := c.router.GetAllProviders(c.chainID)
	stats := make(map[string]provider.MonitorStats)

	for _, p := range providers {
		if httpProv, ok := p.(*provider.HTTPProvider); ok {
			stats[p.GetName()] = httpProv.Monitor.GetStats()
		}
	}

	return stats
}

// Dashboard returns a formatted provider status table.
func (c *Client) Dashboard() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("\n=== RPC Providers (Chain: %s) ===\n\n", c.chainID))

	for _, p := range c.router.GetAllProviders(c.chainID) {
		httpProv, ok := p.(*provider.HTTPProvider)
		if !ok {
			continue
		}

		stats := httpProv.Monitor.GetStats()
		sb.WriteString(fmt.Sprintf("Provider: %s\n", p.GetName()))
		sb.WriteString(fmt.Sprintf("  Status: %s\n", stats.Status))
		sb.WriteString(fmt.Sprintf("  Avg Latency: %v\n", stats.AverageLatency))
		sb.WriteString(fmt.Sprintf("  429 Errors: %d\n", stats.ThrottleCount429))
		sb.WriteString(fmt.Sprintf("  403 Errors: %d\n", stats.ThrottleCount403))
		if stats.RetryAfter > 0 {
			sb.WriteString(fmt.Sprintf("  Retry After: %v\n", stats.RetryAfter))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
