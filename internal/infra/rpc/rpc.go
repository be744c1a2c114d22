// Package rpc provides a resilient JSON-RPC client for EVM networks.
//
// This package offers:
//   - Multiple provider support with round-robin selection
//   - Automatic retry and failover
//   - Health and rate-limit monitoring
//
// # Quick Start
//
//	router := rpc.NewRouter()
//	router.AddProvider("31337", rpc.NewHTTPProvider("local", url, 10*time.Second))
//	client := rpc.NewClient("31337", router)
//
//	result, err := client.Call(ctx, "eth_blockNumber", nil)
//
// # Package Structure
//
//   - provider/ - HTTPProvider and monitoring
//   - routing/  - provider selection, circuit breaker, retry logic
//
// Most types are re-exported at the root level for convenience.
package rpc

import (
	"context"
	"time"

	"github.com/vietddude/gigwatch/internal/infra/rpc/provider"
	"github.com/vietddude/gigwatch/internal/infra/rpc/routing"
)

// RPCClient is what chain adapters depend on.
type RPCClient interface {
	Execute(ctx context.Context, op Operation) (any, error)
}

var _ RPCClient = (*Client)(nil)

// Provider is the core interface for RPC endpoints.
type Provider = provider.Provider

// HTTPProvider implements Provider for JSON-RPC over HTTP.
type HTTPProvider = provider.HTTPProvider

// MonitorStats holds monitoring statistics for a provider.
type MonitorStats = provider.MonitorStats

// Operation represents an RPC operation to execute.
type Operation = provider.Operation

// Router handles provider selection and health tracking.
type Router = routing.Router

// DefaultRouter implements provider selection with circuit breaker.
type DefaultRouter = routing.DefaultRouter

// RetryConfig defines retry behavior.
type RetryConfig = routing.RetryConfig

// DefaultRetryConfig provides sensible retry defaults.
var DefaultRetryConfig = routing.DefaultRetryConfig

// NewHTTPProvider creates a new HTTP-based RPC provider.
func NewHTTPProvider(name, endpoint string, timeout time.Duration) *HTTPProvider {
	return provider.NewHTTPProvider(name, endpoint, timeout)
}

// NewRouter creates a new router.
func NewRouter() *DefaultRouter {
	return routing.NewRouter()
}

// NewHTTPOperation builds a JSON-RPC operation.
func NewHTTPOperation(method string, params ...any) Operation {
	return Operation{Name: method, Params: params}
}
