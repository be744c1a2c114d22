// Package routing handles provider selection and failover logic.
//
// This package contains:
//   - Router: interface for provider selection and health tracking
//   - DefaultRouter: round-robin implementation with circuit breaker
//   - Retry: retry logic with exponential backoff and failover
package routing

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/gigwatch/internal/infra/rpc/provider"
)

// ErrNoProviders is returned when a chain has no usable provider.
var ErrNoProviders = errors.New("no providers available")

// Router handles provider selection and health tracking.
type Router interface {
	// AddProvider registers a provider for a specific chain
	AddProvider(chainID string, p provider.Provider)

	// GetProvider returns the next available provider for a chain
	GetProvider(chainID string) (provider.Provider, error)

	// GetAllProviders returns providers for a chain, healthy ones first
	GetAllProviders(chainID string) []provider.Provider

	// RecordSuccess tracks successful calls
	RecordSuccess(providerName string, latency time.Duration)

	// RecordFailure tracks failed calls
	RecordFailure(providerName string, err error)
}

type providerMetrics struct {
	successCount     int
	failureCount     int
	totalLatency     time.Duration
	lastSuccessAt    time.Time
	lastFailureAt    time.Time
	consecutiveFails int
	circuitOpen      bool
	openedAt         time.Time
}

// DefaultRouter implements round-robin provider selection with a circuit breaker.
type DefaultRouter struct {
	mu             sync.RWMutex
	chainProviders map[string][]provider.Provider
	providerHealth map[string]*providerMetrics
	next           map[string]int

	failureThreshold int
	cooldown         time.Duration
	now              func() time.Time
}

// NewRouter creates a new router.
func NewRouter() *DefaultRouter {
	return &DefaultRouter{
		chainProviders:   make(map[string][]provider.Provider),
		providerHealth:   make(map[string]*providerMetrics),
		next:             make(map[string]int),
		failureThreshold: 5,
		cooldown:         30 * time.Second,
		now:              time.Now,
	}
}

// AddProvider registers a provider for a chain.
func (r *DefaultRouter) AddProvider(chainID string, p provider.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.chainProviders[chainID] = append(r.chainProviders[chainID], p)
	r.providerHealth[p.GetName()] = &providerMetrics{
		lastSuccessAt: r.now(),
	}
}

// GetProvider returns the next usable provider for a chain in round-robin order.
func (r *DefaultRouter) GetProvider(chainID string) (provider.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	providers := r.chainProviders[chainID]
	if len(providers) == 0 {
		return nil, fmt.Errorf("chain %s: %w", chainID, ErrNoProviders)
	}

	start := r.next[chainID]
	for i := 0; i < len(providers); i++ {
		idx := (start + i) % len(providers)
		p := providers[idx]
		if r.usableLocked(p) {
			r.next[chainID] = (idx + 1) % len(providers)
			return p, nil
		}
	}
	return nil, fmt.Errorf("chain %s: %w", chainID, ErrNoProviders)
}

// GetAllProviders returns usable providers first, then the rest.
// Failover still gets a last resort when every circuit is open.
func (r *DefaultRouter) GetAllProviders(chainID string) []provider.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := r.chainProviders[chainID]
	result := make([]provider.Provider, 0, len(providers))
	var rest []provider.Provider
	for _, p := range providers {
		if r.usableLocked(p) {
			result = append(result, p)
		} else {
			rest = append(rest, p)
		}
	}
	return append(result, rest...)
}

func (r *DefaultRouter) usableLocked(p provider.Provider) bool {
	if !p.IsAvailable() {
		return false
	}
	m, ok := r.providerHealth[p.GetName()]
	if !ok || !m.circuitOpen {
		return true
	}
	// Half-open after cooldown
	return r.now().Sub(m.openedAt) >= r.cooldown
}

// RecordSuccess records a successful call.
func (r *DefaultRouter) RecordSuccess(providerName string, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	metrics, ok := r.providerHealth[providerName]
	if !ok {
		return
	}

	metrics.successCount++
	metrics.totalLatency += latency
	metrics.lastSuccessAt = r.now()
	metrics.consecutiveFails = 0
	metrics.circuitOpen = false
}

// RecordFailure records a failed call.
func (r *DefaultRouter) RecordFailure(providerName string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	metrics, ok := r.providerHealth[providerName]
	if !ok {
		return
	}

	metrics.failureCount++
	metrics.lastFailureAt = r.now()
	metrics.consecutiveFails++

	if metrics.consecutiveFails >= r.failureThreshold {
		metrics.circuitOpen = true
		metrics.openedAt = r.now()
	}
}

// CircuitOpen reports whether the named provider's circuit is open.
func (r *DefaultRouter) CircuitOpen(providerName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.providerHealth[providerName]
	return ok && m.circuitOpen
}
