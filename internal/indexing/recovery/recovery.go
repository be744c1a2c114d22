// Package recovery re-establishes failed live subscriptions with backoff.
package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/vietddude/gigwatch/internal/core/config"
	"github.com/vietddude/gigwatch/internal/infra/rpc/routing"
)

// FailureCategory separates failures worth retrying from the rest.
type FailureCategory int

const (
	CategoryTransient FailureCategory = iota
	CategoryPermanent
)

// Classifier maps an error to a FailureCategory.
type Classifier func(err error) FailureCategory

// RPCClassifier treats JSON-RPC errors the router would not retry
// (parse errors, unknown methods, bad params) as permanent.
func RPCClassifier(err error) FailureCategory {
	if routing.ClassifyError(err) == routing.ActionFatal {
		return CategoryPermanent
	}
	return CategoryTransient
}

// Policy bounds how a dropped subscription is brought back.
type Policy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// MaxAttempts bounds one outage; 0 retries until the context ends.
	MaxAttempts   int
	JitterPercent uint64
	// StableAfter is how long a connection must stay up before the
	// backoff starts over.
	StableAfter time.Duration
	Classifier  Classifier
}

// DefaultPolicy: 1s, 2s, 4s, ... capped at 60s with 10% jitter, 10 attempts per outage.
func DefaultPolicy() Policy {
	return Policy{
		InitialDelay:  time.Second,
		MaxDelay:      60 * time.Second,
		MaxAttempts:   10,
		JitterPercent: 10,
		StableAfter:   30 * time.Second,
		Classifier:    RPCClassifier,
	}
}

// PolicyFromConfig builds the websocket resubscribe policy from chain.reconnect.
func PolicyFromConfig(c config.ReconnectConfig) Policy {
	p := DefaultPolicy()
	if c.InitialDelay > 0 {
		p.InitialDelay = c.InitialDelay
	}
	if c.MaxDelay > 0 {
		p.MaxDelay = c.MaxDelay
	}
	if c.MaxAttempts != 0 {
		p.MaxAttempts = max(c.MaxAttempts, 0)
	}
	if c.StableAfter > 0 {
		p.StableAfter = c.StableAfter
	}
	return p
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.InitialDelay <= 0 {
		p.InitialDelay = d.InitialDelay
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = max(d.MaxDelay, p.InitialDelay)
	}
	if p.Classifier == nil {
		p.Classifier = func(error) FailureCategory { return CategoryTransient }
	}
	return p
}

// Backoff returns an unbounded exponential backoff for p.
func (p Policy) Backoff() retry.Backoff {
	p = p.withDefaults()
	b := retry.NewExponential(p.InitialDelay)
	if p.JitterPercent > 0 {
		b = retry.WithJitterPercent(p.JitterPercent, b)
	}
	return retry.WithCappedDuration(p.MaxDelay, b)
}

// Retry calls attempt until it succeeds, fails permanently, runs out of
// attempts or ctx ends.
func Retry(ctx context.Context, p Policy, attempt func(ctx context.Context) error) error {
	return retryWith(ctx, p.withDefaults(), p.Backoff(), attempt)
}

func retryWith(ctx context.Context, p Policy, b retry.Backoff, attempt func(ctx context.Context) error) error {
	if p.MaxAttempts > 0 {
		b = retry.WithMaxRetries(uint64(p.MaxAttempts-1), b)
	}

	attempts := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempts++
		err := attempt(ctx)
		if err == nil || p.Classifier(err) == CategoryPermanent {
			return err
		}
		return retry.RetryableError(err)
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, err)
}

// Resubscriber restores one live subscription after each drop. The backoff
// carries over between drops until a connection has stayed up for
// StableAfter, so a subscription that fails right after connecting slows
// down instead of reconnecting in a tight loop. Not safe for concurrent use.
type Resubscriber struct {
	policy  Policy
	backoff retry.Backoff
	upSince time.Time
	now     func() time.Time
}

// NewResubscriber creates a Resubscriber following p.
func NewResubscriber(p Policy) *Resubscriber {
	return &Resubscriber{policy: p.withDefaults(), now: time.Now}
}

// Connected records that the subscription is up.
func (r *Resubscriber) Connected() {
	r.upSince = r.now()
}

// Restore runs connect until it succeeds. After an unstable connection it
// first waits out the next backoff step.
func (r *Resubscriber) Restore(ctx context.Context, connect func(ctx context.Context) error) error {
	if r.backoff == nil || r.stable() {
		r.backoff = r.policy.Backoff()
	} else if err := wait(ctx, r.backoff); err != nil {
		return err
	}

	if err := retryWith(ctx, r.policy, r.backoff, connect); err != nil {
		return err
	}
	r.Connected()
	return nil
}

func (r *Resubscriber) stable() bool {
	return !r.upSince.IsZero() && r.now().Sub(r.upSince) >= r.policy.StableAfter
}

func wait(ctx context.Context, b retry.Backoff) error {
	d, stop := b.Next()
	if stop {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
