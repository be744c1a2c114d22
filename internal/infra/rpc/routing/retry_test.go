package routing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/gigwatch/internal/infra/rpc/provider"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err    error
		expect ErrorAction
	}{
		{errors.New("429 Too Many Requests"), ActionFailover},
		{errors.New("project rate limit exceeded"), ActionFailover},
		{errors.New("quota exceeded"), ActionFailover},
		{errors.New("daily request count exceeded"), ActionFailover},
		{errors.New("403 Forbidden"), ActionFailover},
		{errors.New("Invalid JSON-RPC request -32600"), ActionFatal},
		{errors.New("Method not found -32601"), ActionFatal},
		{errors.New("Parse error -32700"), ActionFatal},
		{errors.New("rpc error 3: execution reverted"), ActionFatal},
		{errors.New("connection reset by peer"), ActionRetry},
		{errors.New("timeout"), ActionRetry},
		{errors.New("500 Internal Server Error"), ActionRetry},
	}

	for _, tt := range tests {
		if got := ClassifyError(tt.err); got != tt.expect {
			t.Errorf("ClassifyError(%q) = %v, want %v", tt.err, got, tt.expect)
		}
	}
}

type stubProvider struct {
	name      string
	errs      []error
	available bool
	calls     int
}

func (s *stubProvider) GetName() string                  { return s.name }
func (s *stubProvider) GetHealth() provider.HealthStatus { return provider.HealthStatus{} }
func (s *stubProvider) IsAvailable() bool                { return s.available }
func (s *stubProvider) Close() error                     { return nil }

func (s *stubProvider) Execute(ctx context.Context, op provider.Operation) (any, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return s.name, nil
}

var fastRetry = RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiple: 1}

func TestCallWithRetry_RecoversFromTransientError(t *testing.T) {
	p := &stubProvider{name: "a", available: true, errs: []error{errors.New("connection reset")}}

	got, err := CallWithRetry(context.Background(), p, provider.Operation{Name: "eth_blockNumber"}, fastRetry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "a" || p.calls != 2 {
		t.Errorf("expected success on second call, got %v after %d calls", got, p.calls)
	}
}

func TestCallWithRetry_StopsOnFatal(t *testing.T) {
	p := &stubProvider{name: "a", available: true, errs: []error{errors.New("rpc error -32602: invalid params")}}

	if _, err := CallWithRetry(context.Background(), p, provider.Operation{}, fastRetry); err == nil {
		t.Fatal("expected error")
	}
	if p.calls != 1 {
		t.Errorf("fatal errors must not be retried, got %d calls", p.calls)
	}
}

func TestCallWithRetryAndFailover_MovesToNextProvider(t *testing.T) {
	router := NewRouter()
	primary := &stubProvider{name: "primary", available: true, errs: []error{errors.New("429 too many requests")}}
	secondary := &stubProvider{name: "secondary", available: true}
	router.AddProvider("31337", primary)
	router.AddProvider("31337", secondary)

	got, err := CallWithRetryAndFailover(context.Background(), router, "31337", provider.Operation{}, fastRetry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "secondary" {
		t.Errorf("expected secondary result, got %v", got)
	}
	if primary.calls != 1 {
		t.Errorf("rate limited provider should fail over immediately, got %d calls", primary.calls)
	}
}

func TestRouter_CircuitBreaker(t *testing.T) {
	router := NewRouter()
	now := time.Unix(1700000000, 0)
	router.now = func() time.Time { return now }

	a := &stubProvider{name: "a", available: true}
	b := &stubProvider{name: "b", available: true}
	router.AddProvider("1", a)
	router.AddProvider("1", b)

	for i := 0; i < router.failureThreshold; i++ {
		router.RecordFailure("a", errors.New("boom"))
	}
	if !router.CircuitOpen("a") {
		t.Fatal("expected circuit to open")
	}

	for i := 0; i < 3; i++ {
		p, err := router.GetProvider("1")
		if err != nil {
			t.Fatalf("get provider: %v", err)
		}
		if p.GetName() != "b" {
			t.Errorf("open circuit provider selected: %s", p.GetName())
		}
	}

	if all := router.GetAllProviders("1"); all[0].GetName() != "b" {
		t.Errorf("expected healthy provider first, got %s", all[0].GetName())
	}

	now = now.Add(router.cooldown)
	if all := router.GetAllProviders("1"); len(all) != 2 || all[0].GetName() != "a" {
		t.Error("expected provider to be half-open after cooldown")
	}
}

func TestRouter_NoProviders(t *testing.T) {
	if _, err := NewRouter().GetProvider("1"); !errors.Is(err, ErrNoProviders) {
		t.Errorf("expected ErrNoProviders, got %v", err)
	}
}
