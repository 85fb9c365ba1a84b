package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/kiln-ai/router/pkg/models"
)

type stubAdapter struct {
	name string
	fn   func(ctx context.Context, req models.Request) (models.Response, error)
	calls int
}

func (s *stubAdapter) Name() string            { return s.name }
func (s *stubAdapter) Kind() models.AdapterKind { return models.AdapterAPIHTTP }
func (s *stubAdapter) Complete(ctx context.Context, req models.Request) (models.Response, error) {
	s.calls++
	return s.fn(ctx, req)
}

func TestOrchestratorFailsOverOnServerError(t *testing.T) {
	primary := &stubAdapter{name: "primary", fn: func(context.Context, models.Request) (models.Response, error) {
		return models.Response{}, errors.New("500 internal server error")
	}}
	secondary := &stubAdapter{name: "secondary", fn: func(context.Context, models.Request) (models.Response, error) {
		return models.Response{Text: "ok", Provider: "secondary"}, nil
	}}

	cfg := DefaultFailoverConfig()
	cfg.MaxRetries = 0
	o := NewOrchestrator(cfg, primary, secondary)

	resp, err := o.Complete(context.Background(), models.Request{})
	if err != nil {
		t.Fatalf("expected failover success, got error: %v", err)
	}
	if resp.Text != "ok" {
		t.Fatalf("expected secondary's response, got %+v", resp)
	}
}

func TestOrchestratorDoesNotFailoverOnInvalidRequest(t *testing.T) {
	primary := &stubAdapter{name: "primary", fn: func(context.Context, models.Request) (models.Response, error) {
		return models.Response{}, errors.New("400 invalid_request: bad schema")
	}}
	secondary := &stubAdapter{name: "secondary", fn: func(context.Context, models.Request) (models.Response, error) {
		return models.Response{Text: "should not be called"}, nil
	}}

	cfg := DefaultFailoverConfig()
	cfg.MaxRetries = 0
	o := NewOrchestrator(cfg, primary, secondary)

	_, err := o.Complete(context.Background(), models.Request{})
	if err == nil {
		t.Fatal("expected error to propagate for non-failover class")
	}
	if secondary.calls != 0 {
		t.Fatal("secondary must not be tried for an invalid_request class error")
	}
}

func TestOrchestratorCircuitBreakerTripsAfterThreshold(t *testing.T) {
	primary := &stubAdapter{name: "primary", fn: func(context.Context, models.Request) (models.Response, error) {
		return models.Response{}, errors.New("503 server error")
	}}
	secondary := &stubAdapter{name: "secondary", fn: func(context.Context, models.Request) (models.Response, error) {
		return models.Response{Text: "ok"}, nil
	}}

	cfg := DefaultFailoverConfig()
	cfg.MaxRetries = 0
	cfg.CircuitBreakerThreshold = 1
	o := NewOrchestrator(cfg, primary, secondary)

	// First call trips primary's breaker and falls over to secondary.
	if _, err := o.Complete(context.Background(), models.Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	callsBefore := primary.calls

	// Second call should skip primary entirely since its breaker is open.
	if _, err := o.Complete(context.Background(), models.Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if primary.calls != callsBefore {
		t.Fatalf("expected primary to be skipped while breaker is open, calls went from %d to %d", callsBefore, primary.calls)
	}
}
