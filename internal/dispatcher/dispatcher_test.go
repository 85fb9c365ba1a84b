package dispatcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiln-ai/router/internal/providers"
	"github.com/kiln-ai/router/internal/toolloop"
	"github.com/kiln-ai/router/internal/usage"
	"github.com/kiln-ai/router/pkg/models"
)

type stubAdapter struct {
	name string
	kind models.AdapterKind
	resp models.Response
	err  error
}

func (a *stubAdapter) Complete(ctx context.Context, req models.Request) (models.Response, error) {
	if a.err != nil {
		return models.Response{}, a.err
	}
	resp := a.resp
	resp.Provider = req.Provider
	resp.Model = req.Model
	return resp, nil
}

func (a *stubAdapter) Name() string             { return a.name }
func (a *stubAdapter) Kind() models.AdapterKind { return a.kind }

func newTestDispatcher(adapter *stubAdapter) (*Dispatcher, *usage.Stats) {
	reg := providers.NewRegistry()
	reg.Register("openai", adapter)
	stats := usage.NewStats(0, nil, nil)

	return NewDispatcher(Collaborators{
		Registry: reg,
		Stats:    stats,
		Defaults: Defaults{Provider: "openai", Model: "gpt-4"},
	}), stats
}

func TestGenerateHappyPath(t *testing.T) {
	adapter := &stubAdapter{kind: models.AdapterAPIHTTP, resp: models.Response{Text: "hello", Usage: models.Usage{InputTokens: 10, OutputTokens: 5}}}
	d, stats := newTestDispatcher(adapter)

	resp, err := d.Generate(context.Background(), "hi", Options{})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)

	entry := stats.Get("openai", "gpt-4")
	assert.Equal(t, 1, entry.Requests)
	assert.Equal(t, 1, entry.Successes)
}

func TestGenerateUnknownProvider(t *testing.T) {
	adapter := &stubAdapter{kind: models.AdapterAPIHTTP}
	d, stats := newTestDispatcher(adapter)

	_, err := d.Generate(context.Background(), "hi", Options{Provider: "does-not-exist"})
	require.Error(t, err)
	merr, ok := err.(*models.Error)
	require.True(t, ok)
	assert.Equal(t, models.ErrUnknownProvider, merr.Variant)

	// The failed dispatch is still accounted under the snapshotted model.
	entry := stats.Get("does-not-exist", "gpt-4")
	assert.Equal(t, 1, entry.Requests)
}

func TestGenerateWithToolsRequiresTools(t *testing.T) {
	adapter := &stubAdapter{kind: models.AdapterAPIHTTP}
	d, _ := newTestDispatcher(adapter)

	_, err := d.GenerateWithTools(context.Background(), "hi", Options{})
	require.Error(t, err)
}

func TestGenerateBudgetExceeded(t *testing.T) {
	adapter := &stubAdapter{kind: models.AdapterAPIHTTP, resp: models.Response{Text: "hello"}}
	reg := providers.NewRegistry()
	reg.Register("openai", adapter)

	tracker := usage.NewTracker(1, usage.PriceTable{
		"openai": {"gpt-4": usage.ModelPrice{InputPerMillion: 1_000_000, OutputPerMillion: 0}},
	}, nil)
	tracker.RecordUsage("openai", "gpt-4", 10, 0) // cost 10 > cap 1

	d := NewDispatcher(Collaborators{
		Registry: reg,
		Budget:   tracker,
		Defaults: Defaults{Provider: "openai", Model: "gpt-4"},
	})

	_, err := d.Generate(context.Background(), "hi", Options{})
	require.Error(t, err)
	merr, ok := err.(*models.Error)
	require.True(t, ok)
	assert.Equal(t, models.ErrBudgetExceeded, merr.Variant)
}

func TestAuthorizedGenerateDeniedByCapabilityStore(t *testing.T) {
	adapter := &stubAdapter{kind: models.AdapterAPIHTTP}
	reg := providers.NewRegistry()
	reg.Register("openai", adapter)

	d := NewDispatcher(Collaborators{
		Registry:   reg,
		Capability: denyAllCapabilityStore{},
		Defaults:   Defaults{Provider: "openai", Model: "gpt-4"},
	})

	_, pending, err := d.AuthorizedGenerate(context.Background(), "hi", Options{AgentID: "agent-1"})
	require.Error(t, err)
	assert.Nil(t, pending)
}

func TestAuthorizedGeneratePendingApproval(t *testing.T) {
	adapter := &stubAdapter{kind: models.AdapterAPIHTTP}
	reg := providers.NewRegistry()
	reg.Register("openai", adapter)

	d := NewDispatcher(Collaborators{
		Registry:   reg,
		Capability: pendingCapabilityStore{proposalID: "proposal-42"},
		Defaults:   Defaults{Provider: "openai", Model: "gpt-4"},
	})

	resp, pending, err := d.AuthorizedGenerate(context.Background(), "hi", Options{AgentID: "agent-1"})
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, "proposal-42", pending.ProposalID)
	assert.Equal(t, "", resp.Text)
}

func TestGenerateEmitsStartedAndTerminalSignals(t *testing.T) {
	adapter := &stubAdapter{kind: models.AdapterAPIHTTP, resp: models.Response{Text: "ok"}}
	reg := providers.NewRegistry()
	reg.Register("openai", adapter)

	var kinds []EventKind
	d := NewDispatcher(Collaborators{
		Registry: reg,
		OnSignal: func(ev Event) { kinds = append(kinds, ev.Kind) },
		Defaults: Defaults{Provider: "openai", Model: "gpt-4"},
	})

	_, err := d.Generate(context.Background(), "hi", Options{})
	require.NoError(t, err)
	require.Len(t, kinds, 2)
	assert.Equal(t, EventStarted, kinds[0])
	assert.Equal(t, EventCompleted, kinds[1])
}

type denyAllCapabilityStore struct{}

func (denyAllCapabilityStore) Authorize(context.Context, string, string, string) (toolloop.CapabilityDecision, string, error) {
	return toolloop.CapabilityUnauthorized, "", nil
}

type pendingCapabilityStore struct{ proposalID string }

func (p pendingCapabilityStore) Authorize(context.Context, string, string, string) (toolloop.CapabilityDecision, string, error) {
	return toolloop.CapabilityPendingApproval, p.proposalID, nil
}
