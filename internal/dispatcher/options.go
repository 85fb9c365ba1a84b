// Package dispatcher implements the Dispatcher, the router's single
// public entry point: generate, generate_with_tools, and
// authorized_generate. It resolves a provider, picks a transport path
// (Tool Loop Kernel, Session Pool, or a direct adapter call), and
// performs terminal accounting against Usage Stats and the Budget
// Tracker.
package dispatcher

import (
	"github.com/kiln-ai/router/pkg/models"
)

// Options carries the per-call knobs of the generate/generate_with_tools/
// authorized_generate operations.
type Options struct {
	Provider       models.ProviderId
	Model          string
	SystemPrompt   string
	MaxTokens      int
	Temperature    float64
	ThinkingBudget int
	Tools          []models.ToolDescriptor
	AgentID        string
	TraceID        string
	SessionID      string
}

// snapshot is the config resolved once at entry and read for the rest of
// a call, closing the TOCTOU window between defaulting and dispatch.
type snapshot struct {
	provider models.ProviderId
	model    string
	tools    []models.ToolDescriptor
	agentID  string
	traceID  string
}

func (o Options) snapshot(defaultProvider models.ProviderId, defaultModel string) snapshot {
	provider := o.Provider
	if provider == "" {
		provider = defaultProvider
	}
	model := o.Model
	if model == "" {
		model = defaultModel
	}
	return snapshot{
		provider: provider,
		model:    model,
		tools:    append([]models.ToolDescriptor(nil), o.Tools...),
		agentID:  o.AgentID,
		traceID:  o.TraceID,
	}
}

func (o Options) toRequest(s snapshot, prompt string) models.Request {
	messages := make([]models.Message, 0, 2)
	if o.SystemPrompt != "" {
		messages = append(messages, models.Message{Role: models.RoleSystem, Content: o.SystemPrompt})
	}
	messages = append(messages, models.Message{Role: models.RoleUser, Content: prompt})

	return models.Request{
		Provider:    s.provider,
		Model:       s.model,
		Messages:    messages,
		Tools:       s.tools,
		MaxTokens:   o.MaxTokens,
		Temperature: o.Temperature,
		SessionID:   o.SessionID,
	}
}

// PendingApproval is returned by authorized_generate in place of a
// Response when the capability store reports pending_approval.
type PendingApproval struct {
	ProposalID string
}

// capabilityResource builds the resource string authorized_generate
// checks before dispatch: "ai/request/<provider>".
func capabilityResource(provider models.ProviderId) string {
	return "ai/request/" + string(provider)
}
