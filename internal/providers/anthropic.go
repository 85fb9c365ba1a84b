package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kiln-ai/router/pkg/models"
)

// AnthropicAdapter is the api_http adapter kind backed by
// anthropic-sdk-go.
type AnthropicAdapter struct {
	client anthropic.Client
}

// NewAnthropicAdapter builds an adapter from an API key. baseURL may be
// empty to use the SDK default.
func NewAnthropicAdapter(apiKey, baseURL string) *AnthropicAdapter {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicAdapter{client: anthropic.NewClient(opts...)}
}

func (a *AnthropicAdapter) Name() string               { return "anthropic" }
func (a *AnthropicAdapter) Kind() models.AdapterKind    { return models.AdapterAPIHTTP }
func (a *AnthropicAdapter) SupportsSessions() bool      { return false }

func (a *AnthropicAdapter) Complete(ctx context.Context, req models.Request) (models.Response, error) {
	start := time.Now()

	msgs := make([]anthropic.MessageParam, 0, len(req.Messages))
	var system string
	for _, m := range req.Messages {
		switch m.Role {
		case models.RoleSystem:
			system += m.Content
		case models.RoleUser:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case models.RoleAssistant:
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return models.Response{}, fmt.Errorf("anthropic: %w", err)
	}

	resp := models.Response{
		Model:    req.Model,
		Provider: "anthropic",
		Timing:   models.Timing{StartedAt: start, Duration: time.Since(start)},
	}

	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			resp.Text += b.Text
		case anthropic.ThinkingBlock:
			resp.Thinking = append(resp.Thinking, models.ThinkingBlock{Text: b.Thinking, Signature: b.Signature})
		case anthropic.ToolUseBlock:
			resp.ToolUses = append(resp.ToolUses, models.ToolUse{
				ID:         b.ID,
				Name:       b.Name,
				Input:      b.Input,
				HookResult: models.HookAllow,
				Result:     models.Pending(),
			})
		}
	}

	resp.Usage = models.Usage{
		InputTokens:     int(msg.Usage.InputTokens),
		OutputTokens:    int(msg.Usage.OutputTokens),
		CacheReadTokens: int(msg.Usage.CacheReadInputTokens),
	}
	resp.Usage.TotalTokens = resp.Usage.InputTokens + resp.Usage.OutputTokens

	resp.FinishReason = anthropicStopToFinish(string(msg.StopReason), len(resp.ToolUses) > 0)
	return resp, nil
}

func anthropicStopToFinish(stopReason string, hasToolUse bool) models.FinishReason {
	switch stopReason {
	case "end_turn", "stop_sequence":
		return models.FinishStop
	case "max_tokens":
		return models.FinishMaxTokens
	case "tool_use":
		return models.FinishToolUse
	default:
		if hasToolUse {
			return models.FinishToolUse
		}
		return models.FinishNull
	}
}
