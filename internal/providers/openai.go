package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kiln-ai/router/pkg/models"
)

// OpenAIAdapter is the api_http adapter kind backed by
// sashabaranov/go-openai. It also implements EmbeddingCapable; the
// Embedding Router does not use it and has its own OpenAI provider.
type OpenAIAdapter struct {
	client *openai.Client
}

// NewOpenAIAdapter builds an adapter from an API key and optional
// OpenAI-compatible base URL (used for openrouter/lmstudio-style
// adapters sharing this same client shape).
func NewOpenAIAdapter(apiKey, baseURL string) *OpenAIAdapter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIAdapter{client: openai.NewClientWithConfig(cfg)}
}

func (a *OpenAIAdapter) Name() string            { return "openai" }
func (a *OpenAIAdapter) Kind() models.AdapterKind { return models.AdapterAPIHTTP }

func (a *OpenAIAdapter) Complete(ctx context.Context, req models.Request) (models.Response, error) {
	start := time.Now()

	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}

	tools := make([]openai.Tool, 0, len(req.Tools))
	for _, td := range req.Tools {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        td.Name,
				Description: td.Description,
				Parameters:  json.RawMessage(td.InputSchema),
			},
		})
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
		Tools:       tools,
	}

	completion, err := a.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return models.Response{}, fmt.Errorf("openai: %w", err)
	}
	if len(completion.Choices) == 0 {
		return models.Response{}, fmt.Errorf("openai: empty choices")
	}
	choice := completion.Choices[0]

	resp := models.Response{
		Text:     choice.Message.Content,
		Model:    req.Model,
		Provider: "openai",
		Timing:   models.Timing{StartedAt: start, Duration: time.Since(start)},
	}

	for _, tc := range choice.Message.ToolCalls {
		resp.ToolUses = append(resp.ToolUses, models.ToolUse{
			ID:         tc.ID,
			Name:       tc.Function.Name,
			Input:      json.RawMessage(tc.Function.Arguments),
			HookResult: models.HookAllow,
			Result:     models.Pending(),
		})
	}

	resp.Usage = models.Usage{
		InputTokens:  completion.Usage.PromptTokens,
		OutputTokens: completion.Usage.CompletionTokens,
		TotalTokens:  completion.Usage.TotalTokens,
	}
	resp.FinishReason = openAIFinishReason(string(choice.FinishReason))
	return resp, nil
}

func openAIFinishReason(reason string) models.FinishReason {
	switch reason {
	case "stop":
		return models.FinishStop
	case "length":
		return models.FinishMaxTokens
	case "tool_calls", "function_call":
		return models.FinishToolUse
	default:
		return models.FinishNull
	}
}

// Embed implements EmbeddingCapable.
func (a *OpenAIAdapter) Embed(ctx context.Context, model string, texts []string) (EmbedResult, error) {
	req := openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(model),
	}
	resp, err := a.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return EmbedResult{}, fmt.Errorf("openai embed: %w", err)
	}

	out := make([][]float32, len(resp.Data))
	dims := 0
	for i, d := range resp.Data {
		out[i] = d.Embedding
		dims = len(d.Embedding)
	}

	return EmbedResult{
		Embeddings: out,
		Model:      model,
		Provider:   "openai",
		Dimensions: dims,
		Usage: models.Usage{
			InputTokens: resp.Usage.PromptTokens,
			TotalTokens: resp.Usage.TotalTokens,
		},
	}, nil
}
