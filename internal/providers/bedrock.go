package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/kiln-ai/router/pkg/models"
)

// BedrockAdapter is the api_http adapter kind backed by AWS Bedrock's
// Anthropic-compatible Converse API, used for the "claude via bedrock"
// provider path.
type BedrockAdapter struct {
	client *bedrockruntime.Client
}

// BedrockConfig carries the credentials and region needed to construct a
// BedrockAdapter without pulling in the full AWS config-loading chain.
type BedrockConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// NewBedrockAdapter builds an adapter from static credentials.
func NewBedrockAdapter(cfg BedrockConfig) *BedrockAdapter {
	client := bedrockruntime.New(bedrockruntime.Options{
		Region:      cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
	})
	return &BedrockAdapter{client: client}
}

func (a *BedrockAdapter) Name() string            { return "bedrock" }
func (a *BedrockAdapter) Kind() models.AdapterKind { return models.AdapterAPIHTTP }

func (a *BedrockAdapter) Complete(ctx context.Context, req models.Request) (models.Response, error) {
	start := time.Now()

	msgs := make([]types.Message, 0, len(req.Messages))
	var systemBlocks []types.SystemContentBlock
	for _, m := range req.Messages {
		block := types.ContentBlockMemberText{Value: m.Content}
		switch m.Role {
		case models.RoleSystem:
			systemBlocks = append(systemBlocks, &types.SystemContentBlockMemberText{Value: m.Content})
		case models.RoleUser:
			msgs = append(msgs, types.Message{Role: types.ConversationRoleUser, Content: []types.ContentBlock{&block}})
		case models.RoleAssistant:
			msgs = append(msgs, types.Message{Role: types.ConversationRoleAssistant, Content: []types.ContentBlock{&block}})
		}
	}

	maxTokens := int32(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	out, err := a.client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:  aws.String(req.Model),
		Messages: msgs,
		System:   systemBlocks,
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens: aws.Int32(maxTokens),
		},
	})
	if err != nil {
		return models.Response{}, fmt.Errorf("bedrock: %w", err)
	}

	resp := models.Response{
		Model:    req.Model,
		Provider: "bedrock",
		Timing:   models.Timing{StartedAt: start, Duration: time.Since(start)},
	}

	if outMsg, ok := out.Output.(*types.ConverseOutputMemberMessage); ok {
		for _, block := range outMsg.Value.Content {
			switch b := block.(type) {
			case *types.ContentBlockMemberText:
				resp.Text += b.Value
			case *types.ContentBlockMemberToolUse:
				input, _ := json.Marshal(b.Value.Input)
				resp.ToolUses = append(resp.ToolUses, models.ToolUse{
					ID:         aws.ToString(b.Value.ToolUseId),
					Name:       aws.ToString(b.Value.Name),
					Input:      bytes.TrimSpace(input),
					HookResult: models.HookAllow,
					Result:     models.Pending(),
				})
			}
		}
	}

	if out.Usage != nil {
		resp.Usage = models.Usage{
			InputTokens:  int(aws.ToInt32(out.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
			TotalTokens:  int(aws.ToInt32(out.Usage.TotalTokens)),
		}
	}

	resp.FinishReason = bedrockStopToFinish(out.StopReason)
	return resp, nil
}

func bedrockStopToFinish(stop types.StopReason) models.FinishReason {
	switch stop {
	case types.StopReasonEndTurn, types.StopReasonStopSequence:
		return models.FinishStop
	case types.StopReasonMaxTokens:
		return models.FinishMaxTokens
	case types.StopReasonToolUse:
		return models.FinishToolUse
	default:
		return models.FinishNull
	}
}
