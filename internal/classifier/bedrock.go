package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockModel calls the Bedrock Converse API. It handles text prompts only.
type BedrockModel struct {
	api     bedrockConverseAPI
	modelID string
}

func NewBedrockModel(api bedrockConverseAPI, modelID string) *BedrockModel {
	if api == nil {
		panic("classifier: bedrock converse client cannot be nil")
	}
	return &BedrockModel{api: api, modelID: modelID}
}

func (b *BedrockModel) Generate(ctx context.Context, p Prompt) (string, error) {
	if strings.TrimSpace(b.modelID) == "" {
		return "", fmt.Errorf("%w: bedrock model id is required", ErrProvider)
	}
	if len(p.Audio) > 0 {
		return "", fmt.Errorf("%w: bedrock cannot take audio input", ErrProvider)
	}

	var system []brtypes.SystemContentBlock
	if strings.TrimSpace(p.System) != "" {
		system = append(system, &brtypes.SystemContentBlockMemberText{Value: p.System})
	}

	out, err := b.api.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(b.modelID),
		System:  system,
		Messages: []brtypes.Message{{
			Role:    brtypes.ConversationRoleUser,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: p.Text}},
		}},
		InferenceConfig: &brtypes.InferenceConfiguration{
			Temperature: aws.Float32(0.2),
			MaxTokens:   aws.Int32(512),
		},
	})
	if err != nil {
		var throttled *brtypes.ThrottlingException
		if errors.As(err, &throttled) {
			return "", fmt.Errorf("%w: bedrock: %w", ErrRateLimited, err)
		}
		return "", fmt.Errorf("%w: bedrock: %w", ErrProvider, err)
	}
	return extractConverseText(out)
}

func extractConverseText(out *bedrockruntime.ConverseOutput) (string, error) {
	if out == nil {
		return "", fmt.Errorf("%w: bedrock response is nil", ErrProvider)
	}
	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return "", fmt.Errorf("%w: bedrock response did not include a message", ErrProvider)
	}
	var builder strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*brtypes.ContentBlockMemberText); ok {
			builder.WriteString(text.Value)
		}
	}
	text := strings.TrimSpace(builder.String())
	if text == "" {
		return "", fmt.Errorf("%w: bedrock response contained no text", ErrProvider)
	}
	return text, nil
}
