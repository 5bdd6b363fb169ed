package classifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/wolfman30/robo-agendamentos/pkg/logging"
)

type fakeConverse struct {
	input *bedrockruntime.ConverseInput
	out   *bedrockruntime.ConverseOutput
	err   error
}

func (f *fakeConverse) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.input = in
	return f.out, f.err
}

func converseText(text string) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: text}},
		}},
	}
}

func TestBedrockModelGenerate(t *testing.T) {
	api := &fakeConverse{out: converseText(` {"category":"Acknowledged"} `)}
	model := NewBedrockModel(api, "anthropic.claude-3-haiku")

	text, err := model.Generate(context.Background(), Prompt{System: "sys", Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, `{"category":"Acknowledged"}`, text)
	assert.Equal(t, "anthropic.claude-3-haiku", aws.ToString(api.input.ModelId))
	require.Len(t, api.input.System, 1)
	require.Len(t, api.input.Messages, 1)
}

func TestBedrockModelErrors(t *testing.T) {
	api := &fakeConverse{err: fmt.Errorf("op error: %w", &brtypes.ThrottlingException{Message: aws.String("slow down")})}
	_, err := NewBedrockModel(api, "m").Generate(context.Background(), Prompt{Text: "x"})
	assert.ErrorIs(t, err, ErrRateLimited)

	api = &fakeConverse{err: errors.New("access denied")}
	_, err = NewBedrockModel(api, "m").Generate(context.Background(), Prompt{Text: "x"})
	assert.ErrorIs(t, err, ErrProvider)

	_, err = NewBedrockModel(&fakeConverse{}, "m").Generate(context.Background(), Prompt{Text: "x", Audio: []byte{1}})
	assert.ErrorIs(t, err, ErrProvider)

	_, err = NewBedrockModel(&fakeConverse{out: converseText("  ")}, "m").Generate(context.Background(), Prompt{Text: "x"})
	assert.ErrorIs(t, err, ErrProvider)
}

func TestGeminiErrorClassification(t *testing.T) {
	err := classifyGeminiError(fmt.Errorf("wrapped: %w", &googleapi.Error{Code: http.StatusTooManyRequests}))
	assert.ErrorIs(t, err, ErrRateLimited)

	err = classifyGeminiError(errors.New("rpc error: code = ResourceExhausted desc = RESOURCE_EXHAUSTED"))
	assert.ErrorIs(t, err, ErrRateLimited)

	err = classifyGeminiError(&googleapi.Error{Code: http.StatusBadRequest})
	assert.ErrorIs(t, err, ErrProvider)
	assert.NotErrorIs(t, err, ErrRateLimited)

	assert.Equal(t, "audio/ogg", baseMIMEType("audio/ogg; codecs=opus"))
}

func TestFallbackModel(t *testing.T) {
	primary := &scriptedModel{errs: []error{rateLimited(), rateLimited(), rateLimited()}}
	secondary := &scriptedModel{responses: []string{"from-fallback"}}
	model := NewFallbackModel(primary, secondary, logging.Discard())

	text, err := model.Generate(context.Background(), Prompt{Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, "from-fallback", text)

	_, err = model.Generate(context.Background(), Prompt{Text: "x", Audio: []byte{1}})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 1, secondary.calls, "audio prompts stay on the primary")

	secondary.errs = []error{nil, fmt.Errorf("%w: down", ErrProvider)}
	_, err = model.Generate(context.Background(), Prompt{Text: "x"})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.ErrorIs(t, err, ErrProvider)
}
