package classifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GeminiModel calls Google's Gemini API and accepts audio parts.
type GeminiModel struct {
	client  *genai.Client
	modelID string
}

func NewGeminiModel(ctx context.Context, apiKey, modelID string) (*GeminiModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("classifier: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("classifier: failed to create gemini client: %w", err)
	}
	return &GeminiModel{client: client, modelID: modelID}, nil
}

func (g *GeminiModel) Generate(ctx context.Context, p Prompt) (string, error) {
	model := g.client.GenerativeModel(g.modelID)
	model.SetTemperature(0.2)
	model.ResponseMIMEType = "application/json"
	if strings.TrimSpace(p.System) != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(p.System))
	}

	parts := make([]genai.Part, 0, 2)
	if len(p.Audio) > 0 {
		mime := p.AudioMIMEType
		if mime == "" {
			mime = "audio/ogg"
		}
		parts = append(parts, genai.Blob{MIMEType: baseMIMEType(mime), Data: p.Audio})
	}
	parts = append(parts, genai.Text(p.Text))

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", classifyGeminiError(err)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: gemini returned no candidates", ErrProvider)
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("%w: gemini returned empty content", ErrProvider)
	}

	var out strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out.WriteString(string(text))
		}
	}
	return strings.TrimSpace(out.String()), nil
}

func (g *GeminiModel) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func classifyGeminiError(err error) error {
	if isGeminiRateLimit(err) {
		return fmt.Errorf("%w: gemini: %w", ErrRateLimited, err)
	}
	return fmt.Errorf("%w: gemini: %w", ErrProvider, err)
}

func isGeminiRateLimit(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "RESOURCE_EXHAUSTED") || strings.Contains(msg, "Error 429")
}

// baseMIMEType drops parameters such as "; codecs=opus" which the API rejects.
func baseMIMEType(mime string) string {
	base, _, _ := strings.Cut(mime, ";")
	return strings.TrimSpace(base)
}
