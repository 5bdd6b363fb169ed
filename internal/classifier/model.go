package classifier

import "context"

// Prompt is a single-turn request to a model. Audio, when present, is sent
// as inline binary data next to the text.
type Prompt struct {
	System        string
	Text          string
	Audio         []byte
	AudioMIMEType string
}

// Model generates a raw text answer. Implementations wrap throttling in
// ErrRateLimited and other failures in ErrProvider.
type Model interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}
