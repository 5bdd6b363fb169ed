package classifier

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseResult strips markdown fences and decodes the model's JSON answer.
// All three fields must be present and the category must be known.
func ParseResult(raw string) (Result, error) {
	body := stripFences(raw)
	if start, end := strings.Index(body, "{"), strings.LastIndex(body, "}"); start >= 0 && end > start {
		body = body[start : end+1]
	}

	var decoded struct {
		Category *string `json:"category"`
		Summary  *string `json:"summary"`
		Reply    *string `json:"reply"`
	}
	if err := json.Unmarshal([]byte(body), &decoded); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if decoded.Category == nil || decoded.Summary == nil || decoded.Reply == nil {
		return Result{}, fmt.Errorf("%w: missing field", ErrMalformedResponse)
	}
	category, ok := ParseCategory(*decoded.Category)
	if !ok {
		return Result{}, fmt.Errorf("%w: unknown category %q", ErrMalformedResponse, *decoded.Category)
	}
	return Result{
		Category: category,
		Summary:  strings.TrimSpace(*decoded.Summary),
		Reply:    strings.TrimSpace(*decoded.Reply),
	}, nil
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.Index(s, "\n"); nl >= 0 {
		// drop the language tag line, e.g. ```json
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
