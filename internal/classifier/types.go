package classifier

import (
	"errors"
	"strings"
)

var (
	// ErrRateLimited is returned when the provider throttled the call.
	ErrRateLimited = errors.New("classifier: rate limited")
	// ErrProvider covers every other failure from the AI provider.
	ErrProvider = errors.New("classifier: provider error")
	// ErrMalformedResponse means the model answered but not with the expected JSON.
	ErrMalformedResponse = errors.New("classifier: malformed response")
)

// Category is the business outcome of a customer reply.
type Category string

const (
	CategoryAcknowledged Category = "Acknowledged"
	CategoryProblem      Category = "Problem"
	CategoryQuestion     Category = "Question"
)

// ParseCategory matches the three categories case-insensitively.
func ParseCategory(raw string) (Category, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "acknowledged":
		return CategoryAcknowledged, true
	case "problem":
		return CategoryProblem, true
	case "question":
		return CategoryQuestion, true
	}
	return "", false
}

// Result is the structured classification of one reply.
type Result struct {
	Category Category `json:"category"`
	Summary  string   `json:"summary"`
	Reply    string   `json:"reply"`
}

// Input describes the reply and the notification it answers.
type Input struct {
	CustomerName   string
	OrderReference string
	Template       string
	ScheduledDate  string
	Text           string
	Audio          []byte
	AudioMIMEType  string
}

// HasAudio reports whether the reply carries a voice note.
func (in Input) HasAudio() bool {
	return len(in.Audio) > 0
}
