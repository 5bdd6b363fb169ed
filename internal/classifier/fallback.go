package classifier

import (
	"context"
	"errors"

	"github.com/wolfman30/robo-agendamentos/pkg/logging"
)

// FallbackModel retries a failed text-only prompt once on a secondary model.
// Prompts carrying audio stay on the primary.
type FallbackModel struct {
	primary  Model
	fallback Model
	logger   *logging.Logger
}

func NewFallbackModel(primary, fallback Model, logger *logging.Logger) *FallbackModel {
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackModel{primary: primary, fallback: fallback, logger: logger}
}

func (f *FallbackModel) Generate(ctx context.Context, p Prompt) (string, error) {
	text, err := f.primary.Generate(ctx, p)
	if err == nil {
		return text, nil
	}
	if f.fallback == nil || len(p.Audio) > 0 {
		return "", err
	}

	f.logger.Warn("primary model failed, attempting fallback", "error", err)
	text, fallbackErr := f.fallback.Generate(ctx, p)
	if fallbackErr != nil {
		f.logger.Error("fallback model also failed", "primary_error", err, "fallback_error", fallbackErr)
		// Keeps the primary's rate-limit signal visible to the retry loop.
		return "", errors.Join(err, fallbackErr)
	}
	f.logger.Info("fallback model succeeded after primary failure")
	return text, nil
}
