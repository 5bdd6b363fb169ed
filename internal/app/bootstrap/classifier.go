package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/wolfman30/robo-agendamentos/internal/classifier"
	appconfig "github.com/wolfman30/robo-agendamentos/internal/config"
	"github.com/wolfman30/robo-agendamentos/internal/observability/metrics"
	"github.com/wolfman30/robo-agendamentos/pkg/logging"
)

// ErrNoClassifierModel is returned when neither Gemini nor Bedrock is configured.
var ErrNoClassifierModel = errors.New("bootstrap: no classifier model configured (set GEMINI_API_KEY or BEDROCK_MODEL_ID)")

// BuildClassifier wires the reply classifier. Gemini is the primary model;
// Bedrock, when configured, serves text prompts Gemini fails on. The returned
// closer releases the Gemini client.
func BuildClassifier(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, m *metrics.NotifierMetrics, logger *logging.Logger) (*classifier.Service, func() error, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	noop := func() error { return nil }

	var gemini *classifier.GeminiModel
	if key := strings.TrimSpace(cfg.GeminiAPIKey); key != "" {
		g, err := classifier.NewGeminiModel(ctx, key, cfg.GeminiModelID)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: gemini client: %w", err)
		}
		gemini = g
	}

	var bedrock *classifier.BedrockModel
	if modelID := strings.TrimSpace(cfg.BedrockModelID); modelID != "" {
		bedrock = classifier.NewBedrockModel(bedrockruntime.NewFromConfig(awsCfg), modelID)
	}

	var (
		model  classifier.Model
		closer = noop
	)
	switch {
	case gemini != nil && bedrock != nil:
		model = classifier.NewFallbackModel(gemini, bedrock, logger)
		closer = gemini.Close
		logger.Info("classifier enabled", "primary", "gemini", "model", cfg.GeminiModelID, "fallback", cfg.BedrockModelID)
	case gemini != nil:
		model = gemini
		closer = gemini.Close
		logger.Info("classifier enabled", "primary", "gemini", "model", cfg.GeminiModelID)
	case bedrock != nil:
		model = bedrock
		logger.Warn("classifier running on bedrock only; voice notes cannot be classified", "model", cfg.BedrockModelID)
	default:
		return nil, nil, ErrNoClassifierModel
	}

	svc := classifier.NewService(model, classifier.Config{
		MaxAttempts: cfg.ClassifierMaxAttempts,
		BackoffBase: cfg.ClassifierBackoffBase,
		Timeout:     cfg.ClassifierTimeout,
	}, m, logger)
	return svc, closer, nil
}
