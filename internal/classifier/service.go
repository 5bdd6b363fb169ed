package classifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/robo-agendamentos/internal/observability/metrics"
	"github.com/wolfman30/robo-agendamentos/pkg/logging"
)

// Config bounds the retry loop.
type Config struct {
	MaxAttempts int
	BackoffBase time.Duration
	Timeout     time.Duration
}

// Service classifies replies, retrying only on rate limits.
type Service struct {
	model       Model
	maxAttempts int
	backoffBase time.Duration
	timeout     time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	metrics     *metrics.NotifierMetrics
	logger      *logging.Logger
	tracer      trace.Tracer
}

func NewService(model Model, cfg Config, m *metrics.NotifierMetrics, logger *logging.Logger) *Service {
	if model == nil {
		panic("classifier: model cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2 * time.Second
	}
	return &Service{
		model:       model,
		maxAttempts: cfg.MaxAttempts,
		backoffBase: cfg.BackoffBase,
		timeout:     cfg.Timeout,
		sleep:       sleepContext,
		metrics:     m,
		logger:      logger,
		tracer:      otel.Tracer("robo.internal.classifier"),
	}
}

// WithSleep overrides the backoff sleep.
func (s *Service) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Service {
	if sleep != nil {
		s.sleep = sleep
	}
	return s
}

// Classify returns the category of the reply. A rate-limited call sleeps
// attempt × base before the next try; the last rate-limited attempt fails
// with ErrRateLimited. Provider and parse errors are not retried.
func (s *Service) Classify(ctx context.Context, in Input) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "classifier.classify",
		trace.WithAttributes(
			attribute.Bool("classifier.audio", in.HasAudio()),
			attribute.Int("classifier.max_attempts", s.maxAttempts),
		))
	defer span.End()

	prompt := BuildPrompt(in)
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		raw, err := s.generate(ctx, prompt)
		if err == nil {
			s.metrics.ObserveClassifierAttempt("ok")
			result, perr := ParseResult(raw)
			if perr != nil {
				s.fail(span, "malformed", perr)
				return Result{}, perr
			}
			span.SetAttributes(attribute.String("classifier.category", string(result.Category)), attribute.Int("classifier.attempts", attempt))
			s.metrics.ObserveClassification(string(result.Category))
			return result, nil
		}

		lastErr = err
		if !errors.Is(err, ErrRateLimited) {
			s.metrics.ObserveClassifierAttempt("error")
			if !errors.Is(err, ErrProvider) {
				err = fmt.Errorf("%w: %w", ErrProvider, err)
			}
			s.fail(span, "provider_error", err)
			return Result{}, err
		}

		s.metrics.ObserveClassifierAttempt("rate_limited")
		if attempt == s.maxAttempts {
			break
		}
		delay := time.Duration(attempt) * s.backoffBase
		s.logger.Warn("classifier: rate limited, backing off", "attempt", attempt, "delay", delay.String())
		if err := s.sleep(ctx, delay); err != nil {
			lastErr = fmt.Errorf("%w: backoff interrupted: %w", ErrRateLimited, err)
			break
		}
	}

	err := fmt.Errorf("classifier: gave up after %d attempts: %w", s.maxAttempts, lastErr)
	s.fail(span, "rate_limited", err)
	return Result{}, err
}

func (s *Service) generate(ctx context.Context, p Prompt) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.model.Generate(ctx, p)
}

func (s *Service) fail(span trace.Span, result string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, result)
	s.metrics.ObserveClassification(result)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
