package classifier

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/robo-agendamentos/pkg/logging"
)

type scriptedModel struct {
	responses []string
	errs      []error
	calls     int
	prompts   []Prompt
}

func (m *scriptedModel) Generate(_ context.Context, p Prompt) (string, error) {
	i := m.calls
	m.calls++
	m.prompts = append(m.prompts, p)
	var err error
	if i < len(m.errs) {
		err = m.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(m.responses) {
		return m.responses[i], nil
	}
	return "", errors.New("script exhausted")
}

func newTestService(model Model) (*Service, *[]time.Duration) {
	var delays []time.Duration
	svc := NewService(model, Config{MaxAttempts: 3, BackoffBase: 2 * time.Second}, nil, logging.Discard()).
		WithSleep(func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		})
	return svc, &delays
}

func rateLimited() error {
	return fmt.Errorf("%w: 429", ErrRateLimited)
}

func TestClassifySucceedsFirstTry(t *testing.T) {
	model := &scriptedModel{responses: []string{`{"category":"Acknowledged","summary":"ok","reply":"Obrigado!"}`}}
	svc, delays := newTestService(model)

	res, err := svc.Classify(context.Background(), Input{Text: "ok, obrigado"})
	require.NoError(t, err)
	assert.Equal(t, CategoryAcknowledged, res.Category)
	assert.Equal(t, 1, model.calls)
	assert.Empty(t, *delays)
}

func TestClassifyRetriesRateLimitWithLinearBackoff(t *testing.T) {
	model := &scriptedModel{
		errs:      []error{rateLimited(), rateLimited(), nil},
		responses: []string{"", "", `{"category":"Question","summary":"horário","reply":"Entre 8h e 12h."}`},
	}
	svc, delays := newTestService(model)

	res, err := svc.Classify(context.Background(), Input{Text: "que horas chega?"})
	require.NoError(t, err)
	assert.Equal(t, CategoryQuestion, res.Category)
	assert.Equal(t, 3, model.calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, *delays)
}

func TestClassifyGivesUpAfterThreeRateLimits(t *testing.T) {
	model := &scriptedModel{errs: []error{rateLimited(), rateLimited(), rateLimited(), rateLimited()}}
	svc, delays := newTestService(model)

	_, err := svc.Classify(context.Background(), Input{Text: "oi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 3, model.calls)
	assert.Len(t, *delays, 2, "no sleep after the final attempt")
}

func TestClassifyDoesNotRetryProviderOrParseErrors(t *testing.T) {
	model := &scriptedModel{errs: []error{errors.New("connection reset")}}
	svc, _ := newTestService(model)
	_, err := svc.Classify(context.Background(), Input{Text: "oi"})
	assert.ErrorIs(t, err, ErrProvider)
	assert.NotErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 1, model.calls)

	model = &scriptedModel{responses: []string{"não sei"}}
	svc, _ = newTestService(model)
	_, err = svc.Classify(context.Background(), Input{Text: "oi"})
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.Equal(t, 1, model.calls)
}

func TestClassifyStopsWhenBackoffInterrupted(t *testing.T) {
	model := &scriptedModel{errs: []error{rateLimited(), rateLimited(), rateLimited()}}
	svc := NewService(model, Config{MaxAttempts: 3, BackoffBase: time.Second}, nil, logging.Discard()).
		WithSleep(func(context.Context, time.Duration) error { return context.Canceled })

	_, err := svc.Classify(context.Background(), Input{Text: "oi"})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 1, model.calls)
}
