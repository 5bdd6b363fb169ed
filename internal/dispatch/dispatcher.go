package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/wolfman30/robo-agendamentos/internal/correlation"
	"github.com/wolfman30/robo-agendamentos/internal/messaging"
	"github.com/wolfman30/robo-agendamentos/internal/observability/metrics"
	"github.com/wolfman30/robo-agendamentos/pkg/logging"
)

var (
	// ErrAddressResolution means the transport could not map a number to a conversation.
	ErrAddressResolution = errors.New("dispatch: address resolution failed")
	// ErrSend means the transport rejected or failed the outbound message.
	ErrSend = errors.New("dispatch: send failed")
)

// Skip and failure reasons, used as metric labels and in Summary.Reasons.
const (
	reasonMissingPhone      = "missing_phone"
	reasonAddressResolution = "address_resolution"
	reasonRender            = "render"
	reasonRateLimiter       = "rate_limiter"
	reasonSend              = "send"
	reasonPanic             = "panic"
)

// Config tunes pacing and normalization.
type Config struct {
	CountryCode       string
	BaseDelay         time.Duration
	Jitter            time.Duration
	OutboundPerMinute int
	Location          *time.Location
}

// Dispatcher sends one notification per event, strictly in order, pausing a
// randomized interval after every transport contact.
type Dispatcher struct {
	transport   messaging.Transport
	store       *correlation.Store
	renderer    *Renderer
	limiter     *rate.Limiter
	metrics     *metrics.NotifierMetrics
	logger      *logging.Logger
	countryCode string
	baseDelay   time.Duration
	jitter      time.Duration
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
	randInt63n  func(n int64) int64
}

func NewDispatcher(transport messaging.Transport, store *correlation.Store, cfg Config, m *metrics.NotifierMetrics, logger *logging.Logger) *Dispatcher {
	if transport == nil {
		panic("dispatch: transport cannot be nil")
	}
	if store == nil {
		panic("dispatch: correlation store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = "55"
	}
	d := &Dispatcher{
		transport:   transport,
		store:       store,
		renderer:    NewRenderer(cfg.Location),
		metrics:     m,
		logger:      logger,
		countryCode: cfg.CountryCode,
		baseDelay:   cfg.BaseDelay,
		jitter:      cfg.Jitter,
		now:         time.Now,
		sleep:       sleepContext,
		randInt63n:  rand.Int63n,
	}
	if cfg.OutboundPerMinute > 0 {
		d.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.OutboundPerMinute)), 1)
	}
	return d
}

// WithClock overrides "now", which drives date labels and record timestamps.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	if now != nil {
		d.now = now
	}
	return d
}

// WithSleep overrides the pacing sleep.
func (d *Dispatcher) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Dispatcher {
	if sleep != nil {
		d.sleep = sleep
	}
	return d
}

// Dispatch processes the batch. A failing event never stops the ones after it;
// only cancellation of ctx ends the batch early.
func (d *Dispatcher) Dispatch(ctx context.Context, batch Batch) Summary {
	logger := d.logger.With("batch_id", batch.ID, "template", string(batch.Template))
	summary := Summary{Total: len(batch.Events)}
	logger.Info("dispatch: batch started", "events", summary.Total)

	for i, ev := range batch.Events {
		if err := ctx.Err(); err != nil {
			logger.Warn("dispatch: batch interrupted", "remaining", summary.Total-i, "error", err)
			break
		}

		digits := messaging.NormalizeDigits(ev.Phone.String(), d.countryCode)
		if digits == "" {
			summary.Skipped++
			summary.note(reasonMissingPhone)
			d.metrics.ObserveSkip(reasonMissingPhone)
			logger.Warn("dispatch: event without phone skipped", "index", i, "order_ref", ev.Order.String())
			continue
		}

		attempted, reason, err := d.dispatchOne(ctx, batch.Template, ev, digits)
		switch {
		case err == nil:
			summary.Attempted++
			summary.Sent++
			d.metrics.ObserveSend(string(batch.Template), "sent")
		case !attempted:
			summary.Skipped++
			summary.note(reason)
			d.metrics.ObserveSkip(reason)
			logger.Warn("dispatch: event skipped", "index", i, "reason", reason, "phone", messaging.MaskPhone(digits), "error", err)
		default:
			summary.Attempted++
			summary.Failed++
			summary.note(reason)
			d.metrics.ObserveSend(string(batch.Template), "failed")
			logger.Error("dispatch: event failed", "index", i, "reason", reason, "phone", messaging.MaskPhone(digits), "order_ref", ev.Order.String(), "error", err)
		}

		if err := d.pause(ctx); err != nil {
			logger.Warn("dispatch: pacing interrupted", "error", err)
		}
	}

	d.metrics.SetPendingEntries(d.store.Len())
	logger.Info("dispatch: batch finished",
		"attempted", summary.Attempted,
		"sent", summary.Sent,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
	)
	return summary
}

// dispatchOne resolves, renders, sends and registers one event. attempted
// reports whether Send was reached; reason names the stage that failed.
func (d *Dispatcher) dispatchOne(ctx context.Context, kind TemplateKind, ev Event, digits string) (attempted bool, reason string, err error) {
	defer func() {
		if r := recover(); r != nil {
			reason = reasonPanic
			err = fmt.Errorf("dispatch: panic: %v", r)
		}
	}()

	addr, err := d.transport.ResolveAddress(ctx, digits)
	if err != nil {
		return false, reasonAddressResolution, fmt.Errorf("%w: %w", ErrAddressResolution, err)
	}
	if addr == "" {
		addr = messaging.AddressFromDigits(digits)
	}

	now := d.now()
	text, err := d.renderer.Render(kind, ev, now)
	if err != nil {
		return false, reasonRender, err
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return false, reasonRateLimiter, fmt.Errorf("dispatch: outbound limiter: %w", err)
		}
	}

	attempted = true
	handle, err := d.transport.Send(ctx, addr, text)
	if err != nil {
		return true, reasonSend, fmt.Errorf("%w: %w", ErrSend, err)
	}
	if handle.Address != "" {
		addr = handle.Address
	}

	rec := correlation.Record{
		ID:             ev.ID.String(),
		CustomerName:   strings.TrimSpace(ev.Name),
		OrderReference: ev.Order.String(),
		Shift:          string(ParseShift(ev.Shift)),
		Template:       string(kind),
		ScheduledDate:  ev.Date,
		CreatedAt:      now,
	}
	if err := d.store.Put(ctx, digits, addr, rec); err != nil {
		// The message is out; only the reply correlation is lost.
		d.logger.Warn("dispatch: sent but not registered", "phone", messaging.MaskPhone(digits), "error", err)
	}
	d.logger.Info("dispatch: notification sent",
		"phone", messaging.MaskPhone(digits),
		"order_ref", rec.OrderReference,
		"message_id", handle.ID,
	)
	return true, "", nil
}

func (d *Dispatcher) pause(ctx context.Context) error {
	delay := d.baseDelay
	if d.jitter > 0 {
		delay += time.Duration(d.randInt63n(int64(d.jitter)))
	}
	if delay <= 0 {
		return nil
	}
	return d.sleep(ctx, delay)
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
