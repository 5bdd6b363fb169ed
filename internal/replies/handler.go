package replies

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/robo-agendamentos/internal/archive"
	"github.com/wolfman30/robo-agendamentos/internal/classifier"
	"github.com/wolfman30/robo-agendamentos/internal/correlation"
	"github.com/wolfman30/robo-agendamentos/internal/messaging"
	"github.com/wolfman30/robo-agendamentos/internal/notify"
	"github.com/wolfman30/robo-agendamentos/internal/observability/metrics"
	"github.com/wolfman30/robo-agendamentos/internal/outcome"
	"github.com/wolfman30/robo-agendamentos/pkg/logging"
)

// Outcome is how one inbound message was handled.
type Outcome string

const (
	OutcomeSkipped              Outcome = "skipped"
	OutcomeUncorrelated         Outcome = "uncorrelated"
	OutcomeClassified           Outcome = "classified"
	OutcomeClassificationFailed Outcome = "classification_failed"
	OutcomeFallback             Outcome = "fallback"
	OutcomeUnsupported          Outcome = "unsupported"
)

type Classifier interface {
	Classify(ctx context.Context, in classifier.Input) (classifier.Result, error)
}

type Alerter interface {
	Notify(ctx context.Context, alert notify.Alert) error
}

type VoiceArchiver interface {
	ArchiveVoice(ctx context.Context, v archive.Voice) (string, error)
}

// Handler turns a reply to a pending notification into a delivery status and
// always answers a correlated sender exactly once.
type Handler struct {
	store      *correlation.Store
	sender     messaging.Sender
	classifier Classifier
	persister  outcome.Persister
	alerts     Alerter
	archive    VoiceArchiver
	metrics    *metrics.NotifierMetrics
	logger     *logging.Logger
}

func NewHandler(store *correlation.Store, sender messaging.Sender, c Classifier, persister outcome.Persister, logger *logging.Logger) *Handler {
	if store == nil || sender == nil || c == nil || persister == nil {
		panic("replies: store, sender, classifier and persister are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		store:      store,
		sender:     sender,
		classifier: c,
		persister:  persister,
		logger:     logger,
	}
}

func (h *Handler) WithAlerts(a Alerter) *Handler {
	h.alerts = a
	return h
}

func (h *Handler) WithArchive(a VoiceArchiver) *Handler {
	h.archive = a
	return h
}

func (h *Handler) WithMetrics(m *metrics.NotifierMetrics) *Handler {
	h.metrics = m
	return h
}

// reply tracks the single answer a correlated sender gets.
type reply struct {
	to   messaging.Address
	sent bool
}

// HandleInbound processes one message end to end.
func (h *Handler) HandleInbound(ctx context.Context, msg messaging.InboundMessage) (result Outcome) {
	if reason := msg.SkipReason(); reason != "" {
		h.logger.Debug("replies: message skipped", "reason", reason, "message_id", msg.ID)
		h.metrics.ObserveInbound(string(OutcomeSkipped))
		return OutcomeSkipped
	}

	entry, ok := h.correlate(msg)
	if !ok {
		h.logger.Debug("replies: uncorrelated sender ignored", "phone", messaging.MaskPhone(senderDigits(msg)))
		h.metrics.ObserveInbound(string(OutcomeUncorrelated))
		return OutcomeUncorrelated
	}

	logger := h.logger.With(
		"record_id", entry.Record.ID,
		"order_ref", entry.Record.OrderReference,
		"phone", messaging.MaskPhone(entry.Digits),
		"message_id", msg.ID,
	)
	r := &reply{to: msg.Chat}
	if r.to == "" {
		r.to = entry.Address
	}

	defer func() {
		if p := recover(); p != nil {
			logger.Error("replies: panic while handling reply", "panic", fmt.Sprint(p))
			if !r.sent {
				h.send(ctx, logger, r, ReceivedReply)
			}
			result = OutcomeFallback
		}
		h.metrics.ObserveInbound(string(result))
	}()

	if !msg.HasContent() {
		// Media without text or audio cannot be classified; the entry stays
		// for a later reply.
		logger.Info("replies: unsupported content from correlated sender")
		h.send(ctx, logger, r, ReceivedReply)
		return OutcomeUnsupported
	}

	in := classifier.Input{
		CustomerName:   entry.Record.CustomerName,
		OrderReference: entry.Record.OrderReference,
		Template:       entry.Record.Template,
		ScheduledDate:  entry.Record.ScheduledDate,
		Text:           strings.TrimSpace(msg.Text),
	}

	var audioKey string
	if msg.Audio != nil {
		data, err := h.fetchAudio(ctx, msg.Audio)
		if err != nil {
			logger.Warn("replies: voice note download failed", "error", err)
			return h.classificationFailed(ctx, logger, r, entry, msg, "", err)
		}
		in.Audio = data
		in.AudioMIMEType = msg.Audio.MIMEType
		audioKey = h.archiveVoice(ctx, logger, entry, msg, data)
	}

	res, err := h.classifier.Classify(ctx, in)
	if err != nil {
		return h.classificationFailed(ctx, logger, r, entry, msg, audioKey, err)
	}

	status := statusFor(res.Category)
	update := outcome.Update{
		Status:      status,
		Note:        noteFor(res),
		Category:    string(res.Category),
		Summary:     res.Summary,
		InboundText: in.Text,
		MessageID:   msg.ID,
		AudioKey:    audioKey,
	}
	h.persist(ctx, logger, entry, update)
	h.send(ctx, logger, r, replyFor(res))
	if status != outcome.StatusConfirmed {
		h.alert(ctx, logger, entry, update)
	}

	logger.Info("replies: reply classified", "category", string(res.Category), "status", string(status))
	return OutcomeClassified
}

// correlate tries the exact chat address, then the weaker suffix match.
func (h *Handler) correlate(msg messaging.InboundMessage) (correlation.Entry, bool) {
	if msg.Chat != "" {
		if entry, ok := h.store.LookupByAddress(msg.Chat); ok {
			return entry, true
		}
	}
	digits := senderDigits(msg)
	if digits == "" {
		return correlation.Entry{}, false
	}
	return h.store.LookupBySuffix(digits)
}

func (h *Handler) classificationFailed(ctx context.Context, logger *logging.Logger, r *reply, entry correlation.Entry, msg messaging.InboundMessage, audioKey string, cause error) Outcome {
	kind := "provider_error"
	switch {
	case errors.Is(cause, classifier.ErrRateLimited):
		kind = "rate_limited"
	case errors.Is(cause, classifier.ErrMalformedResponse):
		kind = "malformed"
	}
	logger.Warn("replies: classification failed, handing off to a human", "kind", kind, "error", cause)

	update := outcome.Update{
		Status:      outcome.StatusNeedsAttention,
		Note:        classificationFailNote,
		Summary:     "falha na classificação (" + kind + ")",
		InboundText: strings.TrimSpace(msg.Text),
		MessageID:   msg.ID,
		AudioKey:    audioKey,
	}
	h.persist(ctx, logger, entry, update)
	h.send(ctx, logger, r, FollowUpReply)
	h.alert(ctx, logger, entry, update)
	return OutcomeClassificationFailed
}

// persist writes the update and clears the correlation entry once the write
// succeeded. On failure the entry stays so a later reply can retry. An entry
// replaced by a newer notification while classifying is left alone.
func (h *Handler) persist(ctx context.Context, logger *logging.Logger, entry correlation.Entry, u outcome.Update) {
	err := h.persister.UpdateStatus(ctx, recordID(entry.Record), u)
	h.metrics.ObservePersist(string(u.Status), err == nil)
	if err != nil {
		logger.Error("replies: status update failed", "status", string(u.Status), "error", err)
		return
	}
	if !h.store.RemoveIfCurrent(ctx, entry) {
		logger.Info("replies: correlation entry superseded by a newer notification, keeping it")
	}
	h.metrics.SetPendingEntries(h.store.Len())
}

func (h *Handler) send(ctx context.Context, logger *logging.Logger, r *reply, text string) {
	if r.sent {
		return
	}
	r.sent = true
	if _, err := h.sender.Send(ctx, r.to, text); err != nil {
		logger.Error("replies: reply send failed", "error", err)
	}
}

func (h *Handler) alert(ctx context.Context, logger *logging.Logger, entry correlation.Entry, u outcome.Update) {
	if h.alerts == nil {
		return
	}
	err := h.alerts.Notify(ctx, notify.Alert{
		RecordID:       entry.Record.ID,
		CustomerName:   entry.Record.CustomerName,
		OrderReference: entry.Record.OrderReference,
		PhoneSuffix:    messaging.Suffix(entry.Digits, 4),
		Status:         string(u.Status),
		Category:       u.Category,
		Summary:        u.Summary,
		InboundText:    u.InboundText,
		Note:           u.Note,
	})
	if err != nil {
		logger.Warn("replies: operator alert failed", "error", err)
	}
}

func (h *Handler) fetchAudio(ctx context.Context, a *messaging.Audio) ([]byte, error) {
	if a.Fetch == nil {
		return nil, errors.New("replies: audio has no fetcher")
	}
	data, err := a.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("replies: empty audio")
	}
	return data, nil
}

func (h *Handler) archiveVoice(ctx context.Context, logger *logging.Logger, entry correlation.Entry, msg messaging.InboundMessage, data []byte) string {
	if h.archive == nil {
		return ""
	}
	key, err := h.archive.ArchiveVoice(ctx, archive.Voice{
		RecordID:   recordID(entry.Record),
		MessageID:  msg.ID,
		MIMEType:   msg.Audio.MIMEType,
		Data:       data,
		ReceivedAt: msg.Timestamp,
	})
	if err != nil {
		logger.Warn("replies: voice archive failed", "error", err)
		return ""
	}
	return key
}

func recordID(rec correlation.Record) string {
	if rec.ID != "" {
		return rec.ID
	}
	return rec.OrderReference
}

func senderDigits(msg messaging.InboundMessage) string {
	if msg.SenderDigits != "" {
		return messaging.Digits(msg.SenderDigits)
	}
	return messaging.Digits(msg.Chat.User())
}
