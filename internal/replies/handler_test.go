package replies

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/robo-agendamentos/internal/archive"
	"github.com/wolfman30/robo-agendamentos/internal/classifier"
	"github.com/wolfman30/robo-agendamentos/internal/correlation"
	"github.com/wolfman30/robo-agendamentos/internal/messaging"
	"github.com/wolfman30/robo-agendamentos/internal/notify"
	"github.com/wolfman30/robo-agendamentos/internal/outcome"
	"github.com/wolfman30/robo-agendamentos/pkg/logging"
)

const (
	customerDigits = "5511987654321"
	customerChat   = messaging.Address("5511987654321@s.whatsapp.net")
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	to   []messaging.Address
	err  error
}

func (f *fakeSender) Send(_ context.Context, to messaging.Address, text string) (messaging.MessageHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	f.to = append(f.to, to)
	return messaging.MessageHandle{ID: "out-1", Address: to}, f.err
}

type fakeClassifier struct {
	result classifier.Result
	err    error
	panics bool
	inputs []classifier.Input
}

func (f *fakeClassifier) Classify(_ context.Context, in classifier.Input) (classifier.Result, error) {
	f.inputs = append(f.inputs, in)
	if f.panics {
		panic("model exploded")
	}
	return f.result, f.err
}

type persistCall struct {
	recordID string
	update   outcome.Update
}

type fakePersister struct {
	calls []persistCall
	err   error
}

func (f *fakePersister) UpdateStatus(_ context.Context, recordID string, u outcome.Update) error {
	f.calls = append(f.calls, persistCall{recordID: recordID, update: u})
	return f.err
}

type fakeAlerter struct {
	alerts []notify.Alert
}

func (f *fakeAlerter) Notify(_ context.Context, a notify.Alert) error {
	f.alerts = append(f.alerts, a)
	return nil
}

type fakeArchive struct {
	voices []archive.Voice
}

func (f *fakeArchive) ArchiveVoice(_ context.Context, v archive.Voice) (string, error) {
	f.voices = append(f.voices, v)
	return "replies/" + v.RecordID + "/" + v.MessageID + ".ogg", nil
}

type fixture struct {
	store     *correlation.Store
	sender    *fakeSender
	model     *fakeClassifier
	persister *fakePersister
	alerts    *fakeAlerter
	archive   *fakeArchive
	handler   *Handler
}

func newFixture(t *testing.T, c Classifier) *fixture {
	t.Helper()
	f := &fixture{
		store:     correlation.NewStore(logging.Discard()),
		sender:    &fakeSender{},
		model:     &fakeClassifier{},
		persister: &fakePersister{},
		alerts:    &fakeAlerter{},
		archive:   &fakeArchive{},
	}
	if c == nil {
		c = f.model
	}
	f.handler = NewHandler(f.store, f.sender, c, f.persister, logging.Discard()).
		WithAlerts(f.alerts).
		WithArchive(f.archive)

	require.NoError(t, f.store.Put(context.Background(), customerDigits, customerChat, correlation.Record{
		ID:             "evt-1",
		CustomerName:   "Maria",
		OrderReference: "123",
		Shift:          "morning",
		Template:       "delivery_confirmation",
		ScheduledDate:  "2025-01-10",
	}))
	return f
}

func textFrom(chat messaging.Address, text string) messaging.InboundMessage {
	return messaging.InboundMessage{
		ID:           "in-1",
		Chat:         chat,
		SenderDigits: chat.User(),
		Text:         text,
		Timestamp:    time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC),
	}
}

func TestProblemReplyFlagsRescheduleAndUsesFixedCopy(t *testing.T) {
	f := newFixture(t, nil)
	f.model.result = classifier.Result{
		Category: classifier.CategoryProblem,
		Summary:  "Cliente não estará em casa",
		Reply:    "Sem problemas, vamos ver outra data!",
	}

	got := f.handler.HandleInbound(context.Background(), textFrom(customerChat, "não vou estar em casa"))

	assert.Equal(t, OutcomeClassified, got)
	require.Len(t, f.model.inputs, 1)
	assert.Equal(t, "não vou estar em casa", f.model.inputs[0].Text)
	assert.Equal(t, "123", f.model.inputs[0].OrderReference)

	require.Len(t, f.persister.calls, 1)
	call := f.persister.calls[0]
	assert.Equal(t, "evt-1", call.recordID)
	assert.Equal(t, outcome.StatusManualReschedule, call.update.Status)
	assert.Contains(t, call.update.Note, "reagendar manualmente")
	assert.Equal(t, "não vou estar em casa", call.update.InboundText)

	assert.Equal(t, []string{ProblemReply}, f.sender.sent)
	assert.Equal(t, []messaging.Address{customerChat}, f.sender.to)

	_, ok := f.store.LookupByAddress(customerChat)
	assert.False(t, ok, "entry removed after classification")
	assert.Equal(t, 0, f.store.Len())

	require.Len(t, f.alerts.alerts, 1)
	assert.Equal(t, "manual_reschedule", f.alerts.alerts[0].Status)
	assert.Equal(t, "4321", f.alerts.alerts[0].PhoneSuffix)
}

func TestAcknowledgedMapsToConfirmed(t *testing.T) {
	f := newFixture(t, nil)
	f.model.result = classifier.Result{Category: classifier.CategoryAcknowledged, Summary: "ok", Reply: "Obrigado, Maria!"}

	got := f.handler.HandleInbound(context.Background(), textFrom(customerChat, "ok obrigada"))

	assert.Equal(t, OutcomeClassified, got)
	require.Len(t, f.persister.calls, 1)
	assert.Equal(t, outcome.StatusConfirmed, f.persister.calls[0].update.Status)
	assert.Equal(t, []string{"Obrigado, Maria!"}, f.sender.sent)
	assert.Equal(t, 0, f.store.Len())
	assert.Empty(t, f.alerts.alerts)
}

func TestQuestionWithoutReplyUsesFixedCopy(t *testing.T) {
	f := newFixture(t, nil)
	f.model.result = classifier.Result{Category: classifier.CategoryQuestion, Summary: "horário"}

	f.handler.HandleInbound(context.Background(), textFrom(customerChat, "que horas?"))

	require.Len(t, f.persister.calls, 1)
	assert.Equal(t, outcome.StatusNeedsAttention, f.persister.calls[0].update.Status)
	assert.Equal(t, []string{QuestionReply}, f.sender.sent)
	assert.Len(t, f.alerts.alerts, 1)
}

type rateLimitedModel struct{ calls int }

func (m *rateLimitedModel) Generate(context.Context, classifier.Prompt) (string, error) {
	m.calls++
	return "", fmt.Errorf("%w: 429", classifier.ErrRateLimited)
}

func TestThreeRateLimitsFallBackToHumanFollowUp(t *testing.T) {
	model := &rateLimitedModel{}
	svc := classifier.NewService(model, classifier.Config{MaxAttempts: 3, BackoffBase: time.Millisecond}, nil, logging.Discard()).
		WithSleep(func(context.Context, time.Duration) error { return nil })
	f := newFixture(t, svc)

	var got Outcome
	require.NotPanics(t, func() {
		got = f.handler.HandleInbound(context.Background(), textFrom(customerChat, "pode ser amanhã?"))
	})

	assert.Equal(t, OutcomeClassificationFailed, got)
	assert.Equal(t, 3, model.calls)
	require.Len(t, f.persister.calls, 1)
	assert.Equal(t, "evt-1", f.persister.calls[0].recordID)
	assert.Equal(t, outcome.StatusNeedsAttention, f.persister.calls[0].update.Status)
	assert.Contains(t, f.persister.calls[0].update.Summary, "rate_limited")
	assert.Equal(t, []string{FollowUpReply}, f.sender.sent)
	assert.Equal(t, 0, f.store.Len())
}

func TestUncorrelatedSenderIsIgnored(t *testing.T) {
	f := newFixture(t, nil)

	got := f.handler.HandleInbound(context.Background(), textFrom("5521900000000@s.whatsapp.net", "oi"))

	assert.Equal(t, OutcomeUncorrelated, got)
	assert.Empty(t, f.sender.sent)
	assert.Empty(t, f.persister.calls)
	assert.Empty(t, f.model.inputs)
	assert.Equal(t, 1, f.store.Len())
}

func TestSuffixFallbackCorrelatesDifferentAddress(t *testing.T) {
	f := newFixture(t, nil)
	f.model.result = classifier.Result{Category: classifier.CategoryAcknowledged, Summary: "ok", Reply: "Obrigado!"}

	msg := textFrom("99887766554433@lid", "certo")
	msg.SenderDigits = "551187654321"

	got := f.handler.HandleInbound(context.Background(), msg)

	assert.Equal(t, OutcomeClassified, got)
	assert.Equal(t, []messaging.Address{"99887766554433@lid"}, f.sender.to, "reply goes to the chat it came from")
	assert.Equal(t, 0, f.store.Len())
}

func TestFilteredMessagesAreSkipped(t *testing.T) {
	f := newFixture(t, nil)
	for _, msg := range []messaging.InboundMessage{
		{Chat: customerChat, Text: "eco", FromMe: true},
		{Chat: "120363@g.us", Text: "grupo", IsGroup: true},
		{Chat: "status@broadcast", Text: "status", IsStatus: true},
	} {
		assert.Equal(t, OutcomeSkipped, f.handler.HandleInbound(context.Background(), msg))
	}
	assert.Empty(t, f.sender.sent)
	assert.Equal(t, 1, f.store.Len())
}

func TestPersistFailureKeepsEntryAndStillReplies(t *testing.T) {
	f := newFixture(t, nil)
	f.model.result = classifier.Result{Category: classifier.CategoryAcknowledged, Summary: "ok", Reply: "Obrigado!"}
	f.persister.err = fmt.Errorf("%w: connection refused", outcome.ErrStoreUnavailable)

	got := f.handler.HandleInbound(context.Background(), textFrom(customerChat, "ok"))

	assert.Equal(t, OutcomeClassified, got)
	assert.Equal(t, []string{"Obrigado!"}, f.sender.sent)
	assert.Equal(t, 1, f.store.Len())
}

func TestPanicAfterCorrelationSendsReceivedReply(t *testing.T) {
	f := newFixture(t, nil)
	f.model.panics = true
	f.sender.err = errors.New("socket closed")

	var got Outcome
	require.NotPanics(t, func() {
		got = f.handler.HandleInbound(context.Background(), textFrom(customerChat, "oi"))
	})

	assert.Equal(t, OutcomeFallback, got)
	assert.Equal(t, []string{ReceivedReply}, f.sender.sent)
	assert.Empty(t, f.persister.calls)
}

func TestVoiceNoteIsFetchedArchivedAndClassified(t *testing.T) {
	f := newFixture(t, nil)
	f.model.result = classifier.Result{Category: classifier.CategoryProblem, Summary: "ausente"}
	audio := []byte("OggS-voice")

	msg := textFrom(customerChat, "")
	msg.Audio = &messaging.Audio{
		MIMEType: "audio/ogg; codecs=opus",
		Voice:    true,
		Fetch:    func(context.Context) ([]byte, error) { return audio, nil },
	}

	got := f.handler.HandleInbound(context.Background(), msg)

	assert.Equal(t, OutcomeClassified, got)
	require.Len(t, f.model.inputs, 1)
	assert.Equal(t, audio, f.model.inputs[0].Audio)
	assert.Equal(t, "audio/ogg; codecs=opus", f.model.inputs[0].AudioMIMEType)
	require.Len(t, f.archive.voices, 1)
	assert.Equal(t, "evt-1", f.archive.voices[0].RecordID)
	require.Len(t, f.persister.calls, 1)
	assert.Equal(t, "replies/evt-1/in-1.ogg", f.persister.calls[0].update.AudioKey)
	assert.Equal(t, []string{ProblemReply}, f.sender.sent)
}

func TestVoiceNoteDownloadFailureHandsOff(t *testing.T) {
	f := newFixture(t, nil)
	msg := textFrom(customerChat, "")
	msg.Audio = &messaging.Audio{
		MIMEType: "audio/ogg",
		Fetch:    func(context.Context) ([]byte, error) { return nil, errors.New("media expired") },
	}

	got := f.handler.HandleInbound(context.Background(), msg)

	assert.Equal(t, OutcomeClassificationFailed, got)
	assert.Empty(t, f.model.inputs)
	require.Len(t, f.persister.calls, 1)
	assert.Equal(t, outcome.StatusNeedsAttention, f.persister.calls[0].update.Status)
	assert.Equal(t, []string{FollowUpReply}, f.sender.sent)
}

func TestMediaWithoutTextFromCorrelatedSenderGetsReceivedReply(t *testing.T) {
	f := newFixture(t, nil)

	got := f.handler.HandleInbound(context.Background(), textFrom(customerChat, "   "))

	assert.Equal(t, OutcomeUnsupported, got)
	assert.Equal(t, []string{ReceivedReply}, f.sender.sent)
	assert.Empty(t, f.model.inputs)
	assert.Empty(t, f.persister.calls)
	assert.Equal(t, 1, f.store.Len(), "entry kept for a later text reply")
}

func TestMediaWithoutTextFromUnknownSenderIsIgnored(t *testing.T) {
	f := newFixture(t, nil)

	got := f.handler.HandleInbound(context.Background(), textFrom("5521900000000@s.whatsapp.net", ""))

	assert.Equal(t, OutcomeUncorrelated, got)
	assert.Empty(t, f.sender.sent)
}

// supersedingClassifier re-notifies the same customer while the reply to the
// previous notification is being classified.
type supersedingClassifier struct {
	store  *correlation.Store
	t      *testing.T
	result classifier.Result
}

func (c *supersedingClassifier) Classify(ctx context.Context, _ classifier.Input) (classifier.Result, error) {
	require.NoError(c.t, c.store.Put(ctx, customerDigits, customerChat, correlation.Record{
		ID:             "evt-2",
		CustomerName:   "Maria",
		OrderReference: "456",
		Template:       "reschedule",
		CreatedAt:      time.Now().Add(time.Minute),
	}))
	return c.result, nil
}

func TestReplyDoesNotRemoveNewerNotification(t *testing.T) {
	f := newFixture(t, nil)
	c := &supersedingClassifier{
		store:  f.store,
		t:      t,
		result: classifier.Result{Category: classifier.CategoryAcknowledged, Summary: "ok", Reply: "Obrigado!"},
	}
	f.handler.classifier = c

	got := f.handler.HandleInbound(context.Background(), textFrom(customerChat, "ok"))

	assert.Equal(t, OutcomeClassified, got)
	require.Len(t, f.persister.calls, 1)
	assert.Equal(t, "evt-1", f.persister.calls[0].recordID)

	entry, ok := f.store.LookupByAddress(customerChat)
	require.True(t, ok, "newer notification must survive the reply to the older one")
	assert.Equal(t, "evt-2", entry.Record.ID)
}
