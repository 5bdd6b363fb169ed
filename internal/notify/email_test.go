package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSendGridSender_NilWithoutAPIKey(t *testing.T) {
	assert.Nil(t, NewSendGridSender(SendGridConfig{FromEmail: "ops@example.com"}, nil))
}

func TestNewSendGridSender_DefaultFromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{APIKey: "test-key", FromEmail: "ops@example.com"}, nil)
	require.NotNil(t, sender)
	assert.Equal(t, defaultFromName, sender.fromName)
}

func TestSendGridSender_Send_NilClient(t *testing.T) {
	err := (&SendGridSender{}).Send(context.Background(), EmailMessage{To: "x@example.com"})
	assert.Error(t, err)
}

func TestStubEmailSender_Send(t *testing.T) {
	assert.NoError(t, NewStubEmailSender(nil).Send(context.Background(), EmailMessage{To: "ops@example.com", Subject: "s"}))
}

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func TestSESSender_Send(t *testing.T) {
	assert.Nil(t, NewSESSender(nil, SESConfig{}, nil))

	api := &fakeSES{}
	sender := NewSESSender(api, SESConfig{FromEmail: "robo@example.com"}, nil)
	require.NoError(t, sender.Send(context.Background(), EmailMessage{To: "ops@example.com", Subject: "Oi", Body: "corpo"}))

	assert.Equal(t, "=?utf-8?q?Rob=C3=B4_de_Agendamentos?= <robo@example.com>", aws.ToString(api.input.FromEmailAddress))
	assert.Equal(t, []string{"ops@example.com"}, api.input.Destination.ToAddresses)
	assert.Equal(t, "corpo", aws.ToString(api.input.Content.Simple.Body.Text.Data))
	assert.Nil(t, api.input.Content.Simple.Body.Html)

	assert.Empty(t, api.input.EmailTags)

	require.NoError(t, sender.Send(context.Background(), EmailMessage{To: "ops@example.com, lead@example.com", Subject: "Oi", Body: "x", Category: "operator_alert"}))
	assert.Equal(t, []string{"ops@example.com", "lead@example.com"}, api.input.Destination.ToAddresses)
	require.Len(t, api.input.EmailTags, 1)
	assert.Equal(t, "operator_alert", aws.ToString(api.input.EmailTags[0].Value))

	api.err = errors.New("throttled")
	assert.Error(t, sender.Send(context.Background(), EmailMessage{To: "ops@example.com"}))
}

func TestEmailMessageRecipients(t *testing.T) {
	to, err := EmailMessage{To: " ops@example.com ,, Lead <lead@example.com>"}.recipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"ops@example.com", "lead@example.com"}, to)

	_, err = EmailMessage{To: "  "}.recipients()
	assert.ErrorIs(t, err, ErrInvalidRecipient)

	_, err = EmailMessage{To: "not-an-address"}.recipients()
	assert.ErrorIs(t, err, ErrInvalidRecipient)
}

func TestSendersRejectMissingRecipient(t *testing.T) {
	api := &fakeSES{}
	sender := NewSESSender(api, SESConfig{FromEmail: "robo@example.com"}, nil)
	assert.ErrorIs(t, sender.Send(context.Background(), EmailMessage{Subject: "s"}), ErrInvalidRecipient)
	assert.Nil(t, api.input)

	assert.ErrorIs(t, NewStubEmailSender(nil).Send(context.Background(), EmailMessage{Subject: "s"}), ErrInvalidRecipient)
}
