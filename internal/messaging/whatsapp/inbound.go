package whatsapp

import (
	"context"
	"strings"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/wolfman30/robo-agendamentos/internal/messaging"
)

// ToInbound converts a whatsmeow message event. Audio is not downloaded here;
// download is bound into Audio.Fetch and runs only if the handler asks.
func ToInbound(evt *events.Message, download func(ctx context.Context, audio *waE2E.AudioMessage) ([]byte, error)) messaging.InboundMessage {
	info := evt.Info
	msg := messaging.InboundMessage{
		ID:          string(info.ID),
		Chat:        messaging.Address(info.Chat.ToNonAD().String()),
		PushName:    info.PushName,
		FromMe:      info.IsFromMe,
		IsGroup:     info.IsGroup || info.Chat.Server == types.GroupServer,
		IsBroadcast: info.Chat.Server == types.BroadcastServer && info.Chat != types.StatusBroadcastJID,
		IsStatus:    info.Chat == types.StatusBroadcastJID,
		Timestamp:   info.Timestamp,
	}
	if info.Sender.Server == types.DefaultUserServer {
		msg.SenderDigits = info.Sender.User
	} else if info.Chat.Server == types.DefaultUserServer {
		msg.SenderDigits = info.Chat.User
	}

	m := evt.Message
	if m == nil || m.GetProtocolMessage() != nil {
		msg.IsSystem = true
		return msg
	}
	msg.Text = messageText(m)

	if audio := m.GetAudioMessage(); audio != nil && download != nil {
		msg.Audio = &messaging.Audio{
			MIMEType: audio.GetMimetype(),
			Voice:    audio.GetPTT(),
			Fetch: func(ctx context.Context) ([]byte, error) {
				return download(ctx, audio)
			},
		}
	}
	return msg
}

// messageText returns the typed text, or the caption of an image or video.
func messageText(m *waE2E.Message) string {
	for _, candidate := range []string{
		m.GetConversation(),
		m.GetExtendedTextMessage().GetText(),
		m.GetImageMessage().GetCaption(),
		m.GetVideoMessage().GetCaption(),
	} {
		if text := strings.TrimSpace(candidate); text != "" {
			return text
		}
	}
	return ""
}
