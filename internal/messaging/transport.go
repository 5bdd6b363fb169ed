package messaging

import (
	"context"
	"strings"
	"time"
)

// UserServer is the WhatsApp server suffix for individual accounts.
const UserServer = "s.whatsapp.net"

// Address is the transport's canonical conversation identifier, e.g.
// "5511987654321@s.whatsapp.net". It may differ from the dialed digits.
type Address string

// AddressFromDigits builds the naive address for a normalized number.
func AddressFromDigits(digits string) Address {
	if digits == "" {
		return ""
	}
	return Address(digits + "@" + UserServer)
}

func (a Address) String() string { return string(a) }

// User returns the part before the server, without any device suffix.
func (a Address) User() string {
	user, _, _ := strings.Cut(string(a), "@")
	user, _, _ = strings.Cut(user, ":")
	return user
}

// MessageHandle identifies a sent message and the chat it actually landed in.
type MessageHandle struct {
	ID        string
	Address   Address
	Timestamp time.Time
}

// Audio is a voice note or audio attachment whose bytes are fetched lazily,
// so uncorrelated senders never cost a media download.
type Audio struct {
	MIMEType string
	Voice    bool
	Fetch    func(ctx context.Context) ([]byte, error)
}

// InboundMessage is one message received from the transport.
type InboundMessage struct {
	ID           string
	Chat         Address
	SenderDigits string
	PushName     string
	Text         string
	Audio        *Audio
	FromMe       bool
	IsGroup      bool
	IsBroadcast  bool
	IsStatus     bool
	// IsSystem marks protocol traffic (edits, revokes) with no customer content.
	IsSystem  bool
	Timestamp time.Time
}

// SkipReason reports why a message must not be processed, or "" when it should be.
func (m InboundMessage) SkipReason() string {
	switch {
	case m.FromMe:
		return "from_me"
	case m.IsStatus:
		return "status"
	case m.IsBroadcast:
		return "broadcast"
	case m.IsGroup:
		return "group"
	case m.IsSystem:
		return "system"
	}
	return ""
}

// HasContent reports whether the message carries text or a voice note.
// Images, stickers and other media arrive without either.
func (m InboundMessage) HasContent() bool {
	return strings.TrimSpace(m.Text) != "" || m.Audio != nil
}

// Sender delivers a text message to an address.
type Sender interface {
	Send(ctx context.Context, to Address, text string) (MessageHandle, error)
}

// Resolver maps normalized phone digits to a conversation address.
type Resolver interface {
	ResolveAddress(ctx context.Context, digits string) (Address, error)
}

// Transport is the outbound surface the dispatcher needs.
type Transport interface {
	Sender
	Resolver
}

// InboundHandler receives one callback per inbound message.
type InboundHandler func(ctx context.Context, msg InboundMessage)
