package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	qrterminal "github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/wolfman30/robo-agendamentos/internal/messaging"
	"github.com/wolfman30/robo-agendamentos/internal/observability/metrics"
	"github.com/wolfman30/robo-agendamentos/pkg/logging"

	_ "modernc.org/sqlite"
)

const (
	sendTimeout     = 30 * time.Second
	resolveTimeout  = 15 * time.Second
	downloadTimeout = 30 * time.Second
)

// ErrNotOnWhatsApp is returned by ResolveAddress for numbers without an account.
var ErrNotOnWhatsApp = errors.New("whatsapp: number is not on whatsapp")

// ErrNotConnected is returned when the session is not logged in yet.
var ErrNotConnected = errors.New("whatsapp: not connected")

type Config struct {
	StorePath string
	PrintQR   bool
	QRWriter  io.Writer
}

// Client is the WhatsApp transport: it sends texts, resolves numbers to
// chats and feeds inbound messages to a handler on their own goroutines.
type Client struct {
	cfg       Config
	client    *whatsmeow.Client
	container *sqlstore.Container
	hub       *messaging.StatusHub
	metrics   *metrics.NotifierMetrics
	logger    *logging.Logger
	handlerID uint32

	mu       sync.RWMutex
	inbound  messaging.InboundHandler
	ctx      context.Context
	cancel   context.CancelFunc
	stopping bool
	wg       sync.WaitGroup
}

// New opens the sqlite session store and prepares the client. Nothing
// connects until Start.
func New(ctx context.Context, cfg Config, hub *messaging.StatusHub, m *metrics.NotifierMetrics, logger *logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if hub == nil {
		hub = messaging.NewStatusHub()
	}
	if cfg.QRWriter == nil {
		cfg.QRWriter = os.Stdout
	}

	storePath := strings.TrimSpace(cfg.StorePath)
	if storePath == "" {
		storePath = "data/whatsapp-store.db"
	}
	if err := os.MkdirAll(filepath.Dir(storePath), 0o755); err != nil {
		return nil, fmt.Errorf("whatsapp: create store dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)", filepath.ToSlash(storePath))
	container, err := sqlstore.New(ctx, "sqlite", dsn, waLog.Noop)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: init session store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("whatsapp: get device: %w", err)
	}

	c := &Client{
		cfg:       cfg,
		client:    whatsmeow.NewClient(device, waLog.Noop),
		container: container,
		hub:       hub,
		metrics:   m,
		logger:    logger,
	}
	c.handlerID = c.client.AddEventHandler(c.handleEvent)
	return c, nil
}

// SetInboundHandler installs the callback for inbound messages.
func (c *Client) SetInboundHandler(h messaging.InboundHandler) {
	c.mu.Lock()
	c.inbound = h
	c.mu.Unlock()
}

// Start connects, starting QR pairing first when the device is not logged in.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	c.ctx, c.cancel = context.WithCancel(ctx)
	runCtx := c.ctx
	c.mu.Unlock()

	if c.client.Store.ID == nil {
		qrChan, err := c.client.GetQRChannel(runCtx)
		if err != nil {
			c.cancel()
			return fmt.Errorf("whatsapp: get qr channel: %w", err)
		}
		c.wg.Add(1)
		go c.consumeQR(runCtx, qrChan)
	}

	if err := c.client.Connect(); err != nil {
		c.cancel()
		return fmt.Errorf("whatsapp: connect: %w", err)
	}
	c.logger.Info("whatsapp: connecting", "paired", c.client.Store.ID != nil)
	return nil
}

// Stop disconnects, waits for in-flight inbound handlers and closes the store.
func (c *Client) Stop() error {
	c.mu.Lock()
	c.stopping = true
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	if c.handlerID != 0 {
		c.client.RemoveEventHandler(c.handlerID)
		c.handlerID = 0
	}
	c.client.Disconnect()
	c.wg.Wait()

	if c.container != nil {
		if err := c.container.Close(); err != nil {
			return fmt.Errorf("whatsapp: close store: %w", err)
		}
		c.container = nil
	}
	c.logger.Info("whatsapp: stopped")
	return nil
}

func (c *Client) Send(ctx context.Context, to messaging.Address, text string) (messaging.MessageHandle, error) {
	jid, err := ParseJID(to.String())
	if err != nil {
		return messaging.MessageHandle{}, fmt.Errorf("whatsapp: parse chat %q: %w", to, err)
	}
	if !c.client.IsLoggedIn() {
		return messaging.MessageHandle{}, ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	resp, err := c.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return messaging.MessageHandle{}, fmt.Errorf("whatsapp: send message: %w", err)
	}
	return messaging.MessageHandle{
		ID:        string(resp.ID),
		Address:   messaging.Address(jid.ToNonAD().String()),
		Timestamp: resp.Timestamp,
	}, nil
}

// ResolveAddress asks WhatsApp for the account behind the number. An empty
// answer yields "" so the caller falls back to the naive address.
func (c *Client) ResolveAddress(ctx context.Context, digits string) (messaging.Address, error) {
	if digits == "" {
		return "", errors.New("whatsapp: empty number")
	}
	if !c.client.IsLoggedIn() {
		return "", ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	results, err := c.client.IsOnWhatsApp(ctx, []string{"+" + digits})
	if err != nil {
		return "", fmt.Errorf("whatsapp: lookup number: %w", err)
	}
	if len(results) == 0 {
		return "", nil
	}
	if !results[0].IsIn {
		return "", ErrNotOnWhatsApp
	}
	return messaging.Address(results[0].JID.ToNonAD().String()), nil
}

func (c *Client) consumeQR(ctx context.Context, qrChan <-chan whatsmeow.QRChannelItem) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-qrChan:
			if !ok {
				return
			}
			switch evt.Event {
			case whatsmeow.QRChannelEventCode:
				c.hub.Publish(messaging.ConnectionStatus{State: messaging.StateAwaitingPairing, QRCode: evt.Code})
				if c.cfg.PrintQR {
					c.logger.Info("whatsapp: scan the QR code to pair", "timeout", evt.Timeout.String())
					qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, c.cfg.QRWriter)
				}
			default:
				if evt.Error != nil {
					c.logger.Warn("whatsapp: pairing event", "event", evt.Event, "error", evt.Error)
				} else {
					c.logger.Info("whatsapp: pairing event", "event", evt.Event)
				}
			}
		}
	}
}

func (c *Client) handleEvent(evt any) {
	switch e := evt.(type) {
	case *events.Message:
		c.dispatchInbound(e)
	case *events.Connected:
		c.setConnected(true)
	case *events.PairSuccess:
		c.logger.Info("whatsapp: paired", "account", e.ID.String())
	case *events.Disconnected:
		c.setConnected(false)
	case *events.LoggedOut:
		c.logger.Warn("whatsapp: logged out", "reason", e.Reason)
		c.setConnected(false)
	case *events.StreamReplaced:
		c.logger.Warn("whatsapp: stream replaced by another session")
		c.setConnected(false)
	}
}

func (c *Client) setConnected(connected bool) {
	status := messaging.ConnectionStatus{State: messaging.StateDisconnected}
	if connected {
		status.State = messaging.StateConnected
		if id := c.client.Store.ID; id != nil {
			status.AccountJID = id.ToNonAD().String()
		}
		status.PushName = c.client.Store.PushName
	}
	c.hub.Publish(status)
	c.metrics.SetTransportConnected(connected)
	c.logger.Info("whatsapp: connection state changed", "state", string(status.State))
}

func (c *Client) dispatchInbound(evt *events.Message) {
	if evt == nil || evt.Message == nil {
		return
	}
	msg := ToInbound(evt, c.downloader())

	// wg.Add happens under the lock so it cannot race the Wait in Stop.
	c.mu.RLock()
	handler, ctx := c.inbound, c.ctx
	if handler == nil || ctx == nil || c.stopping {
		c.mu.RUnlock()
		return
	}
	c.wg.Add(1)
	c.mu.RUnlock()

	go func() {
		defer c.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("whatsapp: inbound handler panicked", "message_id", msg.ID, "panic", fmt.Sprint(r))
			}
		}()
		handler(ctx, msg)
	}()
}

func (c *Client) downloader() func(ctx context.Context, audio *waE2E.AudioMessage) ([]byte, error) {
	return func(ctx context.Context, audio *waE2E.AudioMessage) ([]byte, error) {
		ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
		defer cancel()
		return c.client.Download(ctx, audio)
	}
}

// ParseJID accepts a full JID or bare digits with an optional "+".
func ParseJID(raw string) (types.JID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return types.EmptyJID, errors.New("empty jid")
	}
	if strings.Contains(raw, "@") {
		return types.ParseJID(raw)
	}
	user := strings.TrimPrefix(raw, "+")
	if user != "" && messaging.Digits(user) == user {
		return types.NewJID(user, types.DefaultUserServer), nil
	}
	return types.ParseJID(raw)
}
