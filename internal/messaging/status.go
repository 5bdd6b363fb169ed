package messaging

import (
	"sync"
	"time"
)

// ConnectionState is the transport session state as observed by the core.
type ConnectionState string

const (
	StateInitializing    ConnectionState = "initializing"
	StateAwaitingPairing ConnectionState = "awaiting_pairing"
	StateConnected       ConnectionState = "connected"
	StateDisconnected    ConnectionState = "disconnected"
)

// ConnectionStatus is a snapshot of the transport session.
type ConnectionStatus struct {
	State      ConnectionState `json:"state"`
	QRCode     string          `json:"qr_code,omitempty"`
	AccountJID string          `json:"account_jid,omitempty"`
	PushName   string          `json:"push_name,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// StatusHub keeps the latest ConnectionStatus and fans updates out to subscribers.
// Slow subscribers miss intermediate updates rather than blocking publishers.
type StatusHub struct {
	mu      sync.RWMutex
	current ConnectionStatus
	subs    map[int]chan ConnectionStatus
	nextID  int
	now     func() time.Time
}

func NewStatusHub() *StatusHub {
	h := &StatusHub{
		subs: make(map[int]chan ConnectionStatus),
		now:  time.Now,
	}
	h.current = ConnectionStatus{State: StateInitializing, UpdatedAt: h.now().UTC()}
	return h
}

// Publish replaces the current status and notifies subscribers.
func (h *StatusHub) Publish(status ConnectionStatus) {
	if status.UpdatedAt.IsZero() {
		status.UpdatedAt = h.now().UTC()
	}
	h.mu.Lock()
	h.current = status
	subs := make([]chan ConnectionStatus, 0, len(h.subs))
	for _, ch := range h.subs {
		subs = append(subs, ch)
	}
	h.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- status:
		default:
		}
	}
}

// Current returns the latest status.
func (h *StatusHub) Current() ConnectionStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Subscribe returns a channel primed with the current status and a cancel func.
func (h *StatusHub) Subscribe() (<-chan ConnectionStatus, func()) {
	ch := make(chan ConnectionStatus, 4)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	ch <- h.current
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}
