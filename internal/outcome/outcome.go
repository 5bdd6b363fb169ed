package outcome

import (
	"context"
	"errors"
)

var (
	// ErrStoreUnavailable wraps any failure to reach or write the backing store.
	ErrStoreUnavailable = errors.New("outcome: store unavailable")
	// ErrRecordNotFound means no delivery row matched the record id.
	ErrRecordNotFound = errors.New("outcome: record not found")
)

// Status is the customer-facing state written back to a delivery.
type Status string

const (
	StatusConfirmed        Status = "confirmed"
	StatusManualReschedule Status = "manual_reschedule"
	StatusNeedsAttention   Status = "needs_attention"
)

// Update is the result of handling one reply.
type Update struct {
	Status      Status
	Note        string
	Category    string
	Summary     string
	InboundText string
	MessageID   string
	AudioKey    string
}

// Persister writes reply outcomes. Callers log failures and never retry.
type Persister interface {
	UpdateStatus(ctx context.Context, recordID string, u Update) error
}
