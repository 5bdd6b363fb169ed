package correlation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/robo-agendamentos/internal/messaging"
	"github.com/wolfman30/robo-agendamentos/pkg/logging"
)

// ErrMissingOrderReference is returned by Put for a record without an order reference.
var ErrMissingOrderReference = errors.New("correlation: order reference is required")

// Record is a notification awaiting a customer reply.
type Record struct {
	ID             string    `json:"id"`
	CustomerName   string    `json:"customer_name"`
	OrderReference string    `json:"order_reference"`
	Shift          string    `json:"shift"`
	Template       string    `json:"template"`
	ScheduledDate  string    `json:"scheduled_date,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Entry is a stored record together with both of its keys.
type Entry struct {
	Digits  string            `json:"digits"`
	Address messaging.Address `json:"address"`
	Record  Record            `json:"record"`
}

// Mirror receives a copy of every write so pending conversations can survive a restart.
type Mirror interface {
	Save(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, digits string) error
	LoadAll(ctx context.Context) ([]Entry, error)
}

// Store holds pending notifications keyed by normalized phone digits and by
// transport address. At most one entry exists per digit string; a later Put
// for the same digits replaces the earlier one.
type Store struct {
	mu        sync.RWMutex
	byDigits  map[string]Entry
	byAddress map[messaging.Address]string

	now    func() time.Time
	mirror Mirror
	logger *logging.Logger
}

// NewStore creates an empty store.
func NewStore(logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{
		byDigits:  make(map[string]Entry),
		byAddress: make(map[messaging.Address]string),
		now:       time.Now,
		logger:    logger,
	}
}

// WithMirror attaches a write-through mirror. Mirror errors are logged only.
func (s *Store) WithMirror(m Mirror) *Store {
	s.mirror = m
	return s
}

// WithClock overrides the time source.
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

// Put inserts or replaces the entry for digits, indexing it under address too.
func (s *Store) Put(ctx context.Context, digits string, address messaging.Address, rec Record) error {
	if rec.OrderReference == "" {
		return ErrMissingOrderReference
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	entry := Entry{Digits: digits, Address: address, Record: rec}

	s.mu.Lock()
	if old, ok := s.byDigits[digits]; ok && old.Address != address {
		s.dropAddressLocked(old.Address, digits)
	}
	s.byDigits[digits] = entry
	if address != "" {
		s.byAddress[address] = digits
	}
	s.mu.Unlock()

	if s.mirror != nil {
		if err := s.mirror.Save(ctx, entry); err != nil {
			s.logger.Warn("correlation: mirror save failed", "phone", messaging.MaskPhone(digits), "error", err)
		}
	}
	return nil
}

// LookupByAddress is the exact match on the transport address.
func (s *Store) LookupByAddress(address messaging.Address) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	digits, ok := s.byAddress[address]
	if !ok {
		return Entry{}, false
	}
	entry, ok := s.byDigits[digits]
	return entry, ok
}

// LookupBySuffix is the fuzzy fallback: it compares only the last SuffixLength
// digits of the sender with every stored number, so country or area code
// differences between what was dialed and what the transport reports still
// match. Several matches resolve to the most recently created entry.
func (s *Store) LookupBySuffix(digits string) (Entry, bool) {
	suffix := messaging.Suffix(messaging.Digits(digits), messaging.SuffixLength)
	if len(suffix) < messaging.SuffixLength {
		return Entry{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		best  Entry
		found bool
	)
	for key, entry := range s.byDigits {
		if messaging.Suffix(key, messaging.SuffixLength) != suffix {
			continue
		}
		if !found || entry.Record.CreatedAt.After(best.Record.CreatedAt) {
			best, found = entry, true
		}
	}
	return best, found
}

// Remove deletes the entry for digits and the address key, if they are still linked.
func (s *Store) Remove(ctx context.Context, digits string, address messaging.Address) {
	s.mu.Lock()
	entry, ok := s.byDigits[digits]
	delete(s.byDigits, digits)
	if ok {
		s.dropAddressLocked(entry.Address, digits)
	}
	s.dropAddressLocked(address, digits)
	s.mu.Unlock()

	if s.mirror != nil {
		if err := s.mirror.Delete(ctx, digits); err != nil {
			s.logger.Warn("correlation: mirror delete failed", "phone", messaging.MaskPhone(digits), "error", err)
		}
	}
}

// RemoveIfCurrent deletes entry only if it is still the one stored under its
// digits. A newer Put for the same number survives. It reports whether the
// entry was removed.
func (s *Store) RemoveIfCurrent(ctx context.Context, entry Entry) bool {
	s.mu.Lock()
	current, ok := s.byDigits[entry.Digits]
	if !ok || !sameRecord(current.Record, entry.Record) {
		s.mu.Unlock()
		return false
	}
	delete(s.byDigits, entry.Digits)
	s.dropAddressLocked(current.Address, entry.Digits)
	s.mu.Unlock()

	if s.mirror != nil {
		if err := s.mirror.Delete(ctx, entry.Digits); err != nil {
			s.logger.Warn("correlation: mirror delete failed", "phone", messaging.MaskPhone(entry.Digits), "error", err)
		}
	}
	return true
}

func sameRecord(a, b Record) bool {
	return a.ID == b.ID && a.OrderReference == b.OrderReference && a.CreatedAt.Equal(b.CreatedAt)
}

// SweepExpired deletes entries strictly older than maxAge and returns how many went.
// An entry exactly maxAge old is kept.
func (s *Store) SweepExpired(ctx context.Context, maxAge time.Duration) int {
	now := s.now()
	var expired []string

	s.mu.Lock()
	for digits, entry := range s.byDigits {
		if now.Sub(entry.Record.CreatedAt) > maxAge {
			delete(s.byDigits, digits)
			s.dropAddressLocked(entry.Address, digits)
			expired = append(expired, digits)
		}
	}
	s.mu.Unlock()

	if s.mirror != nil {
		for _, digits := range expired {
			if err := s.mirror.Delete(ctx, digits); err != nil {
				s.logger.Warn("correlation: mirror delete failed", "phone", messaging.MaskPhone(digits), "error", err)
			}
		}
	}
	return len(expired)
}

// Len reports the number of live entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byDigits)
}

// Restore loads mirrored entries into memory without writing them back.
func (s *Store) Restore(ctx context.Context) (int, error) {
	if s.mirror == nil {
		return 0, nil
	}
	entries, err := s.mirror.LoadAll(ctx)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	restored := 0
	for _, entry := range entries {
		if entry.Digits == "" || entry.Record.OrderReference == "" {
			continue
		}
		if cur, ok := s.byDigits[entry.Digits]; ok && !entry.Record.CreatedAt.After(cur.Record.CreatedAt) {
			continue
		}
		s.byDigits[entry.Digits] = entry
		if entry.Address != "" {
			s.byAddress[entry.Address] = entry.Digits
		}
		restored++
	}
	return restored, nil
}

func (s *Store) dropAddressLocked(address messaging.Address, digits string) {
	if address == "" {
		return
	}
	if owner, ok := s.byAddress[address]; ok && owner == digits {
		delete(s.byAddress, address)
	}
}
