package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TemplateKind selects the wording of an outbound notification.
type TemplateKind string

const (
	TemplateDeliveryConfirmation TemplateKind = "delivery_confirmation"
	TemplateReschedule           TemplateKind = "reschedule"
	TemplateFailedDelivery       TemplateKind = "failed_delivery"
	TemplatePickup               TemplateKind = "pickup"
)

// ParseTemplateKind accepts the URL slug ("delivery-confirmation") or the
// stored form ("delivery_confirmation").
func ParseTemplateKind(raw string) (TemplateKind, error) {
	kind := TemplateKind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_"))
	switch kind {
	case TemplateDeliveryConfirmation, TemplateReschedule, TemplateFailedDelivery, TemplatePickup:
		return kind, nil
	}
	return "", fmt.Errorf("dispatch: unknown template %q", raw)
}

// Shift is the coarse delivery window attached to a scheduled event.
type Shift string

const (
	ShiftMorning       Shift = "morning"
	ShiftAfternoon     Shift = "afternoon"
	ShiftBusinessHours Shift = "business_hours"
)

// ParseShift matches case-insensitively on substrings, so "Manhã", "MANHA",
// "morning" and "turno da tarde" all resolve. Anything else is business hours.
func ParseShift(raw string) Shift {
	s := strings.ToLower(raw)
	switch {
	case strings.Contains(s, "manh"), strings.Contains(s, "morning"):
		return ShiftMorning
	case strings.Contains(s, "tarde"), strings.Contains(s, "afternoon"):
		return ShiftAfternoon
	default:
		return ShiftBusinessHours
	}
}

// Window returns the customer-facing phrase for the shift.
func (s Shift) Window() string {
	switch s {
	case ShiftMorning:
		return "no período da *manhã* (08h às 12h)"
	case ShiftAfternoon:
		return "no período da *tarde* (13h às 18h)"
	default:
		return "em *horário comercial* (08h às 18h)"
	}
}

// Event is one logistics record in a trigger payload.
type Event struct {
	ID    FlexString `json:"id"`
	Phone FlexString `json:"phone"`
	Name  string     `json:"name"`
	Order FlexString `json:"order"`
	Shift string     `json:"shift,omitempty"`
	Date  string     `json:"date,omitempty"`
}

// Batch is a set of events sharing one template.
type Batch struct {
	ID         string
	Template   TemplateKind
	Events     []Event
	AcceptedAt time.Time
}

// Summary counts per-event results of one batch.
type Summary struct {
	Total     int
	Attempted int
	Sent      int
	Failed    int
	Skipped   int
	// Reasons counts skipped and failed events by cause.
	Reasons map[string]int
}

func (s *Summary) note(reason string) {
	if s.Reasons == nil {
		s.Reasons = make(map[string]int)
	}
	s.Reasons[reason]++
}

// FlexString decodes from either a JSON string or a JSON number; upstream
// records carry numeric ids and phones as often as strings.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("dispatch: expected string or number, got %s", data)
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }
