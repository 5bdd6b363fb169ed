package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseShift(t *testing.T) {
	tests := map[string]Shift{
		"Manhã":          ShiftMorning,
		"MANHA":          ShiftMorning,
		"morning":        ShiftMorning,
		"turno da tarde": ShiftAfternoon,
		"Afternoon":      ShiftAfternoon,
		"":               ShiftBusinessHours,
		"noite":          ShiftBusinessHours,
	}
	for raw, want := range tests {
		assert.Equal(t, want, ParseShift(raw), raw)
	}
}

func TestParseTemplateKind(t *testing.T) {
	kind, err := ParseTemplateKind("delivery-confirmation")
	require.NoError(t, err)
	assert.Equal(t, TemplateDeliveryConfirmation, kind)

	kind, err = ParseTemplateKind("FAILED_DELIVERY")
	require.NoError(t, err)
	assert.Equal(t, TemplateFailedDelivery, kind)

	_, err = ParseTemplateKind("birthday")
	assert.Error(t, err)
}

func TestDateLabel(t *testing.T) {
	saoPaulo := time.FixedZone("BRT", -3*60*60)
	r := NewRenderer(saoPaulo)
	// 01:00 UTC on the 11th is still the 10th in São Paulo.
	now := time.Date(2025, 1, 11, 1, 0, 0, 0, time.UTC)

	tests := []struct {
		date string
		want string
		ok   bool
	}{
		{"2025-01-10", "HOJE", true},
		{"2025-01-10T23:00:00Z", "HOJE", true},
		{"2025-01-11", "AMANHÃ", true},
		{"2025-01-13", "segunda-feira, 13/01", true},
		{"2025-02-30", "", false},
		{"10/01/2025", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		got, ok := r.DateLabel(tc.date, now)
		assert.Equal(t, tc.ok, ok, tc.date)
		assert.Equal(t, tc.want, got, tc.date)
	}
}

func TestRenderTemplates(t *testing.T) {
	r := NewRenderer(time.UTC)
	ev := Event{Name: "Ana", Order: "#55", Shift: "tarde", Date: "2025-01-11"}

	msg, err := r.Render(TemplateReschedule, ev, testNow)
	require.NoError(t, err)
	assert.Contains(t, msg, "*reagendada*")
	assert.Contains(t, msg, "*AMANHÃ*")
	assert.Contains(t, msg, "13h às 18h")
	assert.Contains(t, msg, "pedido *#55*")

	msg, err = r.Render(TemplatePickup, Event{Date: "bad"}, testNow)
	require.NoError(t, err)
	assert.Contains(t, msg, "*cliente*")
	assert.Contains(t, msg, "na data agendada")
	assert.Contains(t, msg, "08h às 18h")

	msg, err = r.Render(TemplateFailedDelivery, ev, testNow)
	require.NoError(t, err)
	assert.Contains(t, msg, "não conseguimos concluir")

	_, err = r.Render(TemplateKind("other"), ev, testNow)
	assert.Error(t, err)
}
