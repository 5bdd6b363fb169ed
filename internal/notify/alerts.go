package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/robo-agendamentos/pkg/logging"
)

// Alert describes a reply an operator has to act on.
type Alert struct {
	RecordID       string
	CustomerName   string
	OrderReference string
	PhoneSuffix    string
	Status         string
	Category       string
	Summary        string
	InboundText    string
	Note           string
}

// OperatorAlerts emails the operations inbox about replies needing a human.
type OperatorAlerts struct {
	email  EmailSender
	to     string
	toName string
	logger *logging.Logger
}

func NewOperatorAlerts(email EmailSender, to, toName string, logger *logging.Logger) *OperatorAlerts {
	if logger == nil {
		logger = logging.Default()
	}
	return &OperatorAlerts{email: email, to: strings.TrimSpace(to), toName: toName, logger: logger}
}

// Notify sends the alert. Without a sender or recipient it only logs.
func (a *OperatorAlerts) Notify(ctx context.Context, alert Alert) error {
	if a == nil {
		return nil
	}
	if a.email == nil || a.to == "" {
		a.logger.Debug("notify: operator email not configured, skipping alert", "record_id", alert.RecordID)
		return nil
	}

	msg := EmailMessage{
		To:       a.to,
		ToName:   a.toName,
		Subject:  alertSubject(alert),
		Body:     alertBody(alert),
		Category: "operator_alert",
	}
	if err := a.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: operator alert: %w", err)
	}
	return nil
}

func alertSubject(alert Alert) string {
	label := "Atenção necessária"
	if alert.Status == "manual_reschedule" {
		label = "Reagendamento manual"
	}
	if alert.OrderReference != "" {
		return fmt.Sprintf("[%s] Pedido #%s", label, alert.OrderReference)
	}
	return fmt.Sprintf("[%s] Registro %s", label, alert.RecordID)
}

func alertBody(alert Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cliente: %s\n", orDash(alert.CustomerName))
	fmt.Fprintf(&b, "Pedido: %s\n", orDash(alert.OrderReference))
	fmt.Fprintf(&b, "Telefone (final): %s\n", orDash(alert.PhoneSuffix))
	fmt.Fprintf(&b, "Registro: %s\n", orDash(alert.RecordID))
	fmt.Fprintf(&b, "Status: %s\n", alert.Status)
	if alert.Category != "" {
		fmt.Fprintf(&b, "Categoria: %s\n", alert.Category)
	}
	if alert.Summary != "" {
		fmt.Fprintf(&b, "Resumo: %s\n", alert.Summary)
	}
	if alert.Note != "" {
		fmt.Fprintf(&b, "Observação: %s\n", alert.Note)
	}
	if alert.InboundText != "" {
		fmt.Fprintf(&b, "\nMensagem do cliente:\n%s\n", alert.InboundText)
	}
	return b.String()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
