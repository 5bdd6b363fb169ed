package dispatch

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var weekdaysPT = [...]string{
	"domingo", "segunda-feira", "terça-feira", "quarta-feira",
	"quinta-feira", "sexta-feira", "sábado",
}

var isoDateRe = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})`)

// Renderer builds message bodies. Dates are compared as calendar days in loc.
type Renderer struct {
	loc *time.Location
}

func NewRenderer(loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.UTC
	}
	return &Renderer{loc: loc}
}

// DateLabel turns a "YYYY-MM-DD" value into "HOJE", "AMANHÃ" or
// "<weekday>, DD/MM". The components are read literally so the calendar day
// never shifts with the server's time zone. ok is false when date is unusable.
func (r *Renderer) DateLabel(date string, now time.Time) (label string, ok bool) {
	m := isoDateRe.FindStringSubmatch(strings.TrimSpace(date))
	if m == nil {
		return "", false
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return "", false
	}
	target := time.Date(year, time.Month(month), day, 0, 0, 0, 0, r.loc)
	if target.Day() != day {
		return "", false
	}

	local := now.In(r.loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, r.loc)
	switch {
	case target.Equal(today):
		return "HOJE", true
	case target.Equal(today.AddDate(0, 0, 1)):
		return "AMANHÃ", true
	default:
		return fmt.Sprintf("%s, %02d/%02d", weekdaysPT[target.Weekday()], day, month), true
	}
}

// Render produces the message for one event.
func (r *Renderer) Render(kind TemplateKind, ev Event, now time.Time) (string, error) {
	name := strings.TrimSpace(ev.Name)
	if name == "" {
		name = "cliente"
	}
	order := orderPhrase(ev.Order.String())
	window := ParseShift(ev.Shift).Window()
	when, ok := r.DateLabel(ev.Date, now)
	if !ok {
		when = "na data agendada"
	}

	switch kind {
	case TemplateDeliveryConfirmation:
		return fmt.Sprintf(
			"Olá, *%s*! 👋\n\nSeu %s está programado para ser entregue *%s*, %s.\n\n"+
				"Por favor, garanta que haverá alguém no endereço para receber. 📦\n"+
				"Se precisar de algo, é só responder esta mensagem.",
			name, order, when, window,
		), nil
	case TemplateReschedule:
		return fmt.Sprintf(
			"Olá, *%s*! 📅\n\nA entrega do seu %s foi *reagendada* para *%s*, %s.\n\n"+
				"Se a nova data não for boa para você, responda esta mensagem.",
			name, order, when, window,
		), nil
	case TemplateFailedDelivery:
		return fmt.Sprintf(
			"Olá, *%s*. Tentamos entregar o seu %s, mas não conseguimos concluir a entrega. 😕\n\n"+
				"Nossa equipe vai entrar em contato para combinar uma nova data. "+
				"Se preferir, responda esta mensagem com o melhor dia e período para você.",
			name, order,
		), nil
	case TemplatePickup:
		return fmt.Sprintf(
			"Olá, *%s*! 🚚\n\nA coleta referente ao %s está agendada para *%s*, %s.\n\n"+
				"Por favor, deixe o item pronto para retirada.",
			name, order, when, window,
		), nil
	}
	return "", fmt.Errorf("dispatch: no template for %q", kind)
}

func orderPhrase(order string) string {
	order = strings.TrimPrefix(strings.TrimSpace(order), "#")
	if order == "" {
		return "pedido"
	}
	return "pedido *#" + order + "*"
}
