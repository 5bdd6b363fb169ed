package replies

import (
	"github.com/wolfman30/robo-agendamentos/internal/classifier"
	"github.com/wolfman30/robo-agendamentos/internal/outcome"
)

// Fixed customer-facing copy.
const (
	ProblemReply      = "Entendido! Registramos que você não poderá receber no período informado. Nossa equipe vai entrar em contato para combinar um novo agendamento. 🙏"
	FollowUpReply     = "Recebemos sua mensagem! Um atendente vai analisar e retornar em breve. 🙏"
	ReceivedReply     = "Recebemos sua mensagem. Obrigado!"
	AcknowledgedReply = "Obrigado pela confirmação! Até breve. 😊"
	QuestionReply     = "Recebemos sua dúvida! Um atendente vai responder em breve."
)

// Operator-facing notes.
const (
	problemNote            = "Cliente relatou impedimento: reagendar manualmente."
	questionNote           = "Cliente enviou uma pergunta: responder manualmente."
	classificationFailNote = "Classificação automática indisponível: verificar a resposta do cliente manualmente."
)

// statusFor maps a category to the delivery status.
func statusFor(c classifier.Category) outcome.Status {
	switch c {
	case classifier.CategoryAcknowledged:
		return outcome.StatusConfirmed
	case classifier.CategoryProblem:
		return outcome.StatusManualReschedule
	default:
		return outcome.StatusNeedsAttention
	}
}

func noteFor(res classifier.Result) string {
	var note string
	switch res.Category {
	case classifier.CategoryProblem:
		note = problemNote
	case classifier.CategoryQuestion:
		note = questionNote
	}
	if res.Summary == "" {
		return note
	}
	if note == "" {
		return res.Summary
	}
	return note + " Resumo: " + res.Summary
}

// replyFor picks the customer-facing text. Problem always gets the fixed copy.
func replyFor(res classifier.Result) string {
	switch res.Category {
	case classifier.CategoryProblem:
		return ProblemReply
	case classifier.CategoryAcknowledged:
		if res.Reply != "" {
			return res.Reply
		}
		return AcknowledgedReply
	default:
		if res.Reply != "" {
			return res.Reply
		}
		return QuestionReply
	}
}
