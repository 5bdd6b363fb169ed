package classifier

import (
	"fmt"
	"strings"
)

const systemPrompt = `Você é o assistente de atendimento de uma transportadora que faz entregas e coletas agendadas.
O cliente recebeu uma notificação INFORMATIVA sobre a entrega ou coleta. A mensagem não pedia confirmação.
Classifique a resposta do cliente em exatamente uma categoria:
- "Acknowledged": o cliente apenas agradece, confirma ciência ou concorda.
- "Problem": o cliente não poderá receber, pede outra data ou outro período, ou relata um impedimento.
- "Question": o cliente faz uma pergunta ou pede uma informação.
Responda SOMENTE com JSON no formato {"category":"...","summary":"...","reply":"..."}.
"summary" é um resumo curto em português para a equipe de operação.
"reply" é uma resposta curta, cordial e em português para o cliente, sem prometer datas.`

const audioInstruction = "O cliente respondeu com a mensagem de voz anexada. Ouça o áudio e classifique o conteúdo."

// BuildPrompt embeds the notification context and the reply. For voice notes
// the audio bytes travel alongside an instruction instead of a transcript.
func BuildPrompt(in Input) Prompt {
	var b strings.Builder
	b.WriteString("Contexto da notificação:\n")
	if in.CustomerName != "" {
		fmt.Fprintf(&b, "- Cliente: %s\n", in.CustomerName)
	}
	if in.OrderReference != "" {
		fmt.Fprintf(&b, "- Pedido: #%s\n", in.OrderReference)
	}
	if in.Template != "" {
		fmt.Fprintf(&b, "- Tipo de aviso: %s\n", in.Template)
	}
	if in.ScheduledDate != "" {
		fmt.Fprintf(&b, "- Data agendada: %s\n", in.ScheduledDate)
	}
	b.WriteString("\n")

	p := Prompt{System: systemPrompt}
	if in.HasAudio() {
		b.WriteString(audioInstruction)
		if text := strings.TrimSpace(in.Text); text != "" {
			fmt.Fprintf(&b, "\nLegenda enviada junto: %q", text)
		}
		p.Audio = in.Audio
		p.AudioMIMEType = in.AudioMIMEType
	} else {
		fmt.Fprintf(&b, "Resposta do cliente: %q", strings.TrimSpace(in.Text))
	}
	p.Text = b.String()
	return p
}
