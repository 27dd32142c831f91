package llm

import "context"

// Replier produces the persona's spoken reply.
type Replier struct {
	llm    Completer
	prompt string
}

// NewReplier takes the persona system prompt; the conversation history is
// appended to it on every call.
func NewReplier(c Completer, personaPrompt string) *Replier {
	return &Replier{llm: c, prompt: personaPrompt}
}

func (r *Replier) Reply(ctx context.Context, history []Turn, speaker, utterance string) (string, error) {
	msgs := []Message{
		{Role: RoleSystem, Content: r.prompt + "\nThis is the conversation history:\n" + FormatHistory(history)},
		{Role: RoleUser, Content: speaker + ": " + utterance},
	}
	return r.llm.Complete(ctx, msgs)
}
