package llm

import (
	"context"
	"fmt"
	"strings"
)

// Turn is one line of a voice conversation.
type Turn struct {
	Speaker string
	Text    string
}

// FormatHistory renders turns oldest first, one "speaker: text" per line.
func FormatHistory(turns []Turn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, t.Speaker+": "+t.Text)
	}
	return strings.Join(lines, "\n")
}

// Completer is the chat completion call both the decider and the replier
// are built on.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Decider asks the model whether the bot should speak up at all.
type Decider struct {
	llm     Completer
	botName string
}

func NewDecider(c Completer, botName string) *Decider {
	return &Decider{llm: c, botName: botName}
}

// ShouldRespond classifies the newest utterance. history already ends with
// that utterance.
func (d *Decider) ShouldRespond(ctx context.Context, history []Turn, speaker, utterance string) (bool, error) {
	out, err := d.llm.Complete(ctx, d.messages(history, speaker, utterance))
	if err != nil {
		return false, err
	}
	return ParseDecision(out), nil
}

func (d *Decider) messages(history []Turn, speaker, utterance string) []Message {
	name := d.botName
	system := fmt.Sprintf(`You are a gatekeeper for %[1]s, a voice chat companion in an ongoing Discord voice conversation.
Your only job is to decide whether %[1]s should say something in reply to the newest line.
Read the whole history before deciding. Reply is required when the newest line speaks to %[1]s, mentions %[1]s,
or continues a thread %[1]s is part of. If nobody other than the current speaker appears in the last five lines,
the speaker is almost certainly talking to %[1]s and a reply is required.
You are not a censor. Do not answer the user and do not comment on the conversation.
Answer with exactly one word: yes or no.

Conversation history:
%[2]s`, name, FormatHistory(history))

	return []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: speaker + ": " + utterance},
	}
}

// ParseDecision treats any output containing "yes", in any case, as a yes.
// Everything else, ambiguous output included, is a no.
func ParseDecision(out string) bool {
	return strings.Contains(strings.ToLower(out), "yes")
}
