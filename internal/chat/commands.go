package chat

import "strings"

type CommandKind string

const (
	CommandRemember CommandKind = "remember"
	CommandForget   CommandKind = "forget"
)

// Command is a memory instruction typed into the chat box.
type Command struct {
	Kind    CommandKind
	Payload string
}

var commandPrefixes = []struct {
	prefix string
	kind   CommandKind
}{
	{"zapamiętaj:", CommandRemember},
	{"zapamietaj:", CommandRemember},
	{"remember:", CommandRemember},
	{"zapomnij:", CommandForget},
	{"forget:", CommandForget},
}

// ParseCommand recognizes remember/forget prefixes case-insensitively. The
// payload is the trimmed text after the first colon.
func ParseCommand(text string) (Command, bool) {
	text = strings.TrimSpace(text)
	low := strings.ToLower(text)
	for _, p := range commandPrefixes {
		if !strings.HasPrefix(low, p.prefix) {
			continue
		}
		payload := text
		if i := strings.Index(text, ":"); i >= 0 {
			payload = text[i+1:]
		}
		return Command{Kind: p.kind, Payload: strings.TrimSpace(payload)}, true
	}
	return Command{}, false
}
