package chat

import (
	"github.com/ent0n29/cheapchat/internal/llm"
	"github.com/ent0n29/cheapchat/internal/store"
	"github.com/ent0n29/cheapchat/internal/websearch"
)

const systemInstruction = "You are a helpful assistant. Reply in clean, GitHub-flavored Markdown. " +
	"Use headings, bullet/numbered lists, tables, and fenced code blocks with language hints when helpful."

const profileHeader = "\nUser profile (global memory):\n"

// ContextInput is everything the model sees for one turn.
type ContextInput struct {
	// History is the bounded window of prior messages in chronological order.
	History []store.Message
	// Profile is the memory snippet; empty when memory is off for the thread.
	Profile string
	// SearchBlock is this turn's formatted search sources, if any.
	SearchBlock string
	// Documents are document blocks in the order the caller referenced them.
	Documents []string
	UserText  string
}

// BuildContext assembles the ordered model input: system block, replayable
// history, current search sources, documents and the user message.
func BuildContext(in ContextInput) []llm.Message {
	system := systemInstruction
	if in.Profile != "" {
		system += profileHeader + in.Profile
	}
	if in.SearchBlock != "" {
		system += "\n" + websearch.GroundingInstruction
	}

	out := make([]llm.Message, 0, len(in.History)+len(in.Documents)+3)
	out = append(out, llm.Message{Role: llm.RoleSystem, Content: system})

	for _, m := range in.History {
		switch m.Kind {
		case store.KindText, "":
			out = append(out, llm.Message{Role: modelRole(m.Role), Content: m.Content})
		case store.KindSearch:
			out = append(out, llm.Message{Role: llm.RoleSystem, Content: m.Content})
		}
	}

	if in.SearchBlock != "" {
		out = append(out, llm.Message{Role: llm.RoleSystem, Content: in.SearchBlock})
	}
	for _, doc := range in.Documents {
		if doc != "" {
			out = append(out, llm.Message{Role: llm.RoleSystem, Content: doc})
		}
	}
	out = append(out, llm.Message{Role: llm.RoleUser, Content: in.UserText})
	return out
}

func modelRole(r store.Role) string {
	switch r {
	case store.RoleAssistant:
		return llm.RoleAssistant
	case store.RoleSystem:
		return llm.RoleSystem
	default:
		return llm.RoleUser
	}
}
