package chat

import (
	"strings"
	"testing"

	"github.com/ent0n29/cheapchat/internal/llm"
	"github.com/ent0n29/cheapchat/internal/store"
	"github.com/ent0n29/cheapchat/internal/websearch"
)

func TestBuildContextOrder(t *testing.T) {
	got := BuildContext(ContextInput{
		History: []store.Message{
			{Role: store.RoleUser, Content: "hi", Kind: store.KindText},
			{Role: store.RoleSystem, Content: "old sources", Kind: store.KindSearch},
			{Role: store.RoleAssistant, Content: `{"prompt":"cat","url":"/api/temp/x"}`, Kind: store.KindImage},
			{Role: store.RoleAssistant, Content: "hello", Kind: store.KindText},
			{Role: store.RoleSystem, Content: "Zapisano do pamięci: x", Kind: store.KindText},
		},
		Profile:     "Fakty: kot",
		SearchBlock: "Źródła wyszukiwania (skrót):\n1. a — b",
		Documents:   []string{"Dokument: a.txt\n\nA", "", "Dokument: b.txt\n\nB"},
		UserText:    "question",
	})

	want := []llm.Message{
		{Role: llm.RoleSystem},
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleSystem, Content: "old sources"},
		{Role: llm.RoleAssistant, Content: "hello"},
		{Role: llm.RoleSystem, Content: "Zapisano do pamięci: x"},
		{Role: llm.RoleSystem, Content: "Źródła wyszukiwania (skrót):\n1. a — b"},
		{Role: llm.RoleSystem, Content: "Dokument: a.txt\n\nA"},
		{Role: llm.RoleSystem, Content: "Dokument: b.txt\n\nB"},
		{Role: llm.RoleUser, Content: "question"},
	}
	if len(got) != len(want) {
		t.Fatalf("len(BuildContext()) = %d, want %d: %+v", len(got), len(want), got)
	}
	for i := 1; i < len(want); i++ {
		if got[i] != want[i] {
			t.Fatalf("block %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	system := got[0].Content
	if !strings.HasPrefix(system, systemInstruction) {
		t.Fatalf("system block = %q, want instruction prefix", system)
	}
	if !strings.Contains(system, profileHeader+"Fakty: kot") {
		t.Fatalf("system block missing profile: %q", system)
	}
	if !strings.HasSuffix(system, websearch.GroundingInstruction) {
		t.Fatalf("system block missing grounding instruction: %q", system)
	}
}

func TestBuildContextMinimal(t *testing.T) {
	got := BuildContext(ContextInput{UserText: "hej"})
	if len(got) != 2 {
		t.Fatalf("len(BuildContext()) = %d, want 2", len(got))
	}
	if got[0].Content != systemInstruction {
		t.Fatalf("system block = %q, want bare instruction", got[0].Content)
	}
	if got[1] != (llm.Message{Role: llm.RoleUser, Content: "hej"}) {
		t.Fatalf("user block = %+v", got[1])
	}
}
