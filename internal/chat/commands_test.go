package chat

import "testing"

func TestParseCommand(t *testing.T) {
	cases := []struct {
		in      string
		ok      bool
		kind    CommandKind
		payload string
	}{
		{"zapamiętaj: lubię herbatę", true, CommandRemember, "lubię herbatę"},
		{"ZAPAMIETAJ:   krótko  ", true, CommandRemember, "krótko"},
		{"Remember: I use vim", true, CommandRemember, "I use vim"},
		{"zapomnij: kawa", true, CommandForget, "kawa"},
		{"  forget:tea", true, CommandForget, "tea"},
		{"remember: a: b", true, CommandRemember, "a: b"},
		{"remember:", true, CommandRemember, ""},
		{"please remember: this", false, "", ""},
		{"rememberme", false, "", ""},
		{"hello", false, "", ""},
	}
	for _, tc := range cases {
		got, ok := ParseCommand(tc.in)
		if ok != tc.ok {
			t.Fatalf("ParseCommand(%q) ok = %v, want %v", tc.in, ok, tc.ok)
		}
		if !ok {
			continue
		}
		if got.Kind != tc.kind || got.Payload != tc.payload {
			t.Fatalf("ParseCommand(%q) = %+v, want %s %q", tc.in, got, tc.kind, tc.payload)
		}
	}
}
