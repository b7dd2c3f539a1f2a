package domain

import "testing"

func TestConversationKeyIsCommutative(t *testing.T) {
	ab := ConversationKey("alice", "bob")
	ba := ConversationKey("bob", "alice")
	if ab != ba {
		t.Fatalf("ожидали одинаковый ключ, получили %s и %s", ab, ba)
	}
	if ab != "dm:alice:bob" {
		t.Fatalf("неожиданный ключ %s", ab)
	}
}

func TestMessageCounterpart(t *testing.T) {
	msg := Message{SenderID: "a", ReceiverID: "b"}
	if msg.Counterpart("a") != "b" {
		t.Fatalf("для отправителя собеседником должен быть получатель")
	}
	if msg.Counterpart("b") != "a" {
		t.Fatalf("для получателя собеседником должен быть отправитель")
	}
}

func TestValidID(t *testing.T) {
	cases := map[string]bool{
		"0b7e8c4a-2f1d-4c39-9a55-6f1e2d3c4b5a": true,
		"":           false,
		"alice":      false,
		"not-a-uuid": false,
	}
	for id, want := range cases {
		if got := ValidID(id); got != want {
			t.Fatalf("ValidID(%q): ожидали %v, получили %v", id, want, got)
		}
	}
}
