package main

import "testing"

func TestToolCall(t *testing.T) {
	tool, args, err := toolCall([]string{"say", "hello", "there"})
	if err != nil || tool != "say" || args["text"] != "hello there" {
		t.Fatalf("say: %q %v %v", tool, args, err)
	}
	tool, args, err = toolCall([]string{"history", "u1"})
	if err != nil || tool != "voice_history" || args["user_id"] != "u1" {
		t.Fatalf("history: %q %v %v", tool, args, err)
	}
	if tool, _, err := toolCall([]string{"status"}); err != nil || tool != "session_status" {
		t.Fatalf("status: %q %v", tool, err)
	}
	for _, bad := range [][]string{nil, {"history"}, {"say", "  "}, {"dance"}} {
		if _, _, err := toolCall(bad); err == nil {
			t.Errorf("toolCall(%q) should fail", bad)
		}
	}
}
