package models

import "testing"

func TestToggleReactionAddAndRemove(t *testing.T) {
	msg := &MessageRecord{ID: "m1"}

	msg.ToggleReaction("🔥", "alice")
	if len(msg.Reactions) != 1 || len(msg.Reactions[0].UserIDs) != 1 {
		t.Fatalf("unexpected reactions: %+v", msg.Reactions)
	}

	msg.ToggleReaction("🔥", "bob")
	if len(msg.Reactions) != 1 || len(msg.Reactions[0].UserIDs) != 2 {
		t.Fatalf("expected bob added under same emoji: %+v", msg.Reactions)
	}

	// Toggling again removes the user.
	msg.ToggleReaction("🔥", "alice")
	if len(msg.Reactions[0].UserIDs) != 1 || msg.Reactions[0].UserIDs[0] != "bob" {
		t.Fatalf("alice not removed: %+v", msg.Reactions)
	}

	// Last user out drops the group.
	msg.ToggleReaction("🔥", "bob")
	if len(msg.Reactions) != 0 {
		t.Fatalf("empty reaction group kept: %+v", msg.Reactions)
	}
}

func TestToggleReactionSeparateEmojis(t *testing.T) {
	msg := &MessageRecord{ID: "m1"}

	msg.ToggleReaction("👍", "alice")
	msg.ToggleReaction("❤️", "alice")
	if len(msg.Reactions) != 2 {
		t.Fatalf("expected two groups: %+v", msg.Reactions)
	}
}

func TestMarkReadIdempotent(t *testing.T) {
	msg := &MessageRecord{ID: "m1"}

	if !msg.MarkRead("alice") {
		t.Fatal("first read should report a change")
	}
	if msg.MarkRead("alice") {
		t.Fatal("repeat read should be a no-op")
	}
	if len(msg.ReadBy) != 1 {
		t.Fatalf("read_by = %v", msg.ReadBy)
	}
}
