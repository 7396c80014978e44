package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/zhouzirui/roundtable/backend/internal/model/chat"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "roundtable.db"))
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSessionRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	session := chat.Session{
		ID:             "s1",
		Name:           "tavern",
		IsGroup:        true,
		ParticipantIDs: []string{"user-me", "ai-alice", "ai-bob"},
		CreatedAt:      created,
	}
	if err := store.SaveSession(ctx, session); err != nil {
		t.Fatalf("SaveSession err: %v", err)
	}

	messages := []chat.Message{
		{ID: "m1", SessionID: "s1", SenderID: "user-me", Content: "hello", CreatedAt: created.Add(time.Second)},
		{ID: "m2", SessionID: "s1", SenderID: "ai-alice", Content: "hi", CreatedAt: created.Add(2 * time.Second)},
		{ID: "m3", SessionID: "s1", SenderID: "user-me", Content: "banner", IsSystem: true, CreatedAt: created.Add(3 * time.Second)},
	}
	for _, msg := range messages {
		if err := store.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("SaveMessage err: %v", err)
		}
	}

	loaded, err := store.LoadSessions(ctx)
	if err != nil {
		t.Fatalf("LoadSessions err: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("expected 1 session, got %d", len(loaded))
	}

	got := loaded[0]
	if got.Name != "tavern" || !got.IsGroup {
		t.Fatalf("session fields lost: %+v", got)
	}
	if len(got.ParticipantIDs) != 3 || got.ParticipantIDs[1] != "ai-alice" {
		t.Fatalf("participants lost: %v", got.ParticipantIDs)
	}
	if len(got.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got.Messages))
	}
	for i, want := range messages {
		m := got.Messages[i]
		if m.ID != want.ID || m.Content != want.Content || m.IsSystem != want.IsSystem {
			t.Fatalf("message %d mismatch: got %+v want %+v", i, m, want)
		}
		if !m.CreatedAt.Equal(want.CreatedAt) {
			t.Fatalf("message %d timestamp drifted: got %v want %v", i, m.CreatedAt, want.CreatedAt)
		}
	}
	if !got.LastMessageAt.Equal(messages[2].CreatedAt) {
		t.Fatalf("LastMessageAt must track the final message, got %v", got.LastMessageAt)
	}
}

func TestLoadOrderFollowsAppendOrder(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	if err := store.SaveSession(ctx, chat.Session{ID: "s1", Name: "x", ParticipantIDs: []string{"user-me"}, CreatedAt: now}); err != nil {
		t.Fatalf("SaveSession err: %v", err)
	}
	// Identical timestamps; only the seq column can order these.
	for _, id := range []string{"a", "b", "c", "d"} {
		msg := chat.Message{ID: id, SessionID: "s1", SenderID: "user-me", Content: id, CreatedAt: now}
		if err := store.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("SaveMessage err: %v", err)
		}
	}

	loaded, err := store.LoadSessions(ctx)
	if err != nil {
		t.Fatalf("LoadSessions err: %v", err)
	}
	for i, id := range []string{"a", "b", "c", "d"} {
		if loaded[0].Messages[i].ID != id {
			t.Fatalf("load order broke at %d: %+v", i, loaded[0].Messages)
		}
	}
}

func TestDeleteSessionRemovesMessages(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, id := range []string{"s1", "s2"} {
		if err := store.SaveSession(ctx, chat.Session{ID: id, Name: id, ParticipantIDs: []string{"user-me"}, CreatedAt: now}); err != nil {
			t.Fatalf("SaveSession err: %v", err)
		}
		if err := store.SaveMessage(ctx, chat.Message{ID: id + "-m", SessionID: id, SenderID: "user-me", Content: "hi", CreatedAt: now}); err != nil {
			t.Fatalf("SaveMessage err: %v", err)
		}
	}

	if err := store.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("DeleteSession err: %v", err)
	}

	loaded, err := store.LoadSessions(ctx)
	if err != nil {
		t.Fatalf("LoadSessions err: %v", err)
	}
	if len(loaded) != 1 || loaded[0].ID != "s2" {
		t.Fatalf("expected only s2 to survive, got %+v", loaded)
	}
	if len(loaded[0].Messages) != 1 {
		t.Fatalf("s2 messages must be untouched, got %d", len(loaded[0].Messages))
	}
}

func TestSettingsUpsertAndMissingKey(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := store.GetSetting(ctx, "llm.base_url"); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}

	if err := store.SetSetting(ctx, "llm.base_url", "http://a/v1"); err != nil {
		t.Fatalf("SetSetting err: %v", err)
	}
	if err := store.SetSetting(ctx, "llm.base_url", "http://b/v1"); err != nil {
		t.Fatalf("SetSetting upsert err: %v", err)
	}

	value, ok, err := store.GetSetting(ctx, "llm.base_url")
	if err != nil || !ok {
		t.Fatalf("GetSetting: ok=%v err=%v", ok, err)
	}
	if value != "http://b/v1" {
		t.Fatalf("upsert must keep the latest value, got %q", value)
	}
}

func TestResetAllWipesEverything(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.SaveSession(ctx, chat.Session{ID: "s1", Name: "x", ParticipantIDs: []string{"user-me"}, CreatedAt: now}); err != nil {
		t.Fatalf("SaveSession err: %v", err)
	}
	if err := store.SetSetting(ctx, "llm.api_key", "secret"); err != nil {
		t.Fatalf("SetSetting err: %v", err)
	}

	if err := store.ResetAll(ctx); err != nil {
		t.Fatalf("ResetAll err: %v", err)
	}

	loaded, err := store.LoadSessions(ctx)
	if err != nil {
		t.Fatalf("LoadSessions err: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("sessions survived reset: %+v", loaded)
	}
	if _, ok, _ := store.GetSetting(ctx, "llm.api_key"); ok {
		t.Fatalf("settings survived reset")
	}
}
