package history

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_SaveAndGet(t *testing.T) {
	store := newTestStore(t)

	rec := &Record{
		Agent:            "claude",
		Prompt:           "explain this diff",
		Content:          "The diff renames a field.",
		Metadata:         map[string]any{"session_id": "s1", "num_turns": float64(2)},
		ParserName:       "claude_stream_json",
		DurationSeconds:  1.5,
		SanitizedCommand: []string{"claude", "--print", "--api-key", "***"},
	}
	if err := store.Save(rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !strings.HasPrefix(rec.ID, "inv_") {
		t.Errorf("ID = %q, want inv_ prefix", rec.ID)
	}

	got, err := store.Get(rec.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Content != rec.Content {
		t.Errorf("Content = %q, want %q", got.Content, rec.Content)
	}
	if got.Metadata["session_id"] != "s1" {
		t.Errorf("Metadata = %v, want session_id preserved", got.Metadata)
	}
	if len(got.SanitizedCommand) != 4 || got.SanitizedCommand[3] != "***" {
		t.Errorf("SanitizedCommand = %v, want redacted command", got.SanitizedCommand)
	}
}

func TestStore_GetNotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Get("inv_missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestStore_ListFiltersAndLimits(t *testing.T) {
	store := newTestStore(t)

	base := time.Now().Add(-time.Hour)
	for i, agent := range []string{"claude", "qwen", "claude"} {
		rec := &Record{
			Agent:      agent,
			Prompt:     "p",
			Content:    "c",
			ParserName: agent + "_stream_json",
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.Save(rec); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	all, err := store.List(nil)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List() returned %d records, want 3", len(all))
	}
	if !all[0].CreatedAt.After(all[2].CreatedAt) {
		t.Errorf("List() not ordered newest first")
	}

	claude, err := store.List(&ListFilter{Agent: "claude"})
	if err != nil {
		t.Fatalf("List(agent) error = %v", err)
	}
	if len(claude) != 2 {
		t.Errorf("List(agent=claude) returned %d records, want 2", len(claude))
	}

	limited, err := store.List(&ListFilter{Limit: 1})
	if err != nil {
		t.Fatalf("List(limit) error = %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("List(limit=1) returned %d records, want 1", len(limited))
	}
}

func TestStore_PurgeBefore(t *testing.T) {
	store := newTestStore(t)

	old := &Record{Agent: "qwen", Prompt: "p", Content: "old", ParserName: "qwen_stream_json",
		CreatedAt: time.Now().Add(-48 * time.Hour)}
	fresh := &Record{Agent: "qwen", Prompt: "p", Content: "fresh", ParserName: "qwen_stream_json"}
	for _, rec := range []*Record{old, fresh} {
		if err := store.Save(rec); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	purged, err := store.PurgeBefore(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("PurgeBefore() error = %v", err)
	}
	if purged != 1 {
		t.Errorf("PurgeBefore() = %d, want 1", purged)
	}

	if _, err := store.Get(old.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("old record still present after purge")
	}
	if _, err := store.Get(fresh.ID); err != nil {
		t.Errorf("fresh record removed by purge: %v", err)
	}
}
