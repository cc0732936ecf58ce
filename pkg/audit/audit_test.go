package audit

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/jllopis/arbiter/pkg/core"
	"github.com/jllopis/arbiter/pkg/errors"
)

func sampleEntries() []Entry {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []Entry{
		{Kind: KindPick, RoundID: "round-1", Tick: 1, Agent: "npc-1", ActionKey: "eat", ActionName: "Eat", Context: "apple", Score: 0.28, RecordedAt: at},
		{Kind: KindTransition, Agent: "npc-1", TrackerID: "trk-1", ActionKey: "eat", From: "ready", To: "running", RecordedAt: at.Add(time.Second)},
		{Kind: KindPick, RoundID: "round-2", Tick: 1, Agent: "npc-2", ActionKey: "walk", ActionName: "Walk", Context: "door", Score: 0.9, RecordedAt: at.Add(2 * time.Second)},
		{Kind: KindTransition, Agent: "npc-1", TrackerID: "trk-1", ActionKey: "eat", From: "running", To: "succeeded", RecordedAt: at.Add(3 * time.Second)},
	}
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	entries := sampleEntries()
	for _, e := range entries {
		if err := store.Record(ctx, e); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	tests := []struct {
		name   string
		filter Filter
		want   []Entry
	}{
		{"all", Filter{}, entries},
		{"by agent", Filter{Agent: "npc-1"}, []Entry{entries[0], entries[1], entries[3]}},
		{"by action", Filter{ActionKey: "walk"}, []Entry{entries[2]}},
		{"by kind", Filter{Kind: KindTransition}, []Entry{entries[1], entries[3]}},
		{"combined with limit", Filter{Agent: "npc-1", Kind: KindTransition, Limit: 1}, []Entry{entries[1]}},
		{"no match", Filter{Agent: "ghost"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty(), cmpopts.EquateApproxTime(time.Millisecond)); diff != "" {
				t.Fatalf("entries mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	db, err := sql.Open("sqlite", "file:arbiter_audit_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	store, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	exerciseStore(t, store)
}

func TestNewSQLiteStoreRejectsNilDB(t *testing.T) {
	if _, err := NewSQLiteStore(nil); !errors.IsCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

func TestGormStore(t *testing.T) {
	dsn := os.Getenv("ARBITER_AUDIT_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ARBITER_AUDIT_POSTGRES_DSN is required for integration test")
	}
	ctx := context.Background()
	db, err := OpenPostgres(dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	if err := db.WithContext(ctx).Migrator().DropTable(&entryRow{}); err != nil {
		t.Fatalf("reset table: %v", err)
	}
	store, err := NewGormStore(ctx, db)
	if err != nil {
		t.Fatalf("new gorm store: %v", err)
	}
	exerciseStore(t, store)
}

func TestRecorderBridgesEvents(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	rec.Emit(ctx, core.PickedEvent(core.Pick{RoundID: "round-1", Tick: 4, Agent: "npc", ActionKey: "eat", ActionName: "Eat", Context: "apple", Score: 0.5}))
	rec.Emit(ctx, core.NewEvent(core.EventTrackerTransition, "npc", "trk-1", map[string]any{"action_key": "eat", "from": "ready", "to": "running"}))
	rec.Emit(ctx, core.NewEvent(core.EventTrackerSpawned, "npc", "trk-1", nil))

	got, err := store.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []Entry{
		{Kind: KindPick, RoundID: "round-1", Tick: 4, Agent: "npc", ActionKey: "eat", ActionName: "Eat", Context: "apple", Score: 0.5},
		{Kind: KindTransition, Agent: "npc", TrackerID: "trk-1", ActionKey: "eat", From: "ready", To: "running"},
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(Entry{}, "RecordedAt")); diff != "" {
		t.Fatalf("recorded entries (-want +got):\n%s", diff)
	}
}

type failingStore struct{ calls int }

func (f *failingStore) Record(context.Context, Entry) error {
	f.calls++
	return errors.New(errors.CodeStorage, "disk full", nil)
}

func (f *failingStore) List(context.Context, Filter) ([]Entry, error) { return nil, nil }

func TestRecorderSwallowsStoreErrors(t *testing.T) {
	store := &failingStore{}
	rec := NewRecorder(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec.Emit(context.Background(), core.PickedEvent(core.Pick{Agent: "npc", ActionKey: "eat", Score: 1}))
	if store.calls != 1 {
		t.Fatalf("expected one record attempt, got %d", store.calls)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	store, closer, err := Open(ctx, "none", "")
	if err != nil || store != nil {
		t.Fatalf("none driver: store=%v err=%v", store, err)
	}
	closer.Close()

	store, closer, err = Open(ctx, "memory", "")
	if err != nil {
		t.Fatalf("memory driver: %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
	closer.Close()

	store, closer, err = Open(ctx, "SQLite", "file:arbiter_audit_open?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("sqlite driver: %v", err)
	}
	if _, ok := store.(*SQLiteStore); !ok {
		t.Fatalf("expected sqlite store, got %T", store)
	}
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, _, err := Open(ctx, "postgres", ""); !errors.IsCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT for postgres without dsn, got %v", err)
	}
	if _, _, err := Open(ctx, "oracle", "x"); !errors.IsCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT for unknown driver, got %v", err)
	}
}
