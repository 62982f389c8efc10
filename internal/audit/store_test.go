package audit

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/sonuslabs/sonus-core/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	cfg := config.AuditConfig{RetentionMode: "ephemeral"}
	store, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.Append(context.Background(), Record{RequestID: "req-1", Worker: "tts", Command: "synthesize", Success: true}); err != nil {
		t.Fatalf("append: %v", err)
	}
	records, err := store.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("ephemeral store should not retain records, got %d", len(records))
	}
}

func TestAppendAndList(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.AuditConfig{Path: filepath.Join(tmp, "audit.db"), RetentionMode: "persistent"}
	store, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open audit store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	rec := Record{RequestID: "req-42", Worker: "stt", Command: "transcribe", Success: false, Error: "audio_b64 is required", DurationMS: 12}
	if err := store.Append(context.Background(), rec); err != nil {
		t.Fatalf("append: %v", err)
	}
	records, err := store.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	got := records[0]
	if got.RequestID != "req-42" || got.Worker != "stt" || got.Success {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.Error != "audio_b64 is required" {
		t.Fatalf("unexpected error text: %q", got.Error)
	}
}

func TestPruneByDaysAndCount(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.AuditConfig{Path: filepath.Join(tmp, "audit.db"), RetentionMode: "persistent", RetentionDays: 1, MaxRecords: 1}
	store, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open audit store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	store.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := store.Append(context.Background(), Record{RequestID: "old", Worker: "tts", Command: "synthesize", Success: true}); err != nil {
		t.Fatalf("append: %v", err)
	}

	store.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := store.Append(context.Background(), Record{RequestID: "new", Worker: "tts", Command: "synthesize", Success: true}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	records, err := store.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record after prune, got %d", len(records))
	}
	if records[0].RequestID != "new" {
		t.Fatalf("expected newest record kept, got %q", records[0].RequestID)
	}
}
