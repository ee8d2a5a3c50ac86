package logging_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"launchlock/internal/logging"
)

type memorySink struct {
	mu      sync.Mutex
	entries []logging.CommandLogEntry
	err     error
}

func (s *memorySink) AppendCommandLog(ctx context.Context, entry logging.CommandLogEntry) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return s.err
}

func TestCommandLogHandlerPersistsCommandRecords(t *testing.T) {
	sink := &memorySink{}
	logger := slog.New(logging.NewCommandLogHandler(sink, slog.LevelInfo))

	logger.Info("no command id")
	logger.Debug("below level", logging.String(logging.FieldCommandID, "cmd-1"))
	cmdLogger := logger.With(logging.String(logging.FieldCommandID, "cmd-1"))
	cmdLogger.Warn("guardrail blocked", logging.String(logging.FieldErrorCode, "SUPPLIER_DISABLED"), logging.Int("quota", 3))

	if len(sink.entries) != 1 {
		t.Fatalf("expected 1 persisted entry, got %d", len(sink.entries))
	}
	entry := sink.entries[0]
	if entry.CommandID != "cmd-1" || entry.Level != "warn" || entry.Message != "guardrail blocked" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.Attrs[logging.FieldErrorCode] != "SUPPLIER_DISABLED" {
		t.Fatalf("expected error code attr, got %v", entry.Attrs)
	}
	if entry.Attrs["quota"] != int64(3) {
		t.Fatalf("expected numeric attr preserved, got %#v", entry.Attrs["quota"])
	}
	if _, ok := entry.Attrs[logging.FieldCommandID]; ok {
		t.Fatal("command id should not be duplicated in attrs")
	}
	if entry.Time.IsZero() {
		t.Fatal("expected timestamp")
	}
}

func TestCommandLogHandlerSurvivesCancelledContext(t *testing.T) {
	sink := &memorySink{}
	logger := slog.New(logging.NewCommandLogHandler(sink, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	logger.InfoContext(ctx, "cancelled", logging.String(logging.FieldCommandID, "cmd-2"))

	if len(sink.entries) != 1 {
		t.Fatalf("expected entry despite cancelled context, got %d", len(sink.entries))
	}
}

func TestCommandLogHandlerTeeKeepsBaseOutput(t *testing.T) {
	sink := &memorySink{err: errors.New("disk full")}
	base := logging.NewNop()
	logger := logging.TeeLogger(base, logging.NewCommandLogHandler(sink, slog.LevelInfo))
	logger.Info("still logged", logging.String(logging.FieldCommandID, "cmd-3"))

	if len(sink.entries) != 1 {
		t.Fatalf("expected sink to be called once, got %d", len(sink.entries))
	}
}
