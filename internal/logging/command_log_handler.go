package logging

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// CommandLogEntry is one persisted line of a command's execution log.
type CommandLogEntry struct {
	CommandID string
	Time      time.Time
	Level     string
	Message   string
	Attrs     map[string]any
}

// CommandLogSink persists command log entries. The queue store implements it.
type CommandLogSink interface {
	AppendCommandLog(ctx context.Context, entry CommandLogEntry) error
}

// commandLogHandler forwards records carrying a command_id to a CommandLogSink.
// Records without a command id are dropped.
type commandLogHandler struct {
	sink   CommandLogSink
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

// NewCommandLogHandler returns a handler that appends every record at or above
// level with a command_id attribute to the sink.
func NewCommandLogHandler(sink CommandLogSink, level slog.Leveler) slog.Handler {
	if sink == nil {
		return NoopHandler{}
	}
	if level == nil {
		level = slog.LevelInfo
	}
	return &commandLogHandler{sink: sink, level: level}
}

func (h *commandLogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *commandLogHandler) Handle(ctx context.Context, record slog.Record) error {
	kvs := make([]kv, 0, record.NumAttrs()+len(h.attrs))
	flattenAttrs(&kvs, h.groups, h.attrs)
	record.Attrs(func(attr slog.Attr) bool {
		flattenAttr(&kvs, h.groups, attr)
		return true
	})
	kvs = dedupeKVsByKey(kvs)

	entry := CommandLogEntry{
		Time:    record.Time,
		Level:   strings.ToLower(record.Level.String()),
		Message: record.Message,
		Attrs:   make(map[string]any, len(kvs)),
	}
	for _, field := range kvs {
		if field.key == FieldCommandID {
			entry.CommandID = attrString(field.value)
			continue
		}
		entry.Attrs[field.key] = logValue(field.value)
	}
	if entry.CommandID == "" {
		return nil
	}
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}
	// The log line must survive handler cancellation.
	return h.sink.AppendCommandLog(context.WithoutCancel(ctx), entry)
}

func (h *commandLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &commandLogHandler{
		sink:   h.sink,
		level:  h.level,
		attrs:  append(append([]slog.Attr(nil), h.attrs...), attrs...),
		groups: h.groups,
	}
}

func (h *commandLogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &commandLogHandler{
		sink:   h.sink,
		level:  h.level,
		attrs:  h.attrs,
		groups: append(append([]string(nil), h.groups...), name),
	}
}

func logValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindBool:
		return v.Bool()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339Nano)
	default:
		return attrString(v)
	}
}
