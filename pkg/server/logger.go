package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
)

// logSink receives one job's log entries.
type logSink interface {
	InsertLog(ctx context.Context, id uuid.UUID, entry LogEntry) error
}

// DBLogHandler is a slog.Handler that writes records to the job's log table
// and, if Next is set, also passes them on.
type DBLogHandler struct {
	Sink  logSink
	JobID uuid.UUID
	Level slog.Leveler
	Next  slog.Handler

	attrs  []slog.Attr
	groups []string
}

func NewDBLogHandler(sink logSink, jobID uuid.UUID, next slog.Handler) *DBLogHandler {
	return &DBLogHandler{Sink: sink, JobID: jobID, Level: slog.LevelInfo, Next: next}
}

func (h *DBLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.Level.Level()
}

func (h *DBLogHandler) Handle(ctx context.Context, r slog.Record) error {
	attrs := make(map[string]any)
	for _, a := range h.attrs {
		addAttr(attrs, nil, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(attrs, h.groups, a)
		return true
	})

	metaJSON, err := json.Marshal(attrs)
	if err != nil {
		metaJSON = []byte("{}")
	}

	// Records outlive the request that produced them.
	err = h.Sink.InsertLog(context.Background(), h.JobID, LogEntry{
		Timestamp: r.Time,
		Level:     r.Level.String(),
		Message:   r.Message,
		Metadata:  metaJSON,
	})

	if h.Next != nil && h.Next.Enabled(ctx, r.Level) {
		if nextErr := h.Next.Handle(ctx, r.Clone()); err == nil {
			err = nextErr
		}
	}
	return err
}

func addAttr(dst map[string]any, groups []string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := qualify(groups, a.Key)
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			addAttr(dst, append(groups[:len(groups):len(groups)], a.Key), ga)
		}
		return
	}
	switch v := a.Value.Any().(type) {
	case error:
		dst[key] = v.Error()
	default:
		dst[key] = v
	}
}

func qualify(groups []string, key string) string {
	for i := len(groups) - 1; i >= 0; i-- {
		key = groups[i] + "." + key
	}
	return key
}

func (h *DBLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		// Bind the attribute to the groups open at this point.
		cp.attrs = append(cp.attrs, slog.Attr{Key: qualify(h.groups, a.Key), Value: a.Value})
	}
	if h.Next != nil {
		cp.Next = h.Next.WithAttrs(attrs)
	}
	return &cp
}

func (h *DBLogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	cp := *h
	cp.groups = append(append([]string(nil), h.groups...), name)
	if h.Next != nil {
		cp.Next = h.Next.WithGroup(name)
	}
	return &cp
}
