// Package diagnostics implements the append-only, timestamped, leveled diagnostic log
// that every validation rejection, dispatch attempt, migration failure and scan summary
// is written to.
package diagnostics

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"tracekeeper/pkg/attrs"
)

// Level is the severity of a diagnostic entry.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// SlogLevel maps the diagnostic level onto slog.
func (l Level) SlogLevel() slog.Level {
	switch l {
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Components writing to the diagnostic log.
const (
	ComponentValidator  = "validator"
	ComponentDispatcher = "dispatcher"
	ComponentMigrator   = "migrator"
	ComponentAuditor    = "quality_auditor"
)

// Entry is one diagnostic line. Attrs are slog-style key/value pairs.
type Entry struct {
	Time      time.Time
	Level     Level
	Component string
	Event     string
	Message   string
	Attrs     []any
}

// Attr returns the string value of key in the entry attributes.
func (e Entry) Attr(key string) string {
	return attrs.ExtractString(e.Attrs, key)
}

// SlogSink writes entries through a slog.Logger, typically bound to the diagnostic file.
type SlogSink struct {
	logger *slog.Logger
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{logger: logger}
}

func (s *SlogSink) Record(ctx context.Context, e Entry) error {
	r := slog.NewRecord(e.Time, e.Level.SlogLevel(), e.Message, 0)
	r.Add("component", e.Component, "event", e.Event)
	r.Add(e.Attrs...)
	return s.logger.Handler().Handle(ctx, r)
}

// Recorder keeps entries in memory, bounded to the most recent limit entries.
type Recorder struct {
	mu      sync.RWMutex
	entries []Entry
	limit   int
}

// NewRecorder creates a Recorder; limit <= 0 keeps everything.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

func (r *Recorder) Record(_ context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	if r.limit > 0 && len(r.entries) > r.limit {
		r.entries = append([]Entry(nil), r.entries[len(r.entries)-r.limit:]...)
	}
	return nil
}

// Entries returns a copy of the recorded entries in append order.
func (r *Recorder) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Entry(nil), r.entries...)
}

// Filter returns the recorded entries for which match is true.
func (r *Recorder) Filter(match func(Entry) bool) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Entry
	for _, e := range r.entries {
		if match(e) {
			out = append(out, e)
		}
	}
	return out
}

// ByEvent returns the recorded entries with the given event name.
func (r *Recorder) ByEvent(event string) []Entry {
	return r.Filter(func(e Entry) bool { return e.Event == event })
}

// Sink is the write side shared by every implementation in this package.
type Sink interface {
	Record(ctx context.Context, e Entry) error
}

// Tee fans an entry out to every sink; every sink is tried and failures are joined.
type Tee []Sink

func (t Tee) Record(ctx context.Context, e Entry) error {
	var errs []error
	for _, s := range t {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
