// Package logging provides the structured log sink used by every pipeline
// component. Components never log through package globals; they hold a
// *Logger bound to an executor identity and write through a pluggable Sink.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Level is the severity of a log record.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the lowercase level name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel converts a config string to a Level. Unknown strings map to info.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Executor identifies the component that produced a record.
type Executor struct {
	// Type is the component kind (e.g. "Pipeline", "Engineer", "TechLead").
	Type string `json:"type"`

	// ID distinguishes instances of the same type (engineer UUID, task ID).
	ID string `json:"id,omitempty"`
}

// Record is one structured log entry.
type Record struct {
	Executor Executor       `json:"executor"`
	Level    Level          `json:"-"`
	Message  string         `json:"message"`
	Time     time.Time      `json:"timestamp"`
	Context  map[string]any `json:"context,omitempty"`
}

// Sink receives log records. Implementations must be safe for concurrent use.
type Sink interface {
	Log(r Record)
}

// NopSink discards every record.
type NopSink struct{}

func (NopSink) Log(Record) {}

// MultiSink fans a record out to every child sink in order.
type MultiSink []Sink

func (m MultiSink) Log(r Record) {
	for _, s := range m {
		s.Log(r)
	}
}

// SlogSink adapts a *slog.Logger to the Sink interface.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink wraps an existing slog logger.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{logger: logger}
}

// NewJSONSink builds a Sink writing slog JSON lines to w at the given
// minimum level.
func NewJSONSink(w io.Writer, min Level) *SlogSink {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slogLevel(min)})
	return &SlogSink{logger: slog.New(handler)}
}

// NewTextSink builds a Sink writing slog text lines to w at the given
// minimum level.
func NewTextSink(w io.Writer, min Level) *SlogSink {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slogLevel(min)})
	return &SlogSink{logger: slog.New(handler)}
}

func (s *SlogSink) Log(r Record) {
	attrs := make([]any, 0, 4+2*len(r.Context))
	attrs = append(attrs, "executor", r.Executor.Type)
	if r.Executor.ID != "" {
		attrs = append(attrs, "executor_id", r.Executor.ID)
	}
	for k, v := range r.Context {
		attrs = append(attrs, k, v)
	}
	s.logger.Log(context.Background(), slogLevel(r.Level), r.Message, attrs...)
}

func slogLevel(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LevelSink drops records below a minimum level before forwarding.
type LevelSink struct {
	Min  Level
	Next Sink
}

func (s LevelSink) Log(r Record) {
	if r.Level < s.Min {
		return
	}
	s.Next.Log(r)
}

// memorySink collects records for tests.
type memorySink struct {
	mu      sync.Mutex
	records []Record
}

// NewMemorySink returns a sink that retains records in memory and a
// function to snapshot them.
func NewMemorySink() (Sink, func() []Record) {
	m := &memorySink{}
	return m, m.snapshot
}

func (m *memorySink) Log(r Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
}

func (m *memorySink) snapshot() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}

// Logger binds an executor identity to a sink.
type Logger struct {
	sink Sink
	exec Executor
}

// New creates a Logger for the given executor type and instance ID.
// A nil sink is replaced by NopSink so callers never guard their logging.
func New(sink Sink, execType, id string) *Logger {
	if sink == nil {
		sink = NopSink{}
	}
	return &Logger{sink: sink, exec: Executor{Type: execType, ID: id}}
}

// WithID returns a Logger for the same sink and type bound to a new ID.
func (l *Logger) WithID(id string) *Logger {
	return &Logger{sink: l.sink, exec: Executor{Type: l.exec.Type, ID: id}}
}

// Sink exposes the underlying sink so subcomponents can build their own
// Logger against it.
func (l *Logger) Sink() Sink {
	return l.sink
}

func (l *Logger) log(level Level, msg string, kv []any) {
	r := Record{
		Executor: l.exec,
		Level:    level,
		Message:  msg,
		Time:     time.Now(),
	}
	if len(kv) > 0 {
		r.Context = make(map[string]any, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			key, ok := kv[i].(string)
			if !ok {
				key = fmt.Sprint(kv[i])
			}
			r.Context[key] = kv[i+1]
		}
	}
	l.sink.Log(r)
}

// Debug logs at debug level. kv is alternating key/value context pairs.
func (l *Logger) Debug(msg string, kv ...any) { l.log(LevelDebug, msg, kv) }

// Info logs at info level.
func (l *Logger) Info(msg string, kv ...any) { l.log(LevelInfo, msg, kv) }

// Warn logs at warn level.
func (l *Logger) Warn(msg string, kv ...any) { l.log(LevelWarn, msg, kv) }

// Error logs at error level.
func (l *Logger) Error(msg string, kv ...any) { l.log(LevelError, msg, kv) }

// Default returns a text sink on stderr at info level.
func Default() Sink {
	return NewTextSink(os.Stderr, LevelInfo)
}
