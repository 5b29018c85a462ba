package testhelpers

import (
	"context"
	"github.com/myrjola/profilescan/internal/logging"
	"io"
	"log/slog"
	"slices"
	"sync"
)

// NewLogger creates a new logger with the given log sink such as io.Discard.
func NewLogger(logSink io.Writer) *slog.Logger {
	handler := logging.NewContextHandler(slog.NewTextHandler(logSink, &slog.HandlerOptions{
		AddSource:   false,
		Level:       slog.LevelDebug,
		ReplaceAttr: nil,
	}))
	return slog.New(handler)
}

// LogRecorder keeps the records logged through it so that tests can assert on them.
type LogRecorder struct {
	mu      *sync.Mutex
	records *[]slog.Record
	attrs   []slog.Attr
}

// NewRecordingLogger returns a logger that records everything at debug level and above.
func NewRecordingLogger() (*slog.Logger, *LogRecorder) {
	recorder := &LogRecorder{mu: &sync.Mutex{}, records: &[]slog.Record{}, attrs: nil}
	return slog.New(logging.NewContextHandler(recorder)), recorder
}

func (r *LogRecorder) Enabled(context.Context, slog.Level) bool {
	return true
}

func (r *LogRecorder) Handle(_ context.Context, record slog.Record) error {
	record = record.Clone()
	record.AddAttrs(r.attrs...)
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.records = append(*r.records, record)
	return nil
}

func (r *LogRecorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LogRecorder{mu: r.mu, records: r.records, attrs: append(slices.Clip(r.attrs), attrs...)}
}

// WithGroup is not needed by the application and groups are flattened.
func (r *LogRecorder) WithGroup(string) slog.Handler {
	return r
}

// Messages returns the messages logged at exactly level.
func (r *LogRecorder) Messages(level slog.Level) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var messages []string
	for _, record := range *r.records {
		if record.Level == level {
			messages = append(messages, record.Message)
		}
	}
	return messages
}

// Attr returns the first attribute named key on a record with message msg.
func (r *LogRecorder) Attr(msg, key string) (slog.Value, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, record := range *r.records {
		if record.Message != msg {
			continue
		}
		var (
			value slog.Value
			found bool
		)
		record.Attrs(func(a slog.Attr) bool {
			if a.Key == key {
				value, found = a.Value, true
				return false
			}
			return true
		})
		if found {
			return value, true
		}
	}
	return slog.Value{}, false
}
