package mocks

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"gitlab.com/timkado/api/message-snapper/internal/domain"
)

// MockLogger implements domain.Logger and records every entry for assertions.
type MockLogger struct {
	entries *[]LogEntry
	mu      *sync.RWMutex
	fields  []any

	// Metrics
	InfoCount  int64
	WarnCount  int64
	ErrorCount int64
	DebugCount int64
}

// LogEntry is one recorded log call.
type LogEntry struct {
	Level     string
	Message   string
	Fields    map[string]any
	Timestamp time.Time
}

// NewMockLogger creates a new mock logger
func NewMockLogger() *MockLogger {
	entries := make([]LogEntry, 0)
	return &MockLogger{entries: &entries, mu: &sync.RWMutex{}}
}

// Info implements domain.Logger
func (m *MockLogger) Info(ctx context.Context, msg string, fields ...any) {
	atomic.AddInt64(&m.InfoCount, 1)
	m.addLogEntry("INFO", msg, fields...)
}

// Warn implements domain.Logger
func (m *MockLogger) Warn(ctx context.Context, msg string, fields ...any) {
	atomic.AddInt64(&m.WarnCount, 1)
	m.addLogEntry("WARN", msg, fields...)
}

// Error implements domain.Logger
func (m *MockLogger) Error(ctx context.Context, msg string, fields ...any) {
	atomic.AddInt64(&m.ErrorCount, 1)
	m.addLogEntry("ERROR", msg, fields...)
}

// Debug implements domain.Logger
func (m *MockLogger) Debug(ctx context.Context, msg string, fields ...any) {
	atomic.AddInt64(&m.DebugCount, 1)
	m.addLogEntry("DEBUG", msg, fields...)
}

// Fatal implements domain.Logger. It records the entry but does not exit.
func (m *MockLogger) Fatal(ctx context.Context, msg string, fields ...any) {
	atomic.AddInt64(&m.ErrorCount, 1)
	m.addLogEntry("FATAL", msg, fields...)
}

// With returns a logger sharing this one's entry log, with fields prepended to every entry.
func (m *MockLogger) With(fields ...any) domain.Logger {
	return &MockLogger{
		entries: m.entries,
		mu:      m.mu,
		fields:  append(append([]any{}, m.fields...), fields...),
	}
}

func (m *MockLogger) addLogEntry(level, msg string, fields ...any) {
	all := append(append([]any{}, m.fields...), fields...)
	fieldMap := make(map[string]any, len(all)/2)
	for i := 0; i+1 < len(all); i += 2 {
		if key, ok := all[i].(string); ok {
			fieldMap[key] = all[i+1]
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	*m.entries = append(*m.entries, LogEntry{
		Level:     level,
		Message:   msg,
		Fields:    fieldMap,
		Timestamp: time.Now(),
	})
}

// GetLogEntries returns all log entries for testing
func (m *MockLogger) GetLogEntries() []LogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]LogEntry, len(*m.entries))
	copy(out, *m.entries)
	return out
}

// HasMessage reports whether an entry with the given level and message was recorded.
func (m *MockLogger) HasMessage(level, msg string) bool {
	for _, e := range m.GetLogEntries() {
		if e.Level == level && e.Message == msg {
			return true
		}
	}
	return false
}
