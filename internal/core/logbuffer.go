package core

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// LogEntry is one log line captured by the engine.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level,omitempty"`
	Component string    `json:"component,omitempty"`
	Message   string    `json:"message"`
}

// LogRingBuffer keeps the last maxSize log lines for the operator API.
type LogRingBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	maxSize int
	pos     int
	full    bool
}

// NewLogRingBuffer creates a ring buffer that holds up to maxSize entries.
func NewLogRingBuffer(maxSize int) *LogRingBuffer {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &LogRingBuffer{
		entries: make([]LogEntry, maxSize),
		maxSize: maxSize,
	}
}

// Write implements io.Writer. JSON lines are split into level, component and
// message; anything else is stored as the message verbatim.
func (b *LogRingBuffer) Write(p []byte) (int, error) {
	entry := LogEntry{
		Timestamp: time.Now().UTC(),
		Message:   strings.TrimRight(string(p), "\n"),
	}
	var fields struct {
		Level     string `json:"level"`
		Component string `json:"component"`
		Message   string `json:"message"`
	}
	if json.Unmarshal(p, &fields) == nil {
		entry.Level = fields.Level
		entry.Component = fields.Component
		entry.Message = fields.Message
	}

	b.mu.Lock()
	b.entries[b.pos] = entry
	b.pos = (b.pos + 1) % b.maxSize
	if b.pos == 0 {
		b.full = true
	}
	b.mu.Unlock()

	return len(p), nil
}

// Entries returns the most recent n entries in chronological order.
func (b *LogRingBuffer) Entries(n int) []LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := b.pos
	if b.full {
		total = b.maxSize
	}
	if n > total {
		n = total
	}
	if n <= 0 {
		return []LogEntry{}
	}

	result := make([]LogEntry, n)
	start := b.pos - n
	if start < 0 {
		start += b.maxSize
	}
	for i := 0; i < n; i++ {
		result[i] = b.entries[(start+i)%b.maxSize]
	}
	return result
}
