package core

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ActionType enumerates the platform actions a defense module can take.
type ActionType string

const (
	ActionDeleteWebhook ActionType = "delete_webhook"
	ActionBanMember     ActionType = "ban_member"
	ActionRemoveRoles   ActionType = "remove_roles"
)

// ActionStatus is the outcome of one action attempt.
type ActionStatus string

const (
	ActionStatusSuccess ActionStatus = "SUCCESS"
	ActionStatusFailed  ActionStatus = "FAILED"
)

// ResponseRecord is the audit entry for one action attempt.
type ResponseRecord struct {
	ID        string       `json:"id"`
	Timestamp time.Time    `json:"timestamp"`
	GuildID   string       `json:"guild_id"`
	Module    string       `json:"module"`
	Action    ActionType   `json:"action"`
	Target    string       `json:"target"`
	Status    ActionStatus `json:"status"`
	Details   string       `json:"details,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// Marshal serializes the record to JSON.
func (r *ResponseRecord) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// ResponseLog keeps the most recent action records in memory and mirrors
// them to the bus and to metrics.
type ResponseLog struct {
	mu         sync.RWMutex
	records    []*ResponseRecord
	maxRecords int
	bus        *EventBus
	metrics    *Metrics
	logger     zerolog.Logger
}

// NewResponseLog creates a log holding at most maxRecords entries.
func NewResponseLog(maxRecords int, metrics *Metrics, logger zerolog.Logger) *ResponseLog {
	if maxRecords <= 0 {
		maxRecords = 5000
	}
	return &ResponseLog{
		records:    make([]*ResponseRecord, 0, 64),
		maxRecords: maxRecords,
		metrics:    metrics,
		logger:     logger.With().Str("component", "response_log").Logger(),
	}
}

// SetBus enables publishing records to the bus.
func (l *ResponseLog) SetBus(bus *EventBus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bus = bus
}

// Record stores the outcome of an action. A nil err means success.
func (l *ResponseLog) Record(guildID, module string, action ActionType, target, details string, err error) *ResponseRecord {
	rec := &ResponseRecord{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		GuildID:   guildID,
		Module:    module,
		Action:    action,
		Target:    target,
		Status:    ActionStatusSuccess,
		Details:   details,
	}
	if err != nil {
		rec.Status = ActionStatusFailed
		rec.Error = err.Error()
	}

	l.mu.Lock()
	l.records = append(l.records, rec)
	if len(l.records) > l.maxRecords {
		l.records = l.records[len(l.records)-l.maxRecords:]
	}
	bus := l.bus
	l.mu.Unlock()

	if l.metrics != nil {
		l.metrics.Actions.WithLabelValues(module, string(action), string(rec.Status)).Inc()
	}

	evt := l.logger.Info()
	if err != nil {
		evt = l.logger.Warn().Err(err)
	}
	evt.Str("guild_id", guildID).
		Str("module", module).
		Str("action", string(action)).
		Str("target", target).
		Str("status", string(rec.Status)).
		Msg("defense action")

	if bus != nil {
		if perr := bus.PublishResponse(rec); perr != nil {
			l.logger.Error().Err(perr).Str("record_id", rec.ID).Msg("failed to publish response record")
		}
	}
	return rec
}

// Recent returns up to limit records, newest first. limit <= 0 returns all.
func (l *ResponseLog) Recent(limit int) []*ResponseRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := len(l.records)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*ResponseRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, l.records[i])
	}
	return out
}

// Count returns the number of retained records.
func (l *ResponseLog) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}
