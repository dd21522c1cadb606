package relay

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics tracks relay runtime statistics.
// All counters use atomic operations for lock-free concurrent access.
type Metrics struct {
	startTime time.Time

	// Connection counters
	TotalConnections  atomic.Int64 // lifetime websocket connections accepted
	ActiveConnections atomic.Int64 // current open connections
	TotalDisconnects  atomic.Int64 // connections closed (clean + unclean)

	// Room counters
	Joins  atomic.Int64 // successful join_room events
	Leaves atomic.Int64 // leave_room events plus disconnects that left a room

	// Message counters
	MessagesSent       atomic.Int64 // send_message events accepted
	MessagesDelivered  atomic.Int64 // message_received events emitted
	TranslationsTried  atomic.Int64 // collaborator calls made
	TranslationsUsed   atomic.Int64 // deliveries that carried a translation
	TranslationsFailed atomic.Int64 // collaborator errors, timeouts and panics

	TypingEvents atomic.Int64 // typing events relayed

	SlowClientDrops atomic.Int64 // connections closed because their send queue was full

	// Fault counters
	CallerErrors  atomic.Int64 // error events sent back to callers
	HandlerPanics atomic.Int64 // panics recovered inside event handlers
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// Uptime returns the time since the metrics were created.
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}

// MetricsSnapshot is a point-in-time view of all metrics as a serializable struct.
type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	ActiveConnections int64 `json:"active_connections"`
	TotalConnections  int64 `json:"total_connections"`
	TotalDisconnects  int64 `json:"total_disconnects"`

	Joins  int64 `json:"joins"`
	Leaves int64 `json:"leaves"`

	MessagesSent       int64 `json:"messages_sent"`
	MessagesDelivered  int64 `json:"messages_delivered"`
	TranslationsTried  int64 `json:"translations_tried"`
	TranslationsUsed   int64 `json:"translations_used"`
	TranslationsFailed int64 `json:"translations_failed"`

	TypingEvents int64 `json:"typing_events"`

	SlowClientDrops int64 `json:"slow_client_drops"`

	CallerErrors  int64 `json:"caller_errors"`
	HandlerPanics int64 `json:"handler_panics"`
}

// Snapshot returns a read-consistent snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	uptime := m.Uptime()
	return MetricsSnapshot{
		Uptime:             uptime.Truncate(time.Second).String(),
		UptimeSeconds:      int64(uptime.Seconds()),
		ActiveConnections:  m.ActiveConnections.Load(),
		TotalConnections:   m.TotalConnections.Load(),
		TotalDisconnects:   m.TotalDisconnects.Load(),
		Joins:              m.Joins.Load(),
		Leaves:             m.Leaves.Load(),
		MessagesSent:       m.MessagesSent.Load(),
		MessagesDelivered:  m.MessagesDelivered.Load(),
		TranslationsTried:  m.TranslationsTried.Load(),
		TranslationsUsed:   m.TranslationsUsed.Load(),
		TranslationsFailed: m.TranslationsFailed.Load(),
		TypingEvents:       m.TypingEvents.Load(),
		SlowClientDrops:    m.SlowClientDrops.Load(),
		CallerErrors:       m.CallerErrors.Load(),
		HandlerPanics:      m.HandlerPanics.Load(),
	}
}

// JSON returns the metrics snapshot as a JSON string.
func (m *Metrics) JSON() string {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogSummary writes a periodic metrics summary to logger.
func (m *Metrics) LogSummary(logger *slog.Logger) {
	s := m.Snapshot()
	logger.Info("metrics",
		"uptime", s.Uptime,
		"connections", s.ActiveConnections,
		"total_connections", s.TotalConnections,
		"messages", s.MessagesSent,
		"deliveries", s.MessagesDelivered,
		"translations_used", s.TranslationsUsed,
		"translations_failed", s.TranslationsFailed,
		"panics", s.HandlerPanics,
	)
}

// StartPeriodicLog starts a goroutine that logs metrics every interval.
// It stops when the done channel is closed.
func (m *Metrics) StartPeriodicLog(logger *slog.Logger, interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary(logger)
			}
		}
	}()
}
