package server

import (
	"fmt"
	"net/http"
)

// metricsHandler serves /metrics in Prometheus text exposition format,
// /metrics.json with the same counters as JSON, and /healthz.
func (s *Server) metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/metrics.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(s.metrics.JSON()))
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// handleMetrics writes all metrics in Prometheus text exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	m := s.metrics

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Write errors to http.ResponseWriter are non-actionable; suppress errcheck.
	write := func(name, help, mtype string, value int64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %d\n", name, value)
	}
	writeFloat := func(name, help, mtype string, value float64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %f\n", name, value)
	}

	writeFloat("mandi_uptime_seconds", "Relay uptime in seconds.", "gauge", m.Uptime().Seconds())

	write("mandi_connections_active", "Current open websocket connections.", "gauge",
		m.ActiveConnections.Load())
	write("mandi_connections_total", "Lifetime websocket connections accepted.", "counter",
		m.TotalConnections.Load())
	write("mandi_disconnects_total", "Total websocket disconnects.", "counter",
		m.TotalDisconnects.Load())

	write("mandi_sessions", "Connections with a user session.", "gauge",
		int64(s.engine.SessionCount()))
	write("mandi_rooms", "Rooms with at least one member.", "gauge",
		int64(s.engine.RoomCount()))
	write("mandi_room_joins_total", "Successful room joins.", "counter",
		m.Joins.Load())
	write("mandi_room_leaves_total", "Room departures, explicit or by disconnect.", "counter",
		m.Leaves.Load())

	write("mandi_messages_total", "Chat messages accepted.", "counter",
		m.MessagesSent.Load())
	write("mandi_messages_delivered_total", "Chat message deliveries to recipients.", "counter",
		m.MessagesDelivered.Load())
	write("mandi_translations_attempted_total", "Translation requests made.", "counter",
		m.TranslationsTried.Load())
	write("mandi_translations_applied_total", "Deliveries that carried a translation.", "counter",
		m.TranslationsUsed.Load())
	write("mandi_translations_failed_total", "Translation errors, timeouts and panics.", "counter",
		m.TranslationsFailed.Load())

	write("mandi_typing_events_total", "Typing notices relayed.", "counter",
		m.TypingEvents.Load())

	write("mandi_slow_client_drops_total", "Connections dropped because their send queue was full.", "counter",
		m.SlowClientDrops.Load())

	write("mandi_caller_errors_total", "Error events sent to callers.", "counter",
		m.CallerErrors.Load())
	write("mandi_handler_panics_total", "Panics recovered in event handlers.", "counter",
		m.HandlerPanics.Load())
}
