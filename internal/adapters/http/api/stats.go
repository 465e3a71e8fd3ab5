package api

import (
	"net/http"
)

// StatsProvider defines the interface for getting service statistics.
type StatsProvider interface {
	GetStats() map[string]any
}

// subscriberCounter is implemented by change streams that can report how
// many clients are connected.
type subscriberCounter interface {
	Total() int
}

// StatsHandler handles stats requests.
type StatsHandler struct {
	statsProvider StatsProvider
	subscribers   subscriberCounter
}

// NewStatsHandler creates a new stats handler. sub may be nil.
func NewStatsHandler(statsProvider StatsProvider, sub Subscriber) *StatsHandler {
	h := &StatsHandler{statsProvider: statsProvider}
	if c, ok := sub.(subscriberCounter); ok {
		h.subscribers = c
	}
	return h
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	stats := map[string]any{}
	if h.statsProvider != nil {
		for k, v := range h.statsProvider.GetStats() {
			stats[k] = v
		}
	}
	if h.subscribers != nil {
		stats["subscribers"] = h.subscribers.Total()
	}
	writeJSON(w, http.StatusOK, stats)
}
