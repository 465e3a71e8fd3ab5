package hub

import (
	"net/http"
	"time"

	"github.com/okian/duel/pkg/logger"
)

// Option applies a configuration option to the Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithSendBuffer sets how many messages may queue per subscriber before it
// is dropped.
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithPongWait sets how long a silent connection is kept. Pings are sent at
// nine tenths of this interval.
func WithPongWait(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.pongWait = d
		}
	}
}

// WithCheckOrigin sets the origin policy of the upgrader.
func WithCheckOrigin(f func(*http.Request) bool) Option {
	return func(h *Hub) {
		if f != nil {
			h.upgrader.CheckOrigin = f
		}
	}
}
