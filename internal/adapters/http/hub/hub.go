// Package hub fans change notifications out to websocket subscribers of a
// group. It tracks connections only; it never holds ranking state.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/pkg/logger"
	"github.com/okian/duel/pkg/metrics"
)

// Default connection parameters.
const (
	defaultSendBuffer = 64
	defaultWriteWait  = 10 * time.Second
	defaultPongWait   = 60 * time.Second
	maxReadBytes      = 512
)

// MessageTypeRatingsChanged is the type of every pushed message.
const MessageTypeRatingsChanged = "ratings_changed"

// ErrClosed is returned when subscribing to a closed hub.
var ErrClosed = errors.New("hub closed")

// Message is the JSON pushed to subscribers.
type Message struct {
	Type    string    `json:"type"`
	ID      string    `json:"id"`
	GroupID string    `json:"group_id"`
	Items   []string  `json:"items"`
	At      time.Time `json:"at"`
}

// subscriber owns one connection. Only its write pump writes to conn.
type subscriber struct {
	conn    *websocket.Conn
	groupID string
	send    chan []byte
	once    sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.send) })
}

// Hub keeps per-group subscriber sets.
type Hub struct {
	mu     sync.RWMutex
	groups map[string]map[*subscriber]struct{}
	closed bool

	upgrader   websocket.Upgrader
	sendBuffer int
	writeWait  time.Duration
	pongWait   time.Duration
	logger     logger.Logger
}

// New creates a hub with configuration options.
func New(opts ...Option) *Hub {
	h := &Hub{
		groups:     make(map[string]map[*subscriber]struct{}),
		sendBuffer: defaultSendBuffer,
		writeWait:  defaultWriteWait,
		pongWait:   defaultPongWait,
		logger:     logger.Discard(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.Named("hub")
	return h
}

// Deliver pushes c to every subscriber of its group. A subscriber whose
// buffer is full is disconnected rather than allowed to stall the others.
func (h *Hub) Deliver(ctx context.Context, c model.Change) error { //nolint:gocritic // hugeParam
	if h.Count(c.GroupID) == 0 {
		return nil
	}
	data, err := json.Marshal(Message{
		Type:    MessageTypeRatingsChanged,
		ID:      c.ID,
		GroupID: c.GroupID,
		Items:   c.Items,
		At:      c.At,
	})
	if err != nil {
		return err
	}

	// Sends happen under the read lock; channels are only closed under the
	// write lock.
	var slow []*subscriber
	h.mu.RLock()
	for s := range h.groups[c.GroupID] {
		select {
		case s.send <- data:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		h.logger.Warn(ctx, "subscriber too slow, disconnecting", logger.String("group_id", c.GroupID))
		h.remove(s)
	}
	return nil
}

// ServeGroup upgrades the request and streams changes of groupID until the
// client goes away or the hub closes.
func (h *Hub) ServeGroup(w http.ResponseWriter, r *http.Request, groupID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), "websocket upgrade failed", logger.String("group_id", groupID), logger.Error(err))
		return
	}

	s := &subscriber{conn: conn, groupID: groupID, send: make(chan []byte, h.sendBuffer)}
	if err := h.add(s); err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(h.writeWait))
		_ = conn.Close()
		return
	}
	h.logger.Debug(r.Context(), "subscriber connected", logger.String("group_id", groupID))

	go h.writePump(s)
	h.readPump(r.Context(), s)
}

// readPump discards client frames and detects disconnects.
func (h *Hub) readPump(ctx context.Context, s *subscriber) {
	defer func() {
		h.remove(s)
		h.logger.Debug(ctx, "subscriber disconnected", logger.String("group_id", s.groupID))
	}()

	s.conn.SetReadLimit(maxReadBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(h.pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug(ctx, "websocket closed unexpectedly", logger.String("group_id", s.groupID), logger.Error(err))
			}
			return
		}
	}
}

// writePump is the only writer of s.conn. It exits when s.send closes.
func (h *Hub) writePump(s *subscriber) {
	ticker := time.NewTicker(h.pongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case data, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.remove(s)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(s)
				return
			}
		}
	}
}

func (h *Hub) add(s *subscriber) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	if h.groups[s.groupID] == nil {
		h.groups[s.groupID] = make(map[*subscriber]struct{})
	}
	h.groups[s.groupID][s] = struct{}{}
	metrics.UpdateSubscribers(h.totalLocked())
	return nil
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	if subs, ok := h.groups[s.groupID]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.groups, s.groupID)
		}
	}
	s.close()
	metrics.UpdateSubscribers(h.totalLocked())
	h.mu.Unlock()
}

// Count returns the number of subscribers of a group.
func (h *Hub) Count(groupID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[groupID])
}

// Total returns the number of subscribers across all groups.
func (h *Hub) Total() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalLocked()
}

func (h *Hub) totalLocked() int {
	n := 0
	for _, subs := range h.groups {
		n += len(subs)
	}
	return n
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*subscriber
	for _, subs := range h.groups {
		for s := range subs {
			all = append(all, s)
		}
	}
	h.groups = make(map[string]map[*subscriber]struct{})
	for _, s := range all {
		s.close()
	}
	h.mu.Unlock()

	metrics.UpdateSubscribers(0)
}
