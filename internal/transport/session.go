// v2
// internal/transport/session.go
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/namma-traffic/opsdash/internal/model"
)

// EventTrafficUpdate is the inbound snapshot event; EventConnected is the
// opaque server handshake, logged and otherwise ignored.
const (
	EventTrafficUpdate = "traffic_update"
	EventConnected     = "connected"
)

// Envelope is the wire frame for both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Callbacks receive inbound snapshots and lifecycle transitions. Nil
// callbacks are skipped.
type Callbacks struct {
	OnSnapshot      func(model.Update)
	OnLifecycle     func(connected bool)
	OnIntentSent    func(name string)
	OnIntentDropped func(name string)
}

// Session is the outbound side of a push channel. SendIntent is
// fire-and-forget: while the channel is down intents are silently dropped,
// with no queueing and no retry. The operator learns about non-delivery
// from the alert feed, not from an acknowledgment.
type Session interface {
	SendIntent(name string, payload map[string]any)
	Connected() bool
	Close() error
}

// Offline is the Session used when no live channel exists (simulator mode):
// every intent is dropped, as the contract requires for a down channel.
type Offline struct {
	Log    *slog.Logger
	OnDrop func(name string)
}

func (o Offline) SendIntent(name string, _ map[string]any) {
	if o.Log != nil {
		o.Log.Warn("intent dropped, no live channel", "intent", name)
	}
	if o.OnDrop != nil {
		o.OnDrop(name)
	}
}
func (o Offline) Connected() bool { return false }
func (o Offline) Close() error    { return nil }

// WSSession is a WebSocket push channel to the traffic server. The initial
// dial is construction: if it fails, the session does not exist and the
// caller falls back to the simulator. After construction, drops are
// recovered by an internal reconnect loop and surface only as lifecycle
// events, never as fatal errors.
type WSSession struct {
	log *slog.Logger
	url string
	cb  Callbacks

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool

	reconnectMin time.Duration
	reconnectMax time.Duration
}

// Dial opens the feed and starts the read/reconnect loop.
func Dial(ctx context.Context, url string, cb Callbacks, log *slog.Logger) (*WSSession, error) {
	s := &WSSession{
		log:          log,
		url:          url,
		cb:           cb,
		reconnectMin: time.Second,
		reconnectMax: 30 * time.Second,
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("cannot open dashboard feed %s: %w", url, err)
	}
	s.adopt(conn)
	go s.run(ctx)
	return s, nil
}

// SendIntent transmits one named intent if the channel is up, and drops it
// otherwise.
func (s *WSSession) SendIntent(name string, payload map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected || s.conn == nil {
		s.log.Warn("intent dropped, channel down", "intent", name)
		if s.cb.OnIntentDropped != nil {
			s.cb.OnIntentDropped(name)
		}
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("intent payload marshal failed", "intent", name, "err", err)
		return
	}
	if err := s.conn.WriteJSON(Envelope{Event: name, Data: data}); err != nil {
		s.log.Warn("intent write failed", "intent", name, "err", err)
		return
	}
	if s.cb.OnIntentSent != nil {
		s.cb.OnIntentSent(name)
	}
}

// Connected reports the current channel state.
func (s *WSSession) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Close tears the session down for good; the reconnect loop exits.
func (s *WSSession) Close() error {
	s.mu.Lock()
	s.closed = true
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (s *WSSession) run(ctx context.Context) {
	backoff := s.reconnectMin
	for {
		s.mu.Lock()
		conn := s.conn
		closed := s.closed
		s.mu.Unlock()
		if closed || ctx.Err() != nil {
			return
		}

		if conn != nil {
			s.readLoop(conn)
			s.drop()
			backoff = s.reconnectMin
		}

		for {
			s.mu.Lock()
			closed = s.closed
			s.mu.Unlock()
			if closed || ctx.Err() != nil {
				return
			}
			next, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
			if err == nil {
				s.log.Info("feed reconnected", "url", s.url)
				s.adopt(next)
				break
			}
			s.log.Warn("feed reconnect failed", "err", err, "retry_in", backoff.String())
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > s.reconnectMax {
				backoff = s.reconnectMax
			}
		}
	}
}

func (s *WSSession) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				s.log.Warn("feed read error", "err", err)
			}
			return
		}
		s.handle(data)
	}
}

func (s *WSSession) handle(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.log.Warn("unreadable feed message", "err", err)
		return
	}
	switch env.Event {
	case EventConnected:
		// Opaque handshake payload; log only.
		s.log.Info("feed handshake", "payload", string(env.Data))
	case EventTrafficUpdate:
		var up model.Update
		if err := json.Unmarshal(env.Data, &up); err != nil {
			s.log.Warn("malformed traffic update", "err", err)
			return
		}
		if s.cb.OnSnapshot != nil {
			s.cb.OnSnapshot(up)
		}
	default:
		s.log.Info("unhandled feed event", "event", env.Event)
	}
}

func (s *WSSession) adopt(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()
	if s.cb.OnLifecycle != nil {
		s.cb.OnLifecycle(true)
	}
}

func (s *WSSession) drop() {
	s.mu.Lock()
	wasConnected := s.connected
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.conn = nil
	s.connected = false
	closed := s.closed
	s.mu.Unlock()
	if wasConnected && !closed && s.cb.OnLifecycle != nil {
		s.cb.OnLifecycle(false)
	}
}
