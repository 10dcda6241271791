// v2
// internal/ledger/ledger.go
package ledger

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/namma-traffic/opsdash/internal/alerts"
	"github.com/namma-traffic/opsdash/internal/breaker"
)

// Entry is one appended audit record: either a raised alert or an outbound
// operator intent.
type Entry struct {
	Kind      string         `json:"kind"` // "alert" | "intent"
	Timestamp time.Time      `json:"timestamp"`
	Alert     *alerts.Alert  `json:"alert,omitempty"`
	Intent    string         `json:"intent,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// messageWriter mirrors the subset of kafka.Writer the ledger uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// queueDepth bounds the unflushed backlog; entries beyond it are dropped.
const queueDepth = 64

// Ledger appends alerts and intents to a Kafka topic, best effort. Record
// calls only enqueue: a single drain goroutine does the broker I/O, so a
// slow or dead broker never stalls the caller. Broker trouble is absorbed
// by the breaker and logged; the dashboard never feels it. A nil *Ledger is
// a valid no-op, so callers do not branch on whether auditing is configured.
type Ledger struct {
	log *slog.Logger
	w   messageWriter
	brk *breaker.Breaker
	now func() time.Time

	mu     sync.Mutex
	closed bool
	queue  chan Entry
	done   chan struct{}
}

// New builds a ledger for the given brokers and topic. Returns nil when no
// brokers are configured.
func New(brokers []string, topic string, log *slog.Logger) *Ledger {
	if len(brokers) == 0 || topic == "" {
		log.Info("event ledger disabled, no brokers configured")
		return nil
	}
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}
	log.Info("event ledger ready", "topic", topic, "brokers", brokers)
	return newWithWriter(w, log)
}

func newWithWriter(w messageWriter, log *slog.Logger) *Ledger {
	l := &Ledger{
		log:   log,
		w:     w,
		brk:   breaker.New("ledger", breaker.Config{MaxFailures: 5, ResetTimeout: 30 * time.Second}, log),
		now:   time.Now,
		queue: make(chan Entry, queueDepth),
		done:  make(chan struct{}),
	}
	go l.drain()
	return l
}

// RecordAlert appends a raised alert.
func (l *Ledger) RecordAlert(a alerts.Alert) {
	if l == nil {
		return
	}
	l.enqueue(Entry{Kind: "alert", Timestamp: l.now(), Alert: &a})
}

// RecordIntent appends an outbound intent.
func (l *Ledger) RecordIntent(name string, payload map[string]any) {
	if l == nil {
		return
	}
	l.enqueue(Entry{Kind: "intent", Timestamp: l.now(), Intent: name, Payload: payload})
}

// Close stops the drain goroutine, waits for the backlog to flush and
// releases the writer. Nil-safe.
func (l *Ledger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.queue)
	}
	l.mu.Unlock()
	<-l.done
	return l.w.Close()
}

func (l *Ledger) enqueue(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- e:
	default:
		l.log.Warn("ledger queue full, entry dropped", "kind", e.Kind)
	}
}

func (l *Ledger) drain() {
	defer close(l.done)
	for e := range l.queue {
		l.append(e)
	}
}

func (l *Ledger) append(e Entry) {
	key := e.Intent
	if e.Kind == "alert" && e.Alert != nil {
		key = string(e.Alert.Kind)
	}
	b, err := json.Marshal(e)
	if err != nil {
		l.log.Error("ledger marshal failed", "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err = l.brk.Execute(ctx, func(ctx context.Context) error {
		return l.w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: b, Time: e.Timestamp})
	})
	if err != nil {
		l.log.Warn("ledger append failed", "kind", e.Kind, "err", err)
	}
}
