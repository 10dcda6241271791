// v1
// internal/alerts/feed.go
package alerts

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindInfo    Kind = "info"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
	KindSuccess Kind = "success"
)

// Alert is one operator-visible notice.
type Alert struct {
	ID      string    `json:"id"`
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

const (
	// MaxEntries caps the feed; the oldest entry beyond the cap is evicted.
	MaxEntries = 10
	// DefaultTTL is how long a non-error alert stays before auto-removal.
	DefaultTTL = 10 * time.Second
)

// Feed is a bounded, newest-first alert log. Non-error alerts expire after
// the TTL; error alerts persist until dismissed or evicted by the cap.
// Identical messages are not deduplicated. A nil change sink is a no-op, so
// pushing before any consumer is attached never blocks or fails.
type Feed struct {
	log *slog.Logger

	mu      sync.Mutex
	entries []Alert

	ttl       time.Duration
	afterFunc func(time.Duration, func()) *time.Timer
	now       func() time.Time
	onChange  func([]Alert)
	onPush    func(Alert)
}

// FeedOption tweaks a Feed, mainly for tests.
type FeedOption func(*Feed)

// WithTTL overrides the auto-expiry delay.
func WithTTL(d time.Duration) FeedOption { return func(f *Feed) { f.ttl = d } }

// WithAfterFunc substitutes the expiry timer factory.
func WithAfterFunc(fn func(time.Duration, func()) *time.Timer) FeedOption {
	return func(f *Feed) { f.afterFunc = fn }
}

// WithNow substitutes the wall clock.
func WithNow(now func() time.Time) FeedOption { return func(f *Feed) { f.now = now } }

// WithChangeSink registers a callback invoked with a copy of the entries
// after every mutation.
func WithChangeSink(fn func([]Alert)) FeedOption { return func(f *Feed) { f.onChange = fn } }

// WithPushSink registers a callback invoked once per newly raised alert,
// never on expiry or dismissal.
func WithPushSink(fn func(Alert)) FeedOption { return func(f *Feed) { f.onPush = fn } }

func NewFeed(log *slog.Logger, opts ...FeedOption) *Feed {
	f := &Feed{
		log:       log,
		ttl:       DefaultTTL,
		afterFunc: time.AfterFunc,
		now:       time.Now,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Push prepends a new alert and schedules its expiry unless it is an error.
func (f *Feed) Push(kind Kind, message string) Alert {
	a := Alert{ID: uuid.NewString(), Kind: kind, Message: message, At: f.now()}

	f.mu.Lock()
	f.entries = append([]Alert{a}, f.entries...)
	if len(f.entries) > MaxEntries {
		evicted := f.entries[len(f.entries)-1]
		f.entries = f.entries[:MaxEntries]
		f.log.Info("alert evicted by cap", "id", evicted.ID, "kind", evicted.Kind)
	}
	f.mu.Unlock()

	f.log.Info("alert raised", "kind", kind, "message", message)
	if f.onPush != nil {
		f.onPush(a)
	}
	if kind != KindError {
		id := a.ID
		f.afterFunc(f.ttl, func() { f.remove(id) })
	}
	f.notify()
	return a
}

// Dismiss removes an alert by id. Unknown ids are ignored, so expiry timers
// firing after an eviction are harmless.
func (f *Feed) Dismiss(id string) {
	if f.remove(id) {
		f.log.Info("alert dismissed", "id", id)
	}
}

// Entries returns a copy of the feed, newest first.
func (f *Feed) Entries() []Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Alert, len(f.entries))
	copy(out, f.entries)
	return out
}

func (f *Feed) remove(id string) bool {
	f.mu.Lock()
	removed := false
	for i, e := range f.entries {
		if e.ID == id {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			removed = true
			break
		}
	}
	f.mu.Unlock()
	if removed {
		f.notify()
	}
	return removed
}

func (f *Feed) notify() {
	if f.onChange == nil {
		return
	}
	f.onChange(f.Entries())
}
