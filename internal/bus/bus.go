// Package bus provides an in-process publish/subscribe event bus used to
// decouple the orchestrator's producers (registry, task manager,
// orchestrator, executor) from its consumers (broadcaster, activity log).
package bus

import (
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const defaultBufferSize = 100

// ringSize is the number of recent activity entries retained for
// RecentActivity(n) regardless of subscriber count.
const ringSize = 100

// Event is a message published on the bus.
type Event struct {
	Topic   string
	Payload interface{}
}

// Subscription represents an active subscription.
type Subscription struct {
	id     int
	prefix string
	ch     chan Event
}

// Ch returns the channel to receive events on.
func (s *Subscription) Ch() <-chan Event {
	return s.ch
}

// ActivityEntry is a short, human-readable record of a bus event, retained
// in a bounded ring for the activity feed (spec §3 ActivityEntry).
type ActivityEntry struct {
	ID        int64
	Timestamp int64 // unix millis
	AgentID   string
	Event     string
	Message   string
}

// Bus is a simple in-process pub/sub message bus with topic prefix matching
// and a bounded activity ring buffer. Delivery to subscribers is
// best-effort and synchronous from the publisher's goroutine: a slow
// subscriber never blocks the publisher, it just misses events.
type Bus struct {
	mu              sync.RWMutex
	subs            map[int]*Subscription
	nextID          int
	logger          *slog.Logger
	droppedEvents   atomic.Int64
	lastDropWarning atomic.Int64

	ringMu  sync.Mutex
	ring    []ActivityEntry
	ringPos int
	nextEID int64
	nowFn   func() int64
}

// New creates a new Bus.
func New() *Bus {
	return NewWithLogger(nil)
}

// NewWithLogger creates a new Bus with an optional logger for observability.
func NewWithLogger(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[int]*Subscription),
		logger: logger,
		ring:   make([]ActivityEntry, 0, ringSize),
	}
}

// SetClock overrides the bus's time source; used by tests.
func (b *Bus) SetClock(now func() int64) {
	b.nowFn = now
}

func (b *Bus) now() int64 {
	if b.nowFn != nil {
		return b.nowFn()
	}
	return time.Now().UnixMilli()
}

// Subscribe creates a subscription for events matching the given topic
// prefix. An empty prefix matches all topics (the "wildcard listener" of
// spec §9, implemented as an explicit empty-prefix predicate rather than an
// emitter wildcard).
func (b *Bus) Subscribe(topicPrefix string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:     b.nextID,
		prefix: topicPrefix,
		ch:     make(chan Event, defaultBufferSize),
	}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.id]; ok {
		delete(b.subs, sub.id)
		close(sub.ch)
	}
}

// Publish sends an event to all matching subscribers and appends an
// activity entry to the bounded ring, attributed to "system".
func (b *Bus) Publish(topic, message string) {
	b.PublishActivity(topic, "system", message)
}

// PublishActivity publishes an event and records an ActivityEntry attributed
// to agentID (use "system" for non-agent-originated events).
func (b *Bus) PublishActivity(topic, agentID, message string) {
	event := Event{Topic: topic, Payload: message}

	b.mu.RLock()
	for _, sub := range b.subs {
		if sub.prefix == "" || strings.HasPrefix(topic, sub.prefix) {
			select {
			case sub.ch <- event:
			default:
				newCount := b.droppedEvents.Add(1)
				b.maybeLogDropWarning(newCount, topic)
			}
		}
	}
	b.mu.RUnlock()

	b.appendActivity(topic, agentID, message)
}

func (b *Bus) appendActivity(topic, agentID, message string) {
	b.ringMu.Lock()
	defer b.ringMu.Unlock()

	b.nextEID++
	entry := ActivityEntry{
		ID:        b.nextEID,
		Timestamp: b.now(),
		AgentID:   agentID,
		Event:     topic,
		Message:   message,
	}
	if len(b.ring) < ringSize {
		b.ring = append(b.ring, entry)
		return
	}
	b.ring[b.ringPos] = entry
	b.ringPos = (b.ringPos + 1) % ringSize
}

// RecentActivity returns up to n of the most recent activity entries,
// oldest first.
func (b *Bus) RecentActivity(n int) []ActivityEntry {
	b.ringMu.Lock()
	defer b.ringMu.Unlock()

	total := len(b.ring)
	if total == 0 {
		return nil
	}
	if n <= 0 || n > total {
		n = total
	}

	if total < ringSize {
		out := make([]ActivityEntry, n)
		copy(out, b.ring[total-n:])
		return out
	}
	// Ring has wrapped: oldest entry is at ringPos.
	ordered := make([]ActivityEntry, 0, ringSize)
	ordered = append(ordered, b.ring[b.ringPos:]...)
	ordered = append(ordered, b.ring[:b.ringPos]...)
	return ordered[ringSize-n:]
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// DroppedEventCount returns the total number of events dropped due to full
// subscriber buffers.
func (b *Bus) DroppedEventCount() int64 {
	return b.droppedEvents.Load()
}

func dropThreshold(count int64) int64 {
	threshold := int64(1)
	for threshold*10 <= count {
		threshold *= 10
	}
	return threshold
}

func (b *Bus) maybeLogDropWarning(newCount int64, topic string) {
	if b.logger == nil {
		return
	}
	threshold := dropThreshold(newCount)
	if newCount != threshold {
		return
	}
	lastWarned := b.lastDropWarning.Load()
	if threshold <= lastWarned {
		return
	}
	if b.lastDropWarning.CompareAndSwap(lastWarned, threshold) {
		b.logger.Warn("bus_dropped_events_reached_threshold",
			slog.Int64("count", newCount),
			slog.String("topic", topic),
		)
	}
}
