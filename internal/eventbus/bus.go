// Package eventbus implements the Event Bus: in-process
// publish/subscribe that matches each committed event against the
// Subscription Registry and fans it out to live WebSocket streams and
// configured System Sinks, in the exact commit order the Transition
// Engine produced them. The bus never blocks the writer: stream queues
// are bounded, and a full queue evicts its slowest subscriber rather
// than applying backpressure.
package eventbus

import (
	"sync"

	"go.uber.org/zap"

	"github.com/jaxxstorm/smokestack/internal/domain"
)

// StreamCapacity bounds a subscriber's live event queue.
const StreamCapacity = 1024

// SinkForwarder is implemented by internal/sinkdelivery; the bus hands
// off matched System Sink deliveries to it without waiting for them.
type SinkForwarder interface {
	Forward(sink *domain.SystemSink, ev *domain.Event)
}

// SubscriberMatcher is satisfied by internal/store.Store; it is the
// bus's view of the Subscription Registry.
type SubscriberMatcher interface {
	MatchingSubscribers(op *domain.Operation) []string
	MatchingSinks(ev *domain.Event) []*domain.SystemSink
}

// Stream is one live WebSocket watcher's bounded event queue.
type Stream struct {
	user string
	ch   chan *domain.Event
	once sync.Once
}

// Events returns the channel to range over for delivery.
func (s *Stream) Events() <-chan *domain.Event { return s.ch }

// Close releases the stream; safe to call more than once.
func (s *Stream) Close() {
	s.once.Do(func() { close(s.ch) })
}

// Bus matches events against subscriptions and delivers to live streams
// and system sinks.
type Bus struct {
	mu      sync.Mutex
	matcher SubscriberMatcher
	sinks   SinkForwarder
	streams map[string]map[*Stream]struct{}
	logger  *zap.Logger
}

// New builds a Bus. sinks may be nil if System Sink delivery isn't wired.
func New(matcher SubscriberMatcher, sinks SinkForwarder, logger *zap.Logger) *Bus {
	return &Bus{
		matcher: matcher,
		sinks:   sinks,
		streams: make(map[string]map[*Stream]struct{}),
		logger:  logger.With(zap.String("component", "eventbus")),
	}
}

// SetSinkForwarder wires sink delivery after construction; the delivery
// queue and the bus reference each other's collaborators, so one of the
// two must be attached late.
func (b *Bus) SetSinkForwarder(sinks SinkForwarder) {
	b.sinks = sinks
}

// Watch registers a new live stream for user and returns it. The
// subscription itself is not created here; this only tracks the live
// queue.
func (b *Bus) Watch(user string) *Stream {
	s := &Stream{user: user, ch: make(chan *domain.Event, StreamCapacity)}
	b.mu.Lock()
	if b.streams[user] == nil {
		b.streams[user] = make(map[*Stream]struct{})
	}
	b.streams[user][s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Unwatch deregisters a stream (on disconnect); the user's subscriptions
// in the registry are untouched.
func (b *Bus) Unwatch(s *Stream) {
	b.mu.Lock()
	if set, ok := b.streams[s.user]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(b.streams, s.user)
		}
	}
	b.mu.Unlock()
	s.Close()
}

// Publish delivers ev to every live stream whose user has a matching
// subscription, and forwards it to every matching system sink. It never
// blocks: a full stream queue is evicted with slow_consumer rather than
// stalling the caller (the Transition Engine).
func (b *Bus) Publish(ev *domain.Event) {
	for _, user := range b.matcher.MatchingSubscribers(ev.Operation) {
		b.deliverTo(user, ev)
	}

	if b.sinks == nil {
		return
	}
	for _, sink := range b.matcher.MatchingSinks(ev) {
		b.sinks.Forward(sink, ev)
	}
}

func (b *Bus) deliverTo(user string, ev *domain.Event) {
	b.mu.Lock()
	streams := make([]*Stream, 0, len(b.streams[user]))
	for s := range b.streams[user] {
		streams = append(streams, s)
	}
	b.mu.Unlock()

	for _, s := range streams {
		select {
		case s.ch <- ev:
		default:
			b.logger.Warn("slow consumer evicted", zap.String("user", user))
			b.Unwatch(s)
		}
	}
}
