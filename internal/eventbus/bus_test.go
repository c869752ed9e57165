package eventbus_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jaxxstorm/smokestack/internal/domain"
	"github.com/jaxxstorm/smokestack/internal/eventbus"
	"github.com/jaxxstorm/smokestack/internal/store"
)

type recordingForwarder struct {
	mu    sync.Mutex
	sinks []string
}

func (f *recordingForwarder) Forward(sink *domain.SystemSink, _ *domain.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, sink.ID)
}

func event(op *domain.Operation, kind domain.EventKind) *domain.Event {
	return &domain.Event{Kind: kind, Timestamp: time.Now().UTC(), Actor: "alice", Operation: op}
}

func TestPublishDeliversToMatchingStreams(t *testing.T) {
	s := store.New()
	bus := eventbus.New(s, nil, zaptest.NewLogger(t))

	op := &domain.Operation{ID: 1, Title: "op", Components: []string{"foo"}}
	s.PutOperation(op)
	s.AddSubscription(domain.Subscription{Subscriber: "alice",
		Selector: domain.Selector{Kind: domain.SelectorComponent, Value: "foo"}})

	aliceStream := bus.Watch("alice")
	defer bus.Unwatch(aliceStream)
	bobStream := bus.Watch("bob")
	defer bus.Unwatch(bobStream)

	bus.Publish(event(op, domain.EventCreated))

	select {
	case ev := <-aliceStream.Events():
		assert.Equal(t, domain.EventCreated, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("alice did not receive the event")
	}

	select {
	case <-bobStream.Events():
		t.Fatal("bob has no matching subscription and should receive nothing")
	default:
	}
}

func TestPublishPreservesOrder(t *testing.T) {
	s := store.New()
	bus := eventbus.New(s, nil, zaptest.NewLogger(t))

	op := &domain.Operation{ID: 1, Title: "op", Components: []string{"foo"}}
	s.PutOperation(op)
	s.AddSubscription(domain.Subscription{Subscriber: "alice",
		Selector: domain.Selector{Kind: domain.SelectorOperation, OperationID: 1}})

	stream := bus.Watch("alice")
	defer bus.Unwatch(stream)

	for i := 0; i < 10; i++ {
		ev := event(op, domain.EventEdited)
		ev.Seq = uint64(i)
		bus.Publish(ev)
	}

	for i := 0; i < 10; i++ {
		select {
		case ev := <-stream.Events():
			require.Equal(t, uint64(i), ev.Seq)
		case <-time.After(time.Second):
			t.Fatal("missing event")
		}
	}
}

func TestSlowConsumerIsEvicted(t *testing.T) {
	s := store.New()
	bus := eventbus.New(s, nil, zaptest.NewLogger(t))

	op := &domain.Operation{ID: 1, Title: "op"}
	s.PutOperation(op)
	s.AddSubscription(domain.Subscription{Subscriber: "alice",
		Selector: domain.Selector{Kind: domain.SelectorOperation, OperationID: 1}})

	stream := bus.Watch("alice")

	// Fill the queue past capacity without draining; the overflowing
	// publish must not block and must close the stream.
	for i := 0; i < eventbus.StreamCapacity+1; i++ {
		bus.Publish(event(op, domain.EventEdited))
	}

	drained := 0
	for range stream.Events() {
		drained++
	}
	assert.Equal(t, eventbus.StreamCapacity, drained)
}

func TestPublishForwardsToMatchingSinks(t *testing.T) {
	s := store.New()
	fwd := &recordingForwarder{}
	bus := eventbus.New(s, fwd, zaptest.NewLogger(t))

	op := &domain.Operation{ID: 1, Title: "op", Components: []string{"foo"}}
	s.PutOperation(op)

	s.PutSink(&domain.SystemSink{
		ID: "matching", Kind: domain.SinkWebhook, DeliveryTarget: "http://x",
		Selector: domain.Selector{Kind: domain.SelectorComponent, Value: "foo"},
	})
	s.PutSink(&domain.SystemSink{
		ID: "filtered-out", Kind: domain.SinkWebhook, DeliveryTarget: "http://x",
		Selector:    domain.Selector{Kind: domain.SelectorComponent, Value: "foo"},
		EventFilter: []domain.EventKind{domain.EventStatusChanged},
	})
	s.PutSink(&domain.SystemSink{
		ID: "other-component", Kind: domain.SinkWebhook, DeliveryTarget: "http://x",
		Selector: domain.Selector{Kind: domain.SelectorComponent, Value: "bar"},
	})

	bus.Publish(event(op, domain.EventCreated))

	fwd.mu.Lock()
	defer fwd.mu.Unlock()
	assert.Equal(t, []string{"matching"}, fwd.sinks)
}

func TestMultipleStreamsPerUser(t *testing.T) {
	s := store.New()
	bus := eventbus.New(s, nil, zaptest.NewLogger(t))

	op := &domain.Operation{ID: 1, Title: "op"}
	s.PutOperation(op)
	s.AddSubscription(domain.Subscription{Subscriber: "alice",
		Selector: domain.Selector{Kind: domain.SelectorOperation, OperationID: 1}})

	var streams []*eventbus.Stream
	for i := 0; i < 3; i++ {
		streams = append(streams, bus.Watch("alice"))
	}
	defer func() {
		for _, st := range streams {
			bus.Unwatch(st)
		}
	}()

	bus.Publish(event(op, domain.EventCreated))

	for i, st := range streams {
		select {
		case <-st.Events():
		case <-time.After(time.Second):
			t.Fatal(fmt.Sprintf("stream %d missed the event", i))
		}
	}
}
