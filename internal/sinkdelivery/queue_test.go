package sinkdelivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jaxxstorm/smokestack/internal/domain"
)

type recordingDeliverer struct {
	mu       sync.Mutex
	calls    int
	failures int // fail this many deliveries before succeeding
}

func (d *recordingDeliverer) Deliver(_ context.Context, _ *domain.SystemSink, _ *domain.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.calls <= d.failures {
		return errors.New("delivery failed")
	}
	return nil
}

func (d *recordingDeliverer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type recordingUpdater struct {
	mu      sync.Mutex
	results []error
}

func (u *recordingUpdater) MarkSinkResult(_ string, err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.results = append(u.results, err)
}

func (u *recordingUpdater) snapshot() []error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]error(nil), u.results...)
}

func testSink() *domain.SystemSink {
	return &domain.SystemSink{
		ID:             "sink-1",
		Kind:           domain.SinkWebhook,
		DeliveryTarget: "http://example.test/hook",
		Selector:       domain.Selector{Kind: domain.SelectorComponent, Value: "foo"},
	}
}

func testEvent() *domain.Event {
	return &domain.Event{
		Kind:      domain.EventStatusChanged,
		Timestamp: time.Now().UTC(),
		Actor:     "alice",
		Operation: &domain.Operation{ID: 1, Title: "op", Components: []string{"foo"}},
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestQueueDeliversForwardedEvent(t *testing.T) {
	deliverer := &recordingDeliverer{}
	updater := &recordingUpdater{}
	q := New(map[domain.SinkKind]Deliverer{domain.SinkWebhook: deliverer}, updater, time.Second, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	q.Forward(testSink(), testEvent())

	waitFor(t, func() bool { return deliverer.callCount() == 1 })
	results := updater.snapshot()
	require.Len(t, results, 1)
	require.NoError(t, results[0])
}

func TestQueueRetriesFailedDelivery(t *testing.T) {
	deliverer := &recordingDeliverer{failures: 2}
	updater := &recordingUpdater{}
	q := New(map[domain.SinkKind]Deliverer{domain.SinkWebhook: deliverer}, updater, time.Second, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	q.Forward(testSink(), testEvent())

	// Exponential backoff starts at one second, so three attempts take
	// a few seconds end to end.
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) && deliverer.callCount() < 3 {
		time.Sleep(50 * time.Millisecond)
	}
	require.GreaterOrEqual(t, deliverer.callCount(), 3)

	results := updater.snapshot()
	require.GreaterOrEqual(t, len(results), 3)
	require.Error(t, results[0])
	require.Error(t, results[1])
	require.NoError(t, results[len(results)-1])
}

func TestQueueIgnoresUnknownSinkKind(t *testing.T) {
	updater := &recordingUpdater{}
	q := New(map[domain.SinkKind]Deliverer{}, updater, time.Second, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	sink := testSink()
	sink.Kind = domain.SinkKind("carrier-pigeon")
	q.Forward(sink, testEvent())

	// No deliverer registered: the item is dropped without updating
	// sink state.
	time.Sleep(200 * time.Millisecond)
	require.Empty(t, updater.snapshot())
}
