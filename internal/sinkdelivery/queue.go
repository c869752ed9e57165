// Package sinkdelivery drives System Sink delivery: each
// matched (sink, event) pair is queued, rate-limited and retried with
// bounded exponential backoff; after N consecutive failures the sink is
// marked degraded without dropping further events from the log.
package sinkdelivery

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"k8s.io/client-go/util/workqueue"

	"github.com/jaxxstorm/smokestack/internal/domain"
	"github.com/jaxxstorm/smokestack/internal/metrics"
)

// MaxFailures is the number of consecutive delivery failures after
// which a sink is marked degraded.
const MaxFailures = 5

// Deliverer actually ships an event to a sink's delivery target. The
// concrete implementations are internal/sinkdelivery/webhook (HTTP) and
// internal/sinkdelivery/redischan (pub/sub).
type Deliverer interface {
	Deliver(ctx context.Context, sink *domain.SystemSink, ev *domain.Event) error
}

// SinkUpdater persists degraded/failure-count changes back to the
// Domain Store; internal/engine implements this over its write channel
// so sink state changes go through the same single-writer discipline as
// everything else.
type SinkUpdater interface {
	MarkSinkResult(sinkID string, err error)
}

type delivery struct {
	sink *domain.SystemSink
	ev   *domain.Event
}

// Queue drains matched deliveries against a registry of per-kind
// Deliverers, with a per-sink token-bucket rate cap alongside the
// workqueue's exponential backoff.
type Queue struct {
	queue      workqueue.RateLimitingInterface
	deliverers map[domain.SinkKind]Deliverer
	limiters   map[string]*rate.Limiter
	updater    SinkUpdater
	logger     *zap.Logger
	deadline   time.Duration
	metrics    *metrics.Registry
}

// SetMetrics wires the delivery-outcome collectors. Optional.
func (q *Queue) SetMetrics(reg *metrics.Registry) {
	q.metrics = reg
}

// New builds a Queue. deadline bounds a single delivery attempt.
func New(deliverers map[domain.SinkKind]Deliverer, updater SinkUpdater, deadline time.Duration, logger *zap.Logger) *Queue {
	rateLimiter := workqueue.NewItemExponentialFailureRateLimiter(1*time.Second, 5*time.Minute)
	return &Queue{
		queue:      workqueue.NewRateLimitingQueue(rateLimiter),
		deliverers: deliverers,
		limiters:   make(map[string]*rate.Limiter),
		updater:    updater,
		deadline:   deadline,
		logger:     logger.With(zap.String("component", "sinkdelivery")),
	}
}

// Forward implements eventbus.SinkForwarder: enqueue the delivery and
// return immediately, never blocking the Transition Engine.
func (q *Queue) Forward(sink *domain.SystemSink, ev *domain.Event) {
	q.queue.Add(delivery{sink: sink, ev: ev})
}

// Run drains the queue until ctx is canceled. Call it from its own
// goroutine; it is the worker loop a production deployment runs
// alongside the Transition Engine.
func (q *Queue) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		q.queue.ShutDown()
	}()

	for {
		item, shutdown := q.queue.Get()
		if shutdown {
			return
		}
		q.process(ctx, item.(delivery))
	}
}

func (q *Queue) process(ctx context.Context, d delivery) {
	defer q.queue.Done(d)

	limiter := q.limiterFor(d.sink.ID)
	if err := limiter.Wait(ctx); err != nil {
		q.queue.AddRateLimited(d)
		return
	}

	deliverCtx, cancel := context.WithTimeout(ctx, q.deadline)
	defer cancel()

	deliverer, ok := q.deliverers[d.sink.Kind]
	if !ok {
		q.logger.Error("no deliverer registered for sink kind", zap.String("kind", string(d.sink.Kind)))
		return
	}

	err := deliverer.Deliver(deliverCtx, d.sink, d.ev)
	q.metrics.ObserveSinkDelivery(d.sink.ID, err == nil)
	q.updater.MarkSinkResult(d.sink.ID, err)
	if err != nil {
		q.logger.Warn("sink delivery failed, retrying",
			zap.String("sink", d.sink.ID), zap.Error(err))
		q.queue.AddRateLimited(d)
		return
	}
	q.queue.Forget(d)
}

func (q *Queue) limiterFor(sinkID string) *rate.Limiter {
	if l, ok := q.limiters[sinkID]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(5), 10)
	q.limiters[sinkID] = l
	return l
}

// ShutDown stops accepting new work; Run's goroutine drains in-flight
// items and returns once empty.
func (q *Queue) ShutDown() {
	q.queue.ShutDown()
}
