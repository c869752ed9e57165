// Package engine implements the Transition Engine: the single writer
// that admits, applies and publishes every mutation. Every write is one
// closure submitted to reqCh; the writer runs admission, mutation,
// history append, snapshot write and event publish before replying.
package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jaxxstorm/smokestack/internal/admission"
	"github.com/jaxxstorm/smokestack/internal/domain"
	"github.com/jaxxstorm/smokestack/internal/eventbus"
	"github.com/jaxxstorm/smokestack/internal/history"
	"github.com/jaxxstorm/smokestack/internal/metrics"
	"github.com/jaxxstorm/smokestack/internal/persistence"
	"github.com/jaxxstorm/smokestack/internal/store"
)

type writeRequest struct {
	fn    func() (interface{}, error)
	reply chan writeReply
}

type writeReply struct {
	value interface{}
	err   error
}

// Engine serializes every mutation of the Domain Store through a single
// goroutine reading reqCh, giving the ordering and read-your-writes
// guarantees without a distributed transaction.
type Engine struct {
	store     *store.Store
	admission *admission.Controller
	history   history.Store
	bus       *eventbus.Bus
	journal   *persistence.Journal
	logger    *zap.Logger

	reqCh chan writeRequest

	mu       sync.RWMutex
	degraded bool // true when the last snapshot write failed

	sinkForwarder sinkForwarder
	metrics       *metrics.Registry
}

// sinkForwarder lets ProbeDegradedSinks push a heartbeat straight at one
// sink, bypassing the normal subscriber-match fan-out in eventbus.Bus.
type sinkForwarder interface {
	Forward(sink *domain.SystemSink, ev *domain.Event)
}

// SetSinkForwarder wires the System Sink delivery queue for direct,
// per-sink probes. Optional: nil disables ProbeDegradedSinks.
func (e *Engine) SetSinkForwarder(f sinkForwarder) {
	e.sinkForwarder = f
}

// SetMetrics wires the collectors the engine reports transitions and
// admission denials against. Optional: a nil registry records nothing.
func (e *Engine) SetMetrics(reg *metrics.Registry) {
	e.metrics = reg
}

// New wires an Engine over its collaborators. Call Run in its own
// goroutine before accepting requests.
func New(s *store.Store, adm *admission.Controller, h history.Store, bus *eventbus.Bus, journal *persistence.Journal, logger *zap.Logger) *Engine {
	return &Engine{
		store:     s,
		admission: adm,
		history:   h,
		bus:       bus,
		journal:   journal,
		logger:    logger.With(zap.String("component", "engine")),
		reqCh:     make(chan writeRequest),
	}
}

// Run is the writer goroutine. It exits when ctx is canceled.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info("transition engine started")
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("transition engine stopped")
			return
		case req := <-e.reqCh:
			value, err := req.fn()
			req.reply <- writeReply{value: value, err: err}
		}
	}
}

// submit enqueues fn and blocks for its result, or returns ctx.Err() if
// ctx is canceled before the writer picks it up. Cancellation is never
// checked between validation and commit.
func (e *Engine) submit(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	reply := make(chan writeReply, 1)
	select {
	case e.reqCh <- writeRequest{fn: fn, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	r := <-reply
	return r.value, r.err
}

func (e *Engine) isDegraded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.degraded
}

func (e *Engine) setDegraded(d bool) {
	e.mu.Lock()
	e.degraded = d
	e.mu.Unlock()
}

// commit persists the current store state; on failure further writes
// are refused until the journal recovers.
func (e *Engine) commit() error {
	if err := e.journal.Write(e.store.Snapshot()); err != nil {
		e.setDegraded(true)
		return domain.NewErrorf(domain.KindInternal, "persistence journal write failed: %v", err)
	}
	e.setDegraded(false)
	return nil
}

func (e *Engine) guardDegraded() error {
	if e.isDegraded() {
		return domain.NewError(domain.KindInternal, "persistence journal is degraded; writes are refused until it recovers")
	}
	return nil
}

func (e *Engine) publish(ev *domain.Event) {
	e.bus.Publish(ev)
}

func now() time.Time { return time.Now().UTC() }
