package engine

import (
	"context"

	"github.com/jaxxstorm/smokestack/internal/domain"
	"github.com/jaxxstorm/smokestack/internal/eventbus"
	"github.com/jaxxstorm/smokestack/internal/history"
	"github.com/jaxxstorm/smokestack/internal/store"
)

// These accessors serve the read endpoints. Reads never go through
// reqCh: they execute directly against the Store's RWMutex-guarded
// snapshot.

// GetOperation returns a clone of the operation, or ok=false.
func (e *Engine) GetOperation(id domain.OperationID) (*domain.Operation, bool) {
	return e.store.GetOperation(id)
}

// ListOperations returns operations matching filter.
func (e *Engine) ListOperations(filter store.OperationFilter) []*domain.Operation {
	return e.store.ListOperations(filter)
}

// GetComponent returns a clone, or ok=false.
func (e *Engine) GetComponent(name string) (*domain.Component, bool) {
	return e.store.GetComponent(name)
}

// ListComponents returns every component.
func (e *Engine) ListComponents() []*domain.Component {
	return e.store.ListComponents()
}

// GetTag returns a clone, or ok=false.
func (e *Engine) GetTag(name string) (*domain.Tag, bool) {
	return e.store.GetTag(name)
}

// ListTags returns every tag.
func (e *Engine) ListTags() []*domain.Tag {
	return e.store.ListTags()
}

// GetGroup returns a clone, or ok=false.
func (e *Engine) GetGroup(name string) (*domain.Group, bool) {
	return e.store.GetGroup(name)
}

// ListGroups returns every group.
func (e *Engine) ListGroups() []*domain.Group {
	return e.store.ListGroups()
}

// GetUser returns a clone, or ok=false.
func (e *Engine) GetUser(name string) (*domain.User, bool) {
	return e.store.GetUser(name)
}

// ListSubscriptions returns user's subscriptions.
func (e *Engine) ListSubscriptions(user string) []domain.Subscription {
	return e.store.ListSubscriptions(user)
}

// ListSinks returns every System Sink.
func (e *Engine) ListSinks() []*domain.SystemSink {
	return e.store.ListSinks()
}

// GetSink returns a clone, or ok=false.
func (e *Engine) GetSink(id string) (*domain.SystemSink, bool) {
	return e.store.GetSink(id)
}

// QueryHistory delegates to the History Log.
func (e *Engine) QueryHistory(ctx context.Context, filter history.Filter) ([]domain.HistoryRecord, error) {
	return e.history.Query(ctx, filter)
}

// Watch registers a live event stream for user.
func (e *Engine) Watch(user string) *eventbus.Stream {
	return e.bus.Watch(user)
}

// Unwatch deregisters a live stream; the user's subscriptions persist.
func (e *Engine) Unwatch(s *eventbus.Stream) {
	e.bus.Unwatch(s)
}

// IsReady reports whether the engine is accepting writes: the journal
// isn't degraded.
func (e *Engine) IsReady() bool {
	return !e.isDegraded()
}
