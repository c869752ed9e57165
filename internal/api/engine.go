package api

import (
	"context"

	"github.com/jaxxstorm/smokestack/internal/domain"
	"github.com/jaxxstorm/smokestack/internal/eventbus"
	"github.com/jaxxstorm/smokestack/internal/history"
	"github.com/jaxxstorm/smokestack/internal/store"
)

// Engine is the facade's view of the coordination engine. It is
// satisfied by *engine.Engine; tests may substitute a narrower fake.
type Engine interface {
	// IsReady reports whether the engine is accepting writes.
	IsReady() bool

	// Operation lifecycle.
	Create(ctx context.Context, desc *domain.OperationDescription, actor string) (*domain.Operation, error)
	Edit(ctx context.Context, id domain.OperationID, expectedVersion int, mutate func(*domain.Operation), actor string) (*domain.Operation, error)
	EditAnnotations(ctx context.Context, id domain.OperationID, annotations map[string]string, actor string) (*domain.Operation, error)
	Transition(ctx context.Context, id domain.OperationID, to domain.Status, actor, note string) (*domain.Operation, error)
	Approve(ctx context.Context, id domain.OperationID, actor string) (*domain.Operation, error)
	SetApprovals(ctx context.Context, id domain.OperationID, users []string, actor string) (*domain.Operation, error)
	AddComment(ctx context.Context, id domain.OperationID, actor, body string) (*domain.Operation, error)

	// Queries.
	GetOperation(id domain.OperationID) (*domain.Operation, bool)
	ListOperations(filter store.OperationFilter) []*domain.Operation
	QueryHistory(ctx context.Context, filter history.Filter) ([]domain.HistoryRecord, error)

	// Subscriptions and live streams.
	Subscribe(ctx context.Context, sub domain.Subscription) error
	Unsubscribe(ctx context.Context, sub domain.Subscription) error
	ListSubscriptions(user string) []domain.Subscription
	Watch(user string) *eventbus.Stream
	Unwatch(s *eventbus.Stream)

	// Entity management.
	CreateComponent(ctx context.Context, c *domain.Component) (*domain.Component, error)
	DeleteComponent(ctx context.Context, name string) error
	GetComponent(name string) (*domain.Component, bool)
	ListComponents() []*domain.Component

	CreateTag(ctx context.Context, t *domain.Tag) (*domain.Tag, error)
	DeleteTag(ctx context.Context, name string) error
	GetTag(name string) (*domain.Tag, bool)
	ListTags() []*domain.Tag

	CreateGroup(ctx context.Context, g *domain.Group) (*domain.Group, error)
	DeleteGroup(ctx context.Context, name string) error
	GetGroup(name string) (*domain.Group, bool)
	ListGroups() []*domain.Group

	PutUser(ctx context.Context, u *domain.User) (*domain.User, error)
	GetUser(name string) (*domain.User, bool)

	CreateSink(ctx context.Context, sink *domain.SystemSink) (*domain.SystemSink, error)
	DeleteSink(ctx context.Context, id string) error
	GetSink(id string) (*domain.SystemSink, bool)
	ListSinks() []*domain.SystemSink
}
