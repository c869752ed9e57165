package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaxxstorm/smokestack/internal/domain"
)

func newOp(id int64, status domain.Status, components, locks []string, deps ...int64) *domain.Operation {
	op := &domain.Operation{
		ID:         domain.OperationID(id),
		Title:      "op",
		Status:     status,
		Components: components,
		Locks:      locks,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	for _, d := range deps {
		op.DependsOn = append(op.DependsOn, domain.OperationID(d))
	}
	return op
}

func TestNextOperationIDIsMonotonic(t *testing.T) {
	s := New()
	first := s.NextOperationID()
	second := s.NextOperationID()
	require.Greater(t, second, first)
}

func TestPutOperationMaintainsIndexes(t *testing.T) {
	s := New()
	s.PutOperation(newOp(1, domain.StatusInProgress, []string{"foo", "bar"}, []string{"bar"}))

	holder, ok := s.ActiveLockHolder("bar")
	require.True(t, ok)
	assert.Equal(t, domain.OperationID(1), holder)

	// Lock table keys fold case.
	holder, ok = s.ActiveLockHolder("BAR")
	require.True(t, ok)
	assert.Equal(t, domain.OperationID(1), holder)

	ops := s.ListOperations(OperationFilter{Component: "foo"})
	require.Len(t, ops, 1)

	ops = s.ListOperations(OperationFilter{Status: domain.StatusInProgress})
	require.Len(t, ops, 1)

	// Completing the operation releases the lock on reindex.
	done := newOp(1, domain.StatusCompleted, []string{"foo", "bar"}, []string{"bar"})
	s.PutOperation(done)
	_, ok = s.ActiveLockHolder("bar")
	assert.False(t, ok)
}

func TestDependentsReverseIndex(t *testing.T) {
	s := New()
	s.PutOperation(newOp(1, domain.StatusInProgress, []string{"foo"}, nil))
	s.PutOperation(newOp(2, domain.StatusPlanned, []string{"foo"}, nil, 1))
	s.PutOperation(newOp(3, domain.StatusPlanned, []string{"foo"}, nil, 1))

	deps := s.Dependents(1)
	assert.ElementsMatch(t, []domain.OperationID{2, 3}, deps)

	// Dropping the dependency removes the reverse edge.
	s.PutOperation(newOp(3, domain.StatusPlanned, []string{"foo"}, nil))
	deps = s.Dependents(1)
	assert.ElementsMatch(t, []domain.OperationID{2}, deps)
}

func TestIntroducesCycle(t *testing.T) {
	s := New()
	s.PutOperation(newOp(1, domain.StatusPlanned, nil, nil))
	s.PutOperation(newOp(2, domain.StatusPlanned, nil, nil, 1))
	s.PutOperation(newOp(3, domain.StatusPlanned, nil, nil, 2))

	// 1 -> 3 closes the loop 3 -> 2 -> 1.
	assert.True(t, s.IntroducesCycle(1, []domain.OperationID{3}))
	assert.False(t, s.IntroducesCycle(1, nil))
	assert.True(t, s.IntroducesCycle(1, []domain.OperationID{1}))

	// A terminal node breaks the path.
	s.PutOperation(newOp(2, domain.StatusCompleted, nil, nil, 1))
	assert.False(t, s.IntroducesCycle(1, []domain.OperationID{3}))
}

func TestListOperationsTimeWindow(t *testing.T) {
	s := New()

	early := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	late := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	op := newOp(1, domain.StatusCompleted, []string{"foo"}, nil)
	op.StartsAt = &early
	endedAt := early.Add(time.Hour)
	op.EndsAt = &endedAt
	s.PutOperation(op)

	from := late
	require.Empty(t, s.ListOperations(OperationFilter{From: &from}))

	to := early.Add(30 * time.Minute)
	require.Len(t, s.ListOperations(OperationFilter{To: &to}), 1)

	before := early.Add(-time.Hour)
	require.Empty(t, s.ListOperations(OperationFilter{To: &before}))
}

func TestSubscriptionMatchingDeduplicates(t *testing.T) {
	s := New()
	op := newOp(7, domain.StatusPlanned, []string{"foo"}, nil)
	op.Tags = []string{"security"}
	s.PutOperation(op)

	s.AddSubscription(domain.Subscription{Subscriber: "alice",
		Selector: domain.Selector{Kind: domain.SelectorComponent, Value: "foo"}})
	s.AddSubscription(domain.Subscription{Subscriber: "alice",
		Selector: domain.Selector{Kind: domain.SelectorTag, Value: "security"}})
	s.AddSubscription(domain.Subscription{Subscriber: "bob",
		Selector: domain.Selector{Kind: domain.SelectorOperation, OperationID: 7}})
	s.AddSubscription(domain.Subscription{Subscriber: "carol",
		Selector: domain.Selector{Kind: domain.SelectorComponent, Value: "other"}})

	users := s.MatchingSubscribers(op)
	assert.ElementsMatch(t, []string{"alice", "bob"}, users)
}

func TestAddSubscriptionIsIdempotent(t *testing.T) {
	s := New()
	sub := domain.Subscription{Subscriber: "alice",
		Selector: domain.Selector{Kind: domain.SelectorComponent, Value: "foo"}}
	s.AddSubscription(sub)
	s.AddSubscription(sub)
	require.Len(t, s.ListSubscriptions("alice"), 1)

	s.RemoveSubscription(sub)
	require.Empty(t, s.ListSubscriptions("alice"))
	s.RemoveSubscription(sub)
}

func TestComponentKeysFoldCase(t *testing.T) {
	s := New()
	s.PutComponent(&domain.Component{Name: "Foo"})

	c, ok := s.GetComponent("foo")
	require.True(t, ok)
	assert.Equal(t, "Foo", c.Name)

	// Replacing under a differently-cased name overwrites, not duplicates.
	s.PutComponent(&domain.Component{Name: "FOO", Description: "updated"})
	require.Len(t, s.ListComponents(), 1)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	s := New()
	s.PutComponent(&domain.Component{Name: "foo"})
	s.PutTag(&domain.Tag{Name: "security"})
	s.PutUser(&domain.User{Name: "alice", Kind: domain.UserHuman})
	s.PutGroup(&domain.Group{Name: "sre", Members: []string{"alice"}})
	s.PutOperation(newOp(1, domain.StatusInProgress, []string{"foo"}, []string{"foo"}))
	s.AddSubscription(domain.Subscription{Subscriber: "alice",
		Selector: domain.Selector{Kind: domain.SelectorComponent, Value: "foo"}})
	_ = s.NextOperationID()

	snap := s.Snapshot()

	restored := New()
	restored.Restore(snap)

	op, ok := restored.GetOperation(1)
	require.True(t, ok)
	assert.Equal(t, domain.StatusInProgress, op.Status)

	// Indexes are rebuilt, including the active-lock table.
	holder, ok := restored.ActiveLockHolder("foo")
	require.True(t, ok)
	assert.Equal(t, domain.OperationID(1), holder)

	// The counter survives, so ids keep advancing past restored state.
	next := restored.NextOperationID()
	assert.Greater(t, int64(next), int64(1))

	require.Len(t, restored.ListSubscriptions("alice"), 1)
}

func TestReadsReturnClones(t *testing.T) {
	s := New()
	s.PutOperation(newOp(1, domain.StatusPlanned, []string{"foo"}, nil))

	op, _ := s.GetOperation(1)
	op.Components[0] = "mutated"

	fresh, _ := s.GetOperation(1)
	assert.Equal(t, "foo", fresh.Components[0])
}
