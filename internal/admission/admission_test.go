package admission_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaxxstorm/smokestack/internal/admission"
	"github.com/jaxxstorm/smokestack/internal/domain"
	"github.com/jaxxstorm/smokestack/internal/store"
)

func fixture(t *testing.T) (*store.Store, *admission.Controller) {
	t.Helper()
	s := store.New()
	c := admission.New(s, "admins")

	s.PutComponent(&domain.Component{Name: "foo"})
	s.PutComponent(&domain.Component{Name: "bar"})
	s.PutUser(&domain.User{Name: "alice", Kind: domain.UserHuman})
	s.PutUser(&domain.User{Name: "root", Kind: domain.UserHuman, Groups: []string{"admins"}})
	return s, c
}

func planned(id int64, operator string, components []string, deps ...int64) *domain.Operation {
	op := &domain.Operation{
		ID:         domain.OperationID(id),
		Title:      "op",
		Status:     domain.StatusPlanned,
		Components: components,
		Operators:  []string{operator},
	}
	for _, d := range deps {
		op.DependsOn = append(op.DependsOn, domain.OperationID(d))
	}
	return op
}

func kindOf(t *testing.T, err error) domain.Kind {
	t.Helper()
	require.Error(t, err)
	ce, ok := err.(*domain.CoreError)
	require.True(t, ok, "expected *domain.CoreError, got %T", err)
	return ce.Kind
}

func TestTransitionAuthorization(t *testing.T) {
	s, c := fixture(t)
	op := planned(1, "alice", []string{"foo"})
	s.PutOperation(op)

	// A stranger may not start someone else's operation.
	err := c.CheckTransition(admission.TransitionRequest{Operation: op, To: domain.StatusInProgress, Actor: "mallory"})
	assert.Equal(t, domain.KindUnauthorized, kindOf(t, err))

	// The operator may.
	require.NoError(t, c.CheckTransition(admission.TransitionRequest{Operation: op, To: domain.StatusInProgress, Actor: "alice"}))

	// A component owner may.
	s.PutComponent(&domain.Component{Name: "foo", Owners: []string{"owen"}})
	require.NoError(t, c.CheckTransition(admission.TransitionRequest{Operation: op, To: domain.StatusInProgress, Actor: "owen"}))

	// An admin may cancel, but not start, another user's operation.
	require.NoError(t, c.CheckTransition(admission.TransitionRequest{Operation: op, To: domain.StatusCanceled, Actor: "root"}))
	err = c.CheckTransition(admission.TransitionRequest{Operation: op, To: domain.StatusInProgress, Actor: "root"})
	assert.Equal(t, domain.KindUnauthorized, kindOf(t, err))
}

func TestTransitionLegality(t *testing.T) {
	s, c := fixture(t)
	op := planned(1, "alice", []string{"foo"})
	s.PutOperation(op)

	err := c.CheckTransition(admission.TransitionRequest{Operation: op, To: domain.StatusCompleted, Actor: "alice"})
	assert.Equal(t, domain.KindInvalidTransition, kindOf(t, err))
}

func TestDependencyGate(t *testing.T) {
	s, c := fixture(t)

	dep := planned(1, "alice", []string{"foo"})
	dep.Status = domain.StatusInProgress
	s.PutOperation(dep)

	op := planned(2, "alice", []string{"bar"}, 1)
	s.PutOperation(op)

	err := c.CheckTransition(admission.TransitionRequest{Operation: op, To: domain.StatusInProgress, Actor: "alice"})
	assert.Equal(t, domain.KindDependencyPending, kindOf(t, err))

	dep.Status = domain.StatusAborted
	s.PutOperation(dep)
	err = c.CheckTransition(admission.TransitionRequest{Operation: op, To: domain.StatusInProgress, Actor: "alice"})
	assert.Equal(t, domain.KindDependencyUnsatisfiable, kindOf(t, err))

	dep.Status = domain.StatusCompleted
	s.PutOperation(dep)
	require.NoError(t, c.CheckTransition(admission.TransitionRequest{Operation: op, To: domain.StatusInProgress, Actor: "alice"}))
}

func TestApprovalGate(t *testing.T) {
	s, c := fixture(t)

	s.PutGroup(&domain.Group{Name: "sre", Members: []string{"alice", "bob"}})
	s.PutUser(&domain.User{Name: "alice", Kind: domain.UserHuman, Groups: []string{"sre"}})
	s.PutUser(&domain.User{Name: "bob", Kind: domain.UserHuman, Groups: []string{"sre"}})
	s.PutUser(&domain.User{Name: "charlie", Kind: domain.UserHuman})
	s.PutComponent(&domain.Component{Name: "foo", RequiresApprovalBy: "sre", RequiredApprovals: 2})

	op := planned(1, "charlie", []string{"foo"})
	s.PutOperation(op)

	err := c.CheckTransition(admission.TransitionRequest{Operation: op, To: domain.StatusInProgress, Actor: "charlie"})
	require.Equal(t, domain.KindNeedsApproval, kindOf(t, err))
	ce := err.(*domain.CoreError)
	assert.Equal(t, 0, ce.Details["have"])
	assert.Equal(t, 2, ce.Details["need"])

	// Approvals outside the group don't count toward the quorum.
	op.ApprovedBy = []string{"charlie", "alice"}
	err = c.CheckTransition(admission.TransitionRequest{Operation: op, To: domain.StatusInProgress, Actor: "charlie"})
	require.Equal(t, domain.KindNeedsApproval, kindOf(t, err))
	assert.Equal(t, 1, err.(*domain.CoreError).Details["have"])

	op.ApprovedBy = []string{"alice", "bob"}
	require.NoError(t, c.CheckTransition(admission.TransitionRequest{Operation: op, To: domain.StatusInProgress, Actor: "charlie"}))
}

func TestLockGateBothDirections(t *testing.T) {
	s, c := fixture(t)

	// An in-flight locker of bar blocks new work touching bar.
	locker := planned(1, "alice", []string{"foo", "bar"})
	locker.Locks = []string{"bar"}
	locker.Status = domain.StatusInProgress
	s.PutOperation(locker)

	blocked := planned(2, "bob", []string{"bar"})
	s.PutOperation(blocked)

	err := c.CheckTransition(admission.TransitionRequest{Operation: blocked, To: domain.StatusInProgress, Actor: "bob"})
	require.Equal(t, domain.KindLockConflict, kindOf(t, err))
	ce := err.(*domain.CoreError)
	assert.Equal(t, int64(1), ce.Details["op"])
	assert.Equal(t, "bar", ce.Details["component"])

	// The other direction: in-flight plain work on foo blocks a new
	// operation that wants to lock foo.
	s = store.New()
	c = admission.New(s, "admins")
	s.PutComponent(&domain.Component{Name: "foo"})

	inflight := planned(3, "alice", []string{"foo"})
	inflight.Status = domain.StatusInProgress
	s.PutOperation(inflight)

	wantsLock := planned(4, "bob", []string{"foo"})
	wantsLock.Locks = []string{"foo"}
	s.PutOperation(wantsLock)

	err = c.CheckTransition(admission.TransitionRequest{Operation: wantsLock, To: domain.StatusInProgress, Actor: "bob"})
	assert.Equal(t, domain.KindLockConflict, kindOf(t, err))
}

func TestCheckEditRejectsCycle(t *testing.T) {
	s, c := fixture(t)

	a := planned(1, "alice", []string{"foo"}, 2)
	b := planned(2, "alice", []string{"foo"})
	s.PutOperation(a)
	s.PutOperation(b)

	proposed := b.Clone()
	proposed.DependsOn = []domain.OperationID{1}

	err := c.CheckEdit(admission.EditRequest{Current: b, Proposed: proposed, Actor: "alice"})
	assert.Equal(t, domain.KindCycleDetected, kindOf(t, err))
}

func TestCheckEditScheduleConflict(t *testing.T) {
	s, c := fixture(t)

	depEnd := time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC)
	dep := planned(1, "alice", []string{"foo"})
	dep.Status = domain.StatusCompleted
	dep.EndsAt = &depEnd
	s.PutOperation(dep)

	op := planned(2, "alice", []string{"bar"}, 1)
	s.PutOperation(op)

	proposed := op.Clone()
	start := depEnd.Add(-time.Hour)
	end := depEnd.Add(time.Hour)
	proposed.StartsAt = &start
	proposed.EndsAt = &end

	err := c.CheckEdit(admission.EditRequest{Current: op, Proposed: proposed, Actor: "alice"})
	assert.Equal(t, domain.KindScheduleConflictWithDependency, kindOf(t, err))

	// Starting after the dependency's end is fine.
	okStart := depEnd.Add(time.Minute)
	proposed.StartsAt = &okStart
	require.NoError(t, c.CheckEdit(admission.EditRequest{Current: op, Proposed: proposed, Actor: "alice"}))
}

func TestCheckEditValidatesReferences(t *testing.T) {
	s, c := fixture(t)

	op := planned(1, "alice", []string{"foo"})
	s.PutOperation(op)

	proposed := op.Clone()
	proposed.Components = []string{"nope"}
	err := c.CheckEdit(admission.EditRequest{Current: op, Proposed: proposed, Actor: "alice"})
	assert.Equal(t, domain.KindInvalidInput, kindOf(t, err))

	proposed = op.Clone()
	proposed.Locks = []string{"bar"} // not in components
	err = c.CheckEdit(admission.EditRequest{Current: op, Proposed: proposed, Actor: "alice"})
	assert.Equal(t, domain.KindInvalidInput, kindOf(t, err))
}
