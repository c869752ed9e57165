// Package admission implements the Admission Controller: the
// predicate evaluator consulted before every mutation the Transition
// Engine would otherwise commit. It never mutates the store; every
// method here is safe to call from a read-locked context and returns a
// *domain.CoreError naming the first failing predicate, in a fixed
// order.
package admission

import (
	"time"

	"github.com/jaxxstorm/smokestack/internal/domain"
	"github.com/jaxxstorm/smokestack/internal/store"
)

// Controller evaluates admission predicates against a Store.
type Controller struct {
	store      *store.Store
	adminGroup string
}

// New builds a Controller. adminGroup names the group whose members may
// perform destructive actions (cancel/abort) on another user's operation.
func New(s *store.Store, adminGroup string) *Controller {
	return &Controller{store: s, adminGroup: adminGroup}
}

// AdminGroup returns the configured admin group name.
func (c *Controller) AdminGroup() string { return c.adminGroup }

// TransitionRequest is the input to CheckTransition.
type TransitionRequest struct {
	Operation *domain.Operation
	To        domain.Status
	Actor     string
}

// CheckTransition evaluates authorization, transition legality, the
// dependency gate, the approval gate and the lock gate in that order,
// returning the first failure or nil if the transition is admitted.
func (c *Controller) CheckTransition(req TransitionRequest) error {
	op := req.Operation

	if err := c.checkAuthorization(op, req.To, req.Actor); err != nil {
		return err
	}

	if _, ok := domain.TriggerFor(op.Status, req.To); !ok {
		return domain.NewErrorf(domain.KindInvalidTransition,
			"cannot transition from %s to %s", op.Status, req.To).
			WithDetails(map[string]interface{}{"from": string(op.Status), "to": string(req.To)})
	}

	enteringInProgress := req.To == domain.StatusInProgress && op.Status == domain.StatusPlanned

	if enteringInProgress {
		if err := c.checkDependencies(op); err != nil {
			return err
		}
		if err := c.checkApprovals(op); err != nil {
			return err
		}
	}

	if req.To == domain.StatusInProgress || req.To == domain.StatusPaused {
		if err := c.checkLocks(op); err != nil {
			return err
		}
	}

	return nil
}

func (c *Controller) checkAuthorization(op *domain.Operation, to domain.Status, actor string) error {
	if op.IsOperator(actor) {
		return nil
	}
	for _, name := range op.Components {
		if comp, ok := c.store.GetComponent(name); ok && containsString(comp.Owners, actor) {
			return nil
		}
	}
	destructive := to == domain.StatusCanceled || to == domain.StatusAborted
	if destructive {
		if user, ok := c.store.GetUser(actor); ok && user.InGroup(c.adminGroup) {
			return nil
		}
	}
	return domain.NewErrorf(domain.KindUnauthorized,
		"%s is not an operator of operation %d, an owner of any of its components, or an admin", actor, op.ID)
}

// checkDependencies gates leaving planned on every dependency having
// completed.
func (c *Controller) checkDependencies(op *domain.Operation) error {
	for _, depID := range op.DependsOn {
		dep, ok := c.store.GetOperation(depID)
		if !ok {
			return domain.NewErrorf(domain.KindInvalidInput, "depends_on references unknown operation %d", depID)
		}
		switch dep.Status {
		case domain.StatusCompleted:
			continue
		case domain.StatusAborted, domain.StatusCanceled:
			return domain.NewErrorf(domain.KindDependencyUnsatisfiable,
				"dependency %d is %s and can never complete", depID, dep.Status).
				WithDetails(map[string]interface{}{"dependency": int64(depID), "status": string(dep.Status)})
		default:
			return domain.NewErrorf(domain.KindDependencyPending,
				"dependency %d is still %s", depID, dep.Status).
				WithDetails(map[string]interface{}{"dependency": int64(depID), "status": string(dep.Status)})
		}
	}
	return nil
}

// checkApprovals enforces the approval quorum of every component and
// tag the operation touches.
func (c *Controller) checkApprovals(op *domain.Operation) error {
	for _, name := range op.Components {
		comp, ok := c.store.GetComponent(name)
		if !ok || !comp.RequiresApproval() {
			continue
		}
		if err := c.checkQuorum("component", name, comp.RequiresApprovalBy, comp.RequiredApprovals, op); err != nil {
			return err
		}
	}
	for _, name := range op.Tags {
		tag, ok := c.store.GetTag(name)
		if !ok || !tag.RequiresApproval() {
			continue
		}
		if err := c.checkQuorum("tag", name, tag.RequiresApprovalBy, tag.RequiredApprovals, op); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) checkQuorum(scope, name, group string, need int, op *domain.Operation) error {
	have := 0
	for _, approver := range op.ApprovedBy {
		if user, ok := c.store.GetUser(approver); ok && user.InGroup(group) {
			have++
		}
	}
	if have < need {
		return domain.NewErrorf(domain.KindNeedsApproval,
			"%s %q requires %d approval(s) from %s, have %d", scope, name, need, group, have).
			WithDetails(map[string]interface{}{
				"scope": scope,
				"name":  name,
				"group": group,
				"have":  have,
				"need":  need,
			})
	}
	return nil
}

// checkLocks enforces the exclusion locks in both directions: a locker
// blocks all same-component work, and in-flight work blocks a locker.
func (c *Controller) checkLocks(op *domain.Operation) error {
	for _, locked := range op.Locks {
		if holder, ok := c.store.ActiveLockHolder(locked); ok && holder != op.ID {
			return lockConflict(holder, locked)
		}
		for _, other := range c.store.NonTerminalOperations() {
			if other.ID == op.ID || !other.Status.IsActive() {
				continue
			}
			if other.HasComponent(locked) {
				return lockConflict(other.ID, locked)
			}
		}
	}
	for _, comp := range op.Components {
		if holder, ok := c.store.ActiveLockHolder(comp); ok && holder != op.ID {
			return lockConflict(holder, comp)
		}
	}
	return nil
}

func lockConflict(holder domain.OperationID, component string) error {
	return domain.NewErrorf(domain.KindLockConflict,
		"component %q is locked by operation %d", component, holder).
		WithDetails(map[string]interface{}{"op": int64(holder), "component": component})
}

// EditRequest is the input to CheckEdit.
type EditRequest struct {
	Current  *domain.Operation
	Proposed *domain.Operation
	Actor    string
}

// CheckEdit validates edit requests: no
// cycle introduced, locks subset of components, starts_at <= ends_at,
// referenced entities exist, and the schedule-vs-dependency check.
func (c *Controller) CheckEdit(req EditRequest) error {
	cur, prop := req.Current, req.Proposed

	if !cur.IsOperator(req.Actor) && !c.ownsAnyComponent(prop, req.Actor) {
		if user, ok := c.store.GetUser(req.Actor); !ok || !user.InGroup(c.adminGroup) {
			return domain.NewErrorf(domain.KindUnauthorized, "%s may not edit operation %d", req.Actor, cur.ID)
		}
	}

	if err := prop.Validate(); err != nil {
		return domain.NewErrorf(domain.KindInvalidInput, "%s", err)
	}

	for _, name := range prop.Components {
		if _, ok := c.store.GetComponent(name); !ok {
			return domain.NewErrorf(domain.KindInvalidInput, "unknown component %q", name)
		}
	}
	for _, name := range prop.Tags {
		if _, ok := c.store.GetTag(name); !ok {
			return domain.NewErrorf(domain.KindInvalidInput, "unknown tag %q", name)
		}
	}
	for _, name := range prop.Operators {
		if _, ok := c.store.GetUser(name); !ok {
			return domain.NewErrorf(domain.KindInvalidInput, "unknown user %q", name)
		}
	}

	if c.store.IntroducesCycle(prop.ID, prop.DependsOn) {
		return domain.NewError(domain.KindCycleDetected, "edit would introduce a dependency cycle")
	}

	if err := c.checkScheduleAgainstDependencies(prop); err != nil {
		return err
	}

	return nil
}

func (c *Controller) ownsAnyComponent(op *domain.Operation, actor string) bool {
	for _, name := range op.Components {
		if comp, ok := c.store.GetComponent(name); ok && containsString(comp.Owners, actor) {
			return true
		}
	}
	return false
}

// checkScheduleAgainstDependencies rejects a starts_at that precedes
// the latest known ends_at among the operation's dependencies.
func (c *Controller) checkScheduleAgainstDependencies(op *domain.Operation) error {
	if op.StartsAt == nil {
		return nil
	}
	var latest *time.Time
	for _, depID := range op.DependsOn {
		dep, ok := c.store.GetOperation(depID)
		if !ok || dep.EndsAt == nil {
			continue
		}
		if latest == nil || dep.EndsAt.After(*latest) {
			latest = dep.EndsAt
		}
	}
	if latest != nil && op.StartsAt.Before(*latest) {
		return domain.NewErrorf(domain.KindScheduleConflictWithDependency,
			"starts_at %s precedes dependency end %s", op.StartsAt.Format(time.RFC3339), latest.Format(time.RFC3339)).
			WithDetails(map[string]interface{}{
				"starts_at":          op.StartsAt.Format(time.RFC3339),
				"dependency_ends_at": latest.Format(time.RFC3339),
			})
	}
	return nil
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
