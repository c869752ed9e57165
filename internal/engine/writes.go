package engine

import (
	"context"

	"github.com/jaxxstorm/smokestack/internal/admission"
	"github.com/jaxxstorm/smokestack/internal/domain"
)

// Create admits and commits a new operation from desc, acting as actor.
// The creator and every listed operator are auto-subscribed to the new
// operation; the creator is also subscribed to its dependencies.
func (e *Engine) Create(ctx context.Context, desc *domain.OperationDescription, actor string) (*domain.Operation, error) {
	result, err := e.submit(ctx, func() (interface{}, error) {
		if err := e.guardDegraded(); err != nil {
			return nil, err
		}
		op, err := desc.ToOperation()
		if err != nil {
			return nil, domain.NewErrorf(domain.KindInvalidInput, "%s", err)
		}
		for _, name := range op.Components {
			if _, ok := e.store.GetComponent(name); !ok {
				return nil, domain.NewErrorf(domain.KindInvalidInput, "unknown component %q", name)
			}
		}
		for _, name := range op.Tags {
			if _, ok := e.store.GetTag(name); !ok {
				return nil, domain.NewErrorf(domain.KindInvalidInput, "unknown tag %q", name)
			}
		}
		if e.store.IntroducesCycle(0, op.DependsOn) {
			return nil, domain.NewError(domain.KindCycleDetected, "depends_on would introduce a dependency cycle")
		}

		op.ID = e.store.NextOperationID()
		op.CreatedAt, op.UpdatedAt = now(), now()
		op.Version = 1
		if !op.IsOperator(actor) {
			op.Operators = append(op.Operators, actor)
		}
		e.store.PutOperation(op)

		e.autoSubscribe(actor, op.ID)
		for _, operator := range op.Operators {
			e.autoSubscribe(operator, op.ID)
		}
		for _, dep := range op.DependsOn {
			e.autoSubscribe(actor, dep)
		}

		if err := e.commit(); err != nil {
			return nil, err
		}

		clone, _ := e.store.GetOperation(op.ID)
		e.publish(&domain.Event{Kind: domain.EventCreated, Timestamp: now(), Actor: actor, Operation: clone})
		return clone, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.Operation), nil
}

func (e *Engine) autoSubscribe(user string, opID domain.OperationID) {
	e.store.AddSubscription(domain.Subscription{
		Subscriber: user,
		Selector:   domain.Selector{Kind: domain.SelectorOperation, OperationID: opID},
	})
}

// Edit applies mutable-field changes to an operation. Terminal
// operations only accept annotation changes; EditAnnotations handles
// that path separately. expectedVersion, when non-zero, must match the
// operation's current version or the edit is rejected as a concurrent
// modification.
func (e *Engine) Edit(ctx context.Context, id domain.OperationID, expectedVersion int, mutate func(*domain.Operation), actor string) (*domain.Operation, error) {
	result, err := e.submit(ctx, func() (interface{}, error) {
		if err := e.guardDegraded(); err != nil {
			return nil, err
		}
		current, ok := e.store.GetOperation(id)
		if !ok {
			return nil, domain.NewErrorf(domain.KindNotFound, "operation %d not found", id)
		}
		if current.Status.IsTerminal() {
			return nil, domain.NewErrorf(domain.KindInvalidInput, "operation %d is terminal; only annotation edits are allowed", id)
		}
		if expectedVersion != 0 && current.Version != expectedVersion {
			return nil, domain.NewErrorf(domain.KindConflict,
				"operation %d is at version %d, edit expected version %d", id, current.Version, expectedVersion)
		}

		proposed := current.Clone()
		mutate(proposed)
		proposed.Version = current.Version

		if err := e.admission.CheckEdit(admission.EditRequest{Current: current, Proposed: proposed, Actor: actor}); err != nil {
			return nil, err
		}

		proposed.UpdatedAt = now()
		proposed.Version++
		e.store.PutOperation(proposed)

		for _, dep := range proposed.DependsOn {
			e.autoSubscribe(actor, dep)
		}

		if err := e.commit(); err != nil {
			return nil, err
		}

		clone, _ := e.store.GetOperation(id)
		e.publish(&domain.Event{Kind: domain.EventEdited, Timestamp: now(), Actor: actor, Operation: clone})
		return clone, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.Operation), nil
}

// EditAnnotations updates only Annotations, skipping the full edit
// predicate set -- valid on terminal operations too.
func (e *Engine) EditAnnotations(ctx context.Context, id domain.OperationID, annotations map[string]string, actor string) (*domain.Operation, error) {
	result, err := e.submit(ctx, func() (interface{}, error) {
		if err := e.guardDegraded(); err != nil {
			return nil, err
		}
		current, ok := e.store.GetOperation(id)
		if !ok {
			return nil, domain.NewErrorf(domain.KindNotFound, "operation %d not found", id)
		}
		if !current.IsOperator(actor) {
			if user, ok := e.store.GetUser(actor); !ok || !user.InGroup(e.adminGroupName()) {
				return nil, domain.NewErrorf(domain.KindUnauthorized, "%s may not edit operation %d", actor, id)
			}
		}
		current.Annotations = annotations
		current.UpdatedAt = now()
		current.Version++
		e.store.PutOperation(current)

		if err := e.commit(); err != nil {
			return nil, err
		}
		clone, _ := e.store.GetOperation(id)
		e.publish(&domain.Event{Kind: domain.EventEdited, Timestamp: now(), Actor: actor, Operation: clone})
		return clone, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.Operation), nil
}

// Transition drives the state machine: admit, apply, append
// history, commit the snapshot and publish a status_changed event,
// atomically.
func (e *Engine) Transition(ctx context.Context, id domain.OperationID, to domain.Status, actor, note string) (*domain.Operation, error) {
	result, err := e.submit(ctx, func() (interface{}, error) {
		if err := e.guardDegraded(); err != nil {
			return nil, err
		}
		op, ok := e.store.GetOperation(id)
		if !ok {
			return nil, domain.NewErrorf(domain.KindNotFound, "operation %d not found", id)
		}

		if err := e.admission.CheckTransition(admission.TransitionRequest{Operation: op, To: to, Actor: actor}); err != nil {
			if ce, ok := err.(*domain.CoreError); ok {
				e.metrics.ObserveDenial(string(ce.Kind))
			}
			return nil, err
		}

		from := op.Status
		op.Status = to
		op.UpdatedAt = now()
		op.Version++

		if to == domain.StatusInProgress && (op.StartsAt == nil || op.StartsAt.After(now())) {
			t := now()
			op.StartsAt = &t
		}
		if to.IsTerminal() && (from == domain.StatusInProgress || from == domain.StatusPaused) {
			t := now()
			op.EndsAt = &t
		}

		e.store.PutOperation(op)

		seq := e.history.NextSeq(id)
		rec := domain.HistoryRecord{
			OpID: id, Seq: seq, Timestamp: now(), Actor: actor,
			From: from, To: to, Note: note,
			Components: op.Components, Tags: op.Tags,
		}
		if err := e.history.Append(ctx, rec); err != nil {
			return nil, domain.NewErrorf(domain.KindInternal, "history append failed: %v", err)
		}

		if err := e.commit(); err != nil {
			return nil, err
		}

		e.metrics.ObserveTransition(string(to))

		clone, _ := e.store.GetOperation(id)
		e.publish(&domain.Event{Kind: domain.EventStatusChanged, Timestamp: now(), Actor: actor, Operation: clone, From: from, To: to})
		return clone, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.Operation), nil
}

// Approve appends actor to approved_by, idempotently.
func (e *Engine) Approve(ctx context.Context, id domain.OperationID, actor string) (*domain.Operation, error) {
	result, err := e.submit(ctx, func() (interface{}, error) {
		if err := e.guardDegraded(); err != nil {
			return nil, err
		}
		op, ok := e.store.GetOperation(id)
		if !ok {
			return nil, domain.NewErrorf(domain.KindNotFound, "operation %d not found", id)
		}
		if !op.HasApprover(actor) {
			op.ApprovedBy = append(op.ApprovedBy, actor)
			op.UpdatedAt = now()
			op.Version++
			e.store.PutOperation(op)
			if err := e.commit(); err != nil {
				return nil, err
			}
		}
		clone, _ := e.store.GetOperation(id)
		e.publish(&domain.Event{Kind: domain.EventApproved, Timestamp: now(), Actor: actor, Operation: clone})
		return clone, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.Operation), nil
}

// SetApprovals replaces approved_by wholesale, bypassing the normal
// append -- the path an external PR synchronizer uses. actor is the
// synchronizer identity carried on the approved event; the facade
// handler logs the replacement with source=external, and no history
// record is written here.
func (e *Engine) SetApprovals(ctx context.Context, id domain.OperationID, users []string, actor string) (*domain.Operation, error) {
	result, err := e.submit(ctx, func() (interface{}, error) {
		if err := e.guardDegraded(); err != nil {
			return nil, err
		}
		op, ok := e.store.GetOperation(id)
		if !ok {
			return nil, domain.NewErrorf(domain.KindNotFound, "operation %d not found", id)
		}
		op.ApprovedBy = append([]string(nil), users...)
		op.UpdatedAt = now()
		op.Version++
		e.store.PutOperation(op)
		if err := e.commit(); err != nil {
			return nil, err
		}
		clone, _ := e.store.GetOperation(id)
		e.publish(&domain.Event{Kind: domain.EventApproved, Timestamp: now(), Actor: actor, Operation: clone})
		return clone, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.Operation), nil
}

// AddComment appends a Comment and emits a commented event.
func (e *Engine) AddComment(ctx context.Context, id domain.OperationID, actor, body string) (*domain.Operation, error) {
	result, err := e.submit(ctx, func() (interface{}, error) {
		if err := e.guardDegraded(); err != nil {
			return nil, err
		}
		op, ok := e.store.GetOperation(id)
		if !ok {
			return nil, domain.NewErrorf(domain.KindNotFound, "operation %d not found", id)
		}
		comment := domain.Comment{Seq: len(op.Comments) + 1, Actor: actor, Body: body, Timestamp: now()}
		op.Comments = append(op.Comments, comment)
		op.UpdatedAt = now()
		op.Version++
		e.store.PutOperation(op)
		if err := e.commit(); err != nil {
			return nil, err
		}
		clone, _ := e.store.GetOperation(id)
		e.publish(&domain.Event{Kind: domain.EventCommented, Timestamp: now(), Actor: actor, Operation: clone, Comment: &comment})
		return clone, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.Operation), nil
}

// Subscribe adds sub, idempotently.
func (e *Engine) Subscribe(ctx context.Context, sub domain.Subscription) error {
	_, err := e.submit(ctx, func() (interface{}, error) {
		if err := e.guardDegraded(); err != nil {
			return nil, err
		}
		if err := sub.Selector.Validate(); err != nil {
			return nil, domain.NewErrorf(domain.KindInvalidInput, "%s", err)
		}
		e.store.AddSubscription(sub)
		return nil, e.commit()
	})
	return err
}

// Unsubscribe removes sub, idempotently.
func (e *Engine) Unsubscribe(ctx context.Context, sub domain.Subscription) error {
	_, err := e.submit(ctx, func() (interface{}, error) {
		if err := e.guardDegraded(); err != nil {
			return nil, err
		}
		e.store.RemoveSubscription(sub)
		return nil, e.commit()
	})
	return err
}

func (e *Engine) adminGroupName() string {
	return e.admission.AdminGroup()
}
