package engine

import (
	"context"

	"github.com/jaxxstorm/smokestack/internal/domain"
)

// CreateComponent validates and stores a new component.
func (e *Engine) CreateComponent(ctx context.Context, c *domain.Component) (*domain.Component, error) {
	result, err := e.submit(ctx, func() (interface{}, error) {
		if err := e.guardDegraded(); err != nil {
			return nil, err
		}
		if _, exists := e.store.GetComponent(c.Name); exists {
			return nil, domain.NewErrorf(domain.KindConflict, "component %q already exists", c.Name)
		}
		if err := c.Validate(); err != nil {
			return nil, domain.NewErrorf(domain.KindInvalidInput, "%s", err)
		}
		e.store.PutComponent(c)
		if err := e.commit(); err != nil {
			return nil, err
		}
		clone, _ := e.store.GetComponent(c.Name)
		return clone, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.Component), nil
}

// DeleteComponent removes a component; only permitted when no
// non-terminal operation references it.
func (e *Engine) DeleteComponent(ctx context.Context, name string) error {
	_, err := e.submit(ctx, func() (interface{}, error) {
		if err := e.guardDegraded(); err != nil {
			return nil, err
		}
		for _, op := range e.store.NonTerminalOperations() {
			if op.HasComponent(name) {
				return nil, domain.NewErrorf(domain.KindConflict, "component %q is referenced by non-terminal operation %d", name, op.ID)
			}
		}
		e.store.DeleteComponent(name)
		return nil, e.commit()
	})
	return err
}

// CreateTag validates and stores a new tag.
func (e *Engine) CreateTag(ctx context.Context, t *domain.Tag) (*domain.Tag, error) {
	result, err := e.submit(ctx, func() (interface{}, error) {
		if err := e.guardDegraded(); err != nil {
			return nil, err
		}
		if _, exists := e.store.GetTag(t.Name); exists {
			return nil, domain.NewErrorf(domain.KindConflict, "tag %q already exists", t.Name)
		}
		if err := t.Validate(); err != nil {
			return nil, domain.NewErrorf(domain.KindInvalidInput, "%s", err)
		}
		e.store.PutTag(t)
		if err := e.commit(); err != nil {
			return nil, err
		}
		clone, _ := e.store.GetTag(t.Name)
		return clone, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.Tag), nil
}

// DeleteTag removes a tag; only permitted when no non-terminal
// operation references it.
func (e *Engine) DeleteTag(ctx context.Context, name string) error {
	_, err := e.submit(ctx, func() (interface{}, error) {
		if err := e.guardDegraded(); err != nil {
			return nil, err
		}
		for _, op := range e.store.NonTerminalOperations() {
			if op.HasTag(name) {
				return nil, domain.NewErrorf(domain.KindConflict, "tag %q is referenced by non-terminal operation %d", name, op.ID)
			}
		}
		e.store.DeleteTag(name)
		return nil, e.commit()
	})
	return err
}

// CreateGroup validates and stores a new group.
func (e *Engine) CreateGroup(ctx context.Context, g *domain.Group) (*domain.Group, error) {
	result, err := e.submit(ctx, func() (interface{}, error) {
		if err := e.guardDegraded(); err != nil {
			return nil, err
		}
		if err := g.Validate(); err != nil {
			return nil, domain.NewErrorf(domain.KindInvalidInput, "%s", err)
		}
		e.store.PutGroup(g)
		if err := e.commit(); err != nil {
			return nil, err
		}
		clone, _ := e.store.GetGroup(g.Name)
		return clone, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.Group), nil
}

// DeleteGroup removes a group.
func (e *Engine) DeleteGroup(ctx context.Context, name string) error {
	_, err := e.submit(ctx, func() (interface{}, error) {
		if err := e.guardDegraded(); err != nil {
			return nil, err
		}
		e.store.DeleteGroup(name)
		return nil, e.commit()
	})
	return err
}

// PutUser inserts or replaces a user -- exposed so the facade (or a
// directory sync) can register actors before they appear as operators
// or approvers.
func (e *Engine) PutUser(ctx context.Context, u *domain.User) (*domain.User, error) {
	result, err := e.submit(ctx, func() (interface{}, error) {
		if err := e.guardDegraded(); err != nil {
			return nil, err
		}
		if err := u.Validate(); err != nil {
			return nil, domain.NewErrorf(domain.KindInvalidInput, "%s", err)
		}
		e.store.PutUser(u)
		if err := e.commit(); err != nil {
			return nil, err
		}
		clone, _ := e.store.GetUser(u.Name)
		return clone, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.User), nil
}
