package store

import "github.com/jaxxstorm/smokestack/internal/domain"

// The methods in this file mutate the store. They are called only from
// internal/engine's single writer goroutine; nothing here takes its own
// lock across multiple calls, so callers must not interleave these with
// concurrent writes. Each still takes the store's mutex for the benefit
// of concurrent readers.

// PutOperation inserts or replaces op and reindexes it.
func (s *Store) PutOperation(op *domain.Operation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unindexOperationLocked(op.ID)
	s.operations[op.ID] = op.Clone()
	s.indexOperationLocked(op)
}

func (s *Store) unindexOperationLocked(id domain.OperationID) {
	old, ok := s.operations[id]
	if !ok {
		return
	}
	if set, ok := s.byStatus[old.Status]; ok {
		delete(set, id)
	}
	for _, c := range old.Components {
		if set, ok := s.byComponent[domain.FoldName(c)]; ok {
			delete(set, id)
		}
	}
	for _, t := range old.Tags {
		if set, ok := s.byTag[domain.FoldName(t)]; ok {
			delete(set, id)
		}
	}
	for c, holder := range s.activeLocks {
		if holder == id {
			delete(s.activeLocks, c)
		}
	}
	for _, dep := range old.DependsOn {
		if set, ok := s.dependents[dep]; ok {
			delete(set, id)
		}
	}
}

func (s *Store) indexOperationLocked(op *domain.Operation) {
	if s.byStatus[op.Status] == nil {
		s.byStatus[op.Status] = make(map[domain.OperationID]struct{})
	}
	s.byStatus[op.Status][op.ID] = struct{}{}

	for _, c := range op.Components {
		key := domain.FoldName(c)
		if s.byComponent[key] == nil {
			s.byComponent[key] = make(map[domain.OperationID]struct{})
		}
		s.byComponent[key][op.ID] = struct{}{}
	}
	for _, t := range op.Tags {
		key := domain.FoldName(t)
		if s.byTag[key] == nil {
			s.byTag[key] = make(map[domain.OperationID]struct{})
		}
		s.byTag[key][op.ID] = struct{}{}
	}
	if op.Status.IsActive() {
		for _, c := range op.Locks {
			s.activeLocks[domain.FoldName(c)] = op.ID
		}
	}
	for _, dep := range op.DependsOn {
		if s.dependents[dep] == nil {
			s.dependents[dep] = make(map[domain.OperationID]struct{})
		}
		s.dependents[dep][op.ID] = struct{}{}
	}
}

// DeleteOperation removes op entirely from the store and its indexes.
// Operations are never deleted through the API surface, but the hook
// exists for snapshot-load idempotency and tests.
func (s *Store) DeleteOperation(id domain.OperationID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unindexOperationLocked(id)
	delete(s.operations, id)
}

// PutComponent inserts or replaces a component. Keys are case-folded,
// so "Foo" replaces "foo".
func (s *Store) PutComponent(c *domain.Component) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *c
	clone.Owners = append([]string(nil), c.Owners...)
	s.components[domain.FoldName(c.Name)] = &clone
}

// DeleteComponent removes a component. The caller enforces that no
// non-terminal operation still references it.
func (s *Store) DeleteComponent(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.components, domain.FoldName(name))
}

// PutTag inserts or replaces a tag.
func (s *Store) PutTag(t *domain.Tag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *t
	s.tags[domain.FoldName(t.Name)] = &clone
}

// DeleteTag removes a tag.
func (s *Store) DeleteTag(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tags, domain.FoldName(name))
}

// PutUser inserts or replaces a user.
func (s *Store) PutUser(u *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *u
	clone.Groups = append([]string(nil), u.Groups...)
	s.users[u.Name] = &clone
}

// PutGroup inserts or replaces a group.
func (s *Store) PutGroup(g *domain.Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *g
	clone.Members = append([]string(nil), g.Members...)
	s.groups[domain.FoldName(g.Name)] = &clone
}

// DeleteGroup removes a group.
func (s *Store) DeleteGroup(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups, domain.FoldName(name))
}

// AddSubscription adds sub if an equivalent one doesn't already exist.
func (s *Store) AddSubscription(sub domain.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.subscriptions {
		if existing.Subscriber == sub.Subscriber && existing.Selector.Key() == sub.Selector.Key() {
			return
		}
	}
	s.subscriptions = append(s.subscriptions, sub)
}

// RemoveSubscription removes a matching subscription, if present.
func (s *Store) RemoveSubscription(sub domain.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.subscriptions[:0]
	for _, existing := range s.subscriptions {
		if existing.Subscriber == sub.Subscriber && existing.Selector.Key() == sub.Selector.Key() {
			continue
		}
		out = append(out, existing)
	}
	s.subscriptions = out
}

// PutSink inserts or replaces a system sink.
func (s *Store) PutSink(sink *domain.SystemSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *sink
	s.sinks[sink.ID] = &clone
}

// DeleteSink removes a system sink.
func (s *Store) DeleteSink(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sinks, id)
}
