package store

import "github.com/jaxxstorm/smokestack/internal/domain"

// Snapshot is the complete, serializable state of the store: the
// document the Persistence Journal writes on every commit.
type Snapshot struct {
	Counter       int64                                    `json:"counter"`
	Operations    map[domain.OperationID]*domain.Operation `json:"operations"`
	Components    map[string]*domain.Component             `json:"components"`
	Tags          map[string]*domain.Tag                   `json:"tags"`
	Users         map[string]*domain.User                  `json:"users"`
	Groups        map[string]*domain.Group                 `json:"groups"`
	Subscriptions []domain.Subscription                    `json:"subscriptions"`
	SystemSinks   map[string]*domain.SystemSink            `json:"system_sinks"`
}

// Snapshot captures the entire store as a deep-enough copy to persist.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ops := make(map[domain.OperationID]*domain.Operation, len(s.operations))
	for id, op := range s.operations {
		ops[id] = op.Clone()
	}
	comps := make(map[string]*domain.Component, len(s.components))
	for name, c := range s.components {
		clone := *c
		comps[name] = &clone
	}
	tags := make(map[string]*domain.Tag, len(s.tags))
	for name, t := range s.tags {
		clone := *t
		tags[name] = &clone
	}
	users := make(map[string]*domain.User, len(s.users))
	for name, u := range s.users {
		clone := *u
		users[name] = &clone
	}
	groups := make(map[string]*domain.Group, len(s.groups))
	for name, g := range s.groups {
		clone := *g
		groups[name] = &clone
	}
	sinks := make(map[string]*domain.SystemSink, len(s.sinks))
	for id, sk := range s.sinks {
		clone := *sk
		sinks[id] = &clone
	}
	subs := append([]domain.Subscription(nil), s.subscriptions...)

	return Snapshot{
		Counter:       s.counter,
		Operations:    ops,
		Components:    comps,
		Tags:          tags,
		Users:         users,
		Groups:        groups,
		Subscriptions: subs,
		SystemSinks:   sinks,
	}
}

// Restore replaces the store's contents with snap and rebuilds every
// secondary index. Used once at startup to replay the Persistence
// Journal; never called concurrently with live traffic.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter = snap.Counter
	s.operations = make(map[domain.OperationID]*domain.Operation, len(snap.Operations))
	s.byStatus = make(map[domain.Status]map[domain.OperationID]struct{})
	s.byComponent = make(map[string]map[domain.OperationID]struct{})
	s.byTag = make(map[string]map[domain.OperationID]struct{})
	s.activeLocks = make(map[string]domain.OperationID)
	s.dependents = make(map[domain.OperationID]map[domain.OperationID]struct{})

	for id, op := range snap.Operations {
		s.operations[id] = op.Clone()
		s.indexOperationLocked(op)
	}

	s.components = make(map[string]*domain.Component, len(snap.Components))
	for name, c := range snap.Components {
		clone := *c
		s.components[name] = &clone
	}
	s.tags = make(map[string]*domain.Tag, len(snap.Tags))
	for name, t := range snap.Tags {
		clone := *t
		s.tags[name] = &clone
	}
	s.users = make(map[string]*domain.User, len(snap.Users))
	for name, u := range snap.Users {
		clone := *u
		s.users[name] = &clone
	}
	s.groups = make(map[string]*domain.Group, len(snap.Groups))
	for name, g := range snap.Groups {
		clone := *g
		s.groups[name] = &clone
	}
	s.sinks = make(map[string]*domain.SystemSink, len(snap.SystemSinks))
	for id, sk := range snap.SystemSinks {
		clone := *sk
		s.sinks[id] = &clone
	}
	s.subscriptions = append([]domain.Subscription(nil), snap.Subscriptions...)
}

// IntroducesCycle reports whether replacing op's depends_on with
// newDeps would create a cycle through any non-terminal operation. op
// may be zero, the not-yet-assigned id of an operation being created.
func (s *Store) IntroducesCycle(op domain.OperationID, newDeps []domain.OperationID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adjacency := make(map[domain.OperationID][]domain.OperationID, len(s.operations))
	for id, o := range s.operations {
		if o.Status.IsTerminal() {
			continue
		}
		if id == op {
			continue
		}
		adjacency[id] = o.DependsOn
	}
	adjacency[op] = newDeps

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[domain.OperationID]int)

	var visit func(domain.OperationID) bool
	visit = func(n domain.OperationID) bool {
		switch color[n] {
		case gray:
			return true
		case black:
			return false
		}
		color[n] = gray
		for _, dep := range adjacency[n] {
			if depOp, ok := s.operations[dep]; ok && depOp.Status.IsTerminal() && dep != op {
				continue
			}
			if visit(dep) {
				return true
			}
		}
		color[n] = black
		return false
	}
	return visit(op)
}
