// Package store implements the Domain Store: the in-memory
// authoritative state of operations, components, tags, users, groups,
// subscriptions and sinks, plus the secondary indexes maintained on
// every write. Reads take the read lock and return clones so callers
// can never observe (or corrupt) a partial mutation; writes are only
// ever performed by internal/engine, the sole writer.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/jaxxstorm/smokestack/internal/domain"
)

// Store holds all entities by primary key plus the secondary indexes:
// operations by status, by component, by tag, the active-lock table,
// the dependents reverse index, and subscriptions.
type Store struct {
	mu sync.RWMutex

	counter    int64
	operations map[domain.OperationID]*domain.Operation
	components map[string]*domain.Component
	tags       map[string]*domain.Tag
	users      map[string]*domain.User
	groups     map[string]*domain.Group
	sinks      map[string]*domain.SystemSink

	subscriptions []domain.Subscription

	// byStatus, byComponent and byTag are recomputed for the single
	// mutated operation on every commit -- never rebuilt wholesale.
	byStatus    map[domain.Status]map[domain.OperationID]struct{}
	byComponent map[string]map[domain.OperationID]struct{}
	byTag       map[string]map[domain.OperationID]struct{}

	// activeLocks maps component -> the op currently holding it while
	// in_progress/paused.
	activeLocks map[string]domain.OperationID

	// dependents is the reverse index of depends_on: op_id -> the set
	// of operations that name it as a dependency.
	dependents map[domain.OperationID]map[domain.OperationID]struct{}
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		operations:  make(map[domain.OperationID]*domain.Operation),
		components:  make(map[string]*domain.Component),
		tags:        make(map[string]*domain.Tag),
		users:       make(map[string]*domain.User),
		groups:      make(map[string]*domain.Group),
		sinks:       make(map[string]*domain.SystemSink),
		byStatus:    make(map[domain.Status]map[domain.OperationID]struct{}),
		byComponent: make(map[string]map[domain.OperationID]struct{}),
		byTag:       make(map[string]map[domain.OperationID]struct{}),
		activeLocks: make(map[string]domain.OperationID),
		dependents:  make(map[domain.OperationID]map[domain.OperationID]struct{}),
	}
}

// NextOperationID allocates the next id off the monotonic counter;
// ids are never reused. Callable only from the writer.
func (s *Store) NextOperationID() domain.OperationID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter++
	return domain.OperationID(s.counter)
}

// --- reads -----------------------------------------------------------

// GetOperation returns a clone of the operation, or false if unknown.
func (s *Store) GetOperation(id domain.OperationID) (*domain.Operation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.operations[id]
	if !ok {
		return nil, false
	}
	return op.Clone(), true
}

// OperationFilter narrows ListOperations. Zero-valued fields are
// unconstrained; From/To select operations whose lifetime overlaps the
// window.
type OperationFilter struct {
	Component string
	Tag       string
	Status    domain.Status
	From, To  *time.Time
	Mine      string // actor name; matches operator or subscriber
}

// ListOperations returns clones of every operation matching filter,
// ordered by id.
func (s *Store) ListOperations(filter OperationFilter) []*domain.Operation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates map[domain.OperationID]struct{}
	switch {
	case filter.Status != "":
		candidates = s.byStatus[filter.Status]
	case filter.Component != "":
		candidates = s.byComponent[domain.FoldName(filter.Component)]
	case filter.Tag != "":
		candidates = s.byTag[domain.FoldName(filter.Tag)]
	}

	var ids []domain.OperationID
	if candidates != nil {
		for id := range candidates {
			ids = append(ids, id)
		}
	} else {
		for id := range s.operations {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]*domain.Operation, 0, len(ids))
	for _, id := range ids {
		op := s.operations[id]
		if filter.Component != "" && !op.HasComponent(filter.Component) {
			continue
		}
		if filter.Tag != "" && !op.HasTag(filter.Tag) {
			continue
		}
		if filter.Status != "" && op.Status != filter.Status {
			continue
		}
		if filter.Mine != "" && !op.IsOperator(filter.Mine) && !s.isSubscriber(filter.Mine, op) {
			continue
		}
		if !overlapsWindow(op, filter.From, filter.To) {
			continue
		}
		out = append(out, op.Clone())
	}
	return out
}

// overlapsWindow reports whether op's lifetime intersects [from, to].
// An operation's lifetime starts at StartsAt (or CreatedAt when
// unscheduled) and ends at EndsAt, or is still open when it has none.
func overlapsWindow(op *domain.Operation, from, to *time.Time) bool {
	if from == nil && to == nil {
		return true
	}
	start := op.CreatedAt
	if op.StartsAt != nil {
		start = *op.StartsAt
	}
	if from != nil && op.EndsAt != nil && op.EndsAt.Before(*from) {
		return false
	}
	if to != nil && start.After(*to) {
		return false
	}
	return true
}

func (s *Store) isSubscriber(user string, op *domain.Operation) bool {
	for _, sub := range s.subscriptions {
		if sub.Subscriber == user && sub.Matches(op) {
			return true
		}
	}
	return false
}

// GetComponent returns a clone, or false if unknown.
func (s *Store) GetComponent(name string) (*domain.Component, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.components[domain.FoldName(name)]
	if !ok {
		return nil, false
	}
	clone := *c
	clone.Owners = append([]string(nil), c.Owners...)
	return &clone, true
}

// ListComponents returns clones of every component, ordered by name.
func (s *Store) ListComponents() []*domain.Component {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Component, 0, len(s.components))
	for _, c := range s.components {
		clone := *c
		clone.Owners = append([]string(nil), c.Owners...)
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GetTag returns a clone, or false if unknown.
func (s *Store) GetTag(name string) (*domain.Tag, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tags[domain.FoldName(name)]
	if !ok {
		return nil, false
	}
	clone := *t
	return &clone, true
}

// ListTags returns clones of every tag, ordered by name.
func (s *Store) ListTags() []*domain.Tag {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Tag, 0, len(s.tags))
	for _, t := range s.tags {
		clone := *t
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GetUser returns a clone, or false if unknown.
func (s *Store) GetUser(name string) (*domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[name]
	if !ok {
		return nil, false
	}
	clone := *u
	clone.Groups = append([]string(nil), u.Groups...)
	return &clone, true
}

// GetGroup returns a clone, or false if unknown.
func (s *Store) GetGroup(name string) (*domain.Group, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[domain.FoldName(name)]
	if !ok {
		return nil, false
	}
	clone := *g
	clone.Members = append([]string(nil), g.Members...)
	return &clone, true
}

// ListGroups returns clones of every group, ordered by name.
func (s *Store) ListGroups() []*domain.Group {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Group, 0, len(s.groups))
	for _, g := range s.groups {
		clone := *g
		clone.Members = append([]string(nil), g.Members...)
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListSubscriptions returns the subscriptions belonging to user.
func (s *Store) ListSubscriptions(user string) []domain.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Subscription
	for _, sub := range s.subscriptions {
		if sub.Subscriber == user {
			out = append(out, sub)
		}
	}
	return out
}

// MatchingSubscribers returns the set of distinct users whose
// subscriptions match op, deduplicated to one entry per user.
func (s *Store) MatchingSubscribers(op *domain.Operation) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for _, sub := range s.subscriptions {
		if _, ok := seen[sub.Subscriber]; ok {
			continue
		}
		if sub.Matches(op) {
			seen[sub.Subscriber] = struct{}{}
			out = append(out, sub.Subscriber)
		}
	}
	return out
}

// GetSink returns a clone, or false if unknown.
func (s *Store) GetSink(id string) (*domain.SystemSink, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sink, ok := s.sinks[id]
	if !ok {
		return nil, false
	}
	clone := *sink
	return &clone, true
}

// ListSinks returns clones of every system sink.
func (s *Store) ListSinks() []*domain.SystemSink {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.SystemSink, 0, len(s.sinks))
	for _, sink := range s.sinks {
		clone := *sink
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MatchingSinks returns the sinks whose selector/filter admit ev.
func (s *Store) MatchingSinks(ev *domain.Event) []*domain.SystemSink {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.SystemSink
	for _, sink := range s.sinks {
		if sink.Matches(ev) {
			clone := *sink
			out = append(out, &clone)
		}
	}
	return out
}

// ActiveLockHolder returns the op id currently holding a lock on
// component, if any.
func (s *Store) ActiveLockHolder(component string) (domain.OperationID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.activeLocks[domain.FoldName(component)]
	return id, ok
}

// Dependents returns the ids of operations that list id in depends_on.
func (s *Store) Dependents(id domain.OperationID) []domain.OperationID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.dependents[id]
	out := make([]domain.OperationID, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	return out
}

// NonTerminalOperations returns clones of every operation not in a
// terminal status -- the universe the cycle check searches over.
func (s *Store) NonTerminalOperations() []*domain.Operation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Operation
	for _, op := range s.operations {
		if !op.Status.IsTerminal() {
			out = append(out, op.Clone())
		}
	}
	return out
}
