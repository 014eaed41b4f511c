package store

import (
	"errors"
	"log"
	"sort"
	"sync"

	"github.com/joaopsoliveira03-school/estg-sd/internal/types"
)

var (
	ErrDuplicateUser   = errors.New("user already exists")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Conn is an opaque handle to a live direct connection. Implementations mark
// themselves closed when their reader observes EOF or a transport error;
// OnlineUsers evicts such handles lazily at read time.
type Conn interface {
	RemoteHost() string
	Closed() bool
	Close() error
}

// Store is the shared state of the server: registered users, live direct
// connections, per-user event logs, the transient delivery queue, and
// multicast group membership. Every table is guarded independently; callers
// must not assume atomicity across two tables.
type Store struct {
	log *log.Logger

	usersMu sync.RWMutex
	users   map[string]types.User

	connsMu sync.Mutex
	conns   map[string]Conn

	eventsMu sync.RWMutex
	events   map[string][]*types.Event

	deliveriesMu sync.Mutex
	deliveries   []*types.Event

	groupsMu sync.RWMutex
	groups   map[string][]string
}

func NewStore(logger *log.Logger) *Store {
	return &Store{
		log:    logger,
		users:  make(map[string]types.User),
		conns:  make(map[string]Conn),
		events: make(map[string][]*types.Event),
		groups: make(map[string][]string),
	}
}

// AddUser registers a new user. The username is the immutable identity key.
func (s *Store) AddUser(user types.User) error {
	if user.Username == "" {
		return ErrInvalidArgument
	}

	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	if _, ok := s.users[user.Username]; ok {
		return ErrDuplicateUser
	}
	s.users[user.Username] = user
	return nil
}

// GetUser looks up a user by username. An unknown username is non-fatal and
// reported through the bool.
func (s *Store) GetUser(username string) (types.User, bool) {
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()

	u, ok := s.users[username]
	return u, ok
}

// Users returns a snapshot of all registered users, ordered by username.
func (s *Store) Users() []types.User {
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()

	users := make([]types.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users
}

// HighestRoleUser returns the user with the maximal role index among users.
// Ties go to the first user seen with that index.
func (s *Store) HighestRoleUser(users []types.User) (types.User, bool) {
	var highest types.User
	found := false
	for _, u := range users {
		if !found || u.Role.Index() > highest.Role.Index() {
			highest = u
			found = true
		}
	}
	return highest, found
}

// BindConnection associates a user with its live direct connection. A new
// binding replaces any previous one.
func (s *Store) BindConnection(username string, conn Conn) error {
	if username == "" || conn == nil {
		return ErrInvalidArgument
	}

	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.conns[username] = conn
	return nil
}

// Connection returns the user's bound connection, if any.
func (s *Store) Connection(username string) (Conn, bool) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()

	c, ok := s.conns[username]
	return c, ok
}

// UnbindConnection drops the user's connection binding.
func (s *Store) UnbindConnection(username string) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, username)
}

// OnlineUsers returns the users with a live connection, ordered by username.
// Presence is probed lazily: any binding observed closed here is evicted, so
// "online" is only as fresh as the last call.
func (s *Store) OnlineUsers() []types.User {
	s.connsMu.Lock()
	online := make([]string, 0, len(s.conns))
	for username, conn := range s.conns {
		if conn == nil || conn.Closed() {
			delete(s.conns, username)
			continue
		}
		online = append(online, username)
	}
	s.connsMu.Unlock()

	sort.Strings(online)

	users := make([]types.User, 0, len(online))
	for _, username := range online {
		if u, ok := s.GetUser(username); ok {
			users = append(users, u)
		}
	}
	return users
}

// AppendUserEvent adds an event to the user's log. The log is ordered by the
// event total order; callers must not double-append the same event to the
// same log.
func (s *Store) AppendUserEvent(username string, event *types.Event) error {
	if username == "" || event == nil {
		return ErrInvalidArgument
	}

	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	s.events[username] = append(s.events[username], event)
	return nil
}

// UserEvents returns the user's log in event total order. The returned
// events are copies taken under the log lock, safe to serialize while
// approval workflows resolve requests concurrently; a resolution landing
// after the call is not reflected in an already-returned slice.
func (s *Store) UserEvents(username string) []*types.Event {
	s.eventsMu.RLock()
	events := make([]*types.Event, len(s.events[username]))
	for i, event := range s.events[username] {
		clone := *event
		events[i] = &clone
	}
	s.eventsMu.RUnlock()

	sort.SliceStable(events, func(i, j int) bool { return events[i].Before(events[j]) })
	return events
}

// Requests returns every request event across all user logs, deduplicated by
// event ID and ordered by the event total order.
func (s *Store) Requests() []*types.Event {
	s.eventsMu.RLock()
	seen := make(map[string]struct{})
	var requests []*types.Event
	for _, events := range s.events {
		for _, event := range events {
			if event.Kind != types.KindRequest {
				continue
			}
			if _, ok := seen[event.ID]; ok {
				continue
			}
			seen[event.ID] = struct{}{}
			requests = append(requests, event)
		}
	}
	s.eventsMu.RUnlock()

	sort.SliceStable(requests, func(i, j int) bool { return requests[i].Before(requests[j]) })
	return requests
}

// ResolveRequest records the accepter on a request event. The accepter is
// set at most once and must be a user distinct from the sender; a later
// acceptance never overwrites the first.
func (s *Store) ResolveRequest(request *types.Event, accepter string) bool {
	if request == nil || request.Kind != types.KindRequest {
		return false
	}
	if accepter == "" || accepter == request.Sender {
		return false
	}

	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	if request.Accepter != "" {
		return false
	}
	request.Accepter = accepter
	return true
}

// AcceptedRequests filters requests down to those with an accepter set. The
// accepter is read under the same lock ResolveRequest writes it.
func (s *Store) AcceptedRequests(requests []*types.Event) []*types.Event {
	s.eventsMu.RLock()
	defer s.eventsMu.RUnlock()

	var accepted []*types.Event
	for _, req := range requests {
		if req.Resolved() {
			accepted = append(accepted, req)
		}
	}
	return accepted
}

// EnqueueDelivery adds an event to the push-delivery worklist. Callers only
// enqueue events whose receiver is a single concrete user; broadcast and
// group fan-out is expanded before reaching the queue.
func (s *Store) EnqueueDelivery(event *types.Event) error {
	if event == nil {
		return ErrInvalidArgument
	}

	s.deliveriesMu.Lock()
	defer s.deliveriesMu.Unlock()
	s.deliveries = append(s.deliveries, event)
	return nil
}

// PendingDeliveries returns a copy of the delivery queue.
func (s *Store) PendingDeliveries() []*types.Event {
	s.deliveriesMu.Lock()
	defer s.deliveriesMu.Unlock()

	pending := make([]*types.Event, len(s.deliveries))
	copy(pending, s.deliveries)
	return pending
}

// DequeueDelivery removes the event from the delivery queue, whether it was
// delivered or deemed undeliverable.
func (s *Store) DequeueDelivery(event *types.Event) {
	if event == nil {
		return
	}

	s.deliveriesMu.Lock()
	defer s.deliveriesMu.Unlock()
	for i, e := range s.deliveries {
		if e == event {
			s.deliveries = append(s.deliveries[:i], s.deliveries[i+1:]...)
			return
		}
	}
}

// JoinGroup appends a user to a multicast group, creating the group on first
// join. Membership is append-only; duplicate joins are kept as-is and
// deduplicated by readers.
func (s *Store) JoinGroup(group, username string) error {
	if !types.IsGroupAddress(group) {
		return ErrInvalidArgument
	}
	if username == "" {
		return ErrInvalidArgument
	}

	s.groupsMu.Lock()
	defer s.groupsMu.Unlock()
	s.groups[group] = append(s.groups[group], username)
	return nil
}

// GroupMembers resolves the group's members to users in join order,
// deduplicated by username. An unknown group yields an empty slice.
func (s *Store) GroupMembers(group string) []types.User {
	s.groupsMu.RLock()
	members := make([]string, len(s.groups[group]))
	copy(members, s.groups[group])
	s.groupsMu.RUnlock()

	seen := make(map[string]struct{}, len(members))
	users := make([]types.User, 0, len(members))
	for _, username := range members {
		if _, ok := seen[username]; ok {
			continue
		}
		seen[username] = struct{}{}
		if u, ok := s.GetUser(username); ok {
			users = append(users, u)
		}
	}
	return users
}

// Groups returns the known group addresses in sorted order.
func (s *Store) Groups() []string {
	s.groupsMu.RLock()
	defer s.groupsMu.RUnlock()

	groups := make([]string, 0, len(s.groups))
	for g := range s.groups {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}
