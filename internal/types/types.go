package types

import (
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/teris-io/shortid"
)

// Role is one of seven ordered ranks, lowest first. The rank order drives
// approval candidate selection and the presence report target.
type Role int

const (
	RolePraca Role = iota
	RoleSargento
	RoleTenente
	RoleCapitao
	RoleMajor
	RoleCoronel
	RoleGeneral
)

var roleNames = [...]string{
	"PRACA",
	"SARGENTO",
	"TENENTE",
	"CAPITAO",
	"MAJOR",
	"CORONEL",
	"GENERAL",
}

func (r Role) String() string {
	if r < 0 || int(r) >= len(roleNames) {
		return fmt.Sprintf("Role(%d)", int(r))
	}
	return roleNames[r]
}

// Index returns the rank index of the role, 0 lowest to 6 highest, or -1 for
// an out-of-range value.
func (r Role) Index() int {
	if r < 0 || int(r) >= len(roleNames) {
		return -1
	}
	return int(r)
}

// ParseRole resolves a case-insensitive role name.
func ParseRole(s string) (Role, error) {
	for i, name := range roleNames {
		if strings.EqualFold(s, name) {
			return Role(i), nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

// RoleNames returns the rank names in ascending order.
func RoleNames() []string {
	names := make([]string, len(roleNames))
	copy(names, roleNames[:])
	return names
}

// User is an identity record. Users are keyed and compared by Username, which
// never changes once the user is created.
type User struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}

// BroadcastReceiver is the distinguished receiver token addressing every
// registered user.
const BroadcastReceiver = "broadcast"

// ServerSender is the reserved sender name used by reporter traffic. It never
// resolves to a registered user.
const ServerSender = "server"

// groupPattern matches the multicast address range accepted for groups. The
// first octet covers 224-239 plus the historical wider range the wire
// protocol has always tolerated.
var groupPattern = regexp.MustCompile(
	`^(22[4-9]|23[0-9]|2[4-9][0-9]|[3-9][0-9]{2}|[12][0-9]{3})\.` +
		`(25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.` +
		`(25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.` +
		`(25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)$`)

// IsGroupAddress reports whether s is a valid multicast group address.
func IsGroupAddress(s string) bool {
	return groupPattern.MatchString(s)
}

// EventKind discriminates the two event variants.
type EventKind string

const (
	KindMessage EventKind = "message"
	KindRequest EventKind = "request"
)

// Event is a message or a request. Receiver holds a username, a multicast
// group address, or the broadcast token, and never changes once set.
// Accepter is meaningful only for KindRequest: empty until a candidate
// accepts, then set exactly once to a username distinct from Sender.
type Event struct {
	Kind      EventKind `json:"kind"`
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Seq       uint64    `json:"seq"`
	Accepter  string    `json:"accepter,omitempty"`
}

var eventSeq atomic.Uint64

// SyncEventSeq raises the sequence counter to at least seq. Called when
// events minted by an earlier process are loaded, so new events never sort
// below restored ones on a timestamp tie.
func SyncEventSeq(seq uint64) {
	for {
		cur := eventSeq.Load()
		if cur >= seq || eventSeq.CompareAndSwap(cur, seq) {
			return
		}
	}
}

// NewEvent builds an event stamped with the current time and the next
// insertion sequence number. The sequence breaks timestamp ties so the event
// total order is deterministic.
func NewEvent(kind EventKind, sender, receiver, content string) *Event {
	return &Event{
		Kind:      kind,
		ID:        shortid.MustGenerate(),
		Sender:    sender,
		Receiver:  receiver,
		Content:   content,
		Timestamp: time.Now().UTC().Round(time.Millisecond),
		Seq:       eventSeq.Add(1),
	}
}

// Before reports whether e precedes o in the event total order.
func (e *Event) Before(o *Event) bool {
	if e.Timestamp.Equal(o.Timestamp) {
		return e.Seq < o.Seq
	}
	return e.Timestamp.Before(o.Timestamp)
}

// Resolved reports whether a request event has been accepted. Messages are
// terminal on creation and never resolved.
func (e *Event) Resolved() bool {
	return e.Kind == KindRequest && e.Accepter != ""
}

// WireDate is the timestamp format events carry on the wire.
const WireDate = "02-01-2006 15:04"
