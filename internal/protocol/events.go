package protocol

import (
	"log"

	"github.com/joaopsoliveira03-school/estg-sd/internal/stats"
	"github.com/joaopsoliveira03-school/estg-sd/internal/store"
	"github.com/joaopsoliveira03-school/estg-sd/internal/types"
)

// ApprovalStarter kicks off the approval workflow for a request event. The
// call must return immediately; the workflow runs independently.
type ApprovalStarter interface {
	Start(connType ConnType, request *types.Event)
}

// EventEngine turns inbound message and request envelopes into stored,
// fanned-out events and feeds the push-delivery queue.
type EventEngine struct {
	log       *log.Logger
	store     *store.Store
	stats     stats.Provider
	approvals ApprovalStarter
}

func NewEventEngine(logger *log.Logger, st *store.Store, sp stats.Provider, approvals ApprovalStarter) *EventEngine {
	return &EventEngine{
		log:       logger,
		store:     st,
		stats:     sp,
		approvals: approvals,
	}
}

// Receive validates and stores one inbound event envelope. Malformed or
// unresolvable envelopes are logged and dropped; connectionless transports
// have no reply path, so nothing is ever reported back.
func (e *EventEngine) Receive(connType ConnType, env *Envelope) {
	if env.From == "" || env.To == "" || env.Content == "" {
		e.log.Printf("invalid %s received (field missing)", env.Command)
		e.stats.Incr(stats.EnvelopesDropped)
		return
	}
	if env.From == types.ServerSender {
		// The server's own reporter traffic loops back over the broadcast
		// leg; it is not a user event.
		return
	}
	if _, ok := e.store.GetUser(env.From); !ok {
		e.log.Printf("invalid %s received (unknown sender %q)", env.Command, env.From)
		e.stats.Incr(stats.EnvelopesDropped)
		return
	}

	var kind types.EventKind
	switch env.Command {
	case CmdMessage:
		kind = types.KindMessage
	case CmdRequest:
		kind = types.KindRequest
	default:
		e.log.Printf("unsupported event command %q", env.Command)
		e.stats.Incr(stats.EnvelopesDropped)
		return
	}

	recipients, ok := e.resolveRecipients(env.To)
	if !ok {
		e.log.Printf("invalid %s received (unresolvable receiver %q)", env.Command, env.To)
		e.stats.Incr(stats.EnvelopesDropped)
		return
	}

	event := types.NewEvent(kind, env.From, env.To, env.Content)

	// Fan out to every recipient log plus the sender's own log, exactly once
	// each even when the sender is a recipient.
	appended := make(map[string]struct{}, len(recipients)+1)
	for _, username := range append(recipients, env.From) {
		if _, dup := appended[username]; dup {
			continue
		}
		appended[username] = struct{}{}
		if err := e.store.AppendUserEvent(username, event); err != nil {
			e.log.Printf("append event for %q: %v", username, err)
		}
	}

	// Only direct-origin traffic needs a push: datagram transports already
	// fanned the envelope out at the network layer. Every queue entry is a
	// private copy narrowed to one concrete receiver, never the shared log
	// event: the queue only ever holds single-user deliveries, and the
	// sweeper serializes entries without racing a concurrent resolution.
	if connType == Direct {
		for _, username := range recipients {
			if username == env.From {
				continue
			}
			clone := *event
			clone.Receiver = username
			if err := e.store.EnqueueDelivery(&clone); err != nil {
				e.log.Printf("enqueue delivery for %q: %v", username, err)
			}
		}
	}

	if kind == types.KindRequest {
		e.stats.Incr(stats.RequestsReceived)
		e.approvals.Start(connType, event)
	}
}

// resolveRecipients expands the receiver token into concrete usernames: all
// users for broadcast, current members for a group address, or a single
// known user.
func (e *EventEngine) resolveRecipients(to string) ([]string, bool) {
	switch {
	case to == types.BroadcastReceiver:
		users := e.store.Users()
		usernames := make([]string, len(users))
		for i, u := range users {
			usernames[i] = u.Username
		}
		return usernames, true
	case types.IsGroupAddress(to):
		members := e.store.GroupMembers(to)
		usernames := make([]string, len(members))
		for i, u := range members {
			usernames[i] = u.Username
		}
		return usernames, true
	default:
		if _, ok := e.store.GetUser(to); !ok {
			return nil, false
		}
		return []string{to}, true
	}
}
