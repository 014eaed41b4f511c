package approval

import (
	"log"
	"sort"

	"github.com/joaopsoliveira03-school/estg-sd/internal/protocol"
	"github.com/joaopsoliveira03-school/estg-sd/internal/stats"
	"github.com/joaopsoliveira03-school/estg-sd/internal/store"
	"github.com/joaopsoliveira03-school/estg-sd/internal/types"
)

// Runner executes the role-escalation approval workflow. Every request gets
// its own goroutine; workflows for unrelated requests interleave freely and a
// candidate may be asked about several requests at once.
type Runner struct {
	log    *log.Logger
	store  *store.Store
	pusher protocol.Pusher
	stats  stats.Provider
}

func NewRunner(logger *log.Logger, st *store.Store, pusher protocol.Pusher, sp stats.Provider) *Runner {
	return &Runner{
		log:    logger,
		store:  st,
		pusher: pusher,
		stats:  sp,
	}
}

// Start spawns the workflow for a request and returns immediately.
func (r *Runner) Start(connType protocol.ConnType, request *types.Event) {
	go r.run(request)
}

// run asks candidates in order until one accepts or the set is exhausted.
// A request nobody accepts stays unresolved forever; that is a terminal
// state, not an error.
func (r *Runner) run(request *types.Event) {
	query := &protocol.Envelope{
		Command: protocol.CmdRequestAnswer,
		From:    request.Sender,
		To:      request.Receiver,
		Content: request.Content,
	}

	for _, candidate := range r.candidates(request) {
		reply, ok := r.ask(candidate, query)
		if !ok {
			continue
		}
		if reply.Response != protocol.RespYes {
			r.log.Printf("%s rejected request from %s", candidate.Username, request.Sender)
			continue
		}
		if !r.store.ResolveRequest(request, candidate.Username) {
			return
		}
		r.log.Printf("%s accepted request from %s", candidate.Username, request.Sender)
		r.stats.Incr(stats.RequestsAccepted)
		r.announce(request)
		return
	}

	r.log.Printf("request from %s exhausted its candidates unresolved", request.Sender)
}

// candidates builds the ordered candidate set for the request. A single-user
// request asks exactly its addressee. Group and broadcast requests ask the
// online users outranking-or-matching the sender, lowest qualifying rank
// first, excluding the sender.
func (r *Runner) candidates(request *types.Event) []types.User {
	switch {
	case request.Receiver == types.BroadcastReceiver:
		return r.filter(r.store.Users(), request.Sender)
	case types.IsGroupAddress(request.Receiver):
		return r.filter(r.store.GroupMembers(request.Receiver), request.Sender)
	default:
		user, ok := r.store.GetUser(request.Receiver)
		if !ok {
			return nil
		}
		return []types.User{user}
	}
}

func (r *Runner) filter(users []types.User, senderName string) []types.User {
	sender, ok := r.store.GetUser(senderName)
	if !ok {
		return nil
	}

	online := make(map[string]struct{})
	for _, u := range r.store.OnlineUsers() {
		online[u.Username] = struct{}{}
	}

	var candidates []types.User
	for _, u := range users {
		if u.Username == sender.Username {
			continue
		}
		if _, ok := online[u.Username]; !ok {
			continue
		}
		if u.Role.Index() < sender.Role.Index() {
			continue
		}
		candidates = append(candidates, u)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Role.Index() < candidates[j].Role.Index()
	})
	return candidates
}

// ask performs one query round-trip to the candidate. A candidate without a
// live binding, a transport failure, or an answer deadline all count as a
// pass, moving the workflow to the next candidate.
func (r *Runner) ask(candidate types.User, query *protocol.Envelope) (*protocol.Envelope, bool) {
	conn, ok := r.store.Connection(candidate.Username)
	if !ok {
		r.log.Printf("no connection bound for candidate %s", candidate.Username)
		return nil, false
	}

	reply, err := r.pusher.Ask(conn.RemoteHost(), query)
	if err != nil {
		r.log.Printf("requestAnswer round-trip to %s: %v", candidate.Username, err)
		r.store.UnbindConnection(candidate.Username)
		return nil, false
	}
	return reply, true
}

// announce fans the resolved request back out over the leg matching its
// receiver: datagram to the group or broadcast, or direct pushes to sender
// and accepter for a single-user request.
func (r *Runner) announce(request *types.Event) {
	env := protocol.EventEnvelope(request)

	switch {
	case request.Receiver == types.BroadcastReceiver:
		if err := r.pusher.BroadcastSend(env); err != nil {
			r.log.Println("broadcast resolved request:", err)
		}
	case types.IsGroupAddress(request.Receiver):
		if err := r.pusher.MulticastSend(request.Receiver, env); err != nil {
			r.log.Printf("multicast resolved request to %s: %v", request.Receiver, err)
		}
	default:
		for _, username := range []string{request.Sender, request.Accepter} {
			conn, ok := r.store.Connection(username)
			if !ok {
				continue
			}
			if err := r.pusher.Push(conn.RemoteHost(), env); err != nil {
				r.log.Printf("push resolved request to %s: %v", username, err)
				r.store.UnbindConnection(username)
			}
		}
	}
}
