package reporter

import (
	"fmt"
	"log"
	"time"

	"github.com/joaopsoliveira03-school/estg-sd/internal/protocol"
	"github.com/joaopsoliveira03-school/estg-sd/internal/store"
)

// PresenceReporter periodically tells the highest-ranked online user how many
// users are online. Leadership only; nobody else is notified.
type PresenceReporter struct {
	log      *log.Logger
	store    *store.Store
	pusher   protocol.Pusher
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func NewPresenceReporter(logger *log.Logger, st *store.Store, pusher protocol.Pusher, interval time.Duration) *PresenceReporter {
	return &PresenceReporter{
		log:      logger,
		store:    st,
		pusher:   pusher,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (r *PresenceReporter) Run() {
	ticker := time.NewTicker(r.interval)
	defer func() {
		ticker.Stop()
		close(r.done)
	}()

	for {
		select {
		case <-ticker.C:
			r.Report()
		case <-r.stop:
			return
		}
	}
}

// Report computes the online set and notifies its highest-ranked member.
func (r *PresenceReporter) Report() {
	online := r.store.OnlineUsers()
	if len(online) == 0 {
		return
	}

	highest, ok := r.store.HighestRoleUser(online)
	if !ok {
		return
	}

	conn, ok := r.store.Connection(highest.Username)
	if !ok {
		return
	}

	env := protocol.ServerMessage(highest.Username, fmt.Sprintf("Number of Online Users: %d", len(online)))
	if err := r.pusher.Push(conn.RemoteHost(), env); err != nil {
		r.log.Printf("presence report to %q: %v", highest.Username, err)
		r.store.UnbindConnection(highest.Username)
	}
}

func (r *PresenceReporter) Stop() {
	close(r.stop)
	<-r.done
}
