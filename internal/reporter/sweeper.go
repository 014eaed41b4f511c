package reporter

import (
	"log"
	"time"

	"github.com/joaopsoliveira03-school/estg-sd/internal/protocol"
	"github.com/joaopsoliveira03-school/estg-sd/internal/stats"
	"github.com/joaopsoliveira03-school/estg-sd/internal/store"
)

// Sweeper drains the delivery queue on every tick, pushing each entry to its
// receiver's last known address. The queue is strictly drained: delivered and
// undeliverable entries are both removed, never retried.
type Sweeper struct {
	log      *log.Logger
	store    *store.Store
	pusher   protocol.Pusher
	stats    stats.Provider
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func NewSweeper(logger *log.Logger, st *store.Store, pusher protocol.Pusher, sp stats.Provider, interval time.Duration) *Sweeper {
	return &Sweeper{
		log:      logger,
		store:    st,
		pusher:   pusher,
		stats:    sp,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *Sweeper) Run() {
	ticker := time.NewTicker(s.interval)
	defer func() {
		ticker.Stop()
		close(s.done)
	}()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stop:
			return
		}
	}
}

// Sweep delivers every queued event once.
func (s *Sweeper) Sweep() {
	for _, event := range s.store.PendingDeliveries() {
		s.store.DequeueDelivery(event)

		if _, ok := s.store.GetUser(event.Receiver); !ok {
			s.log.Printf("dropping delivery with unresolved receiver %q", event.Receiver)
			continue
		}

		conn, ok := s.store.Connection(event.Receiver)
		if !ok || conn.Closed() {
			s.log.Printf("dropping delivery to offline user %q", event.Receiver)
			s.stats.Incr(stats.DeliveryFailures)
			continue
		}

		if err := s.pusher.Push(conn.RemoteHost(), protocol.EventEnvelope(event)); err != nil {
			// An unreachable peer loses this event; the stale binding is
			// evicted so the user's next direct envelope re-binds it.
			s.log.Printf("deliver to %q: %v", event.Receiver, err)
			s.store.UnbindConnection(event.Receiver)
			s.stats.Incr(stats.DeliveryFailures)
			continue
		}
		s.stats.Incr(stats.EventsDelivered)
	}
}

func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}
