package reporter

import (
	"fmt"
	"log"
	"time"

	"github.com/joaopsoliveira03-school/estg-sd/internal/protocol"
	"github.com/joaopsoliveira03-school/estg-sd/internal/store"
	"github.com/joaopsoliveira03-school/estg-sd/internal/types"
)

// RequestStatsReporter periodically broadcasts the total and accepted request
// counts to all users over the broadcast leg.
type RequestStatsReporter struct {
	log      *log.Logger
	store    *store.Store
	pusher   protocol.Pusher
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func NewRequestStatsReporter(logger *log.Logger, st *store.Store, pusher protocol.Pusher, interval time.Duration) *RequestStatsReporter {
	return &RequestStatsReporter{
		log:      logger,
		store:    st,
		pusher:   pusher,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (r *RequestStatsReporter) Run() {
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

// Report broadcasts the current request counters.
func (r *RequestStatsReporter) Report() {
	requests := r.store.Requests()
	accepted := r.store.AcceptedRequests(requests)

	content := fmt.Sprintf("Total Requests / Accepted Requests: %d / %d", len(requests), len(accepted))
	env := protocol.ServerMessage(types.BroadcastReceiver, content)
	if err := r.pusher.BroadcastSend(env); err != nil {
		r.log.Println("broadcast request stats:", err)
	}
}

func (r *RequestStatsReporter) Stop() {
	close(r.stop)
	<-r.done
}
