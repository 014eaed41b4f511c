package reporter

import (
	"errors"
	"log"
	"time"

	"github.com/joaopsoliveira03-school/estg-sd/internal/snapshot"
	"github.com/joaopsoliveira03-school/estg-sd/internal/stats"
	"github.com/joaopsoliveira03-school/estg-sd/internal/store"
)

// PersistenceReporter snapshots the store to durable storage on every tick
// and restores prior state once at startup. A failed save is logged and
// retried on the next cycle; a missing snapshot at boot is non-fatal.
type PersistenceReporter struct {
	log      *log.Logger
	store    *store.Store
	backend  snapshot.Store
	stats    stats.Provider
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func NewPersistenceReporter(logger *log.Logger, st *store.Store, backend snapshot.Store, sp stats.Provider, interval time.Duration) *PersistenceReporter {
	return &PersistenceReporter{
		log:      logger,
		store:    st,
		backend:  backend,
		stats:    sp,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Restore loads whatever sections the backend has. Each section fails open:
// absent or unreadable sections leave their table empty.
func (r *PersistenceReporter) Restore() {
	sections := make(map[string][]byte)
	for _, name := range store.Sections() {
		blob, err := r.backend.Load(name)
		if err != nil {
			if !errors.Is(err, snapshot.ErrNotFound) {
				r.log.Printf("load section %q: %v", name, err)
			}
			continue
		}
		sections[name] = blob
	}
	r.store.Restore(sections)
}

// Save writes every section wholesale.
func (r *PersistenceReporter) Save() error {
	sections, err := r.store.Snapshot()
	if err != nil {
		return err
	}

	var firstErr error
	for _, name := range store.Sections() {
		if err := r.backend.Save(name, sections[name]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *PersistenceReporter) Run() {
	ticker := time.NewTicker(r.interval)
	defer func() {
		ticker.Stop()
		close(r.done)
	}()

	for {
		select {
		case <-ticker.C:
			if err := r.Save(); err != nil {
				r.log.Println("snapshot save:", err)
				r.stats.Incr(stats.SnapshotFailures)
				continue
			}
			r.stats.Incr(stats.SnapshotsSaved)
		case <-r.stop:
			return
		}
	}
}

func (r *PersistenceReporter) Stop() {
	close(r.stop)
	<-r.done
}
