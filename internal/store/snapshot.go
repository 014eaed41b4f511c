package store

import (
	"encoding/json"

	"github.com/joaopsoliveira03-school/estg-sd/internal/types"
)

// Logical snapshot sections. Each is serialized and restored independently,
// so a corrupt or missing section degrades to an empty table instead of
// failing the whole restore.
const (
	SectionUsers      = "users"
	SectionEvents     = "events"
	SectionDeliveries = "deliveries"
	SectionGroups     = "groups"
)

// Sections lists the snapshot section names in a fixed order.
func Sections() []string {
	return []string{SectionUsers, SectionEvents, SectionDeliveries, SectionGroups}
}

// Snapshot serializes the durable tables into one blob per section. Live
// connections are transient and not part of the snapshot.
func (s *Store) Snapshot() (map[string][]byte, error) {
	sections := make(map[string][]byte, 4)

	s.usersMu.RLock()
	users, err := json.Marshal(s.users)
	s.usersMu.RUnlock()
	if err != nil {
		return nil, err
	}
	sections[SectionUsers] = users

	s.eventsMu.RLock()
	events, err := json.Marshal(s.events)
	s.eventsMu.RUnlock()
	if err != nil {
		return nil, err
	}
	sections[SectionEvents] = events

	s.deliveriesMu.Lock()
	deliveries, err := json.Marshal(s.deliveries)
	s.deliveriesMu.Unlock()
	if err != nil {
		return nil, err
	}
	sections[SectionDeliveries] = deliveries

	s.groupsMu.RLock()
	groups, err := json.Marshal(s.groups)
	s.groupsMu.RUnlock()
	if err != nil {
		return nil, err
	}
	sections[SectionGroups] = groups

	return sections, nil
}

// Restore loads whichever sections are present and parseable, replacing the
// corresponding tables. Events shared between user logs are re-linked by
// event ID so a request resolved after restore is observed in every log.
// Delivery queue entries stay independent copies: they were enqueued as
// private per-receiver snapshots and must keep their narrowed receiver.
func (s *Store) Restore(sections map[string][]byte) {
	if blob, ok := sections[SectionUsers]; ok {
		users := make(map[string]types.User)
		if err := json.Unmarshal(blob, &users); err != nil {
			s.log.Printf("restore %s: %v", SectionUsers, err)
		} else {
			s.usersMu.Lock()
			s.users = users
			s.usersMu.Unlock()
		}
	}

	var maxSeq uint64
	if blob, ok := sections[SectionEvents]; ok {
		events := make(map[string][]*types.Event)
		if err := json.Unmarshal(blob, &events); err != nil {
			s.log.Printf("restore %s: %v", SectionEvents, err)
		} else {
			// Deduplicate shared events so every log holds the same pointer.
			index := make(map[string]*types.Event)
			for username, log := range events {
				for i, event := range log {
					if event.Seq > maxSeq {
						maxSeq = event.Seq
					}
					if existing, ok := index[event.ID]; ok {
						events[username][i] = existing
						continue
					}
					index[event.ID] = event
				}
			}
			s.eventsMu.Lock()
			s.events = events
			s.eventsMu.Unlock()
		}
	}

	if blob, ok := sections[SectionDeliveries]; ok {
		var deliveries []*types.Event
		if err := json.Unmarshal(blob, &deliveries); err != nil {
			s.log.Printf("restore %s: %v", SectionDeliveries, err)
		} else {
			for _, event := range deliveries {
				if event.Seq > maxSeq {
					maxSeq = event.Seq
				}
			}
			s.deliveriesMu.Lock()
			s.deliveries = deliveries
			s.deliveriesMu.Unlock()
		}
	}

	// New events must sort after everything restored, even on a timestamp
	// tie: the sequence counter restarted with the process.
	types.SyncEventSeq(maxSeq)

	if blob, ok := sections[SectionGroups]; ok {
		groups := make(map[string][]string)
		if err := json.Unmarshal(blob, &groups); err != nil {
			s.log.Printf("restore %s: %v", SectionGroups, err)
		} else {
			s.groupsMu.Lock()
			s.groups = groups
			s.groupsMu.Unlock()
		}
	}
}
