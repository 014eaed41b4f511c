package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joaopsoliveira03-school/estg-sd/internal/testutil"
	"github.com/joaopsoliveira03-school/estg-sd/internal/types"
)

func TestSnapshotRoundTrip(t *testing.T) {
	src := newTestStore(t)
	assert.NoError(t, src.AddUser(testutil.NewUser("alice", types.RoleTenente)))
	assert.NoError(t, src.AddUser(testutil.NewUser("bob", types.RoleSargento)))
	assert.NoError(t, src.JoinGroup("230.0.0.1", "alice"))

	msg := types.NewEvent(types.KindMessage, "alice", "bob", "hello")
	assert.NoError(t, src.AppendUserEvent("alice", msg))
	assert.NoError(t, src.AppendUserEvent("bob", msg))
	assert.NoError(t, src.EnqueueDelivery(msg))

	sections, err := src.Snapshot()
	assert.NoError(t, err)
	assert.Len(t, sections, len(Sections()))
	for _, name := range Sections() {
		assert.Containsf(t, sections, name, "expected snapshot to include section %q", name)
	}

	dst := newTestStore(t)
	dst.Restore(sections)

	assert.Equal(t, src.Users(), dst.Users())
	assert.Equal(t, src.Groups(), dst.Groups())

	events := dst.UserEvents("bob")
	assert.Len(t, events, 1)
	assert.Equal(t, msg.ID, events[0].ID)
	assert.Len(t, dst.PendingDeliveries(), 1)
}

func TestRestoreRelinksSharedEvents(t *testing.T) {
	src := newTestStore(t)
	req := types.NewEvent(types.KindRequest, "alice", "bob", "permission")
	assert.NoError(t, src.AppendUserEvent("alice", req))
	assert.NoError(t, src.AppendUserEvent("bob", req))

	sections, err := src.Snapshot()
	assert.NoError(t, err)

	dst := newTestStore(t)
	dst.Restore(sections)

	// JSON decoding splits the shared event into one copy per log; restore
	// must re-link them so a resolution is visible from both.
	restored := dst.Requests()
	assert.Len(t, restored, 1)
	assert.True(t, dst.ResolveRequest(restored[0], "bob"))

	for _, username := range []string{"alice", "bob"} {
		events := dst.UserEvents(username)
		assert.Lenf(t, events, 1, "expected one event in %s's log", username)
		assert.Equalf(t, "bob", events[0].Accepter, "expected resolution visible in %s's log", username)
	}
}

func TestRestoreKeepsNarrowedDeliveries(t *testing.T) {
	src := newTestStore(t)

	event := types.NewEvent(types.KindMessage, "alice", types.BroadcastReceiver, "hi")
	assert.NoError(t, src.AppendUserEvent("alice", event))
	assert.NoError(t, src.AppendUserEvent("bob", event))

	// A broadcast fan-out enqueues per-receiver copies sharing the log
	// event's ID.
	clone := *event
	clone.Receiver = "bob"
	assert.NoError(t, src.EnqueueDelivery(&clone))

	sections, err := src.Snapshot()
	assert.NoError(t, err)

	dst := newTestStore(t)
	dst.Restore(sections)

	pending := dst.PendingDeliveries()
	assert.Len(t, pending, 1)
	assert.Equal(t, "bob", pending[0].Receiver,
		"expected the queue entry to keep its narrowed receiver, not revert to the log event's")
}

func TestRestoreAdvancesEventSequence(t *testing.T) {
	src := newTestStore(t)

	event := types.NewEvent(types.KindMessage, "alice", "bob", "hi")
	event.Seq += 10000
	assert.NoError(t, src.AppendUserEvent("bob", event))

	sections, err := src.Snapshot()
	assert.NoError(t, err)

	dst := newTestStore(t)
	dst.Restore(sections)

	// A fresh event must sort after everything restored even when the wire
	// timestamps tie.
	next := types.NewEvent(types.KindMessage, "alice", "bob", "later")
	assert.Greater(t, next.Seq, event.Seq, "expected the sequence counter seeded past the restored maximum")
}

func TestRestoreSkipsCorruptSections(t *testing.T) {
	src := newTestStore(t)
	assert.NoError(t, src.AddUser(testutil.NewUser("alice", types.RolePraca)))
	assert.NoError(t, src.JoinGroup("230.0.0.1", "alice"))

	sections, err := src.Snapshot()
	assert.NoError(t, err)
	sections[SectionUsers] = []byte("{not json")

	dst := newTestStore(t)
	dst.Restore(sections)

	assert.Empty(t, dst.Users(), "expected the corrupt section to be skipped")
	assert.Equal(t, []string{"230.0.0.1"}, dst.Groups(), "expected intact sections to restore")
}

func TestRestoreIgnoresMissingSections(t *testing.T) {
	dst := newTestStore(t)
	assert.NoError(t, dst.AddUser(testutil.NewUser("alice", types.RolePraca)))

	dst.Restore(map[string][]byte{})

	users := dst.Users()
	assert.Len(t, users, 1, "expected an absent section to leave the table untouched")
}
