package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/joaopsoliveira03-school/estg-sd/internal/stats"
	"github.com/joaopsoliveira03-school/estg-sd/internal/store"
	"github.com/joaopsoliveira03-school/estg-sd/internal/testutil"
	"github.com/joaopsoliveira03-school/estg-sd/internal/types"
)

func newTestEventEngine(t *testing.T) (*EventEngine, *store.Store, *stats.MockUpdater, *MockApprovalStarter) {
	logger := testutil.TestLogger(t)
	st := store.NewStore(logger)
	sp := &stats.MockUpdater{}
	sp.On("Incr", mock.Anything).Maybe()
	approvals := &MockApprovalStarter{}
	return NewEventEngine(logger, st, sp, approvals), st, sp, approvals
}

func TestReceiveDirectMessage(t *testing.T) {
	e, st, _, _ := newTestEventEngine(t)
	assert.NoError(t, st.AddUser(testutil.NewUser("alice", types.RolePraca)))
	assert.NoError(t, st.AddUser(testutil.NewUser("bob", types.RoleSargento)))

	e.Receive(Direct, &Envelope{Command: CmdMessage, From: "alice", To: "bob", Content: "hi"})

	aliceLog := st.UserEvents("alice")
	bobLog := st.UserEvents("bob")
	assert.Len(t, aliceLog, 1, "expected the sender's log to record the event")
	assert.Len(t, bobLog, 1)
	assert.Equal(t, aliceLog[0].ID, bobLog[0].ID, "expected both logs to record the same event")

	pending := st.PendingDeliveries()
	assert.Len(t, pending, 1, "expected one queued push for the receiver")
	assert.Equal(t, "bob", pending[0].Receiver)
	assert.Equal(t, aliceLog[0].ID, pending[0].ID)
}

func TestReceiveDropsInvalidEnvelopes(t *testing.T) {
	e, st, _, _ := newTestEventEngine(t)
	assert.NoError(t, st.AddUser(testutil.NewUser("alice", types.RolePraca)))

	tcases := []struct {
		name string
		env  *Envelope
	}{
		{"missing content", &Envelope{Command: CmdMessage, From: "alice", To: "alice"}},
		{"missing sender", &Envelope{Command: CmdMessage, To: "alice", Content: "hi"}},
		{"unknown sender", &Envelope{Command: CmdMessage, From: "ghost", To: "alice", Content: "hi"}},
		{"unknown receiver", &Envelope{Command: CmdMessage, From: "alice", To: "ghost", Content: "hi"}},
		{"non-event command", &Envelope{Command: CmdLogin, From: "alice", To: "alice", Content: "hi"}},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			e.Receive(Direct, tc.env)
			assert.Empty(t, st.UserEvents("alice"), "expected the envelope dropped without side effects")
			assert.Empty(t, st.PendingDeliveries())
		})
	}
}

func TestReceiveIgnoresServerSender(t *testing.T) {
	e, st, sp, _ := newTestEventEngine(t)

	e.Receive(Broadcast, &Envelope{
		Command: CmdMessage,
		From:    types.ServerSender,
		To:      types.BroadcastReceiver,
		Content: "Total Requests / Accepted Requests: 1 / 0",
	})

	assert.Empty(t, st.PendingDeliveries())
	sp.AssertNotCalled(t, "Incr", stats.EnvelopesDropped)
}

func TestReceiveBroadcastAppendsExactlyOnce(t *testing.T) {
	e, st, _, _ := newTestEventEngine(t)
	assert.NoError(t, st.AddUser(testutil.NewUser("alice", types.RolePraca)))
	assert.NoError(t, st.AddUser(testutil.NewUser("bob", types.RoleSargento)))
	assert.NoError(t, st.AddUser(testutil.NewUser("carol", types.RoleMajor)))

	e.Receive(Direct, &Envelope{Command: CmdMessage, From: "alice", To: types.BroadcastReceiver, Content: "hi"})

	// The sender is also a broadcast recipient; its log still gets one entry.
	for _, username := range []string{"alice", "bob", "carol"} {
		assert.Lenf(t, st.UserEvents(username), 1, "expected exactly one entry in %s's log", username)
	}

	pending := st.PendingDeliveries()
	assert.Len(t, pending, 2, "expected pushes for everyone but the sender")
	receivers := map[string]bool{}
	for _, event := range pending {
		receivers[event.Receiver] = true
		assert.Equal(t, pending[0].ID, event.ID, "expected fan-out clones to share the event identity")
	}
	assert.True(t, receivers["bob"])
	assert.True(t, receivers["carol"])
}

func TestReceiveDatagramOriginSkipsDeliveryQueue(t *testing.T) {
	e, st, _, _ := newTestEventEngine(t)
	assert.NoError(t, st.AddUser(testutil.NewUser("alice", types.RolePraca)))
	assert.NoError(t, st.AddUser(testutil.NewUser("bob", types.RoleSargento)))

	e.Receive(Broadcast, &Envelope{Command: CmdMessage, From: "alice", To: types.BroadcastReceiver, Content: "hi"})

	assert.Len(t, st.UserEvents("bob"), 1, "expected the log still updated")
	assert.Empty(t, st.PendingDeliveries(), "expected no pushes: the datagram already fanned out")
}

func TestReceiveGroupMessage(t *testing.T) {
	e, st, _, _ := newTestEventEngine(t)
	assert.NoError(t, st.AddUser(testutil.NewUser("alice", types.RolePraca)))
	assert.NoError(t, st.AddUser(testutil.NewUser("bob", types.RoleSargento)))
	assert.NoError(t, st.AddUser(testutil.NewUser("carol", types.RoleMajor)))
	assert.NoError(t, st.JoinGroup("230.0.0.1", "alice"))
	assert.NoError(t, st.JoinGroup("230.0.0.1", "bob"))

	e.Receive(Direct, &Envelope{Command: CmdMessage, From: "alice", To: "230.0.0.1", Content: "hi"})

	assert.Len(t, st.UserEvents("alice"), 1)
	assert.Len(t, st.UserEvents("bob"), 1)
	assert.Empty(t, st.UserEvents("carol"), "expected non-members untouched")

	pending := st.PendingDeliveries()
	assert.Len(t, pending, 1)
	assert.Equal(t, "bob", pending[0].Receiver, "expected the group entry narrowed to the one member to push")
}

func TestReceiveRequestStartsApproval(t *testing.T) {
	e, st, sp, approvals := newTestEventEngine(t)
	assert.NoError(t, st.AddUser(testutil.NewUser("alice", types.RolePraca)))
	assert.NoError(t, st.AddUser(testutil.NewUser("bob", types.RoleSargento)))

	approvals.On("Start", Direct, mock.Anything)

	e.Receive(Direct, &Envelope{Command: CmdRequest, From: "alice", To: "bob", Content: "permission"})

	approvals.AssertNumberOfCalls(t, "Start", 1)
	request := approvals.Calls[0].Arguments.Get(1).(*types.Event)
	assert.Equal(t, types.KindRequest, request.Kind)
	assert.Equal(t, "alice", request.Sender)
	sp.AssertCalled(t, "Incr", stats.RequestsReceived)
}

func TestReceiveQueueEntriesAreDetachedCopies(t *testing.T) {
	e, st, _, approvals := newTestEventEngine(t)
	assert.NoError(t, st.AddUser(testutil.NewUser("alice", types.RolePraca)))
	assert.NoError(t, st.AddUser(testutil.NewUser("bob", types.RoleSargento)))

	approvals.On("Start", Direct, mock.Anything)
	e.Receive(Direct, &Envelope{Command: CmdRequest, From: "alice", To: "bob", Content: "permission"})

	// Resolving the logged request must not reach into the queue entry,
	// which is a private snapshot taken when the event arrived.
	request := approvals.Calls[0].Arguments.Get(1).(*types.Event)
	assert.True(t, st.ResolveRequest(request, "bob"))

	pending := st.PendingDeliveries()
	assert.Len(t, pending, 1)
	assert.NotSame(t, request, pending[0])
	assert.Empty(t, pending[0].Accepter)
}
