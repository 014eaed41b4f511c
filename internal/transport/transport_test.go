package transport

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/joaopsoliveira03-school/estg-sd/internal/protocol"
	"github.com/joaopsoliveira03-school/estg-sd/internal/stats"
	"github.com/joaopsoliveira03-school/estg-sd/internal/store"
	"github.com/joaopsoliveira03-school/estg-sd/internal/testutil"
	"github.com/joaopsoliveira03-school/estg-sd/internal/types"
)

func newTestDispatcher(t *testing.T) (*protocol.Dispatcher, *store.Store) {
	logger := testutil.TestLogger(t)
	st := store.NewStore(logger)

	sp := &stats.MockUpdater{}
	sp.On("Incr", mock.Anything).Maybe()
	approvals := &protocol.MockApprovalStarter{}
	approvals.On("Start", mock.Anything, mock.Anything).Maybe()

	pusher := &protocol.MockPusher{}
	sessions := protocol.NewSessionHandler(logger, st, pusher, sp, time.Millisecond)
	events := protocol.NewEventEngine(logger, st, sp, approvals)
	return protocol.NewDispatcher(logger, st, sessions, events), st
}

// tcpPeer accepts one connection and hands each received line to reply,
// writing any returned bytes back.
func tcpPeer(t *testing.T, reply func([]byte) []byte) (host string, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			if out := reply(append([]byte(nil), scanner.Bytes()...)); out != nil {
				fmt.Fprintf(conn, "%s\n", out)
			}
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func TestNewConn(t *testing.T) {
	host, port := tcpPeer(t, func([]byte) []byte { return nil })

	netConn, err := net.Dial("tcp", net.JoinHostPort(host, fmt.Sprint(port)))
	assert.NoError(t, err)

	conn := NewConn(netConn)
	assert.Equal(t, "127.0.0.1", conn.RemoteHost(), "expected the ephemeral port stripped")
	assert.False(t, conn.Closed())

	conn.MarkClosed()
	assert.True(t, conn.Closed())
	assert.NoError(t, conn.Close())
}

func TestPusherPush(t *testing.T) {
	lines := make(chan []byte, 1)
	host, port := tcpPeer(t, func(line []byte) []byte {
		lines <- line
		return nil
	})

	p := NewNetPusher(testutil.TestLogger(t), port, 0, "", time.Second)
	assert.NoError(t, p.Push(host, protocol.ResponseEnvelope(protocol.RespOK)))

	select {
	case line := <-lines:
		var env protocol.Envelope
		assert.NoError(t, json.Unmarshal(line, &env))
		assert.Equal(t, protocol.RespOK, env.Response)
	case <-time.After(time.Second):
		t.Fatal("expected the pushed envelope to arrive")
	}
}

func TestPusherPushUnreachableHost(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	p := NewNetPusher(testutil.TestLogger(t), port, 0, "", time.Second)
	assert.Error(t, p.Push("127.0.0.1", protocol.ResponseEnvelope(protocol.RespOK)))
}

func TestPusherAsk(t *testing.T) {
	host, port := tcpPeer(t, func(line []byte) []byte {
		raw, _ := protocol.ResponseEnvelope(protocol.RespYes).Encode()
		return raw
	})

	p := NewNetPusher(testutil.TestLogger(t), port, 0, "", time.Second)
	reply, err := p.Ask(host, &protocol.Envelope{Command: protocol.CmdRequestAnswer, From: "alice"})
	assert.NoError(t, err)
	assert.Equal(t, protocol.RespYes, reply.Response)
}

func TestPusherAskTimesOut(t *testing.T) {
	// The peer reads the query but never answers.
	host, port := tcpPeer(t, func([]byte) []byte { return nil })

	p := NewNetPusher(testutil.TestLogger(t), port, 0, "", 50*time.Millisecond)
	_, err := p.Ask(host, &protocol.Envelope{Command: protocol.CmdRequestAnswer})
	assert.Error(t, err, "expected an unresponsive candidate to fail the round-trip")
}

func TestDirectListener(t *testing.T) {
	dispatcher, st := newTestDispatcher(t)

	l := NewDirectListener(testutil.TestLogger(t), "127.0.0.1:0", dispatcher)
	assert.NoError(t, l.Listen())
	go l.Serve()
	defer l.Stop()

	conn, err := net.Dial("tcp", l.ln.Addr().String())
	assert.NoError(t, err)
	defer conn.Close()

	fmt.Fprintf(conn, `{"command":"register","username":"alice","password":"pw","name":"Alice","role":"praca"}`+"\n")

	scanner := bufio.NewScanner(conn)
	assert.True(t, scanner.Scan(), "expected a synchronous reply")
	var env protocol.Envelope
	assert.NoError(t, json.Unmarshal(scanner.Bytes(), &env))
	assert.Equal(t, protocol.RespOK, env.Response)

	_, ok := st.GetUser("alice")
	assert.True(t, ok)
}

func TestBroadcastListener(t *testing.T) {
	dispatcher, st := newTestDispatcher(t)
	assert.NoError(t, st.AddUser(testutil.NewUser("alice", types.RolePraca)))
	assert.NoError(t, st.AddUser(testutil.NewUser("bob", types.RoleSargento)))

	l := NewBroadcastListener(testutil.TestLogger(t), 0, dispatcher)
	assert.NoError(t, l.Listen())
	go l.Serve()
	defer l.Stop()

	port := l.conn.LocalAddr().(*net.UDPAddr).Port
	p := NewNetPusher(testutil.TestLogger(t), port, 0, "127.0.0.1", time.Second)
	assert.NoError(t, p.BroadcastSend(&protocol.Envelope{
		Command: protocol.CmdMessage,
		From:    "alice",
		To:      types.BroadcastReceiver,
		Content: "hi",
	}))

	ok := testutil.Eventually(t, time.Second, func() bool {
		return len(st.UserEvents("bob")) == 1
	})
	assert.True(t, ok, "expected the datagram to land in the recipient logs")
}

func TestMulticastJoinRejectsUnicastAddress(t *testing.T) {
	dispatcher, _ := newTestDispatcher(t)
	l := NewMulticastListener(testutil.TestLogger(t), 0, dispatcher)
	defer l.Stop()

	assert.Error(t, l.Join("192.168.1.1"))
	assert.Error(t, l.Join("not-an-ip"))
}
