package transport

import (
	"errors"
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/joaopsoliveira03-school/estg-sd/internal/protocol"
)

const datagramBufferSize = 1024

// MulticastListener receives datagrams for every multicast group the server
// has joined, one reader per group. Groups are joined on demand when a user
// joins them over the protocol.
type MulticastListener struct {
	log        *log.Logger
	port       int
	dispatcher *protocol.Dispatcher
	mu         sync.Mutex
	groups     map[string]*net.UDPConn
	wg         sync.WaitGroup
}

func NewMulticastListener(logger *log.Logger, port int, dispatcher *protocol.Dispatcher) *MulticastListener {
	return &MulticastListener{
		log:        logger,
		port:       port,
		dispatcher: dispatcher,
		groups:     make(map[string]*net.UDPConn),
	}
}

// Join subscribes the server to the group address. Joining a group twice is
// a no-op.
func (l *MulticastListener) Join(group string) error {
	ip := net.ParseIP(group)
	if ip == nil || !ip.IsMulticast() {
		return fmt.Errorf("not a multicast address: %q", group)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.groups[group]; ok {
		return nil
	}

	conn, err := net.ListenMulticastUDP("udp4", nil, &net.UDPAddr{IP: ip, Port: l.port})
	if err != nil {
		return fmt.Errorf("join group %s: %w", group, err)
	}
	l.groups[group] = conn

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.read(conn, protocol.Multicast)
	}()
	return nil
}

func (l *MulticastListener) read(conn *net.UDPConn, connType protocol.ConnType) {
	buf := make([]byte, datagramBufferSize)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				l.log.Println("multicast read:", err)
			}
			return
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])
		l.dispatcher.Process(connType, nil, payload)
	}
}

// Stop leaves every joined group and waits for the readers to exit.
func (l *MulticastListener) Stop() {
	l.mu.Lock()
	for _, conn := range l.groups {
		conn.Close()
	}
	l.mu.Unlock()
	l.wg.Wait()
}

// BroadcastListener receives datagrams on the broadcast leg and feeds them to
// the dispatcher.
type BroadcastListener struct {
	log        *log.Logger
	port       int
	dispatcher *protocol.Dispatcher
	conn       *net.UDPConn
	done       chan struct{}
}

func NewBroadcastListener(logger *log.Logger, port int, dispatcher *protocol.Dispatcher) *BroadcastListener {
	return &BroadcastListener{
		log:        logger,
		port:       port,
		dispatcher: dispatcher,
		done:       make(chan struct{}),
	}
}

func (l *BroadcastListener) Listen() error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: l.port})
	if err != nil {
		return fmt.Errorf("listen broadcast port %d: %w", l.port, err)
	}
	l.conn = conn
	return nil
}

func (l *BroadcastListener) Serve() {
	defer close(l.done)

	buf := make([]byte, datagramBufferSize)
	for {
		n, _, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				l.log.Println("broadcast read:", err)
			}
			return
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])
		l.dispatcher.Process(protocol.Broadcast, nil, payload)
	}
}

func (l *BroadcastListener) Stop() {
	if l.conn != nil {
		l.conn.Close()
		<-l.done
	}
}
