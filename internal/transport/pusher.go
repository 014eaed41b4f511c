package transport

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"strconv"
	"time"

	"github.com/joaopsoliveira03-school/estg-sd/internal/protocol"
)

const dialTimeout = 5 * time.Second

// NetPusher performs the server's outbound legs: fresh TCP dials to a
// client's user port for pushes and query round-trips, and UDP datagrams for
// the multicast and broadcast fan-out.
type NetPusher struct {
	log           *log.Logger
	userPort      int
	multicastPort int
	broadcastAddr string
	askTimeout    time.Duration
}

func NewNetPusher(logger *log.Logger, userPort, multicastPort int, broadcastAddr string, askTimeout time.Duration) *NetPusher {
	return &NetPusher{
		log:           logger,
		userPort:      userPort,
		multicastPort: multicastPort,
		broadcastAddr: broadcastAddr,
		askTimeout:    askTimeout,
	}
}

// Push dials the host's user port, writes one envelope line, and closes.
func (p *NetPusher) Push(host string, env *protocol.Envelope) error {
	raw, err := env.Encode()
	if err != nil {
		return err
	}

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(p.userPort)), dialTimeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", host, err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "%s\n", raw); err != nil {
		return fmt.Errorf("write to %s: %w", host, err)
	}
	return nil
}

// Ask dials the host, writes one envelope line, and waits for a single reply
// line under the answer deadline. An unresponsive peer fails the round-trip
// instead of stalling the caller forever.
func (p *NetPusher) Ask(host string, env *protocol.Envelope) (*protocol.Envelope, error) {
	raw, err := env.Encode()
	if err != nil {
		return nil, err
	}

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(p.userPort)), dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", host, err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "%s\n", raw); err != nil {
		return nil, fmt.Errorf("write to %s: %w", host, err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(p.askTimeout)); err != nil {
		return nil, err
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read reply from %s: %w", host, err)
	}
	return protocol.ParseEnvelope(line)
}

// MulticastSend writes one datagram to the group address.
func (p *NetPusher) MulticastSend(group string, env *protocol.Envelope) error {
	return p.datagram(net.JoinHostPort(group, strconv.Itoa(p.multicastPort)), env)
}

// BroadcastSend writes one datagram to the broadcast address.
func (p *NetPusher) BroadcastSend(env *protocol.Envelope) error {
	return p.datagram(net.JoinHostPort(p.broadcastAddr, strconv.Itoa(p.userPort)), env)
}

func (p *NetPusher) datagram(addr string, env *protocol.Envelope) error {
	raw, err := env.Encode()
	if err != nil {
		return err
	}

	conn, err := net.Dial("udp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	if _, err := conn.Write(raw); err != nil {
		return fmt.Errorf("write datagram to %s: %w", addr, err)
	}
	return nil
}
