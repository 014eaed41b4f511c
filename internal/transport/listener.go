package transport

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/joaopsoliveira03-school/estg-sd/internal/protocol"
)

const maxEnvelopeSize = 64 * 1024

// DirectListener accepts persistent client connections and runs one reader
// goroutine per connection. Envelopes on one connection are processed
// strictly in arrival order; replies are written back synchronously.
type DirectListener struct {
	log        *log.Logger
	addr       string
	dispatcher *protocol.Dispatcher
	ln         net.Listener
	connsMu    sync.Mutex
	conns      map[*Conn]struct{}
	wg         sync.WaitGroup
}

func NewDirectListener(logger *log.Logger, addr string, dispatcher *protocol.Dispatcher) *DirectListener {
	return &DirectListener{
		log:        logger,
		addr:       addr,
		dispatcher: dispatcher,
		conns:      make(map[*Conn]struct{}),
	}
}

// Listen binds the direct port. A bind failure here is the one fatal startup
// error the server has.
func (l *DirectListener) Listen() error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", l.addr, err)
	}
	l.ln = ln
	return nil
}

// Serve accepts connections until the listener is closed.
func (l *DirectListener) Serve() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.log.Println("accept:", err)
			continue
		}

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handle(conn)
		}()
	}
}

func (l *DirectListener) handle(netConn net.Conn) {
	conn := NewConn(netConn)
	l.connsMu.Lock()
	l.conns[conn] = struct{}{}
	l.connsMu.Unlock()

	defer func() {
		conn.Close()
		l.connsMu.Lock()
		delete(l.conns, conn)
		l.connsMu.Unlock()
	}()

	scanner := bufio.NewScanner(netConn)
	scanner.Buffer(make([]byte, 0, 4096), maxEnvelopeSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		if reply := l.dispatcher.Process(protocol.Direct, conn, line); reply != nil {
			if _, err := fmt.Fprintf(netConn, "%s\n", reply); err != nil {
				l.log.Printf("write reply to %s: %v", conn.RemoteHost(), err)
				break
			}
		}
	}
	if err := scanner.Err(); err != nil {
		l.log.Printf("read from %s: %v", conn.RemoteHost(), err)
	}
	conn.MarkClosed()
}

// Stop closes the listening socket and every live connection, then waits for
// the per-connection readers to exit.
func (l *DirectListener) Stop() {
	if l.ln != nil {
		l.ln.Close()
	}

	l.connsMu.Lock()
	for conn := range l.conns {
		conn.Close()
	}
	l.connsMu.Unlock()

	l.wg.Wait()
}
