package protocol

import (
	"log"

	"github.com/tidwall/gjson"

	"github.com/joaopsoliveira03-school/estg-sd/internal/store"
)

// ConnType identifies the transport an envelope arrived over.
type ConnType int

const (
	Direct ConnType = iota
	Multicast
	Broadcast
)

func (t ConnType) String() string {
	switch t {
	case Direct:
		return "direct"
	case Multicast:
		return "multicast"
	case Broadcast:
		return "broadcast"
	}
	return "unknown"
}

// Pusher performs outbound deliveries for the server: fresh-dial pushes and
// query round-trips to a user's last known address, and datagram fan-out over
// the multicast/broadcast legs.
type Pusher interface {
	Push(host string, env *Envelope) error
	Ask(host string, env *Envelope) (*Envelope, error)
	MulticastSend(group string, env *Envelope) error
	BroadcastSend(env *Envelope) error
}

// GroupJoiner subscribes the server's multicast leg to a group address so
// subsequent datagrams for that group are received.
type GroupJoiner interface {
	Join(group string) error
}

// Dispatcher parses inbound command envelopes and routes them to the session
// handler, the event engine, or the group tables. It holds no state of its
// own; all side effects land in the store.
type Dispatcher struct {
	log      *log.Logger
	store    *store.Store
	sessions *SessionHandler
	events   *EventEngine
	joiner   GroupJoiner
}

func NewDispatcher(logger *log.Logger, st *store.Store, sessions *SessionHandler, events *EventEngine) *Dispatcher {
	return &Dispatcher{
		log:      logger,
		store:    st,
		sessions: sessions,
		events:   events,
	}
}

// SetGroupJoiner wires the multicast leg in once it exists; the listener and
// the dispatcher reference each other, so the joiner arrives after
// construction.
func (d *Dispatcher) SetGroupJoiner(joiner GroupJoiner) {
	d.joiner = joiner
}

// Process handles one raw envelope from any transport. The returned bytes are
// the synchronous reply to write back on the direct connection; nil means no
// reply. Multicast and broadcast traffic has no reply path, so malformed
// input there is dropped silently.
func (d *Dispatcher) Process(connType ConnType, conn store.Conn, raw []byte) []byte {
	if !gjson.ValidBytes(raw) {
		d.log.Printf("invalid envelope received over %s", connType)
		if connType == Direct {
			return d.encodeReply(ResponseEnvelope(RespInvalidCommand))
		}
		return nil
	}

	command := gjson.GetBytes(raw, "command")
	if !command.Exists() {
		d.log.Printf("envelope without command over %s", connType)
		if connType == Direct {
			return d.encodeReply(ResponseEnvelope(RespInvalidCommand))
		}
		return nil
	}

	// A direct envelope carrying a resolvable identity re-binds that user to
	// the current connection, healing stale bindings without a re-login.
	if connType == Direct && conn != nil {
		d.rebind(raw, conn)
	}

	env, err := ParseEnvelope(raw)
	if err != nil {
		d.log.Printf("unparseable envelope over %s: %v", connType, err)
		if connType == Direct {
			return d.encodeReply(ResponseEnvelope(RespInvalidCommand))
		}
		return nil
	}

	switch command.String() {
	case CmdRegister:
		if connType != Direct {
			return nil
		}
		return d.encodeReply(d.sessions.Register(env, conn))
	case CmdLogin:
		if connType != Direct {
			return nil
		}
		return d.encodeReply(d.sessions.Login(env, conn))
	case CmdMessage, CmdRequest:
		d.events.Receive(connType, env)
		return nil
	case CmdJoinGroup:
		d.joinGroup(env)
		return nil
	default:
		d.log.Printf("unknown command %q over %s", command.String(), connType)
		return nil
	}
}

// rebind points the sender's connection binding at the current connection
// when the envelope names a known user.
func (d *Dispatcher) rebind(raw []byte, conn store.Conn) {
	for _, field := range []string{"username", "from"} {
		identity := gjson.GetBytes(raw, field)
		if !identity.Exists() {
			continue
		}
		username := identity.String()
		if _, ok := d.store.GetUser(username); !ok {
			continue
		}
		if bound, ok := d.store.Connection(username); ok && bound == conn {
			continue
		}
		if err := d.store.BindConnection(username, conn); err != nil {
			d.log.Printf("rebind %q: %v", username, err)
		}
	}
}

func (d *Dispatcher) joinGroup(env *Envelope) {
	if env.Group == "" || env.Username == "" {
		d.log.Println("joinGroup envelope missing group or username")
		return
	}
	if _, ok := d.store.GetUser(env.Username); !ok {
		d.log.Printf("joinGroup from unknown user %q", env.Username)
		return
	}
	if d.joiner != nil {
		if err := d.joiner.Join(env.Group); err != nil {
			d.log.Printf("join multicast group %q: %v", env.Group, err)
		}
	}
	if err := d.store.JoinGroup(env.Group, env.Username); err != nil {
		d.log.Printf("joinGroup %q for %q: %v", env.Group, env.Username, err)
	}
}

func (d *Dispatcher) encodeReply(env *Envelope) []byte {
	raw, err := env.Encode()
	if err != nil {
		d.log.Println("encode reply:", err)
		return nil
	}
	return raw
}
