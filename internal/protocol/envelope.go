package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/joaopsoliveira03-school/estg-sd/internal/types"
)

// Wire commands.
const (
	CmdRegister      = "register"
	CmdLogin         = "login"
	CmdMessage       = "message"
	CmdRequest       = "request"
	CmdRequestAnswer = "requestAnswer"
	CmdHistory       = "history"
	CmdJoinGroup     = "joinGroup"
)

// Canned response strings surfaced to direct callers. Failures are carried in
// the response field, never as protocol-level errors.
const (
	RespOK              = "OK"
	RespYes             = "YES"
	RespNo              = "NO"
	RespInvalidCommand  = "Invalid command!"
	RespUserExists      = "User already exists!"
	RespInvalidRole     = "Invalid role!"
	RespInvalidUsername = "Invalid username!"
	RespInvalidPassword = "Invalid password!"
)

// Envelope is the single-line JSON unit every transport carries. Only the
// fields relevant to a given command are populated.
type Envelope struct {
	Command  string `json:"command,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Name     string `json:"name,omitempty"`
	Role     string `json:"role,omitempty"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	Content  string `json:"content,omitempty"`
	Date     string `json:"date,omitempty"`
	// Accepter is present on request envelopes, empty until resolved.
	Accepter *string    `json:"accepter,omitempty"`
	Group    string     `json:"group,omitempty"`
	Response string     `json:"response,omitempty"`
	Events   []Envelope `json:"events,omitempty"`
}

// ParseEnvelope decodes a raw envelope.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("parse envelope: %w", err)
	}
	return &env, nil
}

// Encode serializes the envelope for the wire.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// ResponseEnvelope builds a bare response envelope.
func ResponseEnvelope(text string) *Envelope {
	return &Envelope{Response: text}
}

// EventEnvelope serializes an event as an outbound message or request
// envelope. Requests always carry the accepter field, empty while the request
// is unresolved.
func EventEnvelope(event *types.Event) *Envelope {
	env := &Envelope{
		Command: string(event.Kind),
		From:    event.Sender,
		To:      event.Receiver,
		Content: event.Content,
		Date:    event.Timestamp.Format(types.WireDate),
	}
	if event.Kind == types.KindRequest {
		accepter := event.Accepter
		env.Accepter = &accepter
	}
	return env
}

// HistoryEnvelope packages an ordered event log as a single history push.
func HistoryEnvelope(events []*types.Event) *Envelope {
	env := &Envelope{Command: CmdHistory}
	env.Events = make([]Envelope, len(events))
	for i, event := range events {
		env.Events[i] = *EventEnvelope(event)
	}
	return env
}

// ServerMessage builds a reporter message sent on behalf of the server.
func ServerMessage(to, content string) *Envelope {
	event := types.NewEvent(types.KindMessage, types.ServerSender, to, content)
	return EventEnvelope(event)
}
