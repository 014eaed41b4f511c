package protocol

import (
	"log"
	"time"

	"github.com/joaopsoliveira03-school/estg-sd/internal/stats"
	"github.com/joaopsoliveira03-school/estg-sd/internal/store"
	"github.com/joaopsoliveira03-school/estg-sd/internal/types"
)

// SessionHandler owns registration and login, each binding a user identity to
// the originating direct connection.
type SessionHandler struct {
	log      *log.Logger
	store    *store.Store
	pusher   Pusher
	stats    stats.Provider
	debounce time.Duration
}

func NewSessionHandler(logger *log.Logger, st *store.Store, pusher Pusher, sp stats.Provider, debounce time.Duration) *SessionHandler {
	return &SessionHandler{
		log:      logger,
		store:    st,
		pusher:   pusher,
		stats:    sp,
		debounce: debounce,
	}
}

// Register creates a new user and binds the current connection. Negative
// outcomes are response strings, not errors.
func (h *SessionHandler) Register(env *Envelope, conn store.Conn) *Envelope {
	if _, ok := h.store.GetUser(env.Username); ok {
		h.log.Println("attempted to register an existing user")
		return ResponseEnvelope(RespUserExists)
	}

	role, err := types.ParseRole(env.Role)
	if err != nil {
		return ResponseEnvelope(RespInvalidRole)
	}

	user := types.User{
		Username: env.Username,
		Name:     env.Name,
		Password: env.Password,
		Role:     role,
	}
	if err := h.store.AddUser(user); err != nil {
		if err == store.ErrDuplicateUser {
			return ResponseEnvelope(RespUserExists)
		}
		h.log.Println("add user:", err)
		return ResponseEnvelope(err.Error())
	}

	if conn != nil {
		if err := h.store.BindConnection(user.Username, conn); err != nil {
			h.log.Printf("bind connection for %q: %v", user.Username, err)
		}
	}
	return ResponseEnvelope(RespOK)
}

// Login verifies credentials, binds the connection, and schedules a one-shot
// history replay. Passwords are compared in plaintext by design.
func (h *SessionHandler) Login(env *Envelope, conn store.Conn) *Envelope {
	user, ok := h.store.GetUser(env.Username)
	if !ok {
		h.log.Println("attempted login with an unknown username")
		return ResponseEnvelope(RespInvalidUsername)
	}
	if user.Password != env.Password {
		h.log.Println("attempted login with an invalid password")
		return ResponseEnvelope(RespInvalidPassword)
	}

	if conn != nil {
		if err := h.store.BindConnection(user.Username, conn); err != nil {
			h.log.Printf("bind connection for %q: %v", user.Username, err)
		}
	}

	go h.replayHistory(user.Username)

	return ResponseEnvelope(RespOK)
}

// replayHistory pushes the user's full ordered event log as one history
// envelope over a fresh outbound connection. The debounce gives the client
// time to finish standing up its side of the duplex channel.
func (h *SessionHandler) replayHistory(username string) {
	time.Sleep(h.debounce)

	events := h.store.UserEvents(username)
	if len(events) == 0 {
		return
	}

	conn, ok := h.store.Connection(username)
	if !ok {
		h.log.Printf("history for %q: no connection bound", username)
		return
	}

	if err := h.pusher.Push(conn.RemoteHost(), HistoryEnvelope(events)); err != nil {
		h.log.Printf("history push to %q: %v", username, err)
		h.store.UnbindConnection(username)
		return
	}
	h.stats.Incr(stats.HistoryReplays)
}
