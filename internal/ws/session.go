package ws

import (
	"sync"

	"github.com/google/uuid"
	"github.com/kiran-v/ripplechat/internal/auth"
)

// State is a session's position in its lifecycle. Transitions only move
// forward: Unauthenticated → Authenticated → Joined → Closed. A session
// never regresses; in particular a bound principal is immutable.
type State int32

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Transport is the write side of one live connection. Send must be safe
// for concurrent use; a failed Send marks the connection dead from the
// registry's point of view.
type Transport interface {
	Send(ev Event) error
	Close() error
}

// Session is the per-connection state machine. All mutation goes
// through its mutex, so a deregister racing a broadcast can never write
// to a transport the session already considers closed.
type Session struct {
	id        string
	transport Transport

	mu        sync.Mutex
	state     State
	principal *auth.Principal
	rooms     map[uuid.UUID]struct{}
}

func newSession(id string, transport Transport) *Session {
	return &Session{
		id:        id,
		transport: transport,
		state:     StateUnauthenticated,
		rooms:     make(map[uuid.UUID]struct{}),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Principal returns the bound identity, or nil before authentication.
func (s *Session) Principal() *auth.Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.principal
}

// authenticate binds the principal. Only valid from Unauthenticated:
// re-authentication is rejected, never overwritten.
func (s *Session) authenticate(p *auth.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateUnauthenticated:
		s.state = StateAuthenticated
		s.principal = p
		return nil
	case StateClosed:
		return ErrSessionClosed
	default:
		return ErrAlreadyAuthenticated
	}
}

// join adds a room to the joined set. Requires at least Authenticated;
// repeated joins accumulate.
func (s *Session) join(room uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateUnauthenticated:
		return ErrUnauthenticated
	case StateClosed:
		return ErrSessionClosed
	}

	s.rooms[room] = struct{}{}
	s.state = StateJoined
	return nil
}

// leave removes a room from the joined set. Used to roll back a join
// whose room-index insert lost the race with deregistration.
func (s *Session) leave(room uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, room)
}

// joined reports whether the session is a live member of the room.
func (s *Session) joined(room uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[room]
	return ok
}

// joinedRooms snapshots the joined set, for deregistration.
func (s *Session) joinedRooms() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := make([]uuid.UUID, 0, len(s.rooms))
	for room := range s.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// close moves the session to its terminal state. Safe to call more
// than once; returns whether this call performed the transition.
func (s *Session) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return false
	}
	s.state = StateClosed
	return true
}

// Send delivers an event unless the session is already closed. A
// delivery racing close fails soft with ErrSessionClosed.
func (s *Session) Send(ev Event) error {
	s.mu.Lock()
	closed := s.state == StateClosed
	s.mu.Unlock()

	if closed {
		return ErrSessionClosed
	}
	return s.transport.Send(ev)
}
