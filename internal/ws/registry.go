package ws

import (
	"sync"

	"github.com/google/uuid"
	"github.com/kiran-v/ripplechat/internal/auth"
	"go.uber.org/zap"
)

// Registry tracks every live connection and the room fan-out index. It
// is the only path for answering "which connections belong to room R"
// and owns the session table: sessions are created on Register and
// destroyed on Deregister, nowhere else.
//
// The room index is reference-counted implicitly: a room entry appears
// on first join and is deleted when its last member leaves, so the
// index never grows beyond the set of currently occupied rooms.
type Registry struct {
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	rooms    map[uuid.UUID]map[string]*Session
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger:   logger,
		sessions: make(map[string]*Session),
		rooms:    make(map[uuid.UUID]map[string]*Session),
	}
}

// Register adds a new unauthenticated session for the transport and
// returns it. Always succeeds.
func (r *Registry) Register(connID string, transport Transport) *Session {
	sess := newSession(connID, transport)

	r.mu.Lock()
	r.sessions[connID] = sess
	total := len(r.sessions)
	r.mu.Unlock()

	r.logger.Info("connection registered",
		zap.String("conn_id", connID),
		zap.Int("total_connections", total),
	)
	return sess
}

// Get returns the session for a connection id, if it is still live.
func (r *Registry) Get(connID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[connID]
	return sess, ok
}

// Authenticate binds a verified principal to the connection. Calling it
// on an already-authenticated or closed connection is a logged no-op:
// the existing binding is never overwritten.
func (r *Registry) Authenticate(connID string, principal *auth.Principal) error {
	r.mu.RLock()
	sess, ok := r.sessions[connID]
	r.mu.RUnlock()
	if !ok {
		r.logger.Warn("authenticate on unknown connection", zap.String("conn_id", connID))
		return ErrUnknownSession
	}

	if err := sess.authenticate(principal); err != nil {
		r.logger.Warn("authenticate rejected",
			zap.String("conn_id", connID),
			zap.String("state", sess.State().String()),
			zap.Error(err),
		)
		return err
	}

	r.logger.Info("connection authenticated",
		zap.String("conn_id", connID),
		zap.String("user_id", principal.UserID.String()),
	)
	return nil
}

// Join adds the connection to a room's fan-out index. The connection
// must be authenticated; unauthenticated joins leave all state
// untouched.
func (r *Registry) Join(connID string, room uuid.UUID) error {
	r.mu.RLock()
	sess, ok := r.sessions[connID]
	r.mu.RUnlock()
	if !ok {
		return ErrUnknownSession
	}

	// Session state first: if this fails, the room index is untouched.
	if err := sess.join(room); err != nil {
		return err
	}

	r.mu.Lock()
	// A deregister can slot in between the session mutation above and
	// this lock. Its joinedRooms snapshot already held the new room but
	// found no index entry to delete, so inserting now would strand a
	// closed session in the index with nothing left to remove it.
	if _, live := r.sessions[connID]; !live {
		r.mu.Unlock()
		sess.leave(room)
		return ErrSessionClosed
	}
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]*Session)
		r.rooms[room] = members
	}
	members[connID] = sess
	size := len(members)
	r.mu.Unlock()

	r.logger.Info("connection joined room",
		zap.String("conn_id", connID),
		zap.String("room", room.String()),
		zap.Int("room_size", size),
	)
	return nil
}

// Members snapshots the sessions currently joined to a room. The
// snapshot is safe to iterate without holding the registry lock, so a
// slow recipient can never block joins or other rooms' traffic.
func (r *Registry) Members(room uuid.UUID) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]*Session, 0, len(r.rooms[room]))
	for _, sess := range r.rooms[room] {
		members = append(members, sess)
	}
	return members
}

// Deregister removes the connection from every room index and the
// session table, closes the session, and closes its transport.
// Idempotent: a second call on the same id is a silent no-op, because
// transport-close, forced disconnect, and shutdown may all race to it.
func (r *Registry) Deregister(connID string) {
	r.mu.Lock()
	sess, ok := r.sessions[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, connID)

	for _, room := range sess.joinedRooms() {
		if members, ok := r.rooms[room]; ok {
			delete(members, connID)
			if len(members) == 0 {
				delete(r.rooms, room)
			}
		}
	}
	total := len(r.sessions)
	r.mu.Unlock()

	sess.close()
	if err := sess.transport.Close(); err != nil {
		r.logger.Debug("transport close", zap.String("conn_id", connID), zap.Error(err))
	}

	r.logger.Info("connection deregistered",
		zap.String("conn_id", connID),
		zap.Int("total_connections", total),
	)
}

// Shutdown deregisters every live connection. Called once on process
// shutdown so no transport outlives the server loop.
func (r *Registry) Shutdown() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.Deregister(id)
	}
	r.logger.Info("registry shut down", zap.Int("connections_closed", len(ids)))
}
