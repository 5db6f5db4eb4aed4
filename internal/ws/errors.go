package ws

import "errors"

// Ingestion and session errors. Handlers compare with errors.Is and
// translate into error events for the originating connection only.
var (
	// ErrUnauthenticated rejects any message sent before a successful
	// authenticate.
	ErrUnauthenticated = errors.New("not authenticated")

	// ErrInvalidPayload rejects messages with blank content or a
	// missing chat id.
	ErrInvalidPayload = errors.New("invalid message payload")

	// ErrNotJoined rejects messages for a chat the connection never
	// joined.
	ErrNotJoined = errors.New("not joined to this chat")

	// ErrStoreUnavailable means the durable append failed. Nothing was
	// broadcast; the client owns the resend.
	ErrStoreUnavailable = errors.New("message store unavailable")

	// ErrAlreadyAuthenticated rejects a second authenticate on a live
	// session. Re-authentication mid-session is not supported.
	ErrAlreadyAuthenticated = errors.New("already authenticated")

	// ErrSessionClosed is returned for operations on a session that has
	// reached its terminal state.
	ErrSessionClosed = errors.New("session closed")

	// ErrUnknownSession means the connection id is not registered,
	// typically because it was deregistered concurrently.
	ErrUnknownSession = errors.New("unknown connection")

	// ErrSendBufferFull means a client stopped draining its outbound
	// queue. The broadcaster treats it like a dead transport.
	ErrSendBufferFull = errors.New("send buffer full")
)
