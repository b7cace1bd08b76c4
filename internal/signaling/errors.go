package signaling

import "errors"

var (
	// ErrRoomClosed is returned when a client attempts to join a room that has
	// already been shut down because its last member left. Callers should fetch
	// a fresh room and retry.
	ErrRoomClosed = errors.New("room closed")
	// ErrClientIDTaken is returned under the reject collision policy when the
	// requested clientId is already connected.
	ErrClientIDTaken = errors.New("clientId already in use")

	errClientClosed  = errors.New("client closed")
	errSendQueueFull = errors.New("send queue full")
)
