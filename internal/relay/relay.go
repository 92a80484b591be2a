// Package relay owns one live transcription attempt: it streams captured
// audio frames to the speech provider over a websocket, reconciles the
// partial and final results coming back, and guarantees teardown plus
// at-most-once persistence when the session ends.
package relay

import (
	"context"
	"errors"
)

// State is the streaming session lifecycle. Transitions only move forward:
// Idle -> Connecting -> Streaming -> Stopping -> Closed, with Connecting
// allowed to jump straight to Stopping when the user stops early or the
// connect fails.
type State string

const (
	Idle       State = "idle"
	Connecting State = "connecting"
	Streaming  State = "streaming"
	Stopping   State = "stopping"
	Closed     State = "closed"
)

// ErrConnect is returned when the socket does not report open within the
// connect timeout. The timeout is enforced locally and kept stricter than
// the credential TTL so an expired key surfaces as an error, not a hang.
var ErrConnect = errors.New("relay: connect timeout")

// Saver persists the accumulated final transcript. Implemented by the API
// client for the agent and by the store-backed service on the server.
type Saver interface {
	SaveTranscript(ctx context.Context, text string) error
}

// SocketEventKind enumerates the inbound socket suspension points.
type SocketEventKind int

const (
	SocketOpened SocketEventKind = iota
	SocketMessage
	SocketError
	SocketClosed
)

// SocketEvent is one inbound event from the provider socket, delivered in
// socket order on a single channel.
type SocketEvent struct {
	Kind    SocketEventKind
	Payload []byte
	Err     error
}

// Socket abstracts the duplex connection to the provider so the session and
// reconciler are testable without a network. Open is asynchronous: the
// result arrives as a SocketOpened or SocketError event.
type Socket interface {
	Open(ctx context.Context, credential string) error
	Send(data []byte) error
	Events() <-chan SocketEvent
	Close() error
}
