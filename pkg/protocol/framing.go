// Package protocol implements the two WAMP transport framings: raw-socket
// (length-prefixed over TCP) and WebSocket (RFC 6455 framing over HTTP/1.1
// Upgrade). Both share the Framing contract below; neither knows about
// WAMP message semantics, only about carrying opaque serialized message
// bytes across the wire.
package protocol

import "github.com/wampio/wampio/pkg/codec"

// MessageHandler receives one complete, deserialized-ready message payload
// read off the wire. It is invoked on the goroutine driving the framing's
// read loop and must not block.
type MessageHandler func(payload []byte)

// Framing is the capability set both raw-socket and WebSocket framings
// implement. A Framing is single-use: one transport, one handshake, then
// a stream of messages until Close.
type Framing interface {
	// Serializer returns the codec id negotiated during the handshake.
	// Valid only after Initiate/Accept succeeds.
	Serializer() codec.ID

	// Initiate drives the client-side handshake: sends the initial
	// handshake bytes and waits for the peer's response.
	Initiate() error

	// Accept drives the server-side handshake: waits for the peer's
	// initial handshake bytes and replies. accepted restricts which
	// serializers the handshake may agree to; nil allows any serializer
	// the concrete framing supports.
	Accept(accepted AcceptedSerializers) error

	// Run starts the read loop, invoking handler once per complete inbound
	// message, until the transport closes or a framing error occurs. Run
	// blocks the calling goroutine; callers run it in its own goroutine.
	Run(handler MessageHandler) error

	// SendMessage encodes and writes one complete WAMP message payload.
	// Safe for concurrent use with at most one other SendMessage call in
	// flight per the underlying transport's own write serialization.
	SendMessage(payload []byte) error

	// Close closes the underlying transport. Idempotent.
	Close() error
}
