package router

import "github.com/wampio/wampio/pkg/protocol"

// Protocols selects which transport framing(s) a listener accepts.
type Protocols int

const (
	ProtocolsRawSocket Protocols = iota
	ProtocolsWebSocket
	ProtocolsBoth
)

// ListenOptions configures one Listen call.
type ListenOptions struct {
	// Protocols selects raw-socket, WebSocket, or both. The zero value is
	// ProtocolsRawSocket. When Both, one TCP listener multiplexes both
	// framings by sniffing the first byte of each connection (see
	// listener.go).
	Protocols Protocols

	// Serializers restricts which serializer(s) a raw-socket handshake or
	// WebSocket subprotocol negotiation may agree to. Nil allows both
	// JSON and MessagePack.
	Serializers protocol.AcceptedSerializers

	// Node overrides the bind host passed to Listen.
	Node string

	// WebSocketPath is the HTTP path the WebSocket upgrade handler is
	// mounted at. Default "/ws".
	WebSocketPath string
}

func (o ListenOptions) withDefaults() ListenOptions {
	if o.WebSocketPath == "" {
		o.WebSocketPath = "/ws"
	}
	return o
}
