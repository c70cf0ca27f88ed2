// Package codec converts between the wampval.Value tree and the two wire
// serializations WAMP negotiates at handshake time: JSON (strict RFC 8259)
// and MessagePack. The codec is stateless per message.
package codec

import (
	"fmt"

	"github.com/wampio/wampio/pkg/wampval"
)

// ID identifies a serializer the way the raw-socket handshake's SSSS
// nibble does: 1=JSON, 2=MessagePack.
type ID uint8

const (
	IDJSON    ID = 1
	IDMsgpack ID = 2
)

// Subprotocol is the WebSocket Sec-WebSocket-Protocol token for this
// serializer.
func (id ID) Subprotocol() string {
	switch id {
	case IDJSON:
		return "wamp.2.json"
	case IDMsgpack:
		return "wamp.2.msgpack"
	default:
		return ""
	}
}

// IsBinary reports whether messages using this serializer must travel in a
// WebSocket binary frame (true) or a text frame (false).
func (id ID) IsBinary() bool { return id == IDMsgpack }

// ForSubprotocol resolves a Sec-WebSocket-Protocol token back to an ID, or
// ok=false if unrecognized.
func ForSubprotocol(proto string) (ID, bool) {
	switch proto {
	case "wamp.2.json":
		return IDJSON, true
	case "wamp.2.msgpack":
		return IDMsgpack, true
	default:
		return 0, false
	}
}

// Codec converts one WAMP message body (a Value, always an array on the
// wire) to and from its serialized byte form.
type Codec interface {
	ID() ID
	Encode(v wampval.Value) ([]byte, error)
	Decode(b []byte) (wampval.Value, error)
}

// New returns the Codec for the given serializer id.
func New(id ID) (Codec, error) {
	switch id {
	case IDJSON:
		return jsonCodec{}, nil
	case IDMsgpack:
		return msgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: serializer id %d", ErrUnsupportedSerializer, id)
	}
}
