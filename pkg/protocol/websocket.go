package protocol

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wampio/wampio/pkg/codec"
)

// websocketGUID is the RFC 6455 magic string used to derive
// Sec-WebSocket-Accept from the client's Sec-WebSocket-Key.
const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// AcceptKey computes Sec-WebSocket-Accept for a given Sec-WebSocket-Key.
// gorilla/websocket's Upgrader performs this internally on the live accept
// path; this function exists so the formula itself is directly testable
// and so callers needing to proxy or log the handshake can reproduce it.
func AcceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key))
	h.Write([]byte(websocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// upgrader is shared across accepts; gorilla/websocket's Upgrader is safe
// for concurrent use once configured.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Subprotocol negotiation happens explicitly in Subprotocols below;
	// origin checking is left to the embedding HTTP handler.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Subprotocols returns the ordered list of subprotocol tokens this module
// offers during upgrade, JSON preferred.
func Subprotocols() []string {
	return []string{codec.IDJSON.Subprotocol(), codec.IDMsgpack.Subprotocol()}
}

// WebSocket implements Framing over an RFC 6455 WebSocket connection via
// gorilla/websocket.
type WebSocket struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	serializer codec.ID

	writeTimeout time.Duration
}

// AcceptWebSocket upgrades an inbound HTTP request to a WebSocket,
// negotiating wamp.2.json or wamp.2.msgpack from the client's offered
// subprotocols. Fails with BadHandshake if neither is offered.
func AcceptWebSocket(w http.ResponseWriter, r *http.Request) (*WebSocket, error) {
	up := upgrader
	up.Subprotocols = Subprotocols()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return nil, errBadHandshake("websocket upgrade", err)
	}
	id, ok := codec.ForSubprotocol(conn.Subprotocol())
	if !ok {
		_ = conn.Close()
		return nil, errSerializerUnsupported(fmt.Sprintf("no common subprotocol (client gave %q)", conn.Subprotocol()))
	}
	return &WebSocket{conn: conn, serializer: id, writeTimeout: 10 * time.Second}, nil
}

// DialWebSocket connects to a WAMP WebSocket endpoint offering serializer
// as its sole subprotocol.
func DialWebSocket(url string, serializer codec.ID) (*WebSocket, error) {
	header := http.Header{}
	dialer := websocket.Dialer{Subprotocols: []string{serializer.Subprotocol()}}
	conn, _, err := dialer.Dial(url, header)
	if err != nil {
		return nil, errBadHandshake("websocket dial", err)
	}
	if conn.Subprotocol() != serializer.Subprotocol() {
		_ = conn.Close()
		return nil, errSerializerUnsupported("server did not echo the offered subprotocol")
	}
	return &WebSocket{conn: conn, serializer: serializer, writeTimeout: 10 * time.Second}, nil
}

func (w *WebSocket) Serializer() codec.ID { return w.serializer }

// Initiate/Accept are no-ops: the HTTP Upgrade dance already completed the
// handshake in DialWebSocket/AcceptWebSocket. They exist to satisfy the
// Framing contract shared with RawSocket; accepted is ignored since
// subprotocol negotiation already settled the serializer.
func (w *WebSocket) Initiate() error                             { return nil }
func (w *WebSocket) Accept(accepted AcceptedSerializers) error { return nil }

func (w *WebSocket) Run(handler MessageHandler) error {
	for {
		msgType, payload, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return errBadFrame("read message", err)
		}
		wantBinary := w.serializer.IsBinary()
		gotBinary := msgType == websocket.BinaryMessage
		if wantBinary != gotBinary {
			return errBadFrame(fmt.Sprintf("frame opcode mismatch for serializer %d", w.serializer), nil)
		}
		handler(payload)
	}
}

func (w *WebSocket) SendMessage(payload []byte) error {
	msgType := websocket.TextMessage
	if w.serializer.IsBinary() {
		msgType = websocket.BinaryMessage
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	if err := w.conn.WriteMessage(msgType, payload); err != nil {
		return errBadFrame("write message", err)
	}
	return nil
}

func (w *WebSocket) Close() error {
	w.writeMu.Lock()
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	w.writeMu.Unlock()
	return w.conn.Close()
}
