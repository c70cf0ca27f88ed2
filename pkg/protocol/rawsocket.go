package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/wampio/wampio/pkg/codec"
)

// Raw-socket handshake constants.
const (
	rawSocketMagic byte = 0x7F

	// frame header: top 3 bits are type, low 24 bits are length.
	frameTypeShift  = 29
	frameLengthMask = 0x00FFFFFF

	rawSocketHandshakeLen = 4
	rawSocketHeaderLen    = 4
)

// frameType identifies a raw-socket post-handshake frame kind.
type frameType uint8

const (
	frameRegular frameType = 0
	framePing    frameType = 1
	framePong    frameType = 2
)

// HandshakeErrorCode is the high-nibble error code a server raw-socket
// handshake reply carries when it rejects a client's offer.
type HandshakeErrorCode byte

const (
	HandshakeErrSerializerUnsupported HandshakeErrorCode = 1
	HandshakeErrMaxLengthUnacceptable HandshakeErrorCode = 2
	HandshakeErrUseOfReservedBits     HandshakeErrorCode = 3
	HandshakeErrMaxConnectionsReached HandshakeErrorCode = 4
)

// defaultMaxLengthExponent picks LLLL=15 -> 2^(9+15) = 16MiB, the largest
// message length the raw-socket handshake can advertise.
const defaultMaxLengthExponent = 15

func maxLengthFor(exp byte) uint32 {
	return uint32(1) << (9 + exp)
}

// encodeHandshake builds the 4-byte raw-socket handshake: magic, LLLLSSSS,
// two reserved zero bytes.
func encodeHandshake(maxLenExp byte, serializer codec.ID) []byte {
	return []byte{rawSocketMagic, (maxLenExp << 4) | byte(serializer), 0, 0}
}

// encodeHandshakeError builds a handshake reply signaling rejection: magic
// echoed, error code in the high nibble, low nibble zero.
func encodeHandshakeError(code HandshakeErrorCode) []byte {
	return []byte{rawSocketMagic, byte(code) << 4, 0, 0}
}

// decodeHandshake parses a 4-byte raw-socket handshake. It returns a
// BadHandshake error if the input is not 4 bytes long, the magic byte does
// not match, the reserved bytes are non-zero, or both nibbles are zero.
func decodeHandshake(b []byte) (maxLenExp byte, serializer codec.ID, isError bool, errCode HandshakeErrorCode, err error) {
	if len(b) != rawSocketHandshakeLen {
		return 0, 0, false, 0, errBadHandshake("short handshake", io.ErrUnexpectedEOF)
	}
	if b[0] != rawSocketMagic {
		return 0, 0, false, 0, errBadHandshake(fmt.Sprintf("bad magic 0x%02x", b[0]), nil)
	}
	if b[2] != 0 || b[3] != 0 {
		return 0, 0, false, 0, errBadHandshake("non-zero reserved bytes", nil)
	}
	high := b[1] >> 4
	low := codec.ID(b[1] & 0x0F)
	if low == 0 {
		// Serializer nibble 0 is never a valid offer: the high nibble must
		// then carry an error code (SSSS=0, EEEE!=0 is a rejection reply).
		if high == 0 {
			return 0, 0, false, 0, errBadHandshake("zero serializer and error nibbles", nil)
		}
		return 0, 0, true, HandshakeErrorCode(high), nil
	}
	return high, low, false, 0, nil
}

func encodeFrameHeader(t frameType, length int) ([4]byte, error) {
	var out [4]byte
	if length < 0 || length > frameLengthMask {
		return out, errOversize(fmt.Sprintf("payload length %d exceeds 24-bit frame field", length))
	}
	header := uint32(t)<<frameTypeShift | uint32(length)&frameLengthMask
	binary.BigEndian.PutUint32(out[:], header)
	return out, nil
}

func decodeFrameHeader(b []byte) (frameType, int, error) {
	if len(b) != rawSocketHeaderLen {
		return 0, 0, errBadFrame("short header", io.ErrUnexpectedEOF)
	}
	header := binary.BigEndian.Uint32(b)
	t := frameType(header >> frameTypeShift)
	length := int(header & frameLengthMask)
	return t, length, nil
}

// RawSocket implements Framing over a raw TCP (or TLS) connection using the
// length-prefixed WAMP raw-socket framing: a 4-byte magic handshake, then
// frames of [4-byte big-endian header][payload] with the frame type in the
// top 3 header bits and the payload length in the low 24.
type RawSocket struct {
	conn net.Conn

	maxLen     uint32
	serializer codec.ID

	// offeredSerializer is set before Initiate by the client to the
	// serializer it wants to use.
	offeredSerializer codec.ID

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

// NewRawSocket wraps conn. serializer is the client's offered serializer
// when used as an initiator; it is ignored on the accept side, which
// instead honors whatever the peer offers (subject to acceptedSerializers
// passed to Accept).
func NewRawSocket(conn net.Conn, serializer codec.ID) *RawSocket {
	return &RawSocket{conn: conn, offeredSerializer: serializer}
}

func (r *RawSocket) Serializer() codec.ID { return r.serializer }

// Initiate performs the client-side handshake.
func (r *RawSocket) Initiate() error {
	req := encodeHandshake(defaultMaxLengthExponent, r.offeredSerializer)
	if _, err := r.conn.Write(req); err != nil {
		return errBadHandshake("write handshake", err)
	}
	resp := make([]byte, rawSocketHandshakeLen)
	if _, err := io.ReadFull(r.conn, resp); err != nil {
		return errBadHandshake("read handshake reply", err)
	}
	_, serializer, isError, errCode, err := decodeHandshake(resp)
	if err != nil {
		return err
	}
	if isError {
		return errSerializerUnsupported(fmt.Sprintf("server rejected handshake, code %d", errCode))
	}
	if serializer != r.offeredSerializer {
		return errSerializerUnsupported("server echoed a different serializer than offered")
	}
	r.serializer = serializer
	r.maxLen = maxLengthFor(defaultMaxLengthExponent)
	return nil
}

// AcceptedSerializers restricts which serializer ids Accept will agree to.
type AcceptedSerializers map[codec.ID]bool

// Accept performs the server-side handshake, agreeing to the client's
// offer if accepted is nil or allows it.
func (r *RawSocket) Accept(accepted AcceptedSerializers) error {
	req := make([]byte, rawSocketHandshakeLen)
	if _, err := io.ReadFull(r.conn, req); err != nil {
		return errBadHandshake("read handshake", err)
	}
	maxLenExp, serializer, isError, _, err := decodeHandshake(req)
	if err != nil {
		_, _ = r.conn.Write(encodeHandshakeError(HandshakeErrUseOfReservedBits))
		return err
	}
	if isError {
		return errBadHandshake("client sent an error handshake", nil)
	}
	if accepted != nil && !accepted[serializer] {
		_, _ = r.conn.Write(encodeHandshakeError(HandshakeErrSerializerUnsupported))
		return errSerializerUnsupported(fmt.Sprintf("serializer id %d not offered by server", serializer))
	}
	reply := encodeHandshake(maxLenExp, serializer)
	if _, err := r.conn.Write(reply); err != nil {
		return errBadHandshake("write handshake reply", err)
	}
	r.serializer = serializer
	r.maxLen = maxLengthFor(maxLenExp)
	return nil
}

// Run reads frames until error or close, dispatching regular-frame
// payloads to handler and answering PING frames with PONG transparently.
func (r *RawSocket) Run(handler MessageHandler) error {
	header := make([]byte, rawSocketHeaderLen)
	for {
		if _, err := io.ReadFull(r.conn, header); err != nil {
			if r.isClosed() {
				return nil
			}
			return errBadFrame("read header", err)
		}
		t, length, err := decodeFrameHeader(header)
		if err != nil {
			return err
		}
		if uint32(length) > r.maxLen {
			return errOversize(fmt.Sprintf("frame length %d exceeds negotiated max %d", length, r.maxLen))
		}
		payload := make([]byte, length)
		if length > 0 {
			if _, err := io.ReadFull(r.conn, payload); err != nil {
				return errBadFrame("read payload", err)
			}
		}
		switch t {
		case frameRegular:
			handler(payload)
		case framePing:
			if err := r.sendFrame(framePong, payload); err != nil {
				return err
			}
		case framePong:
			// no action required; a pending-ping tracker could consume this.
		default:
			return errBadFrame(fmt.Sprintf("unknown frame type %d", t), nil)
		}
	}
}

func (r *RawSocket) SendMessage(payload []byte) error {
	return r.sendFrame(frameRegular, payload)
}

func (r *RawSocket) sendFrame(t frameType, payload []byte) error {
	header, err := encodeFrameHeader(t, len(payload))
	if err != nil {
		return err
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if _, err := r.conn.Write(header[:]); err != nil {
		return errBadFrame("write header", err)
	}
	if len(payload) > 0 {
		if _, err := r.conn.Write(payload); err != nil {
			return errBadFrame("write payload", err)
		}
	}
	return nil
}

func (r *RawSocket) Close() error {
	r.closeMu.Lock()
	defer r.closeMu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.conn.Close()
}

func (r *RawSocket) isClosed() bool {
	r.closeMu.Lock()
	defer r.closeMu.Unlock()
	return r.closed
}
