package router

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/wampio/wampio/pkg/auth"
	"github.com/wampio/wampio/pkg/protocol"
)

// rawSocketMagic is the first byte of the raw-socket handshake; a
// sniffListener uses it to tell a raw-socket connection apart from an
// HTTP request on a shared port.
const rawSocketMagic = 0x7F

// Listen binds host:port and begins accepting connections per opts.
// Binding happens synchronously within this call via net.Listen, so a nil
// return already means "bound and listening"; accept loops run in their
// own goroutines afterward.
func (r *Router) Listen(host string, port int, authProvider auth.Provider, opts ListenOptions) error {
	opts = opts.withDefaults()
	if opts.Node != "" {
		host = opts.Node
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	switch opts.Protocols {
	case ProtocolsRawSocket:
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("router: listen %s: %w", addr, err)
		}
		r.listenersMu.Lock()
		r.rawListeners = append(r.rawListeners, ln)
		r.listenersMu.Unlock()
		go r.acceptRawSocketLoop(ln, authProvider, opts.Serializers)
		return nil

	case ProtocolsWebSocket:
		r.mountWebSocket(opts.WebSocketPath, authProvider, opts.Serializers)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("router: listen %s: %w", addr, err)
		}
		r.serveHTTP(ln)
		return nil

	case ProtocolsBoth:
		r.mountWebSocket(opts.WebSocketPath, authProvider, opts.Serializers)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("router: listen %s: %w", addr, err)
		}
		sniffed := newSniffListener(ln, r, authProvider, opts.Serializers)
		r.listenersMu.Lock()
		r.rawListeners = append(r.rawListeners, ln)
		r.listenersMu.Unlock()
		r.serveHTTP(sniffed)
		return nil

	default:
		return fmt.Errorf("router: unknown Protocols value %d", opts.Protocols)
	}
}

// ListenHTTP binds addr and serves only the router's ambient HTTP surface
// (/metrics, /healthz, and any WebSocket endpoints already mounted by a
// prior Listen call), useful when the WAMP listener itself is
// raw-socket-only but metrics/health still need an HTTP port.
func (r *Router) ListenHTTP(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("router: listen http %s: %w", addr, err)
	}
	r.serveHTTP(ln)
	return nil
}

func (r *Router) serveHTTP(ln net.Listener) {
	srv := &http.Server{Handler: r.mux}
	r.listenersMu.Lock()
	r.httpServers = append(r.httpServers, srv)
	r.listenersMu.Unlock()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("http serve error", "error", err)
		}
	}()
}

func (r *Router) acceptRawSocketLoop(ln net.Listener, authProvider auth.Provider, accepted protocol.AcceptedSerializers) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			r.logger.Debug("raw-socket accept error", "error", err)
			return
		}
		go r.accept(protocol.NewRawSocket(conn, 0), authProvider, accepted, "rawsocket")
	}
}

// sniffListener demultiplexes one bound TCP port between raw-socket and
// WebSocket/HTTP connections by peeking the first byte of each accepted
// connection: 0x7F (the raw-socket handshake magic) is handled directly
// as a raw-socket session without ever being returned from Accept;
// anything else is assumed to be an HTTP request and handed to the caller
// (an *http.Server), the same TCP-sniffing technique used by protocol
// multiplexers like cmux.
type sniffListener struct {
	net.Listener
	router       *Router
	authProvider auth.Provider
	accepted     protocol.AcceptedSerializers
}

func newSniffListener(ln net.Listener, r *Router, authProvider auth.Provider, accepted protocol.AcceptedSerializers) *sniffListener {
	return &sniffListener{Listener: ln, router: r, authProvider: authProvider, accepted: accepted}
}

func (s *sniffListener) Accept() (net.Conn, error) {
	for {
		conn, err := s.Listener.Accept()
		if err != nil {
			return nil, err
		}
		br := bufio.NewReader(conn)
		first, err := br.Peek(1)
		if err != nil {
			_ = conn.Close()
			continue
		}
		peeked := &peekedConn{Conn: conn, r: br}
		if first[0] == rawSocketMagic {
			go s.router.accept(protocol.NewRawSocket(peeked, 0), s.authProvider, s.accepted, "rawsocket")
			continue
		}
		return peeked, nil
	}
}

// peekedConn replays the bytes already consumed from conn by a
// bufio.Reader's Peek, so the sniff in sniffListener.Accept is invisible
// to whichever handler ultimately reads from the connection.
type peekedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *peekedConn) Read(p []byte) (int, error) { return c.r.Read(p) }
