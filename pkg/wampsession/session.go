// Package wampsession implements the per-connection WAMP state machine:
// handshake, authentication, request correlation, and dispatch of
// OPEN-state messages into the dealer and broker.
package wampsession

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wampio/wampio/pkg/auth"
	"github.com/wampio/wampio/pkg/codec"
	"github.com/wampio/wampio/pkg/protocol"
	"github.com/wampio/wampio/pkg/wamperr"
	"github.com/wampio/wampio/pkg/wampmsg"
	"github.com/wampio/wampio/pkg/wampval"
)

// ObserverFunc is a per-session state-change callback. Each Session
// carries its own observer; there is deliberately no process-wide hook.
type ObserverFunc func(session *Session, isOpen bool)

// Credentials configures an active-mode (client) session's HELLO and its
// WAMP-CRA response.
type Credentials struct {
	Realm       string
	AuthID      string
	AuthRole    string
	AuthMethods []auth.Method
	SecretFn    func() string
}

// Config carries the pieces a Session needs beyond the wire protocol
// itself: the shared dealer/broker handlers, the auth provider for passive
// sessions, and the close-handshake timeout (default 2s).
type Config struct {
	RPC                 RPCHandler
	PubSub              PubSubHandler
	AuthProvider        auth.Provider // required for ModePassive
	AcceptedSerializers protocol.AcceptedSerializers
	CloseTimeout        time.Duration
	Logger              *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.CloseTimeout == 0 {
		c.CloseTimeout = 2 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Session is the central per-connection state machine.
type Session struct {
	id       int64
	mode     Mode
	realm    string
	authid   string
	authrole string

	state stateBox

	framing protocol.Framing
	codec   codec.Codec

	reqIDMu sync.Mutex
	reqID   int64

	pending *pendingTable
	inbound *inboundTable

	subsMu sync.Mutex
	subs   map[int64]func(wampmsg.Event) // subscription id -> handler (active mode)

	regsMu sync.Mutex
	regs   map[int64]InvocationFunc // registration id -> handler (active mode)

	cfg Config

	observerMu sync.Mutex
	observer   ObserverFunc

	closeOnce sync.Once
	closeErr  error

	// passive-side CRA state while AUTHENTICATING.
	craKey       string
	craChallenge string

	// active-side credentials, set before Attach.
	credentials *Credentials
}

// New constructs a session bound to framing, in the given mode.
func New(id int64, mode Mode, framing protocol.Framing, cfg Config) *Session {
	s := &Session{
		id:      id,
		mode:    mode,
		framing: framing,
		pending: newPendingTable(),
		inbound: newInboundTable(),
		subs:    make(map[int64]func(wampmsg.Event)),
		regs:    make(map[int64]InvocationFunc),
		cfg:     cfg.withDefaults(),
	}
	s.state.store(StateInit)
	return s
}

// SetCredentials configures an active-mode session's HELLO (must be called
// before Attach).
func (s *Session) SetCredentials(c Credentials) { s.credentials = &c }

func (s *Session) ID() int64     { return s.id }
func (s *Session) Realm() string { return s.realm }
func (s *Session) State() State  { return s.state.load() }
func (s *Session) AuthID() string { return s.authid }

// SetObserver installs this session's own state-change callback.
func (s *Session) SetObserver(fn ObserverFunc) {
	s.observerMu.Lock()
	defer s.observerMu.Unlock()
	s.observer = fn
}

func (s *Session) notify(isOpen bool) {
	s.observerMu.Lock()
	fn := s.observer
	s.observerMu.Unlock()
	if fn != nil {
		fn(s, isOpen)
	}
}

// nextReqID draws the next outbound request id. Request ids are strictly
// increasing within a session per the WAMP basic profile.
func (s *Session) nextReqID() int64 {
	s.reqIDMu.Lock()
	defer s.reqIDMu.Unlock()
	s.reqID++
	return s.reqID
}

// Send encodes and writes one WAMP message. Safe for concurrent use.
func (s *Session) Send(m wampmsg.Message) error {
	if s.codec == nil {
		return wamperr.New(wamperr.KindIO, "send before codec negotiated")
	}
	b, err := s.codec.Encode(m.ToValue())
	if err != nil {
		return wamperr.Wrap(wamperr.KindProtocolViolation, "encode outbound message", err)
	}
	return s.framing.SendMessage(b)
}

// Attach runs the session to completion: transport handshake, WAMP
// handshake/auth, OPEN dispatch, and teardown. Attach blocks until the
// session reaches CLOSED; callers run it in its own goroutine per
// connection.
func (s *Session) Attach() error {
	s.state.store(StateHandshaking)

	var hsErr error
	if s.mode == ModePassive {
		hsErr = s.framing.Accept(s.cfg.AcceptedSerializers)
	} else {
		hsErr = s.framing.Initiate()
	}
	if hsErr != nil {
		s.transitionClosed()
		return hsErr
	}
	c, err := codec.New(s.framing.Serializer())
	if err != nil {
		s.transitionClosed()
		return err
	}
	s.codec = c

	s.state.store(StateAuthenticating)

	if s.mode == ModeActive {
		if err := s.sendHello(); err != nil {
			s.transitionClosed()
			return err
		}
	}

	runErr := s.framing.Run(s.onBytes)

	s.transitionClosed()
	if runErr != nil {
		return runErr
	}
	return s.closeErr
}

func (s *Session) onBytes(payload []byte) {
	v, err := s.codec.Decode(payload)
	if err != nil {
		s.abort(wampmsg.ErrProtocolViolation, fmt.Sprintf("decode failure: %v", err))
		return
	}
	msg, err := wampmsg.Decode(v)
	if err != nil {
		s.abort(wampmsg.ErrProtocolViolation, err.Error())
		return
	}
	s.handle(msg)
}

// handle routes one decoded inbound message according to the current
// state.
func (s *Session) handle(msg wampmsg.Message) {
	switch s.state.load() {
	case StateAuthenticating:
		s.handleAuth(msg)
	case StateOpen:
		s.handleOpen(msg)
	case StateClosing:
		s.handleClosing(msg)
	default:
		s.abort(wampmsg.ErrProtocolViolation, fmt.Sprintf("unexpected message in state %s", s.state.load()))
	}
}

func (s *Session) handleClosing(msg wampmsg.Message) {
	if _, ok := msg.(wampmsg.Goodbye); ok {
		s.transitionClosed()
		_ = s.framing.Close()
	}
}

// abort emits ABORT with the given error URI and transitions to CLOSED.
func (s *Session) abort(errorURI, detail string) {
	_ = s.Send(wampmsg.Abort{
		Details: wampval.Object(map[string]wampval.Value{"message": wampval.String(detail)}),
		Reason:  errorURI,
	})
	kind := wamperr.KindProtocolViolation
	if errorURI == wampmsg.ErrNotAuthorized {
		kind = wamperr.KindAuthFailed
	}
	s.closeErr = wamperr.New(kind, detail)
	s.transitionClosed()
	_ = s.framing.Close()
}

// Close transitions the session to CLOSING, emits GOODBYE, and waits (up
// to the configured timeout) for the peer's GOODBYE before forcing CLOSED.
func (s *Session) Close(reason string) {
	if !s.state.cas(StateOpen, StateClosing) {
		s.transitionClosed()
		_ = s.framing.Close()
		return
	}
	_ = s.Send(wampmsg.Goodbye{Details: wampval.Object(nil), Reason: reason})
	go func() {
		time.Sleep(s.cfg.CloseTimeout)
		s.transitionClosed()
		_ = s.framing.Close()
	}()
}

// transitionClosed moves the session to CLOSED exactly once, draining all
// pending replies with a synthetic Canceled error and notifying the
// dealer/broker and the observer.
func (s *Session) transitionClosed() {
	s.closeOnce.Do(func() {
		s.state.store(StateClosed)
		s.pending.drain()
		if s.cfg.RPC != nil {
			s.cfg.RPC.SessionClosed(s.id)
		}
		if s.cfg.PubSub != nil {
			s.cfg.PubSub.SessionClosed(s.id)
		}
		s.notify(false)
	})
}
