package wampsession

import (
	"github.com/wampio/wampio/pkg/wampmsg"
	"github.com/wampio/wampio/pkg/wampval"
)

// handleOpen dispatches one inbound message while OPEN. Replies to this
// session's own outbound requests resolve through the pending table;
// everything else is forwarded to the dealer or broker.
func (s *Session) handleOpen(msg wampmsg.Message) {
	switch m := msg.(type) {
	case wampmsg.Goodbye:
		s.handleGoodbye(m)

	// --- replies to our own outbound requests ---
	case wampmsg.Welcome:
		// only reachable in active mode's already-open path; ignore stray
		// duplicates from a misbehaving peer.
	case wampmsg.Result:
		s.resolve(m.Request, m)
	case wampmsg.Published:
		s.resolve(m.Request, m)
	case wampmsg.Subscribed:
		s.resolveSubscribed(m)
	case wampmsg.Unsubscribed:
		s.resolve(m.Request, m)
	case wampmsg.Registered:
		s.resolveRegistered(m)
	case wampmsg.Unregistered:
		s.resolve(m.Request, m)
	case wampmsg.Event:
		s.deliverEvent(m)
	case wampmsg.Invocation:
		s.deliverInvocation(m)
	case wampmsg.ErrorMsg:
		// An ERROR answering an INVOCATION comes from a callee and belongs
		// to the dealer; every other ERROR is a reply to one of this
		// session's own outbound requests.
		if m.RequestType == wampmsg.TypeInvocation && s.cfg.RPC != nil {
			s.cfg.RPC.CallError(s, m)
			return
		}
		s.resolve(m.Request, m)

	// --- genuinely inbound requests from a remote peer ---
	case wampmsg.Publish:
		if s.cfg.PubSub == nil {
			s.abort(wampmsg.ErrProtocolViolation, "no pubsub role configured")
			return
		}
		s.cfg.PubSub.Publish(s, m)
	case wampmsg.Subscribe:
		if s.cfg.PubSub == nil {
			s.abort(wampmsg.ErrProtocolViolation, "no pubsub role configured")
			return
		}
		s.cfg.PubSub.Subscribe(s, m)
	case wampmsg.Unsubscribe:
		if s.cfg.PubSub == nil {
			s.abort(wampmsg.ErrProtocolViolation, "no pubsub role configured")
			return
		}
		s.cfg.PubSub.Unsubscribe(s, m)
	case wampmsg.Call:
		if s.cfg.RPC == nil {
			s.abort(wampmsg.ErrProtocolViolation, "no rpc role configured")
			return
		}
		s.cfg.RPC.Call(s, m)
	case wampmsg.Register:
		if s.cfg.RPC == nil {
			s.abort(wampmsg.ErrProtocolViolation, "no rpc role configured")
			return
		}
		s.cfg.RPC.Register(s, m)
	case wampmsg.Unregister:
		if s.cfg.RPC == nil {
			s.abort(wampmsg.ErrProtocolViolation, "no rpc role configured")
			return
		}
		s.cfg.RPC.Unregister(s, m)
	case wampmsg.Yield:
		if s.cfg.RPC == nil {
			s.abort(wampmsg.ErrProtocolViolation, "no rpc role configured")
			return
		}
		s.cfg.RPC.Yield(s, m)
	case wampmsg.Cancel:
		if s.cfg.RPC != nil {
			s.cfg.RPC.Cancel(s, m)
		}
	case wampmsg.Interrupt:
		// accepted and ignored; callee interruption is unsupported.
	case wampmsg.Heartbeat:
		// accepted and ignored.
	default:
		s.abort(wampmsg.ErrProtocolViolation, "unexpected message type in OPEN")
	}
}

func (s *Session) handleGoodbye(m wampmsg.Goodbye) {
	if !s.state.cas(StateOpen, StateClosing) {
		return
	}
	_ = s.Send(wampmsg.Goodbye{Details: wampval.Object(nil), Reason: "wamp.close.goodbye_and_out"})
	s.transitionClosed()
	_ = s.framing.Close()
}

// resolve fires the pending continuation for a plain reply message.
func (s *Session) resolve(requestID int64, reply wampmsg.Message) {
	if fn, ok := s.pending.resolve(requestID); ok {
		fn(reply)
	}
}

func (s *Session) resolveSubscribed(m wampmsg.Subscribed) {
	s.resolve(m.Request, m)
}

func (s *Session) resolveRegistered(m wampmsg.Registered) {
	s.resolve(m.Request, m)
}

func (s *Session) deliverEvent(m wampmsg.Event) {
	s.subsMu.Lock()
	handler, ok := s.subs[m.SubscriptionID]
	s.subsMu.Unlock()
	if ok {
		handler(m)
	}
}

func (s *Session) deliverInvocation(m wampmsg.Invocation) {
	s.regsMu.Lock()
	handler, ok := s.regs[m.RegistrationID]
	s.regsMu.Unlock()
	if !ok {
		_ = s.Send(wampmsg.ErrorMsg{
			RequestType: wampmsg.TypeInvocation,
			Request:     m.Request,
			Error:       wampmsg.ErrNoSuchRegistration,
		})
		return
	}
	s.inbound.begin(m.Request)
	go func() {
		defer s.inbound.end(m.Request)
		reply := handler(m)
		_ = s.Send(reply)
	}()
}
