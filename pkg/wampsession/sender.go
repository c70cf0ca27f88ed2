package wampsession

import "github.com/wampio/wampio/pkg/wampmsg"

// Sender is the minimal surface the dealer and broker need to reach a
// session: its id for bookkeeping and a way to hand it an outbound
// message. Holding only a Sender (rather than a *Session) keeps dealer and
// broker from extending a session's lifetime.
type Sender interface {
	ID() int64
	Realm() string
	Send(m wampmsg.Message) error
}

// Lookup resolves a session id to its current Sender, or ok=false if the
// session is gone. The dealer and broker re-resolve through Lookup on
// every outbound dispatch rather than caching a Sender, so a session that
// has closed is silently dropped instead of kept alive.
type Lookup interface {
	Lookup(id int64) (Sender, bool)
}

// RPCHandler is implemented by the dealer and invoked by a session's
// dispatch loop for every RPC-shaped inbound message on an OPEN session.
type RPCHandler interface {
	Register(caller Sender, m wampmsg.Register)
	Unregister(caller Sender, m wampmsg.Unregister)
	Call(caller Sender, m wampmsg.Call)
	Yield(callee Sender, m wampmsg.Yield)
	CallError(callee Sender, m wampmsg.ErrorMsg)
	Cancel(caller Sender, m wampmsg.Cancel)
	SessionClosed(sessionID int64)
}

// PubSubHandler is implemented by the broker and invoked by a session's
// dispatch loop for every PubSub-shaped inbound message on an OPEN
// session.
type PubSubHandler interface {
	Subscribe(subscriber Sender, m wampmsg.Subscribe)
	Unsubscribe(subscriber Sender, m wampmsg.Unsubscribe)
	Publish(publisher Sender, m wampmsg.Publish)
	SessionClosed(sessionID int64)
}
