package wampsession

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/wampio/wampio/pkg/auth"
	"github.com/wampio/wampio/pkg/codec"
	"github.com/wampio/wampio/pkg/protocol"
	"github.com/wampio/wampio/pkg/wampmsg"
	"github.com/wampio/wampio/pkg/wampval"
)

type stubPubSub struct {
	publishes chan wampmsg.Publish
}

func (s *stubPubSub) Subscribe(subscriber Sender, m wampmsg.Subscribe)     {}
func (s *stubPubSub) Unsubscribe(subscriber Sender, m wampmsg.Unsubscribe) {}
func (s *stubPubSub) Publish(publisher Sender, m wampmsg.Publish) {
	s.publishes <- m
	if _, ok := m.Options.Field("acknowledge"); ok {
		_ = publisher.Send(wampmsg.Published{Request: m.Request, PublicationID: 1})
	}
}
func (s *stubPubSub) SessionClosed(sessionID int64) {}

type stubRPC struct{}

func (s *stubRPC) Register(caller Sender, m wampmsg.Register)     {}
func (s *stubRPC) Unregister(caller Sender, m wampmsg.Unregister) {}
func (s *stubRPC) Call(caller Sender, m wampmsg.Call)             {}
func (s *stubRPC) Yield(callee Sender, m wampmsg.Yield)           {}
func (s *stubRPC) CallError(callee Sender, m wampmsg.ErrorMsg)    {}
func (s *stubRPC) Cancel(caller Sender, m wampmsg.Cancel)         {}
func (s *stubRPC) SessionClosed(sessionID int64)                  {}

// TestSessionOpenHandshakeAndPublish exercises the full client/server
// lifecycle over a raw-socket pipe: HELLO with an open-mode realm policy,
// WELCOME, and a subsequent acknowledged PUBLISH routed to the broker
// stand-in.
func TestSessionOpenHandshakeAndPublish(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	provider := auth.NewStaticProvider("test")
	provider.SetUser("realm1", "alice", auth.UserConfig{Policy: auth.Policy{Mode: auth.ModeOpen}})

	pubsub := &stubPubSub{publishes: make(chan wampmsg.Publish, 1)}

	serverFraming := protocol.NewRawSocket(serverConn, 0)
	clientFraming := protocol.NewRawSocket(clientConn, codec.IDJSON)

	server := New(1, ModePassive, serverFraming, Config{
		RPC:          &stubRPC{},
		PubSub:       pubsub,
		AuthProvider: provider,
	})
	client := New(0, ModeActive, clientFraming, Config{})
	client.SetCredentials(Credentials{Realm: "realm1", AuthID: "alice"})

	serverOpen := make(chan struct{}, 1)
	clientOpen := make(chan struct{}, 1)
	server.SetObserver(func(sess *Session, isOpen bool) {
		if isOpen {
			serverOpen <- struct{}{}
		}
	})
	client.SetObserver(func(sess *Session, isOpen bool) {
		if isOpen {
			clientOpen <- struct{}{}
		}
	})

	go func() { _ = server.Attach() }()
	go func() { _ = client.Attach() }()

	select {
	case <-serverOpen:
	case <-time.After(2 * time.Second):
		t.Fatal("server session did not reach OPEN")
	}
	select {
	case <-clientOpen:
	case <-time.After(2 * time.Second):
		t.Fatal("client session did not reach OPEN")
	}

	if client.AuthID() != "alice" {
		t.Errorf("client authid = %q, want alice", client.AuthID())
	}
	if client.ID() != 1 {
		t.Errorf("client session id = %d, want 1 (from WELCOME)", client.ID())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pubID, err := client.Publish(ctx, "com.x.topic", wampval.Array(), wampval.Object(nil), true)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if pubID != 1 {
		t.Errorf("publication id = %d, want 1", pubID)
	}

	select {
	case got := <-pubsub.publishes:
		if got.Topic != "com.x.topic" {
			t.Errorf("topic = %q, want com.x.topic", got.Topic)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive PUBLISH")
	}
}

// TestSessionDenyMode checks that a realm configured to deny an authid
// aborts the session instead of completing the handshake.
func TestSessionDenyMode(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	provider := auth.NewStaticProvider("test")
	provider.SetUser("realm1", "bob", auth.UserConfig{Policy: auth.Policy{Mode: auth.ModeDeny}})

	serverFraming := protocol.NewRawSocket(serverConn, 0)
	clientFraming := protocol.NewRawSocket(clientConn, codec.IDJSON)

	server := New(1, ModePassive, serverFraming, Config{AuthProvider: provider})
	client := New(0, ModeActive, clientFraming, Config{})
	client.SetCredentials(Credentials{Realm: "realm1", AuthID: "bob"})

	done := make(chan error, 1)
	go func() { _ = server.Attach() }()
	go func() { done <- client.Attach() }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("client Attach did not return after server abort")
	}
	if client.State() != StateClosed {
		t.Errorf("client state = %s, want CLOSED", client.State())
	}
}

func TestPendingTableDrainFiresCanceled(t *testing.T) {
	pt := newPendingTable()
	got := make(chan wampmsg.Message, 1)
	pt.insert(7, wampmsg.TypeCall, func(reply wampmsg.Message) { got <- reply })
	pt.drain()

	select {
	case reply := <-got:
		errMsg, ok := reply.(wampmsg.ErrorMsg)
		if !ok {
			t.Fatalf("reply type = %T, want wampmsg.ErrorMsg", reply)
		}
		if errMsg.RequestType != wampmsg.TypeCall || errMsg.Request != 7 || errMsg.Error != wampmsg.ErrCanceled {
			t.Errorf("unexpected synthetic cancellation: %+v", errMsg)
		}
	case <-time.After(time.Second):
		t.Fatal("drain did not fire pending callback")
	}
}

func TestInboundTableLifecycle(t *testing.T) {
	it := newInboundTable()
	if it.has(1) {
		t.Fatal("unexpected entry before begin")
	}
	it.begin(1)
	if !it.has(1) {
		t.Fatal("expected entry after begin")
	}
	it.end(1)
	if it.has(1) {
		t.Fatal("unexpected entry after end")
	}
}

// craPipePair builds a passive/active session pair over a raw-socket pipe
// with alice configured for salted WAMP-CRA (salt "saltxx", 1500
// iterations, keylen 32, password "secret2").
func craPipePair(t *testing.T, secretFn func() string) (server, client *Session) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	t.Cleanup(func() { serverConn.Close(); clientConn.Close() })

	provider := auth.NewStaticProvider("test")
	provider.SetUser("realm1", "alice", auth.UserConfig{
		Policy: auth.Policy{Mode: auth.ModeAuthenticate, Methods: []auth.Method{auth.MethodWAMPCRA}},
		Secret: "secret2",
		Salt:   &auth.Salt{Salt: "saltxx", Iterations: 1500, KeyLen: 32},
	})

	server = New(1, ModePassive, protocol.NewRawSocket(serverConn, 0), Config{AuthProvider: provider})
	client = New(0, ModeActive, protocol.NewRawSocket(clientConn, codec.IDJSON), Config{})
	client.SetCredentials(Credentials{
		Realm:       "realm1",
		AuthID:      "alice",
		AuthMethods: []auth.Method{auth.MethodWAMPCRA},
		SecretFn:    secretFn,
	})
	return server, client
}

// TestSessionSaltedCRA: the correct password carries the handshake through
// CHALLENGE/AUTHENTICATE to OPEN on both sides.
func TestSessionSaltedCRA(t *testing.T) {
	server, client := craPipePair(t, func() string { return "secret2" })

	serverOpen := make(chan struct{}, 1)
	clientOpen := make(chan struct{}, 1)
	server.SetObserver(func(sess *Session, isOpen bool) {
		if isOpen {
			serverOpen <- struct{}{}
		}
	})
	client.SetObserver(func(sess *Session, isOpen bool) {
		if isOpen {
			clientOpen <- struct{}{}
		}
	})

	go func() { _ = server.Attach() }()
	go func() { _ = client.Attach() }()

	select {
	case <-serverOpen:
	case <-time.After(2 * time.Second):
		t.Fatal("server session did not reach OPEN with the correct secret")
	}
	select {
	case <-clientOpen:
	case <-time.After(2 * time.Second):
		t.Fatal("client session did not reach OPEN with the correct secret")
	}
}

// TestSessionSaltedCRAWrongSecret exercises scenario 3's failure half: a
// wrong password ends in ABORT, and neither side ever reaches OPEN.
func TestSessionSaltedCRAWrongSecret(t *testing.T) {
	server, client := craPipePair(t, func() string { return "wrong" })

	opened := make(chan struct{}, 2)
	server.SetObserver(func(sess *Session, isOpen bool) {
		if isOpen {
			opened <- struct{}{}
		}
	})
	client.SetObserver(func(sess *Session, isOpen bool) {
		if isOpen {
			opened <- struct{}{}
		}
	})

	clientDone := make(chan error, 1)
	go func() { _ = server.Attach() }()
	go func() { clientDone <- client.Attach() }()

	select {
	case <-clientDone:
	case <-time.After(2 * time.Second):
		t.Fatal("client Attach did not return after signature rejection")
	}
	select {
	case <-opened:
		t.Fatal("no session should reach OPEN with a wrong secret")
	default:
	}
	if client.State() != StateClosed {
		t.Errorf("client state = %s, want CLOSED", client.State())
	}
}
