package router

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/wampio/wampio/pkg/auth"
	"github.com/wampio/wampio/pkg/codec"
	"github.com/wampio/wampio/pkg/protocol"
	"github.com/wampio/wampio/pkg/wampmsg"
	"github.com/wampio/wampio/pkg/wampsession"
	"github.com/wampio/wampio/pkg/wampval"
)

func dialActiveSession(t *testing.T, addr net.Addr, authid string) *wampsession.Session {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	framing := protocol.NewRawSocket(conn, codec.IDJSON)
	sess := wampsession.New(0, wampsession.ModeActive, framing, wampsession.Config{})
	sess.SetCredentials(wampsession.Credentials{
		Realm:       "default",
		AuthID:      authid,
		AuthMethods: []auth.Method{auth.MethodAnonymous},
	})
	done := make(chan error, 1)
	go func() { done <- sess.Attach() }()

	deadline := time.Now().Add(2 * time.Second)
	for sess.State() != wampsession.StateOpen {
		select {
		case err := <-done:
			t.Fatalf("session closed before reaching OPEN: %v", err)
		default:
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for session to reach OPEN")
		}
		time.Sleep(time.Millisecond)
	}
	return sess
}

func newTestRouter(t *testing.T) (*Router, net.Addr) {
	t.Helper()
	provider := auth.NewStaticProvider("test")
	for _, name := range []string{"alice", "bob", "carol", "dave"} {
		provider.SetUser("default", name, auth.UserConfig{Policy: auth.Policy{Mode: auth.ModeOpen}})
	}

	r := New(Config{})
	if err := r.Listen("127.0.0.1", 0, provider, ListenOptions{Protocols: ProtocolsRawSocket}); err != nil {
		t.Fatalf("listen: %v", err)
	}
	addrs := r.RawSocketAddrs()
	if len(addrs) != 1 {
		t.Fatalf("expected one raw-socket listener, got %d", len(addrs))
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = r.Shutdown(ctx)
	})
	return r, addrs[0]
}

// TestRouterRegisterCallUnregister runs the full RPC round trip end to
// end over a real TCP raw-socket listener bound by the router: register,
// call, yield, unregister, then a call to the now-unregistered procedure
// fails.
func TestRouterRegisterCallUnregister(t *testing.T) {
	_, addr := newTestRouter(t)

	alice := dialActiveSession(t, addr, "alice")
	bob := dialActiveSession(t, addr, "bob")
	ctx := context.Background()

	regID, err := alice.Register(ctx, "com.x.add", func(inv wampmsg.Invocation) wampmsg.Message {
		args, _ := inv.Args.AsArray()
		var sum int64
		for _, a := range args {
			n, _ := a.AsInt()
			sum += n
		}
		return wampmsg.Yield{Request: inv.Request, Args: wampval.Array(wampval.Int(sum))}
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	result, err := bob.Call(ctx, "com.x.add", wampval.Array(wampval.Int(2), wampval.Int(3)), wampval.Null)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	args, _ := result.Args.AsArray()
	if len(args) != 1 {
		t.Fatalf("expected one result arg, got %#v", result.Args)
	}
	if sum, _ := args[0].AsInt(); sum != 5 {
		t.Fatalf("expected sum 5, got %d", sum)
	}

	if err := alice.Unregister(ctx, regID); err != nil {
		t.Fatalf("unregister: %v", err)
	}

	_, err = bob.Call(ctx, "com.x.add", wampval.Null, wampval.Null)
	if err == nil {
		t.Fatalf("expected call to unregistered procedure to fail")
	}
}

// TestRouterPubSubFanOut: three clients subscribe to a topic, a fourth
// publishes, and each subscriber receives the event with the same
// publication id.
func TestRouterPubSubFanOut(t *testing.T) {
	_, addr := newTestRouter(t)
	ctx := context.Background()

	type received struct {
		ev wampmsg.Event
	}
	events := make(chan received, 3)

	subscribers := []*wampsession.Session{
		dialActiveSession(t, addr, "alice"),
		dialActiveSession(t, addr, "bob"),
		dialActiveSession(t, addr, "carol"),
	}
	for _, s := range subscribers {
		if _, err := s.Subscribe(ctx, "com.x.tick", func(ev wampmsg.Event) {
			events <- received{ev: ev}
		}); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
	}

	publisher := dialActiveSession(t, addr, "dave")
	if _, err := publisher.Publish(ctx, "com.x.tick", wampval.Array(wampval.String("t1")), wampval.Null, true); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var pubID int64 = -1
	for i := 0; i < 3; i++ {
		select {
		case r := <-events:
			args, _ := r.ev.Args.AsArray()
			if len(args) != 1 {
				t.Fatalf("expected one event arg, got %#v", r.ev.Args)
			}
			if s, _ := args[0].AsString(); s != "t1" {
				t.Fatalf("expected arg t1, got %q", s)
			}
			if pubID == -1 {
				pubID = r.ev.PublicationID
			} else if r.ev.PublicationID != pubID {
				t.Fatalf("mismatched publication id: %d vs %d", r.ev.PublicationID, pubID)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}
