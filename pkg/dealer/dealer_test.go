package dealer

import (
	"sync"
	"testing"

	"github.com/wampio/wampio/pkg/wampmsg"
	"github.com/wampio/wampio/pkg/wampsession"
	"github.com/wampio/wampio/pkg/wampval"
)

// fakeSender and fakeLookup give the dealer a session table without
// standing up a real wampsession.Session.
type fakeSender struct {
	id    int64
	realm string
	mu    sync.Mutex
	sent  []wampmsg.Message
}

func (f *fakeSender) ID() int64     { return f.id }
func (f *fakeSender) Realm() string { return f.realm }
func (f *fakeSender) Send(m wampmsg.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, m)
	return nil
}
func (f *fakeSender) last() wampmsg.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

type fakeLookup struct {
	mu       sync.Mutex
	sessions map[int64]wampsession.Sender
}

func newFakeLookup() *fakeLookup { return &fakeLookup{sessions: make(map[int64]wampsession.Sender)} }

func (l *fakeLookup) add(s *fakeSender) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sessions[s.id] = s
}

func (l *fakeLookup) remove(id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.sessions, id)
}

func (l *fakeLookup) Lookup(id int64) (wampsession.Sender, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sessions[id]
	return s, ok
}

// TestDealerRegisterCallUnregister: register, call, yield, unregister,
// then a call to the now-unregistered procedure fails.
func TestDealerRegisterCallUnregister(t *testing.T) {
	lookup := newFakeLookup()
	d := New(lookup, nil)

	callee := &fakeSender{id: 1, realm: "default"}
	caller := &fakeSender{id: 2, realm: "default"}
	lookup.add(callee)
	lookup.add(caller)

	d.Register(callee, wampmsg.Register{Request: 1, Procedure: "com.x.add"})
	reg, ok := callee.last().(wampmsg.Registered)
	if !ok || reg.Request != 1 {
		t.Fatalf("expected Registered, got %#v", callee.last())
	}
	regID := reg.RegistrationID

	d.Call(caller, wampmsg.Call{Request: 7, Procedure: "com.x.add", Args: wampval.Array(wampval.Int(2), wampval.Int(3))})
	inv, ok := callee.last().(wampmsg.Invocation)
	if !ok || inv.RegistrationID != regID {
		t.Fatalf("expected Invocation for reg %d, got %#v", regID, callee.last())
	}

	d.Yield(callee, wampmsg.Yield{Request: inv.Request, Args: wampval.Array(wampval.Int(5))})
	result, ok := caller.last().(wampmsg.Result)
	if !ok || result.Request != 7 {
		t.Fatalf("expected Result for request 7, got %#v", caller.last())
	}
	if args, _ := result.Args.AsArray(); len(args) != 1 {
		t.Fatalf("expected one result arg, got %#v", result.Args)
	}

	d.Unregister(callee, wampmsg.Unregister{Request: 2, RegistrationID: regID})
	if _, ok := callee.last().(wampmsg.Unregistered); !ok {
		t.Fatalf("expected Unregistered, got %#v", callee.last())
	}

	d.Call(caller, wampmsg.Call{Request: 8, Procedure: "com.x.add"})
	errMsg, ok := caller.last().(wampmsg.ErrorMsg)
	if !ok || errMsg.Error != wampmsg.ErrNoSuchProcedure {
		t.Fatalf("expected no_such_procedure, got %#v", caller.last())
	}
}

// TestDealerDuplicateRegistrationRejected: two sessions register the same
// URI; the second is rejected and the first remains the owner.
func TestDealerDuplicateRegistrationRejected(t *testing.T) {
	lookup := newFakeLookup()
	d := New(lookup, nil)

	first := &fakeSender{id: 1, realm: "default"}
	second := &fakeSender{id: 2, realm: "default"}
	lookup.add(first)
	lookup.add(second)

	d.Register(first, wampmsg.Register{Request: 1, Procedure: "com.x.ping"})
	if _, ok := first.last().(wampmsg.Registered); !ok {
		t.Fatalf("expected first Registered, got %#v", first.last())
	}

	d.Register(second, wampmsg.Register{Request: 1, Procedure: "com.x.ping"})
	errMsg, ok := second.last().(wampmsg.ErrorMsg)
	if !ok || errMsg.Error != wampmsg.ErrProcedureAlreadyExists {
		t.Fatalf("expected procedure_already_exists, got %#v", second.last())
	}
}

// TestDealerSessionClosedCancelsInFlight: the callee's session closes
// while a call is in flight; the caller receives a synthetic canceled
// error for that exact request id.
func TestDealerSessionClosedCancelsInFlight(t *testing.T) {
	lookup := newFakeLookup()
	d := New(lookup, nil)

	callee := &fakeSender{id: 1, realm: "default"}
	caller := &fakeSender{id: 2, realm: "default"}
	lookup.add(callee)
	lookup.add(caller)

	d.Register(callee, wampmsg.Register{Request: 1, Procedure: "com.x.slow"})
	d.Call(caller, wampmsg.Call{Request: 9, Procedure: "com.x.slow"})
	if _, ok := callee.last().(wampmsg.Invocation); !ok {
		t.Fatalf("expected Invocation, got %#v", callee.last())
	}

	lookup.remove(callee.id)
	d.SessionClosed(callee.id)

	errMsg, ok := caller.last().(wampmsg.ErrorMsg)
	if !ok || errMsg.Error != wampmsg.ErrCanceled || errMsg.Request != 9 {
		t.Fatalf("expected canceled for request 9, got %#v", caller.last())
	}
}

func TestDealerInvalidURI(t *testing.T) {
	lookup := newFakeLookup()
	d := New(lookup, nil)
	caller := &fakeSender{id: 1, realm: "default"}
	lookup.add(caller)

	d.Register(caller, wampmsg.Register{Request: 1, Procedure: "not a uri!"})
	errMsg, ok := caller.last().(wampmsg.ErrorMsg)
	if !ok || errMsg.Error != wampmsg.ErrInvalidURI {
		t.Fatalf("expected invalid_uri, got %#v", caller.last())
	}
}
