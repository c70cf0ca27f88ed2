package broker

import (
	"sync"
	"testing"

	"github.com/wampio/wampio/pkg/wampmsg"
	"github.com/wampio/wampio/pkg/wampsession"
	"github.com/wampio/wampio/pkg/wampval"
)

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
func (f *fakeSender) all() []wampmsg.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]wampmsg.Message, len(f.sent))
	copy(out, f.sent)
	return out
}
func (f *fakeSender) last() wampmsg.Message {
	msgs := f.all()
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
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

// TestBrokerFanOut: three subscribers to one topic each receive the same
// publication id exactly once.
func TestBrokerFanOut(t *testing.T) {
	lookup := newFakeLookup()
	b := New(lookup, nil)

	subs := make([]*fakeSender, 3)
	for i := range subs {
		subs[i] = &fakeSender{id: int64(i + 1), realm: "default"}
		lookup.add(subs[i])
		b.Subscribe(subs[i], wampmsg.Subscribe{Request: int64(i + 1), Topic: "com.x.tick"})
	}

	publisher := &fakeSender{id: 99, realm: "default"}
	lookup.add(publisher)
	b.Publish(publisher, wampmsg.Publish{Request: 1, Topic: "com.x.tick", Args: wampval.Array(wampval.String("t1"))})

	var pubID int64 = -1
	for _, s := range subs {
		ev, ok := s.last().(wampmsg.Event)
		if !ok {
			t.Fatalf("subscriber %d got no event: %#v", s.id, s.last())
		}
		if args, _ := ev.Args.AsArray(); len(args) != 1 {
			t.Fatalf("expected one event arg, got %#v", ev.Args)
		}
		events := 0
		for _, m := range s.all() {
			if _, isEvent := m.(wampmsg.Event); isEvent {
				events++
			}
		}
		if events != 1 {
			t.Fatalf("subscriber %d got %d events, want 1", s.id, events)
		}
		if pubID == -1 {
			pubID = ev.PublicationID
		} else if ev.PublicationID != pubID {
			t.Fatalf("mismatched publication id: %d vs %d", ev.PublicationID, pubID)
		}
	}
}

// TestBrokerExcludeMeDefault exercises the WAMP default of excluding the
// publisher from its own publication's fan-out.
func TestBrokerExcludeMeDefault(t *testing.T) {
	lookup := newFakeLookup()
	b := New(lookup, nil)

	publisher := &fakeSender{id: 1, realm: "default"}
	lookup.add(publisher)
	b.Subscribe(publisher, wampmsg.Subscribe{Request: 1, Topic: "com.x.tick"})

	b.Publish(publisher, wampmsg.Publish{Request: 2, Topic: "com.x.tick"})

	for _, m := range publisher.all() {
		if _, ok := m.(wampmsg.Event); ok {
			t.Fatalf("publisher should not receive its own event by default, got %#v", m)
		}
	}
}

// TestBrokerAcknowledge exercises the acknowledge:true PUBLISH option.
func TestBrokerAcknowledge(t *testing.T) {
	lookup := newFakeLookup()
	b := New(lookup, nil)
	publisher := &fakeSender{id: 1, realm: "default"}
	lookup.add(publisher)

	b.Publish(publisher, wampmsg.Publish{
		Request: 5,
		Topic:   "com.x.tick",
		Options: wampval.Object(map[string]wampval.Value{"acknowledge": wampval.Bool(true)}),
	})
	published, ok := publisher.last().(wampmsg.Published)
	if !ok || published.Request != 5 {
		t.Fatalf("expected Published for request 5, got %#v", publisher.last())
	}
}

// TestBrokerUnsubscribeAndSessionClose exercises removal by explicit
// UNSUBSCRIBE and by session teardown.
func TestBrokerUnsubscribeAndSessionClose(t *testing.T) {
	lookup := newFakeLookup()
	b := New(lookup, nil)

	a := &fakeSender{id: 1, realm: "default"}
	c := &fakeSender{id: 2, realm: "default"}
	lookup.add(a)
	lookup.add(c)

	b.Subscribe(a, wampmsg.Subscribe{Request: 1, Topic: "com.x.tick"})
	subscribed := a.last().(wampmsg.Subscribed)

	b.Subscribe(c, wampmsg.Subscribe{Request: 1, Topic: "com.x.tick"})

	b.Unsubscribe(a, wampmsg.Unsubscribe{Request: 2, SubscriptionID: subscribed.SubscriptionID})
	if _, ok := a.last().(wampmsg.Unsubscribed); !ok {
		t.Fatalf("expected Unsubscribed, got %#v", a.last())
	}

	b.SessionClosed(c.id)

	publisher := &fakeSender{id: 99, realm: "default"}
	lookup.add(publisher)
	b.Publish(publisher, wampmsg.Publish{Request: 3, Topic: "com.x.tick"})

	for _, m := range a.all() {
		if _, ok := m.(wampmsg.Event); ok {
			t.Fatalf("unsubscribed session should not receive events, got %#v", m)
		}
	}
	for _, m := range c.all() {
		if _, ok := m.(wampmsg.Event); ok {
			t.Fatalf("closed session should not receive events, got %#v", m)
		}
	}
}

func TestBrokerUnsubscribeUnknown(t *testing.T) {
	lookup := newFakeLookup()
	b := New(lookup, nil)
	s := &fakeSender{id: 1, realm: "default"}
	lookup.add(s)

	b.Unsubscribe(s, wampmsg.Unsubscribe{Request: 1, SubscriptionID: 42})
	errMsg, ok := s.last().(wampmsg.ErrorMsg)
	if !ok || errMsg.Error != wampmsg.ErrNoSuchSubscription {
		t.Fatalf("expected no_such_subscription, got %#v", s.last())
	}
}
