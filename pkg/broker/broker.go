// Package broker implements the router's PubSub manager: a realm-scoped
// topic registry and PUBLISH->EVENT fan-out router. Like the dealer, its
// maps live behind a single mutex and no operation ever blocks while
// holding it.
package broker

import (
	"context"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wampio/wampio/pkg/wampmsg"
	"github.com/wampio/wampio/pkg/wampsession"
	"github.com/wampio/wampio/pkg/wampuri"
	"github.com/wampio/wampio/pkg/wampval"
)

// Listener is notified of new subscriptions and publications, the
// broker's analog of the dealer's Listener.
type Listener interface {
	Subscribed(realm, topic string, subID int64)
	EventPublished(realm string)
}

type subscription struct {
	subID      int64
	realm      string
	topic      string
	subscriber int64
	excludeMe  bool
}

type topicKey struct {
	realm string
	topic string
}

// Broker is the router's PubSub manager. It is realm-scoped: subscriptions
// are keyed by (realm, topic) so two realms may each have subscribers to
// the same topic name independently.
type Broker struct {
	mu sync.Mutex

	bySubID map[int64]*subscription
	byTopic map[topicKey]map[int64]struct{} // topicKey -> set of subID
	byOwner map[int64]map[int64]struct{}    // sessionID -> set of subID

	nextSubID atomic.Int64
	nextPubID atomic.Int64

	lookup   wampsession.Lookup
	listener Listener
	tracer   trace.Tracer
}

// New builds a Broker that resolves subscriber sessions through lookup.
// listener may be nil.
func New(lookup wampsession.Lookup, listener Listener) *Broker {
	return &Broker{
		bySubID:  make(map[int64]*subscription),
		byTopic:  make(map[topicKey]map[int64]struct{}),
		byOwner:  make(map[int64]map[int64]struct{}),
		lookup:   lookup,
		listener: listener,
		tracer:   otel.Tracer("github.com/wampio/wampio/pkg/broker"),
	}
}

var _ wampsession.PubSubHandler = (*Broker)(nil)

// Subscribe implements wampsession.PubSubHandler. Unlike REGISTER, WAMP
// allows more than one subscription per (session, topic); each SUBSCRIBE
// always allocates a fresh subscription id.
func (b *Broker) Subscribe(subscriber wampsession.Sender, m wampmsg.Subscribe) {
	if !wampuri.Valid(m.Topic) {
		b.sendError(subscriber, wampmsg.TypeSubscribe, m.Request, wampmsg.ErrInvalidURI)
		return
	}
	key := topicKey{realm: subscriber.Realm(), topic: m.Topic}
	subID := b.nextSubID.Add(1)
	sub := &subscription{subID: subID, realm: key.realm, topic: key.topic, subscriber: subscriber.ID()}

	b.mu.Lock()
	b.bySubID[subID] = sub
	if b.byTopic[key] == nil {
		b.byTopic[key] = make(map[int64]struct{})
	}
	b.byTopic[key][subID] = struct{}{}
	if b.byOwner[subscriber.ID()] == nil {
		b.byOwner[subscriber.ID()] = make(map[int64]struct{})
	}
	b.byOwner[subscriber.ID()][subID] = struct{}{}
	b.mu.Unlock()

	if b.listener != nil {
		b.listener.Subscribed(key.realm, key.topic, subID)
	}
	_ = subscriber.Send(wampmsg.Subscribed{Request: m.Request, SubscriptionID: subID})
}

// Unsubscribe implements wampsession.PubSubHandler.
func (b *Broker) Unsubscribe(subscriber wampsession.Sender, m wampmsg.Unsubscribe) {
	b.mu.Lock()
	sub, ok := b.bySubID[m.SubscriptionID]
	if !ok || sub.subscriber != subscriber.ID() {
		b.mu.Unlock()
		b.sendError(subscriber, wampmsg.TypeUnsubscribe, m.Request, wampmsg.ErrNoSuchSubscription)
		return
	}
	b.removeSubscriptionLocked(sub)
	b.mu.Unlock()

	_ = subscriber.Send(wampmsg.Unsubscribed{Request: m.Request})
}

// removeSubscriptionLocked must be called with b.mu held.
func (b *Broker) removeSubscriptionLocked(sub *subscription) {
	delete(b.bySubID, sub.subID)
	key := topicKey{realm: sub.realm, topic: sub.topic}
	if subs := b.byTopic[key]; subs != nil {
		delete(subs, sub.subID)
		if len(subs) == 0 {
			delete(b.byTopic, key)
		}
	}
	if owned := b.byOwner[sub.subscriber]; owned != nil {
		delete(owned, sub.subID)
		if len(owned) == 0 {
			delete(b.byOwner, sub.subscriber)
		}
	}
}

// Publish implements wampsession.PubSubHandler. Each current subscriber of
// the topic receives exactly one EVENT, in publication order. The
// publisher is excluded iff its options set exclude_me, which defaults to
// true per WAMP.
func (b *Broker) Publish(publisher wampsession.Sender, m wampmsg.Publish) {
	_, span := b.tracer.Start(context.Background(), "broker.publish", trace.WithAttributes(
		attribute.String("wamp.topic", m.Topic),
		attribute.String("wamp.realm", publisher.Realm()),
	))
	defer span.End()

	if !wampuri.Valid(m.Topic) {
		b.sendError(publisher, wampmsg.TypePublish, m.Request, wampmsg.ErrInvalidURI)
		return
	}
	excludeMe := true
	if v, ok := m.Options.Field("exclude_me"); ok {
		if flag, ok := v.AsBool(); ok {
			excludeMe = flag
		}
	}
	acknowledge := false
	if v, ok := m.Options.Field("acknowledge"); ok {
		if flag, ok := v.AsBool(); ok {
			acknowledge = flag
		}
	}

	pubID := b.nextPubID.Add(1)
	key := topicKey{realm: publisher.Realm(), topic: m.Topic}

	b.mu.Lock()
	subIDs := make([]int64, 0, len(b.byTopic[key]))
	for id := range b.byTopic[key] {
		subIDs = append(subIDs, id)
	}
	subs := make([]*subscription, 0, len(subIDs))
	for _, id := range subIDs {
		subs = append(subs, b.bySubID[id])
	}
	b.mu.Unlock()

	for _, sub := range subs {
		if excludeMe && sub.subscriber == publisher.ID() {
			continue
		}
		subscriberSender, found := b.lookup.Lookup(sub.subscriber)
		if !found {
			continue
		}
		_ = subscriberSender.Send(wampmsg.Event{
			SubscriptionID: sub.subID,
			PublicationID:  pubID,
			Details:        wampval.Object(nil),
			Args:           m.Args,
			Kwargs:         m.Kwargs,
		})
		if b.listener != nil {
			b.listener.EventPublished(key.realm)
		}
	}

	if acknowledge {
		_ = publisher.Send(wampmsg.Published{Request: m.Request, PublicationID: pubID})
	}
}

// SessionClosed implements wampsession.PubSubHandler: drop every
// subscription owned by sessionID.
func (b *Broker) SessionClosed(sessionID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	owned := b.byOwner[sessionID]
	for subID := range owned {
		if sub := b.bySubID[subID]; sub != nil {
			b.removeSubscriptionLocked(sub)
		}
	}
}

func (b *Broker) sendError(subscriber wampsession.Sender, requestType wampmsg.Type, requestID int64, uri string) {
	_ = subscriber.Send(wampmsg.ErrorMsg{RequestType: requestType, Request: requestID, Error: uri})
}
