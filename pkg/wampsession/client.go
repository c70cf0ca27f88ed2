package wampsession

import (
	"context"

	"github.com/wampio/wampio/pkg/wamperr"
	"github.com/wampio/wampio/pkg/wampmsg"
	"github.com/wampio/wampio/pkg/wampval"
)

// InvocationFunc handles an INVOCATION delivered to a registered procedure
// and returns the Yield or ErrorMsg to send back.
type InvocationFunc func(inv wampmsg.Invocation) wampmsg.Message

// EventFunc handles an EVENT delivered to a subscribed topic.
type EventFunc func(ev wampmsg.Event)

// request registers a pending continuation, then sends m, then blocks
// until the reply arrives or ctx is done. Insertion strictly precedes the
// write so a reply can never beat its own table entry. onReply, if
// non-nil, runs on the read-loop goroutine before the next inbound message
// is processed, which is what lets Subscribe/Register install their
// handlers without an EVENT or INVOCATION racing past them. A synthetic
// Canceled ErrorMsg surfaces as a Go error.
func (s *Session) request(ctx context.Context, requestID int64, requestType wampmsg.Type, m wampmsg.Message, onReply func(wampmsg.Message)) (wampmsg.Message, error) {
	ch := make(chan wampmsg.Message, 1)
	s.pending.insert(requestID, requestType, func(reply wampmsg.Message) {
		if onReply != nil {
			onReply(reply)
		}
		ch <- reply
	})
	if err := s.Send(m); err != nil {
		s.pending.resolve(requestID)
		return nil, err
	}
	select {
	case reply := <-ch:
		if errMsg, ok := reply.(wampmsg.ErrorMsg); ok {
			return nil, wamperr.New(classifyAppError(errMsg.Error), errMsg.Error)
		}
		return reply, nil
	case <-ctx.Done():
		s.pending.resolve(requestID) // best effort; reply may still race in
		return nil, ctx.Err()
	}
}

func classifyAppError(uri string) wamperr.Kind {
	if uri == wampmsg.ErrCanceled {
		return wamperr.KindCanceled
	}
	return wamperr.KindAppError
}

// Call issues a CALL and waits for RESULT or ERROR.
func (s *Session) Call(ctx context.Context, procedure string, args, kwargs wampval.Value) (wampmsg.Result, error) {
	id := s.nextReqID()
	reply, err := s.request(ctx, id, wampmsg.TypeCall,
		wampmsg.Call{Request: id, Options: wampval.Object(nil), Procedure: procedure, Args: args, Kwargs: kwargs}, nil)
	if err != nil {
		return wampmsg.Result{}, err
	}
	return reply.(wampmsg.Result), nil
}

// Publish issues a PUBLISH and, if acknowledge is set, waits for
// PUBLISHED.
func (s *Session) Publish(ctx context.Context, topic string, args, kwargs wampval.Value, acknowledge bool) (int64, error) {
	id := s.nextReqID()
	options := map[string]wampval.Value{}
	if acknowledge {
		options["acknowledge"] = wampval.Bool(true)
	}
	pub := wampmsg.Publish{Request: id, Options: wampval.Object(options), Topic: topic, Args: args, Kwargs: kwargs}
	if !acknowledge {
		return 0, s.Send(pub)
	}
	reply, err := s.request(ctx, id, wampmsg.TypePublish, pub, nil)
	if err != nil {
		return 0, err
	}
	return reply.(wampmsg.Published).PublicationID, nil
}

// Subscribe issues SUBSCRIBE, waits for SUBSCRIBED, and installs handler
// for future EVENTs on the resulting subscription. The handler is
// installed from the read-loop goroutine the moment SUBSCRIBED resolves,
// so no subsequent EVENT can slip past it.
func (s *Session) Subscribe(ctx context.Context, topic string, handler EventFunc) (int64, error) {
	id := s.nextReqID()
	reply, err := s.request(ctx, id, wampmsg.TypeSubscribe,
		wampmsg.Subscribe{Request: id, Options: wampval.Object(nil), Topic: topic},
		func(reply wampmsg.Message) {
			if sub, ok := reply.(wampmsg.Subscribed); ok {
				s.subsMu.Lock()
				s.subs[sub.SubscriptionID] = handler
				s.subsMu.Unlock()
			}
		})
	if err != nil {
		return 0, err
	}
	return reply.(wampmsg.Subscribed).SubscriptionID, nil
}

// Unsubscribe issues UNSUBSCRIBE and waits for UNSUBSCRIBED.
func (s *Session) Unsubscribe(ctx context.Context, subscriptionID int64) error {
	id := s.nextReqID()
	if _, err := s.request(ctx, id, wampmsg.TypeUnsubscribe,
		wampmsg.Unsubscribe{Request: id, SubscriptionID: subscriptionID}, nil); err != nil {
		return err
	}
	s.subsMu.Lock()
	delete(s.subs, subscriptionID)
	s.subsMu.Unlock()
	return nil
}

// Register issues REGISTER, waits for REGISTERED, and installs handler to
// answer future INVOCATIONs on the resulting registration. Like Subscribe,
// the handler is installed before the read loop moves on, so an INVOCATION
// arriving right behind REGISTERED is never dropped.
func (s *Session) Register(ctx context.Context, procedure string, handler InvocationFunc) (int64, error) {
	id := s.nextReqID()
	reply, err := s.request(ctx, id, wampmsg.TypeRegister,
		wampmsg.Register{Request: id, Options: wampval.Object(nil), Procedure: procedure},
		func(reply wampmsg.Message) {
			if reg, ok := reply.(wampmsg.Registered); ok {
				s.regsMu.Lock()
				s.regs[reg.RegistrationID] = handler
				s.regsMu.Unlock()
			}
		})
	if err != nil {
		return 0, err
	}
	return reply.(wampmsg.Registered).RegistrationID, nil
}

// Unregister issues UNREGISTER and waits for UNREGISTERED.
func (s *Session) Unregister(ctx context.Context, registrationID int64) error {
	id := s.nextReqID()
	if _, err := s.request(ctx, id, wampmsg.TypeUnregister,
		wampmsg.Unregister{Request: id, RegistrationID: registrationID}, nil); err != nil {
		return err
	}
	s.regsMu.Lock()
	delete(s.regs, registrationID)
	s.regsMu.Unlock()
	return nil
}
