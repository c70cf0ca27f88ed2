// Package dealer implements the router's RPC manager: a realm-scoped URI
// registry and CALL->INVOCATION->YIELD/ERROR->RESULT router. State is
// plain Go maps behind one mutex; no operation blocks while holding it.
package dealer

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

// Listener is notified of successful registrations and call outcomes.
// The router uses it to feed metrics without the dealer importing them.
type Listener interface {
	RPCRegistered(realm, uri string, regID int64)
	CallRouted(realm string)
	CallFailed(realm, errorURI string)
}

// InternalHandler answers an in-process (no-session) CALL installed via
// Provide. It runs synchronously on the calling goroutine; it must not
// block.
type InternalHandler func(args, kwargs wampval.Value) (wampmsg.Result, *wampmsg.ErrorMsg)

type registration struct {
	regID    int64
	realm    string
	uri      string
	ownerID  int64 // 0 for an internal (handler-backed) registration
	internal InternalHandler
}

type pendingCall struct {
	callerID      int64
	callerRequest int64
	calleeID      int64
	realm         string
	span          trace.Span
}

// Dealer is the router's RPC manager. It is realm-scoped: registrations
// are keyed by (realm, URI) so two realms may register the same URI
// independently, with at most one active registration per key.
type Dealer struct {
	mu sync.Mutex

	byKey   map[regKey]*registration
	byRegID map[int64]*registration
	byOwner map[int64]map[int64]struct{} // sessionID -> set of regID

	pending  map[int64]*pendingCall
	byCallee map[int64]map[int64]struct{} // sessionID -> set of invocationID

	nextRegID        atomic.Int64
	nextInvocationID atomic.Int64

	lookup   wampsession.Lookup
	listener Listener
	tracer   trace.Tracer
}

type regKey struct {
	realm string
	uri   string
}

// New builds a Dealer that resolves callee/caller sessions through
// lookup. listener may be nil.
func New(lookup wampsession.Lookup, listener Listener) *Dealer {
	return &Dealer{
		byKey:    make(map[regKey]*registration),
		byRegID:  make(map[int64]*registration),
		byOwner:  make(map[int64]map[int64]struct{}),
		pending:  make(map[int64]*pendingCall),
		byCallee: make(map[int64]map[int64]struct{}),
		lookup:   lookup,
		listener: listener,
		tracer:   otel.Tracer("github.com/wampio/wampio/pkg/dealer"),
	}
}

var _ wampsession.RPCHandler = (*Dealer)(nil)

// Register implements wampsession.RPCHandler.
func (d *Dealer) Register(caller wampsession.Sender, m wampmsg.Register) {
	if !wampuri.Valid(m.Procedure) {
		d.sendError(caller, wampmsg.TypeRegister, m.Request, wampmsg.ErrInvalidURI)
		return
	}
	key := regKey{realm: caller.Realm(), uri: m.Procedure}

	d.mu.Lock()
	if _, exists := d.byKey[key]; exists {
		d.mu.Unlock()
		d.sendError(caller, wampmsg.TypeRegister, m.Request, wampmsg.ErrProcedureAlreadyExists)
		return
	}
	regID := d.nextRegID.Add(1)
	reg := &registration{regID: regID, realm: key.realm, uri: key.uri, ownerID: caller.ID()}
	d.byKey[key] = reg
	d.byRegID[regID] = reg
	if d.byOwner[caller.ID()] == nil {
		d.byOwner[caller.ID()] = make(map[int64]struct{})
	}
	d.byOwner[caller.ID()][regID] = struct{}{}
	d.mu.Unlock()

	if d.listener != nil {
		d.listener.RPCRegistered(key.realm, key.uri, regID)
	}
	_ = caller.Send(wampmsg.Registered{Request: m.Request, RegistrationID: regID})
}

// Unregister implements wampsession.RPCHandler.
func (d *Dealer) Unregister(caller wampsession.Sender, m wampmsg.Unregister) {
	d.mu.Lock()
	reg, ok := d.byRegID[m.RegistrationID]
	if !ok || reg.ownerID != caller.ID() {
		d.mu.Unlock()
		d.sendError(caller, wampmsg.TypeUnregister, m.Request, wampmsg.ErrNoSuchRegistration)
		return
	}
	d.removeRegistrationLocked(reg)
	d.mu.Unlock()

	_ = caller.Send(wampmsg.Unregistered{Request: m.Request})
}

// removeRegistrationLocked must be called with d.mu held.
func (d *Dealer) removeRegistrationLocked(reg *registration) {
	delete(d.byRegID, reg.regID)
	delete(d.byKey, regKey{realm: reg.realm, uri: reg.uri})
	if owned := d.byOwner[reg.ownerID]; owned != nil {
		delete(owned, reg.regID)
		if len(owned) == 0 {
			delete(d.byOwner, reg.ownerID)
		}
	}
}

// Provide installs an in-process procedure with no owning session. The
// handler is invoked synchronously, inline on the calling goroutine, for
// every CALL the dealer routes to uri on realm.
func (d *Dealer) Provide(realm, uri string, handler InternalHandler) (int64, error) {
	if !wampuri.Valid(uri) {
		return 0, wampuri.ErrInvalid
	}
	key := regKey{realm: realm, uri: uri}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.byKey[key]; exists {
		return 0, errProcedureAlreadyExists
	}
	regID := d.nextRegID.Add(1)
	reg := &registration{regID: regID, realm: realm, uri: uri, internal: handler}
	d.byKey[key] = reg
	d.byRegID[regID] = reg
	if d.listener != nil {
		d.listener.RPCRegistered(realm, uri, regID)
	}
	return regID, nil
}

// Call implements wampsession.RPCHandler.
func (d *Dealer) Call(caller wampsession.Sender, m wampmsg.Call) {
	_, span := d.tracer.Start(context.Background(), "dealer.call", trace.WithAttributes(
		attribute.String("wamp.procedure", m.Procedure),
		attribute.String("wamp.realm", caller.Realm()),
	))

	d.mu.Lock()
	reg, ok := d.byKey[regKey{realm: caller.Realm(), uri: m.Procedure}]
	if !ok {
		d.mu.Unlock()
		span.End()
		d.sendError(caller, wampmsg.TypeCall, m.Request, wampmsg.ErrNoSuchProcedure)
		return
	}
	if reg.internal != nil {
		d.mu.Unlock()
		result, appErr := reg.internal(m.Args, m.Kwargs)
		span.End()
		if appErr != nil {
			appErr.RequestType = wampmsg.TypeCall
			appErr.Request = m.Request
			_ = caller.Send(*appErr)
			d.callFailed(caller.Realm(), appErr.Error)
			return
		}
		result.Request = m.Request
		_ = caller.Send(result)
		d.callRouted(caller.Realm())
		return
	}
	callee, found := d.lookup.Lookup(reg.ownerID)
	if !found {
		d.removeRegistrationLocked(reg)
		d.mu.Unlock()
		span.End()
		d.sendError(caller, wampmsg.TypeCall, m.Request, wampmsg.ErrNoSuchProcedure)
		return
	}
	invocationID := d.nextInvocationID.Add(1)
	d.pending[invocationID] = &pendingCall{
		callerID:      caller.ID(),
		callerRequest: m.Request,
		calleeID:      reg.ownerID,
		realm:         caller.Realm(),
		span:          span,
	}
	if d.byCallee[reg.ownerID] == nil {
		d.byCallee[reg.ownerID] = make(map[int64]struct{})
	}
	d.byCallee[reg.ownerID][invocationID] = struct{}{}
	d.mu.Unlock()

	if err := callee.Send(wampmsg.Invocation{
		Request:        invocationID,
		RegistrationID: reg.regID,
		Details:        m.Options,
		Args:           m.Args,
		Kwargs:         m.Kwargs,
	}); err != nil {
		_, _ = d.takePending(invocationID)
		d.sendError(caller, wampmsg.TypeCall, m.Request, wampmsg.ErrRuntimeError)
	}
}

// Yield implements wampsession.RPCHandler.
func (d *Dealer) Yield(callee wampsession.Sender, m wampmsg.Yield) {
	pc, ok := d.takePending(m.Request)
	if !ok {
		return
	}
	caller, found := d.lookup.Lookup(pc.callerID)
	if found {
		_ = caller.Send(wampmsg.Result{Request: pc.callerRequest, Details: m.Options, Args: m.Args, Kwargs: m.Kwargs})
	}
	d.callRouted(pc.realm)
}

// CallError implements wampsession.RPCHandler.
func (d *Dealer) CallError(callee wampsession.Sender, m wampmsg.ErrorMsg) {
	pc, ok := d.takePending(m.Request)
	if !ok {
		return
	}
	caller, found := d.lookup.Lookup(pc.callerID)
	if found {
		_ = caller.Send(wampmsg.ErrorMsg{
			RequestType: wampmsg.TypeCall,
			Request:     pc.callerRequest,
			Details:     m.Details,
			Error:       m.Error,
			Args:        m.Args,
			Kwargs:      m.Kwargs,
		})
	}
	d.callFailed(pc.realm, m.Error)
}

// Cancel implements wampsession.RPCHandler. CANCEL is tolerated on the
// wire but not acted on: this dealer does not track caller-request-id ->
// invocation-id well enough to interrupt a specific in-flight call, and
// the basic profile does not require it.
func (d *Dealer) Cancel(caller wampsession.Sender, m wampmsg.Cancel) {}

// SessionClosed implements wampsession.RPCHandler: drop the session's
// registrations and synthesize Canceled for any call it was mid-flight on
// as callee, so no caller is left waiting forever.
func (d *Dealer) SessionClosed(sessionID int64) {
	d.mu.Lock()
	if owned := d.byOwner[sessionID]; owned != nil {
		for regID := range owned {
			if reg := d.byRegID[regID]; reg != nil {
				delete(d.byRegID, regID)
				delete(d.byKey, regKey{realm: reg.realm, uri: reg.uri})
			}
		}
		delete(d.byOwner, sessionID)
	}
	inflight := d.byCallee[sessionID]
	delete(d.byCallee, sessionID)
	var toCancel []*pendingCall
	for invocationID := range inflight {
		if pc, ok := d.pending[invocationID]; ok {
			delete(d.pending, invocationID)
			toCancel = append(toCancel, pc)
		}
	}
	d.mu.Unlock()

	for _, pc := range toCancel {
		pc.span.End()
		if caller, found := d.lookup.Lookup(pc.callerID); found {
			_ = caller.Send(wampmsg.ErrorMsg{
				RequestType: wampmsg.TypeCall,
				Request:     pc.callerRequest,
				Error:       wampmsg.ErrCanceled,
			})
		}
	}
}

func (d *Dealer) takePending(invocationID int64) (*pendingCall, bool) {
	d.mu.Lock()
	pc, ok := d.pending[invocationID]
	if ok {
		delete(d.pending, invocationID)
		if callee := d.byCallee[pc.calleeID]; callee != nil {
			delete(callee, invocationID)
			if len(callee) == 0 {
				delete(d.byCallee, pc.calleeID)
			}
		}
	}
	d.mu.Unlock()
	if ok {
		pc.span.End()
	}
	return pc, ok
}

func (d *Dealer) sendError(caller wampsession.Sender, requestType wampmsg.Type, requestID int64, uri string) {
	_ = caller.Send(wampmsg.ErrorMsg{RequestType: requestType, Request: requestID, Error: uri})
	if requestType == wampmsg.TypeCall {
		d.callFailed(caller.Realm(), uri)
	}
}

func (d *Dealer) callRouted(realm string) {
	if d.listener != nil {
		d.listener.CallRouted(realm)
	}
}

func (d *Dealer) callFailed(realm, errorURI string) {
	if d.listener != nil {
		d.listener.CallFailed(realm, errorURI)
	}
}
