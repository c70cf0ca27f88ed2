// Package router implements the multi-session owner of the WAMP runtime:
// it binds listeners, admits new sessions through the WAMP handshake, and
// wires each OPEN session to a shared dealer and broker.
package router

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wampio/wampio/pkg/auth"
	"github.com/wampio/wampio/pkg/broker"
	"github.com/wampio/wampio/pkg/dealer"
	"github.com/wampio/wampio/pkg/middleware"
	"github.com/wampio/wampio/pkg/protocol"
	"github.com/wampio/wampio/pkg/wampmsg"
	"github.com/wampio/wampio/pkg/wampsession"
	"github.com/wampio/wampio/pkg/wampval"
)

// Router owns a set of listeners and the router-wide session table. The
// dealer and broker it wires every accepted session to hold only weak
// references (a session id, re-resolved through Router.Lookup) back into
// that table.
type Router struct {
	mu       sync.RWMutex
	sessions map[int64]*wampsession.Session
	opened   map[int64]bool

	dealer *dealer.Dealer
	broker *broker.Broker

	metrics *middleware.Metrics
	logger  *slog.Logger

	mux *chi.Mux

	listenersMu  sync.Mutex
	httpServers  []*http.Server
	rawListeners []net.Listener

	shutdownOnce sync.Once
}

// Config configures a Router. A zero Config is valid; Logger defaults to
// slog.Default() and Metrics to middleware.Default().
type Config struct {
	Logger  *slog.Logger
	Metrics *middleware.Metrics
}

// New builds a Router with its own dealer and broker, both resolving
// sessions through the router's own session table.
func New(cfg Config) *Router {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = middleware.Default()
	}
	r := &Router{
		sessions: make(map[int64]*wampsession.Session),
		opened:   make(map[int64]bool),
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With("component", "router"),
		mux:      chi.NewRouter(),
	}
	r.dealer = dealer.New(r, r)
	r.broker = broker.New(r, r)
	r.mountHTTP()
	return r
}

var _ wampsession.Lookup = (*Router)(nil)
var _ dealer.Listener = (*Router)(nil)
var _ broker.Listener = (*Router)(nil)

// Lookup implements wampsession.Lookup, resolving a session id to its
// Sender without extending the session's lifetime beyond the table entry
// itself. A stale id returns ok=false and the dispatch is silently
// dropped.
func (r *Router) Lookup(id int64) (wampsession.Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return s, true
}

// RPCRegistered implements dealer.Listener.
func (r *Router) RPCRegistered(realm, uri string, regID int64) {
	r.logger.Debug("procedure registered", "realm", realm, "uri", uri, "registration_id", regID)
}

// CallRouted implements dealer.Listener.
func (r *Router) CallRouted(realm string) {
	r.metrics.CallRouted(realm)
}

// CallFailed implements dealer.Listener.
func (r *Router) CallFailed(realm, errorURI string) {
	r.metrics.CallFailed(realm, errorURI)
}

// Subscribed implements broker.Listener.
func (r *Router) Subscribed(realm, topic string, subID int64) {
	r.logger.Debug("topic subscribed", "realm", realm, "topic", topic, "subscription_id", subID)
}

// EventPublished implements broker.Listener.
func (r *Router) EventPublished(realm string) {
	r.metrics.EventPublished()
}

// Dealer exposes the router's RPC manager for introspection/testing.
func (r *Router) Dealer() *dealer.Dealer { return r.dealer }

// Broker exposes the router's PubSub manager for introspection/testing.
func (r *Router) Broker() *broker.Broker { return r.broker }

// SessionCount returns the number of sessions currently tracked
// (any state, not just OPEN).
func (r *Router) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// RawSocketAddrs returns the bound addresses of every raw-socket listener,
// in the order Listen was called, for tests and introspection.
func (r *Router) RawSocketAddrs() []net.Addr {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	addrs := make([]net.Addr, len(r.rawListeners))
	for i, l := range r.rawListeners {
		addrs[i] = l.Addr()
	}
	return addrs
}

// Provide installs an in-process procedure with no owning session.
func (r *Router) Provide(realm, uri string, handler dealer.InternalHandler) (int64, error) {
	return r.dealer.Provide(realm, uri, handler)
}

// Publish fans an in-process publication out to realm's subscribers of
// topic. The publisher is never excluded from its own publication since
// there is no publisher session.
func (r *Router) Publish(realm, topic string, args, kwargs wampval.Value) {
	r.broker.Publish(internalSender{realm: realm}, wampmsg.Publish{
		Topic:   topic,
		Options: wampval.Object(map[string]wampval.Value{"exclude_me": wampval.Bool(false)}),
		Args:    args,
		Kwargs:  kwargs,
	})
}

// internalSender stands in for Router.Publish's lack of an owning
// session. Its Send is a sink: an in-process publisher never waits for
// PUBLISHED.
type internalSender struct{ realm string }

func (internalSender) ID() int64            { return 0 }
func (s internalSender) Realm() string      { return s.realm }
func (internalSender) Send(wampmsg.Message) error { return nil }

// accept admits one freshly connected transport as a passive session,
// registers it, and runs its handshake/dispatch loop to completion. It
// blocks until the session closes; callers run it in its own goroutine
// per connection.
func (r *Router) accept(framing protocol.Framing, authProvider auth.Provider, accepted protocol.AcceptedSerializers, transport string) {
	id, err := generateSessionID()
	if err != nil {
		r.logger.Error("session id generation failed", "error", err)
		_ = framing.Close()
		return
	}

	sess := wampsession.New(id, wampsession.ModePassive, framing, wampsession.Config{
		RPC:                 r.dealer,
		PubSub:              r.broker,
		AuthProvider:        authProvider,
		AcceptedSerializers: accepted,
		Logger:              r.logger,
	})
	sess.SetObserver(r.sessionObserver)

	r.mu.Lock()
	r.sessions[id] = sess
	r.mu.Unlock()

	if err := sess.Attach(); err != nil {
		r.metrics.HandshakeFailed(transport)
		r.logger.Debug("session attach ended with error", "session_id", id, "error", err)
	}
}

// sessionObserver implements wampsession.ObserverFunc, removing closed
// sessions from the table and keeping the active-session gauge accurate.
func (r *Router) sessionObserver(s *wampsession.Session, isOpen bool) {
	r.mu.Lock()
	if isOpen {
		r.opened[s.ID()] = true
	}
	wasOpen := r.opened[s.ID()]
	if !isOpen {
		delete(r.sessions, s.ID())
		delete(r.opened, s.ID())
	}
	r.mu.Unlock()

	if isOpen {
		r.metrics.SessionOpened()
	} else {
		r.metrics.SessionClosed(wasOpen)
	}
}

// generateSessionID draws a random, nonzero 53-bit session id. WAMP
// "global scope" ids stay within the JS-safe integer range so peers in
// any language can echo them losslessly.
func generateSessionID() (int64, error) {
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, fmt.Errorf("router: generate session id: %w", err)
		}
		id := int64(binary.BigEndian.Uint64(buf[:]) & ((1 << 53) - 1))
		if id != 0 {
			return id, nil
		}
	}
}

// Shutdown closes every session, then every listener. It is safe to call
// more than once.
func (r *Router) Shutdown(ctx context.Context) error {
	var err error
	r.shutdownOnce.Do(func() {
		r.mu.RLock()
		sessions := make([]*wampsession.Session, 0, len(r.sessions))
		for _, s := range r.sessions {
			sessions = append(sessions, s)
		}
		r.mu.RUnlock()
		for _, s := range sessions {
			s.Close("wamp.close.system_shutdown")
		}

		r.listenersMu.Lock()
		for _, l := range r.rawListeners {
			_ = l.Close()
		}
		for _, srv := range r.httpServers {
			if shutdownErr := srv.Shutdown(ctx); shutdownErr != nil && err == nil {
				err = shutdownErr
			}
		}
		r.listenersMu.Unlock()
	})
	return err
}

// Run blocks serving until a SIGINT/SIGTERM is received, then shuts down
// gracefully.
func (r *Router) Run(shutdownTimeout time.Duration) error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	r.logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return r.Shutdown(ctx)
}
