package wampsession

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/wampio/wampio/pkg/auth"
	"github.com/wampio/wampio/pkg/wampmsg"
	"github.com/wampio/wampio/pkg/wampval"
)

// handleAuth processes one message while AUTHENTICATING. Passive sessions
// receive HELLO then, if challenged, AUTHENTICATE; active sessions receive
// CHALLENGE then WELCOME/ABORT.
func (s *Session) handleAuth(msg wampmsg.Message) {
	if s.mode == ModeActive {
		s.handleAuthActive(msg)
		return
	}
	s.handleAuthPassive(msg)
}

func (s *Session) handleAuthPassive(msg wampmsg.Message) {
	if authenticate, ok := msg.(wampmsg.Authenticate); ok {
		s.handleAuthPassiveAuthenticate(authenticate)
		return
	}
	hello, ok := msg.(wampmsg.Hello)
	if !ok {
		s.abort(wampmsg.ErrProtocolViolation, "expected HELLO")
		return
	}
	if s.cfg.AuthProvider == nil {
		s.abort(wampmsg.ErrNotAuthorized, "no auth provider configured")
		return
	}
	// The policy lookup sees the authid exactly as the client offered it
	// (possibly empty); an anonymous id is only minted once an open-mode
	// policy has admitted the session.
	authid, _ := fieldString(hello.Details, "authid")

	policy, err := s.cfg.AuthProvider.Policy(authid, hello.Realm)
	if err != nil {
		s.abort(wampmsg.ErrNotAuthorized, err.Error())
		return
	}

	switch policy.Mode {
	case auth.ModeDeny:
		s.abort(wampmsg.ErrNotAuthorized, "realm denies this authid")
		return
	case auth.ModeOpen:
		if authid == "" {
			authid = generateAnonymousID()
		}
		s.realm = hello.Realm
		s.authid = authid
		s.authrole = "anonymous"
		s.welcome()
		return
	}

	method, ok := selectMethod(policy.Methods, hello.Details)
	if !ok {
		s.abort(wampmsg.ErrNotAuthorized, "no mutually acceptable auth method")
		return
	}
	switch method {
	case auth.MethodWAMPCRA:
		s.beginCRAChallenge(hello.Realm, authid)
	default:
		// ticket and any other advertised-but-unimplemented method: only
		// wampcra is wired end to end; deny the rest rather than accepting
		// them silently.
		s.abort(wampmsg.ErrNotAuthorized, "unsupported auth method")
	}
}

func (s *Session) beginCRAChallenge(realm, authid string) {
	s.realm = realm
	s.authid = authid
	s.authrole = "user"

	challenge, err := auth.NewChallenge(s.id, authid, s.authrole, s.cfg.AuthProvider.ProviderName(realm))
	if err != nil {
		s.abort(wampmsg.ErrNotAuthorized, err.Error())
		return
	}
	secret, err := s.cfg.AuthProvider.UserSecret(authid, realm)
	if err != nil {
		s.abort(wampmsg.ErrNotAuthorized, "unknown user")
		return
	}
	salt, hasSalt, err := s.cfg.AuthProvider.CRASalt(authid, realm)
	if err != nil {
		s.abort(wampmsg.ErrNotAuthorized, err.Error())
		return
	}
	var key string
	if hasSalt {
		key = auth.DeriveKey(secret, &salt)
	} else {
		key = auth.DeriveKey(secret, nil)
	}
	s.craKey = key

	extra := map[string]wampval.Value{"challenge": wampval.String(challenge)}
	if hasSalt {
		extra["salt"] = wampval.String(salt.Salt)
		extra["keylen"] = wampval.Int(int64(salt.KeyLen))
		extra["iterations"] = wampval.Int(int64(salt.Iterations))
	}
	s.craChallenge = challenge
	if err := s.Send(wampmsg.Challenge{AuthMethod: string(auth.MethodWAMPCRA), Extra: wampval.Object(extra)}); err != nil {
		s.transitionClosed()
	}
}

func (s *Session) handleAuthPassiveAuthenticate(msg wampmsg.Authenticate) {
	if !auth.Verify(s.craChallenge, s.craKey, msg.Signature) {
		s.abort(wampmsg.ErrNotAuthorized, "signature mismatch")
		return
	}
	s.welcome()
}

func (s *Session) welcome() {
	s.state.store(StateOpen)
	details := wampval.Object(map[string]wampval.Value{
		"authid":   wampval.String(s.authid),
		"authrole": wampval.String(s.authrole),
		"roles": wampval.Object(map[string]wampval.Value{
			"broker": wampval.Object(nil),
			"dealer": wampval.Object(nil),
		}),
	})
	if err := s.Send(wampmsg.Welcome{Session: s.id, Details: details}); err != nil {
		s.transitionClosed()
		return
	}
	s.notify(true)
}

// --- active mode ------------------------------------------------------

func (s *Session) sendHello() error {
	c := s.credentials
	if c == nil {
		return fmt.Errorf("wampsession: active session requires SetCredentials before Attach")
	}
	s.realm = c.Realm
	s.authid = c.AuthID

	methods := make([]wampval.Value, 0, len(c.AuthMethods))
	for _, m := range c.AuthMethods {
		methods = append(methods, wampval.String(string(m)))
	}
	details := wampval.Object(map[string]wampval.Value{
		"roles": wampval.Object(map[string]wampval.Value{
			"caller":     wampval.Object(nil),
			"callee":     wampval.Object(nil),
			"publisher":  wampval.Object(nil),
			"subscriber": wampval.Object(nil),
		}),
		"authid":      wampval.String(c.AuthID),
		"authmethods": wampval.ArraySlice(methods),
	})
	return s.Send(wampmsg.Hello{Realm: c.Realm, Details: details})
}

func (s *Session) handleAuthActive(msg wampmsg.Message) {
	switch m := msg.(type) {
	case wampmsg.Challenge:
		s.respondToChallenge(m)
	case wampmsg.Welcome:
		s.id = m.Session
		s.authrole, _ = fieldString(m.Details, "authrole")
		s.state.store(StateOpen)
		s.notify(true)
	case wampmsg.Abort:
		s.closeErr = fmt.Errorf("wampsession: session aborted: %s", m.Reason)
		s.transitionClosed()
	default:
		s.abort(wampmsg.ErrProtocolViolation, "unexpected message while authenticating")
	}
}

func (s *Session) respondToChallenge(m wampmsg.Challenge) {
	c := s.credentials
	if c == nil || c.SecretFn == nil {
		s.closeErr = fmt.Errorf("wampsession: challenge received but no SecretFn configured")
		s.transitionClosed()
		return
	}
	challengeStr, _ := fieldString(m.Extra, "challenge")
	key := c.SecretFn()
	if saltStr, ok := fieldString(m.Extra, "salt"); ok && saltStr != "" {
		keylen, _ := fieldInt(m.Extra, "keylen")
		iterations, _ := fieldInt(m.Extra, "iterations")
		if keylen == 0 {
			keylen = 32
		}
		key = auth.DeriveKey(key, &auth.Salt{Salt: saltStr, KeyLen: int(keylen), Iterations: int(iterations)})
	}
	sig := auth.Sign(challengeStr, key)
	if err := s.Send(wampmsg.Authenticate{Signature: sig, Extra: wampval.Object(nil)}); err != nil {
		s.transitionClosed()
	}
}

// --- helpers ------------------------------------------------------------

func fieldString(v wampval.Value, name string) (string, bool) {
	f, ok := v.Field(name)
	if !ok {
		return "", false
	}
	return f.AsString()
}

func fieldInt(v wampval.Value, name string) (int64, bool) {
	f, ok := v.Field(name)
	if !ok {
		return 0, false
	}
	return f.AsInt()
}

func selectMethod(allowed []auth.Method, details wampval.Value) (auth.Method, bool) {
	offered := map[string]bool{}
	if arr, ok := details.Field("authmethods"); ok {
		if vs, isArr := arr.AsArray(); isArr {
			for _, v := range vs {
				if str, isStr := v.AsString(); isStr {
					offered[str] = true
				}
			}
		}
	}
	for _, m := range allowed {
		if offered[string(m)] {
			return m, true
		}
	}
	return "", false
}

func generateAnonymousID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return "anonymous-" + fmt.Sprintf("%x", binary.BigEndian.Uint64(b))
}
