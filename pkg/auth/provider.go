// Package auth implements the pluggable realm/user/method authentication
// policy consulted during session establishment, and the WAMP-CRA
// challenge-response primitives.
package auth

import "fmt"

// Mode is the policy decision for a (user, realm) pair.
type Mode int

const (
	ModeOpen Mode = iota
	ModeAuthenticate
	ModeDeny
)

func (m Mode) String() string {
	switch m {
	case ModeOpen:
		return "open"
	case ModeAuthenticate:
		return "authenticate"
	case ModeDeny:
		return "deny"
	default:
		return "unknown"
	}
}

// Method is an authentication method name a client may offer.
type Method string

const (
	MethodWAMPCRA   Method = "wampcra"
	MethodTicket    Method = "ticket"
	MethodAnonymous Method = "anonymous"
)

// Policy is the result of Provider.Policy: the mode to apply and, for
// ModeAuthenticate, the set of methods the router is willing to use.
type Policy struct {
	Mode    Mode
	Methods []Method
}

// Salt configures the optional PBKDF2 path for WAMP-CRA.
type Salt struct {
	Salt       string
	KeyLen     int
	Iterations int
}

// Provider supplies the realm/user policy and secrets the router needs to
// authenticate sessions. Implementations must be safe for concurrent use;
// the router calls it from whichever goroutine is driving the calling
// session's handshake.
type Provider interface {
	// ProviderName is the name advertised in CHALLENGE's authprovider field.
	ProviderName(realm string) string

	// Policy resolves the mode and allowed methods for a user on a realm.
	Policy(user, realm string) (Policy, error)

	// UserSecret returns the password or derived key for a user on a realm.
	UserSecret(user, realm string) (string, error)

	// CRASalt returns the salted-key parameters for a user on a realm, or
	// ok=false if the raw password should be used directly.
	CRASalt(user, realm string) (salt Salt, ok bool, err error)
}

// ErrUnknownUser is returned by StaticProvider when no policy is
// configured for a (user, realm) pair.
var ErrUnknownUser = fmt.Errorf("auth: unknown user")
