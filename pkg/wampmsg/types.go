// Package wampmsg defines the WAMP v2 basic profile message catalogue and
// the conversion between typed messages and the wire-level Value array
// ([type_code, ...fields]) carried by pkg/codec.
package wampmsg

// Type is a WAMP message type code.
type Type int64

// Message type codes from the WAMP v2 basic profile. CANCEL, INTERRUPT and
// HEARTBEAT are accepted on the wire for interop with peers that send them
// but are not part of the routing surface this module implements.
const (
	TypeHello        Type = 1
	TypeWelcome      Type = 2
	TypeAbort        Type = 3
	TypeChallenge    Type = 4
	TypeAuthenticate Type = 5
	TypeGoodbye      Type = 6
	TypeHeartbeat    Type = 7
	TypeError        Type = 8
	TypePublish      Type = 16
	TypePublished    Type = 17
	TypeSubscribe    Type = 32
	TypeSubscribed   Type = 33
	TypeUnsubscribe  Type = 34
	TypeUnsubscribed Type = 35
	TypeEvent        Type = 36
	TypeCall         Type = 48
	TypeCancel       Type = 49
	TypeResult       Type = 50
	TypeRegister     Type = 64
	TypeRegistered   Type = 65
	TypeUnregister   Type = 66
	TypeUnregistered Type = 67
	TypeInvocation   Type = 68
	TypeInterrupt    Type = 69
	TypeYield        Type = 70
)

// String renders the message type's wire name for logs and errors.
func (t Type) String() string {
	switch t {
	case TypeHello:
		return "HELLO"
	case TypeWelcome:
		return "WELCOME"
	case TypeAbort:
		return "ABORT"
	case TypeChallenge:
		return "CHALLENGE"
	case TypeAuthenticate:
		return "AUTHENTICATE"
	case TypeGoodbye:
		return "GOODBYE"
	case TypeHeartbeat:
		return "HEARTBEAT"
	case TypeError:
		return "ERROR"
	case TypePublish:
		return "PUBLISH"
	case TypePublished:
		return "PUBLISHED"
	case TypeSubscribe:
		return "SUBSCRIBE"
	case TypeSubscribed:
		return "SUBSCRIBED"
	case TypeUnsubscribe:
		return "UNSUBSCRIBE"
	case TypeUnsubscribed:
		return "UNSUBSCRIBED"
	case TypeEvent:
		return "EVENT"
	case TypeCall:
		return "CALL"
	case TypeCancel:
		return "CANCEL"
	case TypeResult:
		return "RESULT"
	case TypeRegister:
		return "REGISTER"
	case TypeRegistered:
		return "REGISTERED"
	case TypeUnregister:
		return "UNREGISTER"
	case TypeUnregistered:
		return "UNREGISTERED"
	case TypeInvocation:
		return "INVOCATION"
	case TypeInterrupt:
		return "INTERRUPT"
	case TypeYield:
		return "YIELD"
	default:
		return "UNKNOWN"
	}
}

// Standard error URIs emitted by the core.
const (
	ErrNoSuchProcedure        = "wamp.error.no_such_procedure"
	ErrNoSuchRegistration     = "wamp.error.no_such_registration"
	ErrNoSuchSubscription     = "wamp.error.no_such_subscription"
	ErrProcedureAlreadyExists = "wamp.error.procedure_already_exists"
	ErrInvalidURI             = "wamp.error.invalid_uri"
	ErrCanceled               = "wamp.error.canceled"
	ErrNotAuthorized          = "wamp.error.not_authorized"
	ErrProtocolViolation      = "wamp.error.protocol_violation"
	ErrRuntimeError           = "wamp.runtime_error"
)
