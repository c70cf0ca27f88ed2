package wampmsg

import (
	"fmt"

	"github.com/wampio/wampio/pkg/wampval"
)

// Message is implemented by every typed WAMP message. ToValue renders the
// wire-level [type_code, ...fields] array.
type Message interface {
	Type() Type
	ToValue() wampval.Value
}

func emptyObj(v wampval.Value) wampval.Value {
	if v.Kind() == wampval.KindObject {
		return v
	}
	return wampval.Object(nil)
}

func emptyArr(v wampval.Value) wampval.Value {
	if v.Kind() == wampval.KindArray {
		return v
	}
	return wampval.Array()
}

func asString(v wampval.Value) string {
	s, _ := v.AsString()
	return s
}

func asInt(v wampval.Value) int64 {
	i, _ := v.AsInt()
	return i
}

// --- Session establishment ---------------------------------------------

// Hello is sent by the client to open a session on a realm.
type Hello struct {
	Realm   string
	Details wampval.Value // object: roles, authmethods, authid, ...
}

func (m Hello) Type() Type { return TypeHello }
func (m Hello) ToValue() wampval.Value {
	return wampval.Array(wampval.Int(int64(TypeHello)), wampval.String(m.Realm), emptyObj(m.Details))
}

// Welcome is sent by the router on successful session establishment.
type Welcome struct {
	Session int64
	Details wampval.Value
}

func (m Welcome) Type() Type { return TypeWelcome }
func (m Welcome) ToValue() wampval.Value {
	return wampval.Array(wampval.Int(int64(TypeWelcome)), wampval.Int(m.Session), emptyObj(m.Details))
}

// Abort terminates a session before (or instead of) WELCOME.
type Abort struct {
	Details wampval.Value
	Reason  string
}

func (m Abort) Type() Type { return TypeAbort }
func (m Abort) ToValue() wampval.Value {
	return wampval.Array(wampval.Int(int64(TypeAbort)), emptyObj(m.Details), wampval.String(m.Reason))
}

// Challenge carries an authentication challenge to the client.
type Challenge struct {
	AuthMethod string
	Extra      wampval.Value
}

func (m Challenge) Type() Type { return TypeChallenge }
func (m Challenge) ToValue() wampval.Value {
	return wampval.Array(wampval.Int(int64(TypeChallenge)), wampval.String(m.AuthMethod), emptyObj(m.Extra))
}

// Authenticate carries the client's signature response to a CHALLENGE.
type Authenticate struct {
	Signature string
	Extra     wampval.Value
}

func (m Authenticate) Type() Type { return TypeAuthenticate }
func (m Authenticate) ToValue() wampval.Value {
	return wampval.Array(wampval.Int(int64(TypeAuthenticate)), wampval.String(m.Signature), emptyObj(m.Extra))
}

// Goodbye closes a session gracefully.
type Goodbye struct {
	Details wampval.Value
	Reason  string
}

func (m Goodbye) Type() Type { return TypeGoodbye }
func (m Goodbye) ToValue() wampval.Value {
	return wampval.Array(wampval.Int(int64(TypeGoodbye)), emptyObj(m.Details), wampval.String(m.Reason))
}

// ErrorMsg is the generic error reply to any REQUEST-bearing message.
type ErrorMsg struct {
	RequestType Type
	Request     int64
	Details     wampval.Value
	Error       string
	Args        wampval.Value
	Kwargs      wampval.Value
}

func (m ErrorMsg) Type() Type { return TypeError }
func (m ErrorMsg) ToValue() wampval.Value {
	fields := []wampval.Value{
		wampval.Int(int64(TypeError)),
		wampval.Int(int64(m.RequestType)),
		wampval.Int(m.Request),
		emptyObj(m.Details),
		wampval.String(m.Error),
	}
	if m.Args.Kind() != wampval.KindNull || m.Kwargs.Kind() != wampval.KindNull {
		fields = append(fields, emptyArr(m.Args))
	}
	if m.Kwargs.Kind() != wampval.KindNull {
		fields = append(fields, emptyObj(m.Kwargs))
	}
	return wampval.ArraySlice(fields)
}

// --- PubSub --------------------------------------------------------------

type Publish struct {
	Request int64
	Options wampval.Value
	Topic   string
	Args    wampval.Value
	Kwargs  wampval.Value
}

func (m Publish) Type() Type { return TypePublish }
func (m Publish) ToValue() wampval.Value {
	return wampval.Array(wampval.Int(int64(TypePublish)), wampval.Int(m.Request), emptyObj(m.Options),
		wampval.String(m.Topic), emptyArr(m.Args), emptyObj(m.Kwargs))
}

type Published struct {
	Request       int64
	PublicationID int64
}

func (m Published) Type() Type { return TypePublished }
func (m Published) ToValue() wampval.Value {
	return wampval.Array(wampval.Int(int64(TypePublished)), wampval.Int(m.Request), wampval.Int(m.PublicationID))
}

type Subscribe struct {
	Request int64
	Options wampval.Value
	Topic   string
}

func (m Subscribe) Type() Type { return TypeSubscribe }
func (m Subscribe) ToValue() wampval.Value {
	return wampval.Array(wampval.Int(int64(TypeSubscribe)), wampval.Int(m.Request), emptyObj(m.Options), wampval.String(m.Topic))
}

type Subscribed struct {
	Request        int64
	SubscriptionID int64
}

func (m Subscribed) Type() Type { return TypeSubscribed }
func (m Subscribed) ToValue() wampval.Value {
	return wampval.Array(wampval.Int(int64(TypeSubscribed)), wampval.Int(m.Request), wampval.Int(m.SubscriptionID))
}

type Unsubscribe struct {
	Request        int64
	SubscriptionID int64
}

func (m Unsubscribe) Type() Type { return TypeUnsubscribe }
func (m Unsubscribe) ToValue() wampval.Value {
	return wampval.Array(wampval.Int(int64(TypeUnsubscribe)), wampval.Int(m.Request), wampval.Int(m.SubscriptionID))
}

type Unsubscribed struct {
	Request int64
}

func (m Unsubscribed) Type() Type { return TypeUnsubscribed }
func (m Unsubscribed) ToValue() wampval.Value {
	return wampval.Array(wampval.Int(int64(TypeUnsubscribed)), wampval.Int(m.Request))
}

type Event struct {
	SubscriptionID int64
	PublicationID  int64
	Details        wampval.Value
	Args           wampval.Value
	Kwargs         wampval.Value
}

func (m Event) Type() Type { return TypeEvent }
func (m Event) ToValue() wampval.Value {
	return wampval.Array(wampval.Int(int64(TypeEvent)), wampval.Int(m.SubscriptionID), wampval.Int(m.PublicationID),
		emptyObj(m.Details), emptyArr(m.Args), emptyObj(m.Kwargs))
}

// --- RPC -------------------------------------------------------------------

type Call struct {
	Request   int64
	Options   wampval.Value
	Procedure string
	Args      wampval.Value
	Kwargs    wampval.Value
}

func (m Call) Type() Type { return TypeCall }
func (m Call) ToValue() wampval.Value {
	return wampval.Array(wampval.Int(int64(TypeCall)), wampval.Int(m.Request), emptyObj(m.Options),
		wampval.String(m.Procedure), emptyArr(m.Args), emptyObj(m.Kwargs))
}

type Result struct {
	Request int64
	Details wampval.Value
	Args    wampval.Value
	Kwargs  wampval.Value
}

func (m Result) Type() Type { return TypeResult }
func (m Result) ToValue() wampval.Value {
	return wampval.Array(wampval.Int(int64(TypeResult)), wampval.Int(m.Request), emptyObj(m.Details),
		emptyArr(m.Args), emptyObj(m.Kwargs))
}

type Register struct {
	Request   int64
	Options   wampval.Value
	Procedure string
}

func (m Register) Type() Type { return TypeRegister }
func (m Register) ToValue() wampval.Value {
	return wampval.Array(wampval.Int(int64(TypeRegister)), wampval.Int(m.Request), emptyObj(m.Options), wampval.String(m.Procedure))
}

type Registered struct {
	Request        int64
	RegistrationID int64
}

func (m Registered) Type() Type { return TypeRegistered }
func (m Registered) ToValue() wampval.Value {
	return wampval.Array(wampval.Int(int64(TypeRegistered)), wampval.Int(m.Request), wampval.Int(m.RegistrationID))
}

type Unregister struct {
	Request        int64
	RegistrationID int64
}

func (m Unregister) Type() Type { return TypeUnregister }
func (m Unregister) ToValue() wampval.Value {
	return wampval.Array(wampval.Int(int64(TypeUnregister)), wampval.Int(m.Request), wampval.Int(m.RegistrationID))
}

type Unregistered struct {
	Request int64
}

func (m Unregistered) Type() Type { return TypeUnregistered }
func (m Unregistered) ToValue() wampval.Value {
	return wampval.Array(wampval.Int(int64(TypeUnregistered)), wampval.Int(m.Request))
}

type Invocation struct {
	Request        int64
	RegistrationID int64
	Details        wampval.Value
	Args           wampval.Value
	Kwargs         wampval.Value
}

func (m Invocation) Type() Type { return TypeInvocation }
func (m Invocation) ToValue() wampval.Value {
	return wampval.Array(wampval.Int(int64(TypeInvocation)), wampval.Int(m.Request), wampval.Int(m.RegistrationID),
		emptyObj(m.Details), emptyArr(m.Args), emptyObj(m.Kwargs))
}

type Yield struct {
	Request int64
	Options wampval.Value
	Args    wampval.Value
	Kwargs  wampval.Value
}

func (m Yield) Type() Type { return TypeYield }
func (m Yield) ToValue() wampval.Value {
	return wampval.Array(wampval.Int(int64(TypeYield)), wampval.Int(m.Request), emptyObj(m.Options),
		emptyArr(m.Args), emptyObj(m.Kwargs))
}

// Cancel requests cancellation of an outstanding CALL. Tolerated on the
// wire but not acted on; this router does not implement call cancellation.
type Cancel struct {
	Request int64
	Options wampval.Value
}

func (m Cancel) Type() Type { return TypeCancel }
func (m Cancel) ToValue() wampval.Value {
	return wampval.Array(wampval.Int(int64(TypeCancel)), wampval.Int(m.Request), emptyObj(m.Options))
}

// Interrupt requests a callee stop processing an INVOCATION. Accepted and
// ignored.
type Interrupt struct {
	Request int64
	Options wampval.Value
}

func (m Interrupt) Type() Type { return TypeInterrupt }
func (m Interrupt) ToValue() wampval.Value {
	return wampval.Array(wampval.Int(int64(TypeInterrupt)), wampval.Int(m.Request), emptyObj(m.Options))
}

// Heartbeat keeps a raw-socket connection alive. Accepted and ignored.
type Heartbeat struct {
	IncomingSeq int64
	OutgoingSeq int64
}

func (m Heartbeat) Type() Type { return TypeHeartbeat }
func (m Heartbeat) ToValue() wampval.Value {
	return wampval.Array(wampval.Int(int64(TypeHeartbeat)), wampval.Int(m.IncomingSeq), wampval.Int(m.OutgoingSeq))
}

// Decode parses a wire-level Value array into a typed Message. Errors with
// ErrMalformed for anything that does not fit the basic profile's field
// layout for its declared type.
func Decode(v wampval.Value) (Message, error) {
	arr, ok := v.AsArray()
	if !ok || len(arr) < 1 {
		return nil, ErrMalformed
	}
	code, ok := arr[0].AsInt()
	if !ok {
		return nil, ErrMalformed
	}
	t := Type(code)

	field := func(i int) wampval.Value {
		if i < len(arr) {
			return arr[i]
		}
		return wampval.Null
	}

	switch t {
	case TypeHello:
		if len(arr) < 3 {
			return nil, ErrMalformed
		}
		return Hello{Realm: asString(field(1)), Details: field(2)}, nil
	case TypeWelcome:
		if len(arr) < 3 {
			return nil, ErrMalformed
		}
		return Welcome{Session: asInt(field(1)), Details: field(2)}, nil
	case TypeAbort:
		if len(arr) < 3 {
			return nil, ErrMalformed
		}
		return Abort{Details: field(1), Reason: asString(field(2))}, nil
	case TypeChallenge:
		if len(arr) < 3 {
			return nil, ErrMalformed
		}
		return Challenge{AuthMethod: asString(field(1)), Extra: field(2)}, nil
	case TypeAuthenticate:
		if len(arr) < 3 {
			return nil, ErrMalformed
		}
		return Authenticate{Signature: asString(field(1)), Extra: field(2)}, nil
	case TypeGoodbye:
		if len(arr) < 3 {
			return nil, ErrMalformed
		}
		return Goodbye{Details: field(1), Reason: asString(field(2))}, nil
	case TypeHeartbeat:
		if len(arr) < 3 {
			return nil, ErrMalformed
		}
		return Heartbeat{IncomingSeq: asInt(field(1)), OutgoingSeq: asInt(field(2))}, nil
	case TypeError:
		if len(arr) < 5 {
			return nil, ErrMalformed
		}
		return ErrorMsg{
			RequestType: Type(asInt(field(1))),
			Request:     asInt(field(2)),
			Details:     field(3),
			Error:       asString(field(4)),
			Args:        field(5),
			Kwargs:      field(6),
		}, nil
	case TypePublish:
		if len(arr) < 4 {
			return nil, ErrMalformed
		}
		return Publish{Request: asInt(field(1)), Options: field(2), Topic: asString(field(3)), Args: field(4), Kwargs: field(5)}, nil
	case TypePublished:
		if len(arr) < 3 {
			return nil, ErrMalformed
		}
		return Published{Request: asInt(field(1)), PublicationID: asInt(field(2))}, nil
	case TypeSubscribe:
		if len(arr) < 4 {
			return nil, ErrMalformed
		}
		return Subscribe{Request: asInt(field(1)), Options: field(2), Topic: asString(field(3))}, nil
	case TypeSubscribed:
		if len(arr) < 3 {
			return nil, ErrMalformed
		}
		return Subscribed{Request: asInt(field(1)), SubscriptionID: asInt(field(2))}, nil
	case TypeUnsubscribe:
		if len(arr) < 3 {
			return nil, ErrMalformed
		}
		return Unsubscribe{Request: asInt(field(1)), SubscriptionID: asInt(field(2))}, nil
	case TypeUnsubscribed:
		if len(arr) < 2 {
			return nil, ErrMalformed
		}
		return Unsubscribed{Request: asInt(field(1))}, nil
	case TypeEvent:
		if len(arr) < 4 {
			return nil, ErrMalformed
		}
		return Event{SubscriptionID: asInt(field(1)), PublicationID: asInt(field(2)), Details: field(3), Args: field(4), Kwargs: field(5)}, nil
	case TypeCall:
		if len(arr) < 4 {
			return nil, ErrMalformed
		}
		return Call{Request: asInt(field(1)), Options: field(2), Procedure: asString(field(3)), Args: field(4), Kwargs: field(5)}, nil
	case TypeCancel:
		if len(arr) < 3 {
			return nil, ErrMalformed
		}
		return Cancel{Request: asInt(field(1)), Options: field(2)}, nil
	case TypeResult:
		if len(arr) < 3 {
			return nil, ErrMalformed
		}
		return Result{Request: asInt(field(1)), Details: field(2), Args: field(3), Kwargs: field(4)}, nil
	case TypeRegister:
		if len(arr) < 4 {
			return nil, ErrMalformed
		}
		return Register{Request: asInt(field(1)), Options: field(2), Procedure: asString(field(3))}, nil
	case TypeRegistered:
		if len(arr) < 3 {
			return nil, ErrMalformed
		}
		return Registered{Request: asInt(field(1)), RegistrationID: asInt(field(2))}, nil
	case TypeUnregister:
		if len(arr) < 3 {
			return nil, ErrMalformed
		}
		return Unregister{Request: asInt(field(1)), RegistrationID: asInt(field(2))}, nil
	case TypeUnregistered:
		if len(arr) < 2 {
			return nil, ErrMalformed
		}
		return Unregistered{Request: asInt(field(1))}, nil
	case TypeInvocation:
		if len(arr) < 4 {
			return nil, ErrMalformed
		}
		return Invocation{Request: asInt(field(1)), RegistrationID: asInt(field(2)), Details: field(3), Args: field(4), Kwargs: field(5)}, nil
	case TypeInterrupt:
		if len(arr) < 3 {
			return nil, ErrMalformed
		}
		return Interrupt{Request: asInt(field(1)), Options: field(2)}, nil
	case TypeYield:
		if len(arr) < 3 {
			return nil, ErrMalformed
		}
		return Yield{Request: asInt(field(1)), Options: field(2), Args: field(3), Kwargs: field(4)}, nil
	default:
		return nil, fmt.Errorf("%w: unknown message type %d", ErrMalformed, code)
	}
}
