package wampsession

import "sync/atomic"

// State is one phase of the session lifecycle. Terminal CLOSED is
// absorbing.
type State int32

const (
	StateInit State = iota
	StateHandshaking
	StateAuthenticating
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateHandshaking:
		return "HANDSHAKING"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Mode distinguishes which side of the handshake a session plays: passive
// waits for HELLO, active sends it.
type Mode int

const (
	ModePassive Mode = iota
	ModeActive
)

// stateBox is an atomic State holder.
type stateBox struct{ v atomic.Int32 }

func (b *stateBox) load() State       { return State(b.v.Load()) }
func (b *stateBox) store(s State)     { b.v.Store(int32(s)) }
func (b *stateBox) cas(old, new State) bool {
	return b.v.CompareAndSwap(int32(old), int32(new))
}
