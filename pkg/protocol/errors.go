package protocol

import "github.com/wampio/wampio/pkg/wamperr"

// Framing failure constructors, built on the shared wamperr taxonomy.
// All of these close the transport.
func errBadHandshake(msg string, cause error) *wamperr.Error {
	return wamperr.Wrap(wamperr.KindBadHandshake, msg, cause)
}

func errOversize(msg string) *wamperr.Error {
	return wamperr.New(wamperr.KindProtocolViolation, "oversize: "+msg)
}

func errBadFrame(msg string, cause error) *wamperr.Error {
	return wamperr.Wrap(wamperr.KindProtocolViolation, "bad frame: "+msg, cause)
}

func errSerializerUnsupported(msg string) *wamperr.Error {
	return wamperr.New(wamperr.KindBadHandshake, "serializer unsupported: "+msg)
}
