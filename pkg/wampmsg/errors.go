package wampmsg

import "errors"

// ErrMalformed is returned by Decode when a Value array does not match the
// field layout for its declared message type.
var ErrMalformed = errors.New("wampmsg: malformed message")
