package wampval

import "errors"

// ErrNumericRange is returned when decoding an integer that does not fit
// in the signed 64-bit range mandated for WAMP values.
var ErrNumericRange = errors.New("wampval: integer outside signed 64-bit range")
