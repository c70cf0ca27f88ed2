package codec

import "errors"

// ErrUnsupportedSerializer is returned by New for an unrecognized ID.
var ErrUnsupportedSerializer = errors.New("codec: unsupported serializer")
