package qr

import "errors"

// ErrMalformed signals that scanned text could not be decoded into a
// known token shape.
var ErrMalformed = errors.New("malformed handoff token")
