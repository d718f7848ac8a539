package protocol

import "errors"

var ErrMissingType = errors.New("event has no type")
