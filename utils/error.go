package utils

import "errors"

// ErrRecordNotFound is the lookup miss returned by model getters that hide
// the storage layer's own not-found error.
var ErrRecordNotFound = errors.New("record not found")
