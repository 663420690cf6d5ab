package lrucache

import "errors"

// ErrInvalidMaxSize is returned by New when maxSize is not a positive integer.
var ErrInvalidMaxSize = errors.New("lrucache: max size must be a positive integer")
