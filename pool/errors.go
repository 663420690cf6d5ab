package pool

import (
	"errors"
	"io/fs"
)

var (
	// ErrNoDeriver is returned when a derived handle is requested from a pool without a Deriver.
	ErrNoDeriver = errors.New("pool: derived handle requested but no deriver is configured")

	// ErrSelfDerived is returned when a handle is declared as derived from its own key.
	ErrSelfDerived = errors.New("pool: handle cannot be derived from its own key")

	// ErrPermissionDenied can be wrapped by factories to report that the caller lacks
	// the rights to create the backing resource.
	ErrPermissionDenied = errors.New("pool: permission denied")

	// ErrClosed is returned by Acquire after Close.
	ErrClosed = errors.New("pool: closed")
)

type permissionDenied interface {
	PermissionDenied() bool
}

// IsPermissionDenied reports whether err is a permission-class error.
// It matches ErrPermissionDenied, fs.ErrPermission and any error in the chain
// implementing PermissionDenied() bool that returns true.
func IsPermissionDenied(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, fs.ErrPermission) {
		return true
	}
	var pd permissionDenied
	return errors.As(err, &pd) && pd.PermissionDenied()
}
