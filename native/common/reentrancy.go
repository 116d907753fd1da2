package common

import "errors"

// ErrReentrantCall is returned when a guarded entry point is entered while
// another guarded call on the same guard is still running.
var ErrReentrantCall = errors.New("reentrant call")

// ReentrancyGuard is a lock flag scoped to the lifetime of a top-level entry
// point. It is not a mutex: engines are driven by a single caller at a time
// and the guard only rejects nested calls made from collaborator callbacks.
type ReentrancyGuard struct {
	entered bool
}

// Enter marks the guard as held and returns the release function.
func (g *ReentrancyGuard) Enter() (func(), error) {
	if g.entered {
		return nil, ErrReentrantCall
	}
	g.entered = true
	return func() { g.entered = false }, nil
}

// Entered reports whether a guarded call is in progress.
func (g *ReentrancyGuard) Entered() bool {
	return g.entered
}
