// Package lock provides named mutual exclusion for read-modify-write
// sequences over the campaign collection.
package lock

import (
	"context"
	"errors"
)

// ErrBusy is returned when a lock could not be acquired within the
// configured number of attempts.
var ErrBusy = errors.New("lock is held by another owner")

// Unlock releases a held lock. Calling it more than once is harmless.
type Unlock func()

// Locker acquires named locks.
type Locker interface {
	// Lock blocks until the named lock is held, ctx is done, or the
	// implementation gives up.
	Lock(ctx context.Context, name string) (Unlock, error)
}
