// Package lock provides keyed mutual exclusion with a bounded wait, used to
// keep at most one workflow operation in flight per request.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when a key stays held for longer than the wait.
var ErrTimeout = errors.New("lock: wait timed out")

const DefaultWait = 2 * time.Second

// Locker grants exclusive ownership of a key. The returned release func
// must be called exactly once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

func RequestKey(requestID string) string {
	return fmt.Sprintf("booklend:lock:request:%s", requestID)
}

// CreateKey guards the duplicate check of a (requester, book) pair.
func CreateKey(userID, bookID string) string {
	return fmt.Sprintf("booklend:lock:create:%s:%s", userID, bookID)
}
