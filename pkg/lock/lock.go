// Package lock provides short-lived mutual exclusion keyed by name, used to guarantee at most one
// active execution per journey and customer.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// ErrNotObtained is returned when another holder owns the key.
var ErrNotObtained = errors.New("lock not obtained")

// Locker hands out locks by key.
type Locker interface {
	// Obtain acquires key for at most ttl, failing fast with ErrNotObtained when it is held.
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// Lock is an acquired lock.
type Lock interface {
	// Release frees the lock if it is still owned by this holder.
	Release(ctx context.Context) error
}

// ExecutionKey is the lock key guarding one customer's run of one journey.
func ExecutionKey(journeyID, customerID string) string {
	return "journey:" + journeyID + ":customer:" + customerID
}

func ownerToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)

	return hex.EncodeToString(b)
}
