// Package lock provides short-lived mutual exclusion between task workers.
//
// A lock is identified by a key and owned by a random token generated on
// acquisition. Locks expire after their TTL so a crashed worker never blocks a
// task forever; releasing only deletes the key while the caller still owns it.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrLockTaken is returned when another owner holds an unexpired lock on the key.
	ErrLockTaken = errors.New("lock already taken")
)

// Lock is a held lock.
type Lock struct {
	Key       string    `bson:"_id" json:"key"`
	Owner     string    `bson:"owner" json:"owner"`
	ExpiresOn time.Time `bson:"expiresOn" json:"expiresOn"`
}

// Store is implemented by the Redis, Mongo and in-memory lock stores.
type Store interface {
	TakeLock(ctx context.Context, key string, ttl time.Duration) (*Lock, error)
	ReleaseLock(ctx context.Context, l *Lock) error
	// ExtendLock pushes the expiry of a lock the caller still owns to ttl
	// from now. It returns ErrLockTaken when the lock expired or changed hands.
	ExtendLock(ctx context.Context, l *Lock, ttl time.Duration) error
}

func TaskLockKey(taskID string) string   { return "task:" + taskID }
func BatchLockKey(batchID string) string { return "batch:" + batchID }

func newOwner() string { return uuid.NewString() }
