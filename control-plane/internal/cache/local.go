package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/pilot-net/fleet-control/control-plane/internal/config"
)

type localEntry struct {
	record Record
	// pending reservations stop blocking the key after this instant
	lockedUntil time.Time
}

// Local is an in-process idempotency store for a single server without Redis.
// Completed responses live for IdempotencyKeyTTL; the least recently used key
// is dropped once size keys are held.
type Local struct {
	mu      sync.Mutex
	entries *expirable.LRU[string, localEntry]
	now     func() time.Time
}

// NewLocal returns an in-process store holding at most size keys.
func NewLocal(size int) *Local {
	if size <= 0 {
		size = config.DefaultLocalIdempotencyKeys
	}
	return &Local{
		entries: expirable.NewLRU[string, localEntry](size, nil, config.IdempotencyKeyTTL),
		now:     time.Now,
	}
}

// Reserve implements the same decision rules as Cache.Reserve.
func (l *Local) Reserve(_ context.Context, scope, key, fingerprint string) (Outcome, *Record, error) {
	k := idempotencyKey(scope, key)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	var existing *Record
	if e, ok := l.entries.Get(k); ok && (e.record.Complete || now.Before(e.lockedUntil)) {
		existing = &e.record
	}
	outcome := Decide(existing, fingerprint)
	switch outcome {
	case Acquired:
		l.entries.Add(k, localEntry{
			record:      Record{Fingerprint: fingerprint},
			lockedUntil: now.Add(config.IdempotencyLockTTL),
		})
		return outcome, nil, nil
	case Replay:
		rec := *existing
		return outcome, &rec, nil
	}
	return outcome, nil, nil
}

// Complete stores the final response for a reserved key.
func (l *Local) Complete(_ context.Context, scope, key, fingerprint string, status int, body []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries.Add(idempotencyKey(scope, key), localEntry{record: Record{
		Fingerprint: fingerprint,
		Complete:    true,
		Status:      status,
		Body:        append([]byte(nil), body...),
	}})
	return nil
}

// Release drops a reservation so the request can be retried.
func (l *Local) Release(_ context.Context, scope, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries.Remove(idempotencyKey(scope, key))
	return nil
}
