package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pilot-net/fleet-control/control-plane/internal/config"
)

// Outcome is the result of reserving an idempotency key.
type Outcome int

const (
	// Acquired - first use of the key; the caller must Complete or Release it
	Acquired Outcome = iota
	// Replay - a response was already stored for the same request body
	Replay
	// Mismatch - the key was used before with a different request body
	Mismatch
	// InFlight - the same request is still being processed
	InFlight
)

func (o Outcome) String() string {
	switch o {
	case Acquired:
		return "acquired"
	case Replay:
		return "replay"
	case Mismatch:
		return "mismatch"
	case InFlight:
		return "in_flight"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Record is the value stored under an idempotency key.
type Record struct {
	Fingerprint string          `json:"fingerprint"`
	Complete    bool            `json:"complete"`
	Status      int             `json:"status,omitempty"`
	Body        json.RawMessage `json:"body,omitempty"`
}

// Decide classifies a request against the record already stored for its key.
func Decide(existing *Record, fingerprint string) Outcome {
	switch {
	case existing == nil:
		return Acquired
	case existing.Fingerprint != fingerprint:
		return Mismatch
	case !existing.Complete:
		return InFlight
	default:
		return Replay
	}
}

func idempotencyKey(scope, key string) string {
	return scope + ":" + key
}

// Reserve claims key within scope for a request with the given fingerprint.
//
// The pending record is written with SET NX and a short lock TTL, so a
// crashed request frees its key on its own. On Replay the stored record is
// returned.
func (c *Cache) Reserve(ctx context.Context, scope, key, fingerprint string) (Outcome, *Record, error) {
	k := idempotencyKey(scope, key)
	pending, err := json.Marshal(Record{Fingerprint: fingerprint})
	if err != nil {
		return 0, nil, err
	}

	// Two attempts cover a pending record expiring between SETNX and GET.
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := c.client.SetNX(ctx, keyPrefix+k, pending, config.IdempotencyLockTTL).Result()
		if err != nil {
			return 0, nil, fmt.Errorf("reserving idempotency key: %w", err)
		}
		if ok {
			return Acquired, nil, nil
		}

		var existing Record
		found, err := c.getJSON(ctx, k, &existing)
		if err != nil {
			return 0, nil, fmt.Errorf("reading idempotency key: %w", err)
		}
		if !found {
			continue
		}
		outcome := Decide(&existing, fingerprint)
		if outcome == Replay {
			return outcome, &existing, nil
		}
		return outcome, nil, nil
	}
	return InFlight, nil, nil
}

// Complete stores the final response for a reserved key.
func (c *Cache) Complete(ctx context.Context, scope, key, fingerprint string, status int, body []byte) error {
	data, err := json.Marshal(Record{
		Fingerprint: fingerprint,
		Complete:    true,
		Status:      status,
		Body:        body,
	})
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, keyPrefix+idempotencyKey(scope, key), data, config.IdempotencyKeyTTL).Err(); err != nil {
		return fmt.Errorf("storing idempotent response: %w", err)
	}
	return nil
}

// Release drops a reservation so the request can be retried.
func (c *Cache) Release(ctx context.Context, scope, key string) error {
	return c.client.Del(ctx, keyPrefix+idempotencyKey(scope, key)).Err()
}
