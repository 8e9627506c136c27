/**
 * @description
 * This file implements the idempotency guard used by the saga entry points.
 * A caller-supplied key short-circuits retries: the guard returns the cached
 * terminal response when the stored operation name matches, and records a new
 * response only after the side-effecting work completed successfully.
 *
 * @dependencies
 * - context, encoding/json: Standard Go libraries.
 * - internal/domain, internal/store: For the record model and its store.
 */

package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/veltabank/account-service/internal/domain"
	"github.com/veltabank/account-service/internal/store"
)

// IdempotencyGuard caches the result of a request-scoped operation by a
// caller-supplied key.
type IdempotencyGuard struct {
	repo store.IdempotencyRepository
}

// NewIdempotencyGuard creates a new guard backed by the given store.
func NewIdempotencyGuard(repo store.IdempotencyRepository) *IdempotencyGuard {
	return &IdempotencyGuard{repo: repo}
}

// TryGet loads a prior cached response into out. It reports a hit only when a
// record exists under the key AND its operation name matches; a blank key is
// always a miss, since no dedup is possible without one.
func (g *IdempotencyGuard) TryGet(ctx context.Context, key, operation string, out any) (bool, error) {
	if key == "" {
		return false, nil
	}
	record, err := g.repo.FindIdempotencyRecord(ctx, key)
	if err != nil {
		return false, err
	}
	if record == nil || record.Operation != operation {
		return false, nil
	}
	if err := json.Unmarshal(record.Response, out); err != nil {
		return false, fmt.Errorf("decode cached response for key %q: %w", key, err)
	}
	return true, nil
}

// Save persists the terminal response once. Callers must invoke it only after
// the side-effecting work completed; losing the insert to a concurrent
// duplicate is success-equivalent and not reported as an error. A blank key
// is a no-op.
func (g *IdempotencyGuard) Save(ctx context.Context, key, operation string, statusCode int, response any) error {
	if key == "" {
		return nil
	}
	body, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("encode response for key %q: %w", key, err)
	}
	_, err = g.repo.SaveIdempotencyRecord(ctx, &domain.IdempotencyRecord{
		Key:        key,
		Operation:  operation,
		StatusCode: statusCode,
		Response:   body,
	})
	return err
}
