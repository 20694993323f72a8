// Package throttle counts failed logins per email and locks the email out
// once the count reaches the limit. Every failure restarts the window.
package throttle

import (
	"context"
	"errors"
	"strconv"
	"time"

	"account_service/internal/apperr"
	"account_service/internal/kv"
)

const (
	keyPrefix  = "login_key:"
	retryField = "retry"
)

type Throttle struct {
	store      kv.Store
	maxRetries int64
	window     time.Duration
}

func New(store kv.Store, maxRetries int64, window time.Duration) *Throttle {
	return &Throttle{store: store, maxRetries: maxRetries, window: window}
}

func key(identifier string) string {
	return keyPrefix + identifier
}

// Count returns the recorded failures for identifier.
func (t *Throttle) Count(ctx context.Context, identifier string) (int64, error) {
	const op = "throttle.Count"

	m, err := t.store.HGetAll(ctx, key(identifier))
	if err != nil {
		return 0, apperr.Wrap(apperr.KindStoreUnavailable, op, err)
	}

	raw, ok := m[retryField]
	if !ok {
		return 0, nil
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, op, err)
	}

	return n, nil
}

func (t *Throttle) IsLocked(ctx context.Context, identifier string) (bool, error) {
	n, err := t.Count(ctx, identifier)
	if err != nil {
		return false, err
	}

	return n >= t.maxRetries, nil
}

// RecordFailure increments the counter and restarts its window. Increment and
// expire are separate commands; losing the expire only shortens the lock.
func (t *Throttle) RecordFailure(ctx context.Context, identifier string) (int64, error) {
	const op = "throttle.RecordFailure"

	n, err := t.store.HIncrBy(ctx, key(identifier), retryField, 1)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindStoreUnavailable, op, err)
	}

	if _, err := t.store.Expire(ctx, key(identifier), t.window); err != nil {
		return n, apperr.Wrap(apperr.KindStoreUnavailable, op, err)
	}

	return n, nil
}

// LockedFor returns how long the current window still lasts, zero when there
// is no entry.
func (t *Throttle) LockedFor(ctx context.Context, identifier string) (time.Duration, error) {
	const op = "throttle.LockedFor"

	d, err := t.store.TTL(ctx, key(identifier))
	if errors.Is(err, kv.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, apperr.Wrap(apperr.KindStoreUnavailable, op, err)
	}
	if d < 0 {
		return 0, nil
	}

	return d, nil
}

// Clear drops the counter. Clearing a missing entry is not an error.
func (t *Throttle) Clear(ctx context.Context, identifier string) error {
	const op = "throttle.Clear"

	if _, err := t.store.Del(ctx, key(identifier)); err != nil {
		return apperr.Wrap(apperr.KindStoreUnavailable, op, err)
	}

	return nil
}
