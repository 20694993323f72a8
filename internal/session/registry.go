// Package session keeps the single live access token of every user.
package session

import (
	"context"
	"errors"
	"time"

	"account_service/internal/apperr"
	"account_service/internal/kv"

	"github.com/gofrs/uuid"
)

const keyPrefix = "access_token:user_id:"

type Registry struct {
	store kv.Store
}

func NewRegistry(store kv.Store) *Registry {
	return &Registry{store: store}
}

func key(userID uuid.UUID) string {
	return keyPrefix + userID.String()
}

// Put replaces any existing token for userID.
func (r *Registry) Put(ctx context.Context, userID uuid.UUID, token string, ttl time.Duration) error {
	const op = "session.Put"

	if err := r.store.Set(ctx, key(userID), token, ttl); err != nil {
		return apperr.Wrap(apperr.KindStoreUnavailable, op, err)
	}

	return nil
}

// Get returns the live token for userID. ok is false when there is none.
func (r *Registry) Get(ctx context.Context, userID uuid.UUID) (token string, ok bool, err error) {
	const op = "session.Get"

	token, err = r.store.Get(ctx, key(userID))
	if errors.Is(err, kv.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.Wrap(apperr.KindStoreUnavailable, op, err)
	}

	return token, true, nil
}

// Delete removes the session and reports whether one existed.
func (r *Registry) Delete(ctx context.Context, userID uuid.UUID) (bool, error) {
	const op = "session.Delete"

	existed, err := r.store.Del(ctx, key(userID))
	if err != nil {
		return false, apperr.Wrap(apperr.KindStoreUnavailable, op, err)
	}

	return existed, nil
}
