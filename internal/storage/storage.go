package storage

import (
	"context"
	"errors"

	"account_service/internal/models"
)

const usersTable = "users"

var (
	ErrNotFound     = errors.New("user not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrEmptyFilter  = errors.New("update and delete need a filter")
)

// Storage persists user records. Lookups that match nothing return
// ErrNotFound, uniqueness violations on email or username return
// ErrDuplicateKey. Any other error means the backend is unavailable.
type Storage interface {
	FindUser(ctx context.Context, filter models.UserFilter) (models.User, error)
	ListUsers(ctx context.Context, filter models.UserFilter, limit int) ([]models.User, error)
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	UpdateUser(ctx context.Context, filter models.UserFilter, changes models.UserChanges) (int64, error)
	DeleteUser(ctx context.Context, filter models.UserFilter) (int64, error)

	Close()
}
