package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"account_service/internal/models"

	"github.com/gofrs/uuid"
)

// MemoryStorage keeps users in process. It enforces the same uniqueness
// rules as the users table.
type MemoryStorage struct {
	mu    sync.RWMutex
	users map[uuid.UUID]models.User
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{users: make(map[uuid.UUID]models.User)}
}

func matches(filter models.UserFilter, u models.User) bool {
	if filter.ID != uuid.Nil && filter.ID != u.ID {
		return false
	}
	if filter.Email != "" && filter.Email != u.Email {
		return false
	}
	if filter.NonAdmin && u.IsAdmin {
		return false
	}
	return true
}

func isEmptyFilter(filter models.UserFilter) bool {
	return filter == models.UserFilter{}
}

// conflict reports whether u would collide with a stored user other than
// itself.
func (m *MemoryStorage) conflict(u models.User) string {
	for id, other := range m.users {
		if id == u.ID {
			continue
		}
		if other.Email == u.Email {
			return "users_email_key"
		}
		if other.Username == u.Username {
			return "users_username_key"
		}
	}
	return ""
}

func (m *MemoryStorage) sorted(filter models.UserFilter) []models.User {
	var out []models.User
	for _, u := range m.users {
		if matches(filter, u) {
			out = append(out, u)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out
}

func (m *MemoryStorage) FindUser(ctx context.Context, filter models.UserFilter) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	found := m.sorted(filter)
	if len(found) == 0 {
		return models.User{}, ErrNotFound
	}

	return found[0], nil
}

func (m *MemoryStorage) ListUsers(ctx context.Context, filter models.UserFilter, limit int) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	found := m.sorted(filter)
	if limit >= 0 && len(found) > limit {
		found = found[:limit]
	}

	return append(make([]models.User, 0, len(found)), found...), nil
}

func (m *MemoryStorage) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	const op = "storage.CreateUser"

	m.mu.Lock()
	defer m.mu.Unlock()

	if user.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return models.User{}, fmt.Errorf("%s: %w", op, err)
		}
		user.ID = id
	}

	if _, ok := m.users[user.ID]; ok {
		return models.User{}, fmt.Errorf("%s: %w: users_pkey", op, ErrDuplicateKey)
	}
	if c := m.conflict(user); c != "" {
		return models.User{}, fmt.Errorf("%s: %w: %s", op, ErrDuplicateKey, c)
	}

	m.users[user.ID] = user

	return user, nil
}

func apply(u models.User, c models.UserChanges) models.User {
	if c.Fullname != nil {
		u.Fullname = *c.Fullname
	}
	if c.Username != nil {
		u.Username = *c.Username
	}
	if c.Email != nil {
		u.Email = *c.Email
	}
	if c.PasswordHash != nil {
		u.PasswordHash = *c.PasswordHash
	}
	if c.PasswordSalt != nil {
		u.PasswordSalt = *c.PasswordSalt
	}
	if c.Birthday != nil {
		b := *c.Birthday
		u.Birthday = &b
	}
	if c.LastLogin != nil {
		t := *c.LastLogin
		u.LastLogin = &t
	}
	if c.Active != nil {
		u.Active = *c.Active
	}
	if c.Blocked != nil {
		u.Blocked = *c.Blocked
	}
	if c.IsAdmin != nil {
		u.IsAdmin = *c.IsAdmin
	}
	if c.UpdatedAt != nil {
		u.UpdatedAt = *c.UpdatedAt
	}
	if c.UpdatedBy != nil {
		u.UpdatedBy = uuid.NullUUID{UUID: *c.UpdatedBy, Valid: true}
	}
	return u
}

func (m *MemoryStorage) UpdateUser(ctx context.Context, filter models.UserFilter, changes models.UserChanges) (int64, error) {
	const op = "storage.UpdateUser"

	if changes.IsEmpty() {
		return 0, nil
	}
	if isEmptyFilter(filter) {
		return 0, fmt.Errorf("%s: %w", op, ErrEmptyFilter)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	updated := make(map[uuid.UUID]models.User)
	for id, u := range m.users {
		if matches(filter, u) {
			updated[id] = apply(u, changes)
		}
	}

	// all or nothing, like a single UPDATE statement
	for _, u := range updated {
		if c := m.conflict(u); c != "" {
			return 0, fmt.Errorf("%s: %w: %s", op, ErrDuplicateKey, c)
		}
	}
	for id, u := range updated {
		m.users[id] = u
	}

	return int64(len(updated)), nil
}

func (m *MemoryStorage) DeleteUser(ctx context.Context, filter models.UserFilter) (int64, error) {
	const op = "storage.DeleteUser"

	if isEmptyFilter(filter) {
		return 0, fmt.Errorf("%s: %w", op, ErrEmptyFilter)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, u := range m.users {
		if matches(filter, u) {
			delete(m.users, id)
			n++
		}
	}

	return n, nil
}

func (m *MemoryStorage) Close() {}
