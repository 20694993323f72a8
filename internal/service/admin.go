package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"account_service/internal/apperr"
	"account_service/internal/models"
	"account_service/internal/storage"

	"github.com/gofrs/uuid"
)

// Admin operations. Callers are expected to have checked is_admin already.

func (s *service) ListUsers(ctx context.Context, limit int) ([]models.User, error) {
	const op = "service.ListUsers"

	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}

	users, err := s.storage.ListUsers(ctx, models.UserFilter{NonAdmin: true}, limit)
	if err != nil {
		s.log.Error("failed to list users", slog.String("op", op), slog.Any("error", err))
		return nil, apperr.Wrap(apperr.KindStoreUnavailable, op, err)
	}

	return users, nil
}

func (s *service) GetUser(ctx context.Context, email string) (models.User, error) {
	const op = "service.GetUser"

	email, err := s.normalizeEmail(op, email)
	if err != nil {
		return models.User{}, err
	}

	user, err := s.storage.FindUser(ctx, models.UserFilter{Email: email, NonAdmin: true})
	if errors.Is(err, storage.ErrNotFound) {
		return models.User{}, apperr.NotFound(op, "user")
	}
	if err != nil {
		return models.User{}, apperr.Wrap(apperr.KindStoreUnavailable, op, err)
	}

	return user, nil
}

func deref[T any](p *T, fallback T) T {
	if p == nil {
		return fallback
	}
	return *p
}

func (s *service) CreateUser(ctx context.Context, actorID uuid.UUID, in models.AdminUserInput) (models.User, error) {
	const op = "service.CreateUser"

	return s.createAccount(ctx, op, newAccount{
		fullname: deref(in.Fullname, ""),
		username: deref(in.Username, ""),
		email:    deref(in.Email, ""),
		password: deref(in.Password, ""),
		birthday: in.Birthday,
		active:   deref(in.Active, true),
		blocked:  deref(in.Blocked, false),
		isAdmin:  deref(in.IsAdmin, false),
		actor:    uuid.NullUUID{UUID: actorID, Valid: true},
	})
}

func (s *service) UpdateUser(ctx context.Context, actorID uuid.UUID, email string, in models.AdminUserInput) (bool, error) {
	const op = "service.UpdateUser"

	log := s.log.With(slog.String("op", op))

	target, err := s.normalizeEmail(op, email)
	if err != nil {
		return false, err
	}

	changes := models.UserChanges{
		Birthday: in.Birthday,
		Active:   in.Active,
		Blocked:  in.Blocked,
		IsAdmin:  in.IsAdmin,
	}

	if in.Fullname != nil {
		fullname := strings.TrimSpace(*in.Fullname)
		if err := s.checkFullname(op, fullname); err != nil {
			return false, err
		}
		changes.Fullname = &fullname
	}

	if in.Username != nil {
		username := strings.TrimSpace(*in.Username)
		if len(username) < minUsernameLen {
			return false, apperr.Validation(op, "username", "min")
		}
		if err := s.checkUsername(op, username); err != nil {
			return false, err
		}
		changes.Username = &username
	}

	if in.Email != nil {
		newEmail, err := s.normalizeEmail(op, *in.Email)
		if err != nil {
			return false, err
		}
		changes.Email = &newEmail
	}

	if in.Password != nil {
		if *in.Password == "" {
			return false, apperr.Validation(op, "password", "required")
		}
		hash, salt, err := s.hashPassword(op, *in.Password)
		if err != nil {
			return false, err
		}
		changes.PasswordHash = &hash
		changes.PasswordSalt = &salt
	}

	if changes.IsEmpty() {
		return false, apperr.Validation(op, "body", "required")
	}

	now := s.now().UTC()
	changes.UpdatedAt = &now
	changes.UpdatedBy = &actorID

	n, err := s.storage.UpdateUser(ctx, models.UserFilter{Email: target}, changes)
	if errors.Is(err, storage.ErrDuplicateKey) {
		return false, apperr.Wrap(apperr.KindUserExists, op, err)
	}
	if err != nil {
		log.Error("failed to update user", slog.Any("error", err))
		return false, apperr.Wrap(apperr.KindStoreUnavailable, op, err)
	}
	if n == 0 {
		return false, apperr.NotFound(op, "user")
	}

	log.Info("user updated", slog.String("email", target), slog.String("actor_id", actorID.String()))

	return true, nil
}

// DeleteUser removes the account and, best effort, its live session.
func (s *service) DeleteUser(ctx context.Context, email string) (bool, error) {
	const op = "service.DeleteUser"

	log := s.log.With(slog.String("op", op))

	email, err := s.normalizeEmail(op, email)
	if err != nil {
		return false, err
	}

	user, err := s.storage.FindUser(ctx, models.UserFilter{Email: email})
	if errors.Is(err, storage.ErrNotFound) {
		return false, apperr.NotFound(op, "user")
	}
	if err != nil {
		return false, apperr.Wrap(apperr.KindStoreUnavailable, op, err)
	}

	n, err := s.storage.DeleteUser(ctx, models.UserFilter{ID: user.ID})
	if err != nil {
		log.Error("failed to delete user", slog.Any("error", err))
		return false, apperr.Wrap(apperr.KindStoreUnavailable, op, err)
	}
	if n == 0 {
		return false, apperr.NotFound(op, "user")
	}

	if _, err := s.sessions.Delete(ctx, user.ID); err != nil {
		log.Warn("failed to revoke session of deleted user", slog.String("user_id", user.ID.String()), slog.Any("error", err))
	}

	log.Info("user deleted", slog.String("user_id", user.ID.String()))

	return true, nil
}

// EnsureAdmin creates the seed administrator unless an account with its email
// already exists. created reports whether a new account was stored.
func (s *service) EnsureAdmin(ctx context.Context, seed models.AdminSeed) (user models.User, created bool, err error) {
	const op = "service.EnsureAdmin"

	email, err := s.normalizeEmail(op, seed.Email)
	if err != nil {
		return models.User{}, false, err
	}

	existing, err := s.storage.FindUser(ctx, models.UserFilter{Email: email})
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return models.User{}, false, apperr.Wrap(apperr.KindStoreUnavailable, op, err)
	}

	user, err = s.createAccount(ctx, op, newAccount{
		fullname: seed.Fullname,
		email:    email,
		password: seed.Password,
		active:   true,
		isAdmin:  true,
	})
	if err != nil {
		return models.User{}, false, err
	}

	return user, true, nil
}
