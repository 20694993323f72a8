package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"account_service/internal/apperr"
	"account_service/internal/models"
	"account_service/internal/storage"

	"github.com/gofrs/uuid"
)

const (
	authScheme       = "JWT"
	lastLoginTimeout = 5 * time.Second
)

func bearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], authScheme) {
		return "", false
	}
	return parts[1], true
}

// Authorize runs the request-time checks in order: header, signature and
// claims, user lookup, live session match, then account status. Status is
// checked last so a blocked user holding a live token sees AccountBlocked.
func (s *service) Authorize(ctx context.Context, header string) (models.User, error) {
	const op = "service.Authorize"

	log := s.log.With(slog.String("op", op))

	token, ok := bearerToken(header)
	if !ok {
		return models.User{}, apperr.New(apperr.KindInvalidToken, op, "malformed authorization header")
	}

	userID, err := s.tokens.Verify(token)
	if err != nil {
		log.Debug("token rejected", slog.Any("error", err))
		return models.User{}, err
	}

	user, err := s.storage.FindUser(ctx, models.UserFilter{ID: userID})
	if errors.Is(err, storage.ErrNotFound) {
		return models.User{}, apperr.New(apperr.KindInvalidToken, op, "unknown user")
	}
	if err != nil {
		log.Error("failed to find user", slog.Any("error", err))
		return models.User{}, apperr.Wrap(apperr.KindStoreUnavailable, op, err)
	}

	live, found, err := s.sessions.Get(ctx, userID)
	if err != nil {
		log.Error("failed to read session", slog.Any("error", err))
		return models.User{}, err
	}
	if !found || live != token {
		return models.User{}, apperr.New(apperr.KindInvalidToken, op, "session revoked or superseded")
	}

	s.touchLastLogin(ctx, userID)

	if !user.Active {
		return models.User{}, apperr.New(apperr.KindAccountInactive, op, "")
	}
	if user.Blocked {
		return models.User{}, apperr.New(apperr.KindAccountBlocked, op, "")
	}

	return user, nil
}

// touchLastLogin records the access time in the background. Failures are
// logged and otherwise ignored.
func (s *service) touchLastLogin(ctx context.Context, userID uuid.UUID) {
	const op = "service.touchLastLogin"

	now := s.now().UTC()
	ctx = context.WithoutCancel(ctx)

	go func() {
		ctx, cancel := context.WithTimeout(ctx, lastLoginTimeout)
		defer cancel()

		_, err := s.storage.UpdateUser(ctx, models.UserFilter{ID: userID}, models.UserChanges{LastLogin: &now})
		if err != nil {
			s.log.Warn("failed to update last login",
				slog.String("op", op),
				slog.String("user_id", userID.String()),
				slog.Any("error", err),
			)
		}
	}()
}
