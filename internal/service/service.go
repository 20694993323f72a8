package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"account_service/internal/apperr"
	"account_service/internal/auth"
	"account_service/internal/models"
	"account_service/internal/session"
	"account_service/internal/storage"
	"account_service/internal/throttle"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	guuid "github.com/google/uuid"
)

const (
	maxEmailLen    = 256
	minUsernameLen = 3
	maxUsernameLen = 256

	defaultListLimit = 50
	maxListLimit     = 500
)

type Authenticator interface {
	// Authorize resolves the user behind an Authorization header value.
	Authorize(ctx context.Context, header string) (models.User, error)
}

type Service interface {
	Authenticator

	Register(ctx context.Context, in models.RegisterInput) (models.User, error)
	Authenticate(ctx context.Context, email, password string) (models.AccessToken, error)
	UpdateCredentials(ctx context.Context, userID uuid.UUID, in models.CredentialsUpdate) (models.CredentialsUpdate, error)
	Logout(ctx context.Context, userID uuid.UUID) error

	ListUsers(ctx context.Context, limit int) ([]models.User, error)
	GetUser(ctx context.Context, email string) (models.User, error)
	CreateUser(ctx context.Context, actorID uuid.UUID, in models.AdminUserInput) (models.User, error)
	UpdateUser(ctx context.Context, actorID uuid.UUID, email string, in models.AdminUserInput) (bool, error)
	DeleteUser(ctx context.Context, email string) (bool, error)

	EnsureAdmin(ctx context.Context, seed models.AdminSeed) (models.User, bool, error)
}

type service struct {
	storage  storage.Storage
	hasher   *auth.PasswordHasher
	tokens   *auth.TokenService
	sessions *session.Registry
	throttle *throttle.Throttle
	validate *validator.Validate
	log      *slog.Logger
	now      func() time.Time
}

func NewService(
	st storage.Storage,
	hasher *auth.PasswordHasher,
	tokens *auth.TokenService,
	sessions *session.Registry,
	th *throttle.Throttle,
	log *slog.Logger,
) *service {
	return &service{
		storage:  st,
		hasher:   hasher,
		tokens:   tokens,
		sessions: sessions,
		throttle: th,
		validate: validator.New(),
		log:      log,
		now:      time.Now,
	}
}

// newAccount is the common input of self-registration, admin creation and
// admin seeding.
type newAccount struct {
	fullname string
	username string
	email    string
	password string
	birthday *models.Date
	active   bool
	blocked  bool
	isAdmin  bool
	actor    uuid.NullUUID
}

func (s *service) normalizeEmail(op, email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", apperr.Validation(op, "email", "required")
	}
	if len(email) > maxEmailLen {
		return "", apperr.Validation(op, "email", "max")
	}
	if err := s.validate.Var(email, "email"); err != nil {
		return "", apperr.Validation(op, "email", "email")
	}
	return email, nil
}

func (s *service) checkFullname(op, fullname string) error {
	if err := s.validate.Var(fullname, "max=128"); err != nil {
		return apperr.Validation(op, "fullname", "max")
	}
	return nil
}

func (s *service) checkUsername(op, username string) error {
	if err := s.validate.Var(username, fmt.Sprintf("max=%d", maxUsernameLen)); err != nil {
		return apperr.Validation(op, "username", "max")
	}
	return nil
}

func (s *service) hashPassword(op, password string) (hash, salt string, err error) {
	hash, salt, err = s.hasher.Hash(password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return "", "", apperr.Validation(op, "password", "max")
	}
	if err != nil {
		return "", "", apperr.Wrap(apperr.KindInternal, op, err)
	}
	return hash, salt, nil
}

func pickUsername(username string) string {
	username = strings.TrimSpace(username)
	if len(username) < minUsernameLen {
		return guuid.NewString()
	}
	return username
}

// createAccount validates, hashes and stores a new user.
func (s *service) createAccount(ctx context.Context, op string, acc newAccount) (models.User, error) {
	log := s.log.With(slog.String("op", op))

	if acc.password == "" {
		return models.User{}, apperr.Validation(op, "password", "required")
	}

	email, err := s.normalizeEmail(op, acc.email)
	if err != nil {
		return models.User{}, err
	}

	fullname := strings.TrimSpace(acc.fullname)
	if err := s.checkFullname(op, fullname); err != nil {
		return models.User{}, err
	}

	username := pickUsername(acc.username)
	if err := s.checkUsername(op, username); err != nil {
		return models.User{}, err
	}

	_, err = s.storage.FindUser(ctx, models.UserFilter{Email: email})
	switch {
	case err == nil:
		return models.User{}, apperr.New(apperr.KindEmailTaken, op, email)
	case !errors.Is(err, storage.ErrNotFound):
		log.Error("failed to look up email", slog.Any("error", err))
		return models.User{}, apperr.Wrap(apperr.KindStoreUnavailable, op, err)
	}

	hash, salt, err := s.hashPassword(op, acc.password)
	if err != nil {
		return models.User{}, err
	}

	now := s.now().UTC()
	user := models.User{
		Fullname:     fullname,
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		PasswordSalt: salt,
		Birthday:     acc.birthday,
		Active:       acc.active,
		Blocked:      acc.blocked,
		IsAdmin:      acc.isAdmin,
		CreatedAt:    now,
		CreatedBy:    acc.actor,
		UpdatedAt:    now,
		UpdatedBy:    acc.actor,
	}

	created, err := s.storage.CreateUser(ctx, user)
	if errors.Is(err, storage.ErrDuplicateKey) {
		return models.User{}, apperr.Wrap(apperr.KindUserExists, op, err)
	}
	if err != nil {
		log.Error("failed to create user", slog.Any("error", err))
		return models.User{}, apperr.Wrap(apperr.KindStoreUnavailable, op, err)
	}

	log.Info("user created", slog.String("user_id", created.ID.String()), slog.Bool("is_admin", created.IsAdmin))

	return created, nil
}

func (s *service) Register(ctx context.Context, in models.RegisterInput) (models.User, error) {
	const op = "service.Register"

	return s.createAccount(ctx, op, newAccount{
		fullname: in.Fullname,
		username: in.Username,
		email:    in.Email,
		password: in.Password,
		birthday: in.Birthday,
		active:   true,
	})
}

func (s *service) Authenticate(ctx context.Context, email, password string) (models.AccessToken, error) {
	const op = "service.Authenticate"

	log := s.log.With(slog.String("op", op))

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return models.AccessToken{}, apperr.New(apperr.KindMissingCredentials, op, "")
	}

	locked, err := s.throttle.IsLocked(ctx, email)
	if err != nil {
		return models.AccessToken{}, err
	}
	if locked {
		retryIn, err := s.throttle.LockedFor(ctx, email)
		if err != nil {
			log.Warn("failed to read lock window", slog.Any("error", err))
		}
		log.Warn("login locked", slog.String("email", email), slog.Duration("retry_in", retryIn))
		return models.AccessToken{}, apperr.New(apperr.KindAuthenticationFailed, op, "locked")
	}

	user, err := s.storage.FindUser(ctx, models.UserFilter{Email: email})
	if errors.Is(err, storage.ErrNotFound) {
		return models.AccessToken{}, apperr.New(apperr.KindAuthenticationFailed, op, "unknown email")
	}
	if err != nil {
		log.Error("failed to find user", slog.Any("error", err))
		return models.AccessToken{}, apperr.Wrap(apperr.KindStoreUnavailable, op, err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		n, err := s.throttle.RecordFailure(ctx, email)
		if err != nil {
			return models.AccessToken{}, err
		}
		log.Info("wrong password", slog.String("user_id", user.ID.String()), slog.Int64("retry", n))
		return models.AccessToken{}, apperr.New(apperr.KindAuthenticationFailed, op, "wrong password")
	}

	if err := s.throttle.Clear(ctx, email); err != nil {
		return models.AccessToken{}, err
	}

	if !user.Active {
		return models.AccessToken{}, apperr.New(apperr.KindAuthenticationFailed, op, "inactive")
	}
	if user.Blocked {
		return models.AccessToken{}, apperr.New(apperr.KindAuthenticationFailed, op, "blocked")
	}

	ttl := s.tokens.TTL()
	token, err := s.tokens.Issue(user.ID, ttl)
	if err != nil {
		log.Error("failed to issue token", slog.Any("error", err))
		return models.AccessToken{}, err
	}

	if err := s.sessions.Put(ctx, user.ID, token, ttl); err != nil {
		log.Error("failed to store session", slog.Any("error", err))
		return models.AccessToken{}, err
	}

	log.Info("user logged in", slog.String("user_id", user.ID.String()))

	return models.AccessToken{Email: user.Email, AccessToken: token}, nil
}

// UpdateCredentials changes email and/or password of userID. The current
// session stays valid.
func (s *service) UpdateCredentials(ctx context.Context, userID uuid.UUID, in models.CredentialsUpdate) (models.CredentialsUpdate, error) {
	const op = "service.UpdateCredentials"

	log := s.log.With(slog.String("op", op))

	if in.Email == "" && in.Password == "" {
		return models.CredentialsUpdate{}, apperr.Validation(op, "email or password", "required")
	}

	var (
		changes models.UserChanges
		result  models.CredentialsUpdate
	)

	if in.Email != "" {
		email, err := s.normalizeEmail(op, in.Email)
		if err != nil {
			return models.CredentialsUpdate{}, err
		}

		other, err := s.storage.FindUser(ctx, models.UserFilter{Email: email})
		switch {
		case err == nil && other.ID != userID:
			return models.CredentialsUpdate{}, apperr.New(apperr.KindEmailTaken, op, email)
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			return models.CredentialsUpdate{}, apperr.Wrap(apperr.KindStoreUnavailable, op, err)
		}

		changes.Email = &email
		result.Email = email
	}

	if in.Password != "" {
		hash, salt, err := s.hashPassword(op, in.Password)
		if err != nil {
			return models.CredentialsUpdate{}, err
		}

		changes.PasswordHash = &hash
		changes.PasswordSalt = &salt
		result.Password = "changed"
	}

	now := s.now().UTC()
	changes.UpdatedAt = &now
	changes.UpdatedBy = &userID

	n, err := s.storage.UpdateUser(ctx, models.UserFilter{ID: userID}, changes)
	if errors.Is(err, storage.ErrDuplicateKey) {
		return models.CredentialsUpdate{}, apperr.Wrap(apperr.KindEmailTaken, op, err)
	}
	if err != nil {
		log.Error("failed to update credentials", slog.Any("error", err))
		return models.CredentialsUpdate{}, apperr.Wrap(apperr.KindStoreUnavailable, op, err)
	}
	if n == 0 {
		return models.CredentialsUpdate{}, apperr.NotFound(op, "user")
	}

	log.Info("credentials updated", slog.String("user_id", userID.String()))

	return result, nil
}

func (s *service) Logout(ctx context.Context, userID uuid.UUID) error {
	const op = "service.Logout"

	existed, err := s.sessions.Delete(ctx, userID)
	if err != nil {
		return err
	}
	if !existed {
		return apperr.NotFound(op, "session")
	}

	s.log.Info("user logged out", slog.String("op", op), slog.String("user_id", userID.String()))

	return nil
}
