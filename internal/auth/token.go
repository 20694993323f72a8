package auth

import (
	"errors"
	"fmt"
	"os"
	"time"

	"account_service/internal/apperr"
	"account_service/internal/config"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the encrypted user id. The plain id never appears in the
// token payload.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenService mints and verifies access tokens.
type TokenService struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	issuer    string
	ttl       time.Duration
	cipher    *ClaimCipher
	now       func() time.Time
}

func NewTokenService(cfg config.Token) (*TokenService, error) {
	const op = "auth.NewTokenService"

	method := jwt.GetSigningMethod(cfg.Algorithm)
	if method == nil || method == jwt.SigningMethodNone {
		return nil, fmt.Errorf("%s: unsupported algorithm %q", op, cfg.Algorithm)
	}

	if cfg.Issuer == "" {
		return nil, fmt.Errorf("%s: issuer is empty", op)
	}

	c, err := NewClaimCipher(cfg.PayloadSecret)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s := &TokenService{
		method: method,
		issuer: cfg.Issuer,
		ttl:    cfg.ExpiresIn,
		cipher: c,
		now:    time.Now,
	}

	if err := s.loadKeys(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s, nil
}

func (s *TokenService) loadKeys(cfg config.Token) error {
	switch s.method.(type) {
	case *jwt.SigningMethodHMAC:
		if cfg.Secret == "" {
			return errors.New("hmac secret is empty")
		}
		s.signKey = []byte(cfg.Secret)
		s.verifyKey = []byte(cfg.Secret)
		return nil

	case *jwt.SigningMethodRSA, *jwt.SigningMethodRSAPSS:
		priv, pub, err := readKeyPair(cfg)
		if err != nil {
			return err
		}
		if s.signKey, err = jwt.ParseRSAPrivateKeyFromPEM(priv); err != nil {
			return fmt.Errorf("private key: %w", err)
		}
		if s.verifyKey, err = jwt.ParseRSAPublicKeyFromPEM(pub); err != nil {
			return fmt.Errorf("public key: %w", err)
		}
		return nil

	case *jwt.SigningMethodECDSA:
		priv, pub, err := readKeyPair(cfg)
		if err != nil {
			return err
		}
		if s.signKey, err = jwt.ParseECPrivateKeyFromPEM(priv); err != nil {
			return fmt.Errorf("private key: %w", err)
		}
		if s.verifyKey, err = jwt.ParseECPublicKeyFromPEM(pub); err != nil {
			return fmt.Errorf("public key: %w", err)
		}
		return nil
	}

	return fmt.Errorf("unsupported algorithm %q", s.method.Alg())
}

func readKeyPair(cfg config.Token) (priv, pub []byte, err error) {
	if priv, err = os.ReadFile(cfg.PrivateKeyPath); err != nil {
		return nil, nil, fmt.Errorf("read private key: %w", err)
	}
	if pub, err = os.ReadFile(cfg.PublicKeyPath); err != nil {
		return nil, nil, fmt.Errorf("read public key: %w", err)
	}
	return priv, pub, nil
}

// TTL is the configured token lifetime.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for userID valid for ttl.
func (s *TokenService) Issue(userID uuid.UUID, ttl time.Duration) (string, error) {
	const op = "auth.Issue"

	data, err := s.cipher.Encrypt(userID.String())
	if err != nil {
		return "", apperr.Wrap(apperr.KindSigningError, op, err)
	}

	now := s.now()
	claims := &Claims{
		UserID: data,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token, err := jwt.NewWithClaims(s.method, claims).SignedString(s.signKey)
	if err != nil {
		return "", apperr.Wrap(apperr.KindSigningError, op, err)
	}

	return token, nil
}

// Verify checks signature, algorithm, issuer and expiry and returns the user
// id. Expiry is reported as KindExpiredToken, everything else as
// KindInvalidToken.
func (s *TokenService) Verify(token string) (uuid.UUID, error) {
	const op = "auth.Verify"

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.verifyKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, apperr.Wrap(apperr.KindExpiredToken, op, err)
		}
		return uuid.Nil, apperr.Wrap(apperr.KindInvalidToken, op, err)
	}

	plain, err := s.cipher.Decrypt(claims.UserID)
	if err != nil {
		return uuid.Nil, apperr.Wrap(apperr.KindInvalidToken, op, err)
	}

	id, err := uuid.FromString(plain)
	if err != nil {
		return uuid.Nil, apperr.Wrap(apperr.KindInvalidToken, op, err)
	}

	return id, nil
}
