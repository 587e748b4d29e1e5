package service

import (
	"context"
	"errors"
	"time"

	"github.com/Skotchmaster/auth_service/internal/hash"
	"github.com/Skotchmaster/auth_service/internal/models"
	"github.com/Skotchmaster/auth_service/internal/repo"
	"github.com/Skotchmaster/auth_service/internal/validate"
	"github.com/Skotchmaster/auth_service/pkg/logging"
	"github.com/Skotchmaster/auth_service/pkg/tokens"
)

var (
	// ErrInvalidCredentials covers unknown email and wrong password alike, so
	// a caller cannot discover which emails are registered.
	ErrInvalidCredentials = errors.New("incorrect email or password")
	ErrRefreshExpired     = errors.New("refresh token expired")
	ErrWrongPassword      = errors.New("incorrect current password")
)

// dummyHash is a valid bcrypt digest compared against on the unknown-email
// path, so a miss costs the same bcrypt work as a wrong password.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

type AuthService struct {
	Users  *repo.UserRepo
	Tokens *repo.TokenRepo

	JWTSecret     []byte
	RefreshSecret []byte

	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Login verifies the credentials and issues a fresh token pair. Every login
// persists one more refresh row; earlier sessions stay valid (multi-device).
func (s *AuthService) Login(ctx context.Context, email, password string) (*TokenPair, *models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login")

	user, err := s.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			hash.CheckPassword(dummyHash, password)
			return nil, nil, ErrInvalidCredentials
		}
		l.Error("login_failed", "reason", "user lookup", "error", err)
		return nil, nil, err
	}
	if !hash.CheckPassword(user.PasswordHash, password) {
		return nil, nil, ErrInvalidCredentials
	}

	refreshToken, err := tokens.SignRefreshToken(user.Email, s.RefreshSecret, s.RefreshTTL)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.Tokens.Save(ctx, refreshToken, user.ID); err != nil {
		l.Error("login_failed", "reason", "save refresh", "error", err)
		return nil, nil, err
	}

	accessToken, err := tokens.SignAccessToken(user.Email, s.JWTSecret, s.AccessTTL)
	if err != nil {
		return nil, nil, err
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, user, nil
}

// CurrentUser resolves a bearer access token to its user. Any verification
// failure, or a subject that no longer resolves, yields ErrInvalidToken.
func (s *AuthService) CurrentUser(ctx context.Context, accessToken string) (*models.User, error) {
	claims, err := tokens.AccessClaimsFromToken(accessToken, s.JWTSecret)
	if err != nil {
		return nil, tokens.ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, tokens.ErrInvalidToken
	}
	user, err := s.Users.GetByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return nil, tokens.ErrInvalidToken
		}
		return nil, err
	}
	return user, nil
}

// Refresh exchanges a stored, still-active refresh token for a new access
// token. The refresh token itself is not rotated. The store lookup comes
// first: a row that was never issued, already reaped, or flagged invalidated
// is rejected before any signature work.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if _, err := s.Tokens.FindActiveByToken(ctx, refreshToken); err != nil {
		if errors.Is(err, repo.ErrTokenNotFound) {
			return "", tokens.ErrInvalidToken
		}
		return "", err
	}

	claims, err := tokens.RefreshClaimsFromToken(refreshToken, s.RefreshSecret)
	if err != nil {
		if errors.Is(err, tokens.ErrTokenExpired) {
			return "", ErrRefreshExpired
		}
		return "", tokens.ErrInvalidToken
	}

	return tokens.SignAccessToken(claims.Subject, s.JWTSecret, s.AccessTTL)
}

// Logout revokes one session and returns the owning user id. A token with no
// matching row surfaces repo.ErrTokenNotFound.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) (uint, error) {
	return s.Tokens.Invalidate(ctx, refreshToken)
}

// LogoutAll revokes every refresh row the user owns.
func (s *AuthService) LogoutAll(ctx context.Context, userID uint) error {
	return s.Tokens.InvalidateAll(ctx, userID)
}

// ChangePassword re-hashes and stores the new password once the current one
// verifies. Outstanding sessions are not invalidated; callers wanting that
// follow up with LogoutAll.
func (s *AuthService) ChangePassword(ctx context.Context, user *models.User, current, newPassword string) error {
	if !hash.CheckPassword(user.PasswordHash, current) {
		return ErrWrongPassword
	}
	if !validate.Password(newPassword) {
		return repo.ErrWeakPassword
	}
	return s.Users.SetPassword(ctx, user.ID, newPassword)
}
