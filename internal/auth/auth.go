// Package auth registers and authenticates users and maps session tokens back
// to accounts.
package auth

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"pastebox/internal/metrics"
	"pastebox/internal/security"
	"pastebox/internal/storage"
)

const (
	MinUsernameLen = 3
	MinPasswordLen = 6
)

// ValidationError is a registration failure whose message is safe to show
// on the form.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

var (
	ErrUsernameTooShort = &ValidationError{Message: "Username must be at least 3 characters"}
	ErrPasswordTooShort = &ValidationError{Message: "Password must be at least 6 characters"}
	ErrPasswordMismatch = &ValidationError{Message: "Passwords do not match"}
	ErrUsernameTaken    = &ValidationError{Message: "Username already taken"}

	ErrInvalidCredentials = errors.New("invalid credentials")
)

// InvalidCredentialsMessage is shown on the login form for any failed login.
const InvalidCredentialsMessage = "Invalid username or password"

// Service handles accounts and sessions.
type Service struct {
	users  storage.UserStore
	codec  Codec
	now    func() time.Time
	logger zerolog.Logger
}

// NewService returns a Service. A nil codec falls back to PlainCodec.
func NewService(users storage.UserStore, codec Codec, logger zerolog.Logger) *Service {
	if codec == nil {
		codec = PlainCodec{}
	}
	return &Service{
		users:  users,
		codec:  codec,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With().Str("component", "auth").Logger(),
	}
}

// Register validates the form and creates an account. Checks run in order and
// the first failure wins; nothing touches the store until the input is valid.
func (s *Service) Register(ctx context.Context, username, password, confirm string) (int64, error) {
	switch {
	case len(username) < MinUsernameLen:
		return 0, ErrUsernameTooShort
	case len(password) < MinPasswordLen:
		return 0, ErrPasswordTooShort
	case password != confirm:
		return 0, ErrPasswordMismatch
	}

	_, err := s.users.GetUserByUsername(ctx, username)
	switch {
	case err == nil:
		return 0, ErrUsernameTaken
	case !errors.Is(err, storage.ErrNotFound):
		return 0, errors.Wrap(err, "lookup username")
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return 0, err
	}

	userID, err := s.users.CreateUser(ctx, username, hash, s.now())
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return 0, ErrUsernameTaken
		}
		return 0, errors.Wrap(err, "create user")
	}
	metrics.Registrations.Inc()
	s.logger.Info().Int64("user_id", userID).Msg("user registered")
	return userID, nil
}

// Login returns the account matching the credentials. Unknown users and wrong
// passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, username, password string) (*storage.User, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Error().Err(err).Msg("lookup user for login")
		}
		metrics.LoginFailures.Inc()
		return nil, ErrInvalidCredentials
	}
	if !security.VerifyPassword(user.PasswordHash, password) {
		metrics.LoginFailures.Inc()
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// IssueSession encodes a cookie value for userID.
func (s *Service) IssueSession(userID int64) (string, error) {
	return s.codec.Encode(userID)
}

// ResolveSession maps a cookie value to its user. Any failure yields nil.
func (s *Service) ResolveSession(ctx context.Context, token string) *storage.User {
	if token == "" {
		return nil
	}
	userID, err := s.codec.Decode(token)
	if err != nil {
		return nil
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn().Err(err).Int64("user_id", userID).Msg("resolve session")
		}
		return nil
	}
	return user
}
