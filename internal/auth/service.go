// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TuneVault Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Provisioner prepares the per-user storage namespace after registration.
// Implementations must be idempotent: Provision is re-run best-effort on
// login, which is the recovery path when the post-registration call failed.
type Provisioner interface {
	Provision(ctx context.Context, userID ulid.ULID) error
}

// Service provides registration, login, and session operations.
type Service struct {
	users       UserRepository
	sessions    SessionRepository
	hasher      PasswordHasher
	provisioner Provisioner
	logger      *slog.Logger
	sessionTTL  time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithProvisioner attaches a storage provisioner invoked best-effort after
// successful registration and login.
func WithProvisioner(p Provisioner) Option {
	return func(s *Service) { s.provisioner = p }
}

// WithSessionTTL overrides the default session lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) { s.sessionTTL = ttl }
}

// WithLogger sets the logger used for best-effort failure reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a new Service.
func NewService(users UserRepository, sessions SessionRepository, hasher PasswordHasher, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("users repository is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("sessions repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("password hasher is required")
	}

	s := &Service{
		users:      users,
		sessions:   sessions,
		hasher:     hasher,
		logger:     slog.Default(),
		sessionTTL: DefaultSessionTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("logger is required")
	}
	return s, nil
}

// dummyPasswordHash is used when a user doesn't exist to prevent timing attacks.
// We still run password verification to make response time consistent.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Register creates a new user account. Checks run in order and short-circuit
// on the first failure: username, email, password shape, then username and
// email availability. The availability checks are advisory; the store's
// unique constraints are the durable guarantee, and a constraint violation
// from Create maps to the same taken errors.
func (s *Service) Register(ctx context.Context, username, email, password string) (*User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	if err := s.checkAvailability(ctx, username, email); err != nil {
		return nil, err
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(username, email, passwordHash)
	if err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, ErrUsernameTaken):
			return nil, oops.Code("AUTH_USERNAME_TAKEN").
				With("username", username).
				Errorf("username %q is already taken", username)
		case errors.Is(err, ErrEmailTaken):
			return nil, oops.Code("AUTH_EMAIL_TAKEN").
				Errorf("email is already registered")
		default:
			return nil, oops.Code("AUTH_REGISTER_FAILED").
				With("operation", "persist user").
				Wrap(err)
		}
	}

	// Storage provisioning is deliberately outside the user transaction:
	// a failure here must not undo the registration. Provision is idempotent
	// and re-attempted on login.
	s.provision(ctx, user.ID)

	return user, nil
}

// checkAvailability performs the advisory pre-insert uniqueness checks.
func (s *Service) checkAvailability(ctx context.Context, username, email string) error {
	_, err := s.users.GetByUsername(ctx, username)
	switch {
	case err == nil:
		return oops.Code("AUTH_USERNAME_TAKEN").
			With("username", username).
			Errorf("username %q is already taken", username)
	case !errors.Is(err, ErrNotFound):
		return oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "check username availability").
			Wrap(err)
	}

	_, err = s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return oops.Code("AUTH_EMAIL_TAKEN").
			Errorf("email is already registered")
	case !errors.Is(err, ErrNotFound):
		return oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "check email availability").
			Wrap(err)
	}

	return nil
}

// Login authenticates a user by username and password. Unknown username and
// wrong password return the same undifferentiated error so the endpoint
// cannot be used to enumerate accounts. Password verification runs even when
// the user does not exist to keep response time consistent.
func (s *Service) Login(ctx context.Context, username, password string) (*User, error) {
	if username == "" || password == "" {
		return nil, oops.Code("AUTH_MISSING_CREDENTIALS").
			Errorf("username and password are required")
	}

	user, lookupErr := s.users.GetByUsername(ctx, username)

	targetHash := dummyPasswordHash
	userExists := false

	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "get user by username").
				Wrap(lookupErr)
		}
	} else {
		targetHash = user.PasswordHash
		userExists = true
	}

	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if !userExists {
			return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("invalid username or password")
		}
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(verifyErr)
	}

	if !userExists || !valid {
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("invalid username or password")
	}

	// Accounts imported from the legacy backend carry unsalted SHA-256
	// hashes; upgrade them now that we hold the verified plaintext.
	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		if newHash, hashErr := s.hasher.Hash(password); hashErr == nil {
			user.PasswordHash = newHash
			user.Touch()
			if updErr := s.users.Update(ctx, user); updErr != nil {
				s.logger.Warn("password hash upgrade failed",
					"user_id", user.ID.String(),
					"error", updErr)
			}
		}
	}

	// Recovery path for a provisioning failure at registration time.
	s.provision(ctx, user.ID)

	return user, nil
}

// GetUser resolves a user by ID; used to answer "who is the current user"
// for a resolved session.
func (s *Service) GetUser(ctx context.Context, id ulid.ULID) (*User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("USER_NOT_FOUND").
				With("id", id.String()).
				Wrap(ErrNotFound)
		}
		return nil, oops.Code("AUTH_LOOKUP_FAILED").
			With("operation", "get user by id").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// Establish creates a session for an already-authenticated user and returns
// the session together with the plaintext token. Establish never inspects
// credentials; it persists the outcome Register or Login vouched for.
func (s *Service) Establish(ctx context.Context, user *User) (*Session, string, error) {
	if user == nil {
		return nil, "", oops.Code("SESSION_INVALID_USER").Errorf("user is required")
	}

	token, tokenHash, err := GenerateSessionToken()
	if err != nil {
		return nil, "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "generate session token").
			Wrap(err)
	}

	session, err := NewSession(user.ID, tokenHash, time.Now().UTC().Add(s.sessionTTL))
	if err != nil {
		return nil, "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "create session").
			Wrap(err)
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "persist session").
			Wrap(err)
	}

	return session, token, nil
}

// Resolve validates a session token and returns the associated user ID.
// Absent and expired tokens are indistinguishable to the caller; both mean
// unauthenticated. Also refreshes the LastSeenAt timestamp.
func (s *Service) Resolve(ctx context.Context, token string) (ulid.ULID, error) {
	if token == "" {
		return ulid.ULID{}, oops.Code("SESSION_INVALID").Errorf("invalid session token")
	}

	session, err := s.sessions.GetByTokenHash(ctx, HashSessionToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ulid.ULID{}, oops.Code("SESSION_INVALID").Errorf("invalid session token")
		}
		return ulid.ULID{}, oops.Code("SESSION_RESOLVE_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	if session.IsExpired() {
		return ulid.ULID{}, oops.Code("SESSION_EXPIRED").Errorf("session has expired")
	}

	if err := s.sessions.UpdateLastSeen(ctx, session.ID, time.Now().UTC()); err != nil {
		// Best effort; resolution succeeds regardless.
		s.logger.Debug("last-seen update failed",
			"session_id", session.ID.String(),
			"error", err)
	}

	return session.UserID, nil
}

// Terminate removes the session for the given token. Terminating an absent
// or already-terminated token is not an error.
func (s *Service) Terminate(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.DeleteByTokenHash(ctx, HashSessionToken(token)); err != nil {
		return oops.Code("SESSION_TERMINATE_FAILED").
			With("operation", "delete session").
			Wrap(err)
	}
	return nil
}

// provision invokes the storage provisioner best-effort.
func (s *Service) provision(ctx context.Context, userID ulid.ULID) {
	if s.provisioner == nil {
		return
	}
	if err := s.provisioner.Provision(ctx, userID); err != nil {
		s.logger.Warn("user storage provisioning failed",
			"user_id", userID.String(),
			"error", err)
	}
}
