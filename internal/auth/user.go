// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TuneVault Contributors

package auth

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 6

// User represents a registered account.
type User struct {
	ID           ulid.ULID
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser creates a validated User with a fresh ID and UTC timestamps.
// The password hash must already be derived; NewUser never sees plaintext.
func NewUser(username, email, passwordHash string) (*User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("password hash cannot be empty")
	}

	now := time.Now().UTC()
	return &User{
		ID:           ulid.Make(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Touch refreshes the UpdatedAt timestamp after a field mutation.
func (u *User) Touch() {
	u.UpdatedAt = time.Now().UTC()
}

// ValidateUsername rejects empty usernames. No further shape is imposed;
// uniqueness is enforced by the store.
func ValidateUsername(username string) error {
	if username == "" {
		return oops.Code("AUTH_INVALID_USERNAME").Errorf("username cannot be empty")
	}
	return nil
}

// ValidateEmail performs a syntactic sanity check: non-empty and contains "@".
// This is deliberately weak; full RFC validation is out of scope and real
// verification would need a confirmation mail anyway.
func ValidateEmail(email string) error {
	if email == "" || !strings.Contains(email, "@") {
		return oops.Code("AUTH_INVALID_EMAIL").
			With("email", email).
			Errorf("email must be non-empty and contain @")
	}
	return nil
}

// ValidatePassword rejects passwords shorter than MinPasswordLength
// characters. Length is counted in runes so multibyte passwords are not
// over-credited for their encoding.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return oops.Code("AUTH_PASSWORD_TOO_SHORT").
			With("min", MinPasswordLength).
			Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

// UserRepository manages user persistence. Implementations must hold unique
// constraints on username and email and surface violations as
// ErrUsernameTaken / ErrEmailTaken from Create.
type UserRepository interface {
	// Create stores a new user.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByUsername retrieves a user by exact username.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// GetByEmail retrieves a user by email (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*User, error)

	// Update updates an existing user.
	Update(ctx context.Context, user *User) error
}
