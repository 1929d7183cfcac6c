// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TuneVault Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrUsernameTaken is returned by repositories when an insert collides with
// the unique constraint on username. The check-then-insert sequence in
// Register is a convenience; this sentinel carries the durable guarantee.
var ErrUsernameTaken = errors.New("username taken")

// ErrEmailTaken is the email counterpart of ErrUsernameTaken.
var ErrEmailTaken = errors.New("email taken")
