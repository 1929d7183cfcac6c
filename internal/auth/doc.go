// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TuneVault Contributors

// Package auth provides account and session primitives for TuneVault.
//
// # Domain Types
//
// Domain types (User, Session) should be created using their constructors:
//   - NewUser - creates a User with a validated username, email, and password hash
//   - NewSession - creates a Session with a validated user reference and expiry
//
// Direct struct initialization bypasses validation and may create invalid state.
// Repository implementations receive pre-validated types from these constructors.
//
// # Services
//
// The Service type coordinates the two non-trivial concerns of the system:
// credential validation (registration and login rules against the user store)
// and session management (binding an authenticated user to an opaque token).
// It is created with NewService, which validates its dependencies.
package auth
