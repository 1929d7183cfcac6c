// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TuneVault Contributors

// Package storage provisions the per-user filesystem namespace.
package storage

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/tunevault/tunevault/internal/auth"
)

// Layout under the data directory:
//
//	<root>/users/<user-id>/
//	<root>/users/<user-id>/playlists/
const (
	usersDirName     = "users"
	playlistsDirName = "playlists"
	dirMode          = 0o700
)

// Provisioning retries. Transient filesystem errors (e.g. a network mount
// coming up) are retried briefly; the caller treats a final failure as
// best-effort anyway.
const (
	provisionBaseDelay  = 100 * time.Millisecond
	provisionMaxRetries = 3
)

// DirProvisioner creates user directories beneath a root path. MkdirAll makes
// Provision idempotent: re-running it for an existing user is a no-op, which
// is the recovery contract for a failed post-registration attempt.
type DirProvisioner struct {
	root string
}

// NewDirProvisioner creates a DirProvisioner rooted at the given path.
func NewDirProvisioner(root string) (*DirProvisioner, error) {
	if root == "" {
		return nil, oops.Code("STORAGE_INVALID_ROOT").Errorf("storage root cannot be empty")
	}
	return &DirProvisioner{root: root}, nil
}

// Provision creates the user's directory tree.
func (p *DirProvisioner) Provision(ctx context.Context, userID ulid.ULID) error {
	playlists := filepath.Join(p.root, usersDirName, userID.String(), playlistsDirName)

	backoff := retry.WithMaxRetries(provisionMaxRetries, retry.NewConstant(provisionBaseDelay))
	err := retry.Do(ctx, backoff, func(_ context.Context) error {
		if mkErr := os.MkdirAll(playlists, dirMode); mkErr != nil {
			return retry.RetryableError(mkErr)
		}
		return nil
	})
	if err != nil {
		return oops.Code("STORAGE_PROVISION_FAILED").
			With("operation", "create user directories").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}

// UserDir returns the root of a user's storage namespace.
func (p *DirProvisioner) UserDir(userID ulid.ULID) string {
	return filepath.Join(p.root, usersDirName, userID.String())
}

// Compile-time interface check.
var _ auth.Provisioner = (*DirProvisioner)(nil)
