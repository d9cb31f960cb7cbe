package repository

import (
	"context"
	"errors"

	"ground-truth-bench/internal/domain"
)

// ErrCorrupt marks persisted data that could not be decoded.
var ErrCorrupt = errors.New("corrupt persisted data")

// CredentialStore persists the whole user table as one unit.
type CredentialStore interface {
	// Load returns the full user table. The table is never nil: when the backing
	// resource is missing, unreachable or corrupt it is empty, and for the latter
	// two a non-nil error describes the problem as a soft warning.
	Load(ctx context.Context) (domain.Users, error)
	// Save overwrites the persisted table with users.
	Save(ctx context.Context, users domain.Users) error
}
