package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Indicates that the email address is already attached to a different user.
var ErrEmailTaken = errors.New("email address already in use")

// Store is the contract for durable user storage.
//
// Lookups signal "no such user" with an absent result, not an error: GetByID
// and Update return a nil *User (with nil error), and Delete returns false.
// Errors are reserved for storage faults, and for constraint violations such
// as [ErrEmailTaken].
//
// Implementations in this package: DBStore (gorm; sqlite or postgresql),
// CachedStore (in-memory caching wrapper over another Store), and MockStore
// (for tests).
type Store interface {
	// InitSchema creates or migrates the backing tables. Safe to call on
	// every startup.
	InitSchema(ctx context.Context) error

	// ListAll returns every user in the store.
	ListAll(ctx context.Context) ([]User, error)

	// GetByID returns the user with the given id, or nil if there is none.
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)

	// Create persists a new user with a freshly assigned ID and returns it.
	Create(ctx context.Context, params CreateUserParams) (*User, error)

	// Update applies a partial update and returns the resulting user, or nil
	// if no user has the given id. An update with no effective fields
	// returns the current row unchanged.
	Update(ctx context.Context, id uuid.UUID, params UpdateUserParams) (*User, error)

	// Delete removes the user with the given id, reporting whether a row was
	// actually removed.
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}
