package user

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UserRepository is the persistence contract for accounts. Lookups return
// an error with code ErrCodeUserNotFound when no row matches; Create maps
// unique violations to ErrCodeDuplicateEmail / ErrCodeDuplicateUsername.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	Update(ctx context.Context, u *User) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter ListFilter) ([]*User, int64, error)

	// UpdatePassword replaces the hash and clears any lockout state.
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	// RecordLogin notes a successful login and resets the failure counter.
	RecordLogin(ctx context.Context, id uuid.UUID, ip string, at time.Time) error
	// RecordFailedLogin bumps the failure counter; a non-nil until also
	// arms the lockout.
	RecordFailedLogin(ctx context.Context, id uuid.UUID, until *time.Time) error
	VerifyEmail(ctx context.Context, id uuid.UUID, at time.Time) error
	// SetPreference writes one preference entry; empty value deletes it.
	SetPreference(ctx context.Context, id uuid.UUID, name, value string) error
}
