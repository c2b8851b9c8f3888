// Package domain declares the persistence contract for user records
// and the errors stores translate driver failures into.
package domain

import (
	"context"
	"errors"

	"go-user-service/internal/feature/user"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicateUsername = errors.New("duplicate username")
	ErrDuplicateEmail    = errors.New("duplicate email")
	ErrValidation        = errors.New("validation failed")
)

// UserStore persists user records. Implementations own all state;
// callers hold records only for the duration of a request. Lookups
// return ErrNotFound when no row matches; Create and Save surface
// unique-index races as ErrDuplicateUsername / ErrDuplicateEmail.
type UserStore interface {
	ByID(ctx context.Context, id string) (*user.Model, error)
	ByUsername(ctx context.Context, username string) (*user.Model, error)
	// ByEmail returns every record with the given email. Email is
	// expected unique; callers treat anything other than exactly one
	// match as not found.
	ByEmail(ctx context.Context, email string) ([]user.Model, error)
	ByVerificationToken(ctx context.Context, token string) (*user.Model, error)
	ByResetToken(ctx context.Context, token string) ([]user.Model, error)
	// ByIDs fetches the sanitized projection for each id that exists.
	ByIDs(ctx context.Context, ids []string) ([]user.Model, error)
	// Search pages users whose username contains q
	// (case-insensitive), ordered by username ascending.
	Search(ctx context.Context, q string, offset, limit int) ([]user.Model, error)

	Create(ctx context.Context, m *user.Model) error
	Save(ctx context.Context, m *user.Model) error
	// UpdateFields applies a partial column update to one record.
	UpdateFields(ctx context.Context, id string, fields map[string]any) error
	// Delete removes by id; deleting a nonexistent id is a no-op.
	Delete(ctx context.Context, id string) error

	// FlushSubroles replaces the subroles of every user whose role
	// equals role, returning the number of rows touched.
	FlushSubroles(ctx context.Context, role string, subroles user.StringSet) (int64, error)
	// RemoveSubrole strips one label from every user currently
	// carrying it, returning the number of rows touched.
	RemoveSubrole(ctx context.Context, label string) (int64, error)
}
