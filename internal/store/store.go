// Package store defines the persistence contract for registrations and email logs.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/assiworks/opening-registration/internal/models"
)

var (
	// ErrNotFound is returned when no registration matches the lookup.
	ErrNotFound = errors.New("store: registration not found")
	// ErrDuplicateToken is returned when an insert collides on cancel_token.
	ErrDuplicateToken = errors.New("store: duplicate cancel token")
)

// MaxListLimit caps List results.
const MaxListLimit = 200

// Store is the registration store. Implementations must make CancelByToken a
// single conditional update so concurrent cancels transition at most once.
type Store interface {
	// Create inserts reg and fills ID and CreatedAt.
	Create(ctx context.Context, reg *models.Registration) error
	// GetByToken returns ErrNotFound when the token is unknown.
	GetByToken(ctx context.Context, token string) (*models.Registration, error)
	// GetByID returns ErrNotFound when the id is unknown.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	// CancelByToken sets cancelled_at = at only where it is still null and
	// reports whether a row changed.
	CancelByToken(ctx context.Context, token string, at time.Time) (bool, error)
	// List returns up to limit registrations, newest first.
	List(ctx context.Context, limit int) ([]models.Registration, error)
	// DeleteByIDs hard-deletes and returns the ids that existed.
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error)
	// CountActive counts registrations with no cancelled_at.
	CountActive(ctx context.Context) (int, error)

	CreateEmailLog(ctx context.Context, log *models.EmailLog) error
	ListEmailLogs(ctx context.Context, limit int) ([]models.EmailLog, error)

	Ping(ctx context.Context) error
	Close() error
}

// ClampLimit applies the default and cap used by List and ListEmailLogs.
func ClampLimit(limit int) int {
	if limit <= 0 || limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
