// Package admin implements the password-gated registration management API.
package admin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/assiworks/opening-registration/internal/dashboard"
	"github.com/assiworks/opening-registration/internal/models"
	"github.com/assiworks/opening-registration/internal/store"
	apperrors "github.com/assiworks/opening-registration/pkg/errors"
)

// DeleteChunkSize is the number of ids removed per store call.
const DeleteChunkSize = 100

// Options configures a Service.
type Options struct {
	StoreTimeout time.Duration
	Location     *time.Location
	// OnChange runs after rows were deleted.
	OnChange func()
	Now      func() time.Time
}

// Service lists and deletes registrations.
type Service struct {
	store  store.Store
	opts   Options
	logger *zap.Logger
}

// NewService creates an admin service.
func NewService(st store.Store, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.OnChange == nil {
		opts.OnChange = func() {}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{store: st, opts: opts, logger: logger}
}

// List returns up to limit registrations, newest first. limit is clamped to
// store.MaxListLimit.
func (s *Service) List(ctx context.Context, limit int) ([]models.Registration, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	rows, err := s.store.List(ctx, store.ClampLimit(limit))
	if err != nil {
		s.logger.Error("list registrations failed", zap.Error(err))
		return nil, apperrors.Upstream(err, "failed to load registrations")
	}
	if rows == nil {
		rows = []models.Registration{}
	}
	return rows, nil
}

// Summary computes the dashboard analytics over the most recent rows.
func (s *Service) Summary(ctx context.Context) (dashboard.Summary, error) {
	rows, err := s.List(ctx, store.MaxListLimit)
	if err != nil {
		return dashboard.Summary{}, err
	}
	return dashboard.Summarize(rows, s.opts.Now(), s.opts.Location), nil
}

// DeleteResult reports what a delete request did.
type DeleteResult struct {
	DeletedIDs []uuid.UUID `json:"deletedIds"`
	InvalidIDs []string    `json:"invalidIds,omitempty"`
}

// PartialDeleteError means some chunks were deleted before a failure.
// Result holds what was removed.
type PartialDeleteError struct {
	Result *DeleteResult
	Err    error
}

func (e *PartialDeleteError) Error() string {
	return fmt.Sprintf("deleted %d registrations before failing: %v", len(e.Result.DeletedIDs), e.Err)
}

func (e *PartialDeleteError) Unwrap() error { return e.Err }

// ParseIDs trims, drops blanks and deduplicates raw ids, splitting out
// malformed ones.
func ParseIDs(raw []string) (ids []uuid.UUID, invalid []string) {
	seen := make(map[uuid.UUID]struct{}, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		id, err := uuid.Parse(r)
		if err != nil {
			invalid = append(invalid, r)
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, invalid
}

// Delete hard-deletes registrations in chunks. Deletion is not atomic across
// chunks: when a chunk fails the ids removed so far are returned inside a
// *PartialDeleteError.
func (s *Service) Delete(ctx context.Context, raw []string) (*DeleteResult, error) {
	ids, invalid := ParseIDs(raw)
	if len(ids) == 0 && len(invalid) == 0 {
		return nil, apperrors.Validation("id or ids is required")
	}
	if len(ids) == 0 {
		return nil, apperrors.Validation("no valid registration ids: " + strings.Join(invalid, ", "))
	}

	result := &DeleteResult{DeletedIDs: []uuid.UUID{}, InvalidIDs: invalid}
	var errs error
	for start := 0; start < len(ids); start += DeleteChunkSize {
		end := start + DeleteChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunkCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
		deleted, err := s.store.DeleteByIDs(chunkCtx, ids[start:end])
		cancel()
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("chunk %d-%d: %w", start, end, err))
			continue
		}
		result.DeletedIDs = append(result.DeletedIDs, deleted...)
	}
	if len(result.DeletedIDs) > 0 {
		s.opts.OnChange()
	}
	s.logger.Info("registrations deleted",
		zap.Int("requested", len(ids)),
		zap.Int("deleted", len(result.DeletedIDs)),
		zap.Int("invalid", len(invalid)),
	)
	if errs != nil {
		s.logger.Error("delete registrations failed", zap.Errors("errors", multierr.Errors(errs)))
		if len(result.DeletedIDs) == 0 {
			return nil, apperrors.Upstream(errs, "failed to delete registrations")
		}
		return result, &PartialDeleteError{Result: result, Err: errs}
	}
	return result, nil
}
