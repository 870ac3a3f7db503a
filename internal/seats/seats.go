// Package seats reports remaining capacity for the event.
package seats

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/assiworks/opening-registration/internal/metrics"
)

const (
	DefaultCapacity = 100
	DefaultCacheTTL = 5 * time.Second

	activeCountKey = "active_count"
)

// ActiveCounter counts registrations that are not cancelled.
type ActiveCounter interface {
	CountActive(ctx context.Context) (int, error)
}

// Status is the seat snapshot returned by GET /seat-status.
type Status struct {
	Capacity    int  `json:"capacity"`
	ActiveCount int  `json:"activeCount"`
	Remaining   int  `json:"remaining"`
	Full        bool `json:"full"`
}

// Compute derives remaining seats; remaining never goes below zero.
func Compute(capacity, active int) Status {
	remaining := capacity - active
	if remaining < 0 {
		remaining = 0
	}
	return Status{
		Capacity:    capacity,
		ActiveCount: active,
		Remaining:   remaining,
		Full:        remaining == 0,
	}
}

// Service caches the active count for a short TTL.
type Service struct {
	counter  ActiveCounter
	capacity int
	ttl      time.Duration
	cache    *gocache.Cache
	logger   *zap.Logger
}

// NewService creates a seat service. ttl <= 0 disables caching.
func NewService(counter ActiveCounter, capacity int, ttl time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Service{
		counter:  counter,
		capacity: capacity,
		ttl:      ttl,
		cache:    gocache.New(ttl, 2*ttl),
		logger:   logger,
	}
}

// Status returns the current seat snapshot.
func (s *Service) Status(ctx context.Context) (Status, error) {
	if v, ok := s.cache.Get(activeCountKey); ok {
		if n, ok := v.(int); ok {
			return Compute(s.capacity, n), nil
		}
	}
	n, err := s.counter.CountActive(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("count active registrations: %w", err)
	}
	if s.ttl > 0 {
		s.cache.Set(activeCountKey, n, s.ttl)
	}
	metrics.ActiveRegistrations.Set(float64(n))
	return Compute(s.capacity, n), nil
}

// Invalidate drops the cached count after a register or cancel.
func (s *Service) Invalidate() {
	s.cache.Delete(activeCountKey)
}
