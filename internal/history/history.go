// Package history provides cached access to a user's recent activities.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/openathletics/stridewatch/internal/domain"
)

// Service loads user activity history for the validator and the rule
// engine, with cache-aside reads over the repository.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
	ttl   time.Duration

	// limits records every limit a cache key was written under, so
	// Invalidate can drop all of a user's keys regardless of the limit
	// the caller reads with.
	mu     sync.Mutex
	limits map[int]struct{}
}

// NewService creates a new history service.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:   repo,
		cache:  cache,
		ttl:    2 * time.Minute,
		limits: map[int]struct{}{defaultLimit: {}},
	}
}

// defaultLimit applies when a caller passes a non-positive limit.
const defaultLimit = 100

// Recent returns up to limit prior activities for a user, most recent
// first.
func (s *Service) Recent(ctx context.Context, tenantID, userID string, limit int) ([]*domain.Activity, error) {
	if tenantID == "" || userID == "" {
		return nil, fmt.Errorf("tenantID and userID are required")
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	key := fmt.Sprintf("history:%s:%d", userID, limit)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, tenantID, key); err == nil && data != nil {
			var acts []*domain.Activity
			if err := json.Unmarshal(data, &acts); err == nil {
				return acts, nil
			}
		}
	}

	if s.repo == nil {
		return nil, fmt.Errorf("no data source available")
	}
	acts, err := s.repo.GetActivitiesByUser(ctx, tenantID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load user history: %w", err)
	}

	if s.cache != nil {
		if data, err := json.Marshal(acts); err == nil {
			_ = s.cache.Set(ctx, tenantID, key, data, s.ttl)
			s.mu.Lock()
			s.limits[limit] = struct{}{}
			s.mu.Unlock()
		}
	}
	return acts, nil
}

// CountSince returns the number of activities a user recorded since the
// given time. Used by ingest rate screening rules.
func (s *Service) CountSince(ctx context.Context, tenantID, userID string, since time.Time) (int64, error) {
	if tenantID == "" || userID == "" {
		return 0, fmt.Errorf("tenantID and userID are required")
	}
	if s.repo == nil {
		return 0, fmt.Errorf("no data source available")
	}
	acts, err := s.repo.GetActivitiesByUserSince(ctx, tenantID, userID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count activities: %w", err)
	}
	return int64(len(acts)), nil
}

// Invalidate drops cached history for a user after new activity arrives.
// Every limit ever cached under is dropped.
func (s *Service) Invalidate(ctx context.Context, tenantID, userID string) {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	limits := make([]int, 0, len(s.limits))
	for limit := range s.limits {
		limits = append(limits, limit)
	}
	s.mu.Unlock()
	for _, limit := range limits {
		_ = s.cache.Delete(ctx, tenantID, fmt.Sprintf("history:%s:%d", userID, limit))
	}
}

// HistoryGetter returns the lookup function consumed by the rule engine.
func (s *Service) HistoryGetter() func(ctx context.Context, tenantID, userID string, limit int) ([]*domain.Activity, error) {
	return s.Recent
}
