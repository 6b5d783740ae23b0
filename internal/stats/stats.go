// Package stats aggregates live detection statistics for the service.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/harrier/internal/adaptive"
	"github.com/opensource-finance/harrier/internal/domain"
)

// Service combines the adaptive detector's in-process counters with
// windowed counts from the repository and cache.
type Service struct {
	det   *adaptive.Detector
	repo  domain.Repository
	cache domain.Cache
}

// NewService creates a new statistics service.
func NewService(det *adaptive.Detector, repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		det:   det,
		repo:  repo,
		cache: cache,
	}
}

// Snapshot is the full statistics view served by the API.
type Snapshot struct {
	adaptive.Stats

	// Windowed counts from persistent storage
	TransactionsLastHour int64 `json:"transactionsLastHour"`
	FlagsLastHour        int64 `json:"flagsLastHour"`
}

// Snapshot assembles the current statistics for a tenant.
func (s *Service) Snapshot(ctx context.Context, tenantID string) (Snapshot, error) {
	if tenantID == "" {
		return Snapshot{}, fmt.Errorf("tenantID is required")
	}

	snap := Snapshot{}
	if s.det != nil {
		snap.Stats = s.det.Stats()
	}

	if s.repo != nil {
		since := time.Now().UTC().Add(-1 * time.Hour)

		txCount, err := s.repo.CountTransactionsSince(ctx, tenantID, since)
		if err != nil {
			return snap, fmt.Errorf("failed to count transactions: %w", err)
		}
		snap.TransactionsLastHour = txCount

		flagCount, err := s.repo.CountScoresSince(ctx, tenantID, domain.StatusFlagged, since)
		if err != nil {
			return snap, fmt.Errorf("failed to count flags: %w", err)
		}
		snap.FlagsLastHour = flagCount
	}

	return snap, nil
}

// RecordFlag bumps the rolling hourly flag counter in cache. Best-effort:
// counter state is advisory, never authoritative.
func (s *Service) RecordFlag(ctx context.Context, tenantID string) (int64, error) {
	if s.cache == nil {
		return 0, nil
	}
	return s.cache.IncrementCounter(ctx, tenantID, "flags:hourly", time.Hour)
}
