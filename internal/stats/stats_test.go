package stats

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/repository"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "harrier-stats-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func TestSnapshot(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewService(nil, repo, nil)

	ctx := context.Background()
	tenantID := "tenant-001"
	now := time.Now().UTC()

	// Two transactions in the window, one stale.
	for i, created := range []time.Time{
		now.Add(-10 * time.Minute),
		now.Add(-30 * time.Minute),
		now.Add(-3 * time.Hour),
	} {
		tx := &domain.Transaction{
			ID:        "tx-" + string(rune('a'+i)),
			Amount:    42.0,
			Date:      "2024-03-15",
			Time:      "14:30:00",
			CreatedAt: created,
		}
		if err := repo.SaveTransaction(ctx, tenantID, tx); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}
	}

	// One flagged score in the window, one passed, one stale flag.
	scores := []*domain.ScoreResult{
		{ID: "s1", TxID: "tx-a", Status: domain.StatusFlagged, Timestamp: now.Add(-10 * time.Minute)},
		{ID: "s2", TxID: "tx-b", Status: domain.StatusPassed, Timestamp: now.Add(-30 * time.Minute)},
		{ID: "s3", TxID: "tx-c", Status: domain.StatusFlagged, Timestamp: now.Add(-3 * time.Hour)},
	}
	for _, sc := range scores {
		if err := repo.SaveScore(ctx, tenantID, sc); err != nil {
			t.Fatalf("SaveScore failed: %v", err)
		}
	}

	snap, err := svc.Snapshot(ctx, tenantID)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	if snap.TransactionsLastHour != 2 {
		t.Errorf("TransactionsLastHour = %d, want 2", snap.TransactionsLastHour)
	}
	if snap.FlagsLastHour != 1 {
		t.Errorf("FlagsLastHour = %d, want 1", snap.FlagsLastHour)
	}
}

func TestSnapshotRequiresTenant(t *testing.T) {
	svc := NewService(nil, newTestRepo(t), nil)
	if _, err := svc.Snapshot(context.Background(), ""); err == nil {
		t.Error("expected error for empty tenantID")
	}
}

func TestSnapshotTenantIsolation(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewService(nil, repo, nil)

	ctx := context.Background()
	tx := &domain.Transaction{
		ID:        "tx-other",
		Amount:    10,
		Date:      "2024-03-15",
		Time:      "09:00:00",
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.SaveTransaction(ctx, "tenant-a", tx); err != nil {
		t.Fatalf("SaveTransaction failed: %v", err)
	}

	snap, err := svc.Snapshot(ctx, "tenant-b")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.TransactionsLastHour != 0 {
		t.Errorf("TransactionsLastHour = %d, want 0 for other tenant", snap.TransactionsLastHour)
	}
}

func TestRecordFlag(t *testing.T) {
	c := cache.NewLRUCache(16)
	defer c.Close()

	svc := NewService(nil, nil, c)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := svc.RecordFlag(ctx, "tenant-001")
		if err != nil {
			t.Fatalf("RecordFlag failed: %v", err)
		}
		if got != want {
			t.Errorf("counter = %d, want %d", got, want)
		}
	}

	// Nil cache is a no-op.
	noop := NewService(nil, nil, nil)
	if n, err := noop.RecordFlag(ctx, "tenant-001"); err != nil || n != 0 {
		t.Errorf("nil cache RecordFlag = (%d, %v), want (0, nil)", n, err)
	}
}
