package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

func TestSQLiteRepository(t *testing.T) {
	// Create temp database file
	tmpFile, err := os.CreateTemp("", "harrier-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetTransaction", func(t *testing.T) {
		tx := &domain.Transaction{
			ID:        "tx-001",
			Amount:    127.40,
			Currency:  "USD",
			Date:      "2024-03-15",
			Time:      "14:30:00",
			Lat:       40.7128,
			Long:      -74.0060,
			MerchLat:  40.7580,
			MerchLong: -73.9855,
			Category:  "grocery_pos",
			Gender:    "F",
			BirthDate: "1990-06-01",
			CityPop:   8400000,
			CreatedAt: time.Now().UTC(),
			Metadata:  map[string]any{"source": "api"},
		}

		if err := repo.SaveTransaction(ctx, tenantID, tx); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}

		retrieved, err := repo.GetTransaction(ctx, tenantID, tx.ID)
		if err != nil {
			t.Fatalf("GetTransaction failed: %v", err)
		}

		if retrieved.ID != tx.ID {
			t.Errorf("expected ID %s, got %s", tx.ID, retrieved.ID)
		}
		if retrieved.Amount != tx.Amount {
			t.Errorf("expected Amount %.2f, got %.2f", tx.Amount, retrieved.Amount)
		}
		if retrieved.Date != tx.Date || retrieved.Time != tx.Time {
			t.Errorf("expected %s %s, got %s %s", tx.Date, tx.Time, retrieved.Date, retrieved.Time)
		}
		if retrieved.MerchLat != tx.MerchLat {
			t.Errorf("expected MerchLat %v, got %v", tx.MerchLat, retrieved.MerchLat)
		}
		if retrieved.TenantID != tenantID {
			t.Errorf("expected TenantID %s, got %s", tenantID, retrieved.TenantID)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		otherTenant := "tenant-002"

		// Try to get tx from different tenant
		_, err := repo.GetTransaction(ctx, otherTenant, "tx-001")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound for different tenant, got: %v", err)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		tx := &domain.Transaction{ID: "tx-test"}

		err := repo.SaveTransaction(ctx, "", tx)
		if err == nil {
			t.Error("expected error for empty tenantID")
		}

		_, err = repo.GetTransaction(ctx, "", "tx-001")
		if err == nil {
			t.Error("expected error for empty tenantID")
		}
	})

	t.Run("CountTransactionsSince", func(t *testing.T) {
		tx2 := &domain.Transaction{
			ID:        "tx-002",
			Amount:    35.00,
			Date:      "2024-03-15",
			Time:      "15:00:00",
			Lat:       40.7,
			Long:      -74.0,
			MerchLat:  40.71,
			MerchLong: -74.01,
			CreatedAt: time.Now().UTC(),
		}

		if err := repo.SaveTransaction(ctx, tenantID, tx2); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}

		count, err := repo.CountTransactionsSince(ctx, tenantID, time.Now().Add(-1*time.Hour))
		if err != nil {
			t.Fatalf("CountTransactionsSince failed: %v", err)
		}
		if count != 2 {
			t.Errorf("expected 2 transactions, got %d", count)
		}

		count, err = repo.CountTransactionsSince(ctx, tenantID, time.Now().Add(1*time.Hour))
		if err != nil {
			t.Fatalf("CountTransactionsSince failed: %v", err)
		}
		if count != 0 {
			t.Errorf("expected 0 future transactions, got %d", count)
		}
	})

	t.Run("SaveAndGetScore", func(t *testing.T) {
		score := &domain.ScoreResult{
			ID:          "score-001",
			TxID:        "tx-001",
			Status:      domain.StatusFlagged,
			Probability: 3.2e-9,
			Confidence:  0.87,
			Threshold:   1.5e-6,
			Calibrated:  true,
			Timestamp:   time.Now().UTC(),
			Metadata:    domain.ScoreMetadata{TraceID: "trace-001", TotalMs: 4},
		}

		if err := repo.SaveScore(ctx, tenantID, score); err != nil {
			t.Fatalf("SaveScore failed: %v", err)
		}

		retrieved, err := repo.GetScore(ctx, tenantID, score.ID)
		if err != nil {
			t.Fatalf("GetScore failed: %v", err)
		}

		if retrieved.ID != score.ID {
			t.Errorf("expected ID %s, got %s", score.ID, retrieved.ID)
		}
		if retrieved.Probability != score.Probability {
			t.Errorf("expected Probability %v, got %v", score.Probability, retrieved.Probability)
		}
		if retrieved.Status != score.Status {
			t.Errorf("expected Status %s, got %s", score.Status, retrieved.Status)
		}
		if !retrieved.Calibrated {
			t.Error("expected Calibrated true")
		}
		if retrieved.Metadata.TraceID != "trace-001" {
			t.Errorf("expected TraceID trace-001, got %s", retrieved.Metadata.TraceID)
		}
	})

	t.Run("CountScoresSince", func(t *testing.T) {
		since := time.Now().Add(-1 * time.Hour)

		flagged, err := repo.CountScoresSince(ctx, tenantID, domain.StatusFlagged, since)
		if err != nil {
			t.Fatalf("CountScoresSince failed: %v", err)
		}
		if flagged != 1 {
			t.Errorf("expected 1 flagged score, got %d", flagged)
		}

		all, err := repo.CountScoresSince(ctx, tenantID, "", since)
		if err != nil {
			t.Fatalf("CountScoresSince failed: %v", err)
		}
		if all != 1 {
			t.Errorf("expected 1 score in total, got %d", all)
		}
	})

	t.Run("AlertPolicyLifecycle", func(t *testing.T) {
		policy := &domain.AlertPolicy{
			ID:         "policy-001",
			Name:       "suppress small amounts",
			Version:    "1.0",
			Expression: `amount < 5.0`,
			Action:     domain.PolicyActionSuppress,
			Enabled:    true,
		}

		if err := repo.SaveAlertPolicy(ctx, tenantID, policy); err != nil {
			t.Fatalf("SaveAlertPolicy failed: %v", err)
		}

		retrieved, err := repo.GetAlertPolicy(ctx, tenantID, policy.ID)
		if err != nil {
			t.Fatalf("GetAlertPolicy failed: %v", err)
		}
		if retrieved.Expression != policy.Expression {
			t.Errorf("expected Expression %q, got %q", policy.Expression, retrieved.Expression)
		}
		if retrieved.Action != domain.PolicyActionSuppress {
			t.Errorf("expected Action suppress, got %s", retrieved.Action)
		}

		policies, err := repo.ListAlertPolicies(ctx, tenantID)
		if err != nil {
			t.Fatalf("ListAlertPolicies failed: %v", err)
		}
		if len(policies) != 1 {
			t.Errorf("expected 1 policy, got %d", len(policies))
		}

		if err := repo.DeleteAlertPolicy(ctx, tenantID, policy.ID); err != nil {
			t.Fatalf("DeleteAlertPolicy failed: %v", err)
		}
		if _, err := repo.GetAlertPolicy(ctx, tenantID, policy.ID); err != ErrNotFound {
			t.Errorf("expected ErrNotFound after delete, got: %v", err)
		}
		if err := repo.DeleteAlertPolicy(ctx, tenantID, "nonexistent"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound for unknown policy, got: %v", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := repo.GetTransaction(ctx, tenantID, "nonexistent")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}

		_, err = repo.GetScore(ctx, tenantID, "nonexistent")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	cfg := domain.RepositoryConfig{
		Driver: "mysql",
	}

	_, err := New(cfg)
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		result := repo.rebind(tt.input)
		if result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
