// Package scoring runs the full per-transaction decision pipeline:
// adaptive scoring, alert policy evaluation, persistence, caching, and
// event publication. Both the synchronous API path and the async worker
// share it.
package scoring

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/harrier/internal/adaptive"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/feature"
	"github.com/opensource-finance/harrier/internal/policy"
	"github.com/opensource-finance/harrier/internal/stats"
)

// EngineVersion identifies the scoring engine in result metadata.
const EngineVersion = "harrier-1.0"

// Pipeline wires the adaptive detector to the surrounding services.
// Repository, cache, bus, policy engine, and stats are all optional:
// a nil component is skipped, so the pipeline degrades to pure scoring.
type Pipeline struct {
	det      *adaptive.Detector
	policies *policy.Engine
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	stats    *stats.Service

	// ScoreTTL bounds how long score results stay cached.
	ScoreTTL time.Duration
}

// NewPipeline creates a scoring pipeline.
func NewPipeline(det *adaptive.Detector, policies *policy.Engine, repo domain.Repository, cache domain.Cache, bus domain.EventBus, statsSvc *stats.Service) *Pipeline {
	return &Pipeline{
		det:      det,
		policies: policies,
		repo:     repo,
		cache:    cache,
		bus:      bus,
		stats:    statsSvc,
		ScoreTTL: time.Hour,
	}
}

// Input carries one transaction through the pipeline.
type Input struct {
	TenantID  string
	TraceID   string
	Tx        *domain.Transaction
	StartTime time.Time
}

// Outcome is the pipeline result: the persisted score plus the policy
// decision that was applied to it.
type Outcome struct {
	Score    *domain.ScoreResult
	Decision policy.Decision

	// Alerted is true when the score was published to the alert topic.
	Alerted bool
}

// Score runs one transaction through the full pipeline. Persistence,
// caching, and publication failures are logged but do not fail the
// call; the scoring result is authoritative as soon as it exists.
func (p *Pipeline) Score(ctx context.Context, input *Input) (*Outcome, error) {
	start := input.StartTime
	if start.IsZero() {
		start = time.Now()
	}

	scoreStart := time.Now()
	res, err := p.det.Process(input.Tx)
	if err != nil {
		return nil, err
	}
	scoreMs := time.Since(scoreStart).Milliseconds()

	status := domain.StatusPassed
	if res.Flagged {
		status = domain.StatusFlagged
	}

	score := &domain.ScoreResult{
		ID:          uuid.New().String(),
		TenantID:    input.TenantID,
		TxID:        input.Tx.ID,
		Status:      status,
		Probability: res.Probability,
		Confidence:  res.Confidence,
		Threshold:   res.Threshold,
		Calibrated:  res.Calibrated,
		Timestamp:   time.Now().UTC(),
	}

	outcome := &Outcome{Score: score}

	// Policies only gate flagged transactions.
	if res.Flagged && p.policies != nil {
		outcome.Decision = p.policies.Apply(&policy.Input{
			Score:      res.Probability,
			Confidence: res.Confidence,
			Threshold:  res.Threshold,
			Amount:     input.Tx.Amount,
			Category:   input.Tx.Category,
			Hour:       feature.HourOf(input.Tx.Time),
		})
	}

	score.Metadata = domain.ScoreMetadata{
		TraceID:       input.TraceID,
		ScoreMs:       scoreMs,
		TotalMs:       time.Since(start).Milliseconds(),
		EngineVersion: EngineVersion,
	}

	p.persist(ctx, input.TenantID, input.Tx, score)
	p.publish(ctx, input.TenantID, score, res, outcome)

	return outcome, nil
}

func (p *Pipeline) persist(ctx context.Context, tenantID string, tx *domain.Transaction, score *domain.ScoreResult) {
	if p.repo != nil {
		if err := p.repo.SaveTransaction(ctx, tenantID, tx); err != nil {
			slog.Error("failed to save transaction",
				"tx_id", tx.ID,
				"error", err,
			)
		}
		if err := p.repo.SaveScore(ctx, tenantID, score); err != nil {
			slog.Error("failed to save score",
				"tx_id", tx.ID,
				"error", err,
			)
		}
	}

	if p.cache != nil {
		summary := &domain.ScoreSummary{
			TxID:        score.TxID,
			Status:      score.Status,
			Probability: score.Probability,
			Confidence:  score.Confidence,
			Threshold:   score.Threshold,
			Timestamp:   score.Timestamp,
		}
		if err := p.cache.SetScore(ctx, tenantID, score.ID, summary, p.ScoreTTL); err != nil {
			slog.Warn("failed to cache score",
				"score_id", score.ID,
				"error", err,
			)
		}
	}
}

func (p *Pipeline) publish(ctx context.Context, tenantID string, score *domain.ScoreResult, res adaptive.Result, outcome *Outcome) {
	if p.bus == nil {
		return
	}

	payload, err := json.Marshal(score)
	if err != nil {
		slog.Error("failed to marshal score", "score_id", score.ID, "error", err)
		return
	}

	if err := p.bus.Publish(ctx, tenantID, domain.TopicScore, payload); err != nil {
		slog.Error("failed to publish score",
			"tx_id", score.TxID,
			"error", err,
		)
	}

	if !res.Flagged || outcome.Decision.Suppressed {
		return
	}

	if err := p.bus.Publish(ctx, tenantID, domain.TopicAlert, payload); err != nil {
		slog.Error("failed to publish alert",
			"tx_id", score.TxID,
			"error", err,
		)
		return
	}
	outcome.Alerted = true

	if p.stats != nil {
		if _, err := p.stats.RecordFlag(ctx, tenantID); err != nil {
			slog.Warn("failed to bump flag counter", "error", err)
		}
	}
}
