package domain

import (
	"time"
)

// ScoreResult is the complete scoring outcome for a single transaction.
type ScoreResult struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	TxID     string `json:"txId"`

	// Status is "FLAG" (anomalous) or "PASS".
	Status string `json:"status"`

	// Probability is the raw density under the fitted Gaussian model.
	// Lower values are more anomalous.
	Probability float64 `json:"probability"`

	// Confidence is the normalized log-distance of the probability from
	// the active threshold, in [0, 1].
	Confidence float64 `json:"confidence"`

	// Threshold is the cutoff that was active when this score was produced.
	Threshold float64 `json:"threshold"`

	// Calibrated reports whether the adaptive detector had completed its
	// initial calibration at scoring time.
	Calibrated bool `json:"calibrated"`

	Timestamp time.Time `json:"timestamp"`

	// Processing metadata
	Metadata ScoreMetadata `json:"metadata"`
}

// ScoreMetadata contains processing information.
type ScoreMetadata struct {
	TraceID       string `json:"traceId"`
	FeatureMs     int64  `json:"featureMs"`
	ScoreMs       int64  `json:"scoreMs"`
	TotalMs       int64  `json:"totalMs"`
	EngineVersion string `json:"engineVersion"`
}

// Score status constants
const (
	StatusFlagged = "FLAG" // classified anomalous
	StatusPassed  = "PASS" // classified legitimate
)

// RowFailure describes a row in a batch that could not be scored.
type RowFailure struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// BatchReport aggregates per-row outcomes of a batch predict. Rows that
// fail feature extraction are reported, not raised, so one bad record
// never aborts the batch.
type BatchReport struct {
	Results  []*ScoreResult `json:"results"`
	Failures []RowFailure   `json:"failures,omitempty"`
}
