// Package adaptive layers online threshold calibration over a trained
// batch detector. The threshold starts from the trained cutoff, is
// calibrated from the first scores seen in production, and drifts with the
// observed traffic so the flag rate tracks a configured target.
package adaptive

import (
	"errors"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/opensource-finance/harrier/internal/detector"
	"github.com/opensource-finance/harrier/internal/domain"
)

// logFloor keeps log-space confidence defined when a density underflows
// to zero.
const logFloor = 1e-20


// Config controls calibration and flagging behavior.
type Config struct {
	// CalibrationSize is the number of scores collected before the initial
	// calibration completes.
	CalibrationSize int

	// WindowSize is the capacity of the rolling window of recent scores.
	WindowSize int

	// TargetFlagRate is the desired fraction of transactions flagged.
	TargetFlagRate float64

	// MinConfidence is the minimum confidence required to flag.
	MinConfidence float64

	// RecalibrationTolerance is the allowed deviation between the
	// empirical flag rate and the target.
	RecalibrationTolerance float64

	// SmoothingWeight is the fraction of the old threshold kept when
	// recalibration blends in a window-derived candidate.
	SmoothingWeight float64

	// ThresholdMultiplier scales the trained threshold used before the
	// initial calibration completes.
	ThresholdMultiplier float64

	// RecalibrationInterval is the number of processed transactions
	// between recalibration checks.
	RecalibrationInterval int
}

// DefaultConfig returns the standard adaptive settings.
func DefaultConfig() Config {
	return Config{
		CalibrationSize:        50,
		WindowSize:             100,
		TargetFlagRate:         0.15,
		MinConfidence:          0.3,
		RecalibrationTolerance: 0.10,
		SmoothingWeight:        0.7,
		ThresholdMultiplier:    1.0,
		RecalibrationInterval:  100,
	}
}

// FromDomain maps service configuration onto adaptive settings.
func FromDomain(dc domain.DetectorConfig) Config {
	cfg := DefaultConfig()
	if dc.CalibrationSize > 0 {
		cfg.CalibrationSize = dc.CalibrationSize
	}
	if dc.WindowSize > 0 {
		cfg.WindowSize = dc.WindowSize
	}
	if dc.TargetFlagRate > 0 {
		cfg.TargetFlagRate = dc.TargetFlagRate
	}
	if dc.MinConfidence > 0 {
		cfg.MinConfidence = dc.MinConfidence
	}
	if dc.RecalibrationTolerance > 0 {
		cfg.RecalibrationTolerance = dc.RecalibrationTolerance
	}
	if dc.SmoothingWeight > 0 {
		cfg.SmoothingWeight = dc.SmoothingWeight
	}
	if dc.ThresholdMultiplier > 0 {
		cfg.ThresholdMultiplier = dc.ThresholdMultiplier
	}
	if dc.RecalibrationInterval > 0 {
		cfg.RecalibrationInterval = dc.RecalibrationInterval
	}
	return cfg
}

// Result is the adaptive decision for one transaction.
type Result struct {
	Flagged     bool
	Probability float64
	Confidence  float64
	Threshold   float64
	Calibrated  bool
}

// Stats is a snapshot of the detector's running counters.
type Stats struct {
	Processed  uint64  `json:"processed"`
	Flagged    uint64  `json:"flagged"`
	Failures   uint64  `json:"failures"`
	FlagRate   float64 `json:"flagRate"`
	Calibrated bool    `json:"calibrated"`
	Threshold  float64 `json:"threshold"`
	Target     float64 `json:"targetFlagRate"`
}

// Detector wraps a trained batch detector with adaptive thresholding.
// All per-item state transitions happen under one mutex so concurrent
// callers each observe a consistent score/threshold/decision triple.
type Detector struct {
	base *detector.Detector
	cfg  Config

	mu          sync.Mutex
	seeded      bool
	threshold   float64
	calibrated  bool
	calibration []float64

	// rolling window of recent scores and the decisions made on them
	window []float64
	flags  []bool
	next   int
	filled int

	processed uint64
	flagged   uint64
	failures  uint64
}

// New wraps a batch detector. The starting threshold is the trained
// cutoff scaled by the configured multiplier, picked up as soon as the
// base has a model; it is replaced once the initial calibration
// completes. The base may be untrained at construction time (the model
// can arrive later via a reload), in which case Process fails until a
// model is loaded.
func New(base *detector.Detector, cfg Config) (*Detector, error) {
	if cfg.CalibrationSize <= 0 || cfg.WindowSize <= 0 {
		return nil, errors.New("calibration and window sizes must be positive")
	}
	return &Detector{
		base:   base,
		cfg:    cfg,
		window: make([]float64, cfg.WindowSize),
		flags:  make([]bool, cfg.WindowSize),
	}, nil
}

// Process scores one transaction and advances the online state: calibration
// buffering, the flag decision, the rolling window, and the periodic
// recalibration check.
func (d *Detector) Process(tx *domain.Transaction) (Result, error) {
	row, err := d.base.PredictOne(tx)

	d.mu.Lock()
	defer d.mu.Unlock()

	if err != nil {
		d.failures++
		return Result{}, err
	}
	p := row.Probability

	// A successful prediction means the base has a model; seed the
	// threshold from its trained cutoff on first use.
	if !d.seeded {
		if trained, err := d.base.Threshold(); err == nil {
			d.threshold = trained * d.cfg.ThresholdMultiplier
			d.seeded = true
		}
	}

	if !d.calibrated {
		d.calibration = append(d.calibration, p)
		if len(d.calibration) >= d.cfg.CalibrationSize {
			d.threshold = percentile(d.calibration, d.cfg.TargetFlagRate*100)
			d.calibrated = true
			d.calibration = nil
			slog.Info("adaptive calibration complete",
				"threshold", d.threshold,
				"target_rate", d.cfg.TargetFlagRate)
		}
	}

	conf := d.confidence(p)
	flagged := p < d.threshold && conf >= d.cfg.MinConfidence

	d.window[d.next] = p
	d.flags[d.next] = flagged
	d.next = (d.next + 1) % d.cfg.WindowSize
	if d.filled < d.cfg.WindowSize {
		d.filled++
	}

	d.processed++
	if flagged {
		d.flagged++
	}
	if d.calibrated && d.processed%uint64(d.cfg.RecalibrationInterval) == 0 {
		d.recalibrate()
	}

	return Result{
		Flagged:     flagged,
		Probability: p,
		Confidence:  conf,
		Threshold:   d.threshold,
		Calibrated:  d.calibrated,
	}, nil
}

// confidence measures how far a score sits from the threshold in log
// space, normalized so two orders of magnitude map to full confidence.
func (d *Detector) confidence(p float64) float64 {
	dist := math.Abs(math.Log10(p+logFloor) - math.Log10(d.threshold+logFloor))
	c := dist / 2
	if c > 1 {
		return 1
	}
	return c
}

// recalibrate nudges the threshold toward the window's target percentile
// when the empirical flag rate has drifted out of tolerance. Requires at
// least half a window of samples so one burst cannot whipsaw the cutoff.
func (d *Detector) recalibrate() {
	if d.filled < d.cfg.WindowSize/2 {
		return
	}

	flagCount := 0
	for i := 0; i < d.filled; i++ {
		if d.flags[i] {
			flagCount++
		}
	}
	rate := float64(flagCount) / float64(d.filled)
	if math.Abs(rate-d.cfg.TargetFlagRate) <= d.cfg.RecalibrationTolerance {
		return
	}

	candidate := percentile(d.window[:d.filled], d.cfg.TargetFlagRate*100)
	old := d.threshold
	w := d.cfg.SmoothingWeight
	d.threshold = w*old + (1-w)*candidate

	slog.Info("adaptive threshold recalibrated",
		"old_threshold", old,
		"new_threshold", d.threshold,
		"empirical_rate", rate,
		"target_rate", d.cfg.TargetFlagRate)
}

// RecordFailure counts a scoring failure that happened outside Process,
// e.g. a payload that never reached feature extraction.
func (d *Detector) RecordFailure() {
	d.mu.Lock()
	d.failures++
	d.mu.Unlock()
}

// Threshold returns the currently active cutoff.
func (d *Detector) Threshold() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.threshold
}

// Calibrated reports whether the initial calibration has completed.
func (d *Detector) Calibrated() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calibrated
}

// Stats returns a snapshot of the running counters. Counters are monotonic
// for the life of the process.
func (d *Detector) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := Stats{
		Processed:  d.processed,
		Flagged:    d.flagged,
		Failures:   d.failures,
		Calibrated: d.calibrated,
		Threshold:  d.threshold,
		Target:     d.cfg.TargetFlagRate,
	}
	if d.processed > 0 {
		s.FlagRate = float64(d.flagged) / float64(d.processed)
	}
	return s
}

// percentile returns the p-th percentile of values using linear
// interpolation between closest ranks.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
