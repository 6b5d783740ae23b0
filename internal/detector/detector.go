// Package detector implements offline training, batch scoring and
// persistence of the Gaussian fraud model.
package detector

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/feature"
	"github.com/opensource-finance/harrier/internal/gaussian"
	"github.com/opensource-finance/harrier/internal/threshold"
)

var (
	// ErrUntrained indicates a scoring or evaluation call before Train or
	// a successful Load.
	ErrUntrained = errors.New("detector has not been trained")

	// ErrNoTrainingData indicates an empty training set.
	ErrNoTrainingData = errors.New("no training rows")

	// ErrNoNormalRows indicates a training set where every row is fraud,
	// leaving nothing to fit the density model on.
	ErrNoNormalRows = errors.New("no non-fraud rows to fit on")
)

// TrainingSummary reports the fit achieved on the training set.
type TrainingSummary struct {
	Samples   int     `json:"samples"`
	Features  int     `json:"features"`
	FraudRate float64 `json:"fraudRate"`
	Threshold float64 `json:"threshold"`
	F1        float64 `json:"f1"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
}

// EvalReport holds held-out evaluation metrics.
type EvalReport struct {
	Samples   int     `json:"samples"`
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	TP        int     `json:"tp"`
	FP        int     `json:"fp"`
	TN        int     `json:"tn"`
	FN        int     `json:"fn"`
}

// RowResult is the per-row outcome of a batch predict. Rows that fail
// feature extraction carry Err instead of aborting the batch.
type RowResult struct {
	Index       int
	Flagged     bool
	Probability float64
	Err         error
}

// trainedState is the immutable snapshot swapped atomically on Train and
// Load. Readers take the pointer once and never see a half-updated model.
type trainedState struct {
	builder   *feature.Builder
	model     *gaussian.Model
	normMean  []float64
	normStd   []float64
	threshold float64
	summary   TrainingSummary
}

// Detector trains a Gaussian density model over engineered transaction
// features and applies it for batch prediction.
type Detector struct {
	mu    sync.RWMutex
	state *trainedState
}

// New returns an untrained detector.
func New() *Detector {
	return &Detector{}
}

// Trained reports whether the detector holds a usable model.
func (d *Detector) Trained() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state != nil
}

// Threshold returns the trained decision threshold.
func (d *Detector) Threshold() (float64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.state == nil {
		return 0, ErrUntrained
	}
	return d.state.threshold, nil
}

// Summary returns the training summary of the active model.
func (d *Detector) Summary() (TrainingSummary, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.state == nil {
		return TrainingSummary{}, ErrUntrained
	}
	return d.state.summary, nil
}

// Train fits the full pipeline on labeled rows: a fresh feature fit, a
// normalization layer derived from this call's matrix, a Gaussian density
// fitted on the non-fraud rows only, and a threshold optimized over the
// densities of all rows. Previous state is discarded wholesale.
func (d *Detector) Train(rows []domain.LabeledTransaction) (TrainingSummary, error) {
	if len(rows) == 0 {
		return TrainingSummary{}, ErrNoTrainingData
	}

	txs := make([]domain.Transaction, len(rows))
	labels := make([]bool, len(rows))
	fraudCount := 0
	for i := range rows {
		txs[i] = rows[i].Transaction
		labels[i] = rows[i].IsFraud
		if rows[i].IsFraud {
			fraudCount++
		}
	}
	if fraudCount == len(rows) {
		return TrainingSummary{}, ErrNoNormalRows
	}

	builder := feature.NewBuilder()
	X, err := builder.Fit(txs)
	if err != nil {
		return TrainingSummary{}, fmt.Errorf("feature fit: %w", err)
	}
	nFeatures := len(builder.Columns)

	normMean, normStd := normalizationStats(X)
	for i := range X {
		X[i] = normalize(X[i], normMean, normStd)
	}

	normal := make([][]float64, 0, len(X)-fraudCount)
	for i := range X {
		if !labels[i] {
			normal = append(normal, X[i])
		}
	}
	model, err := gaussian.Fit(normal)
	if err != nil {
		return TrainingSummary{}, fmt.Errorf("gaussian fit: %w", err)
	}

	probs, err := model.Density(X)
	if err != nil {
		return TrainingSummary{}, fmt.Errorf("training densities: %w", err)
	}
	opt, err := threshold.Optimal(labels, probs)
	if err != nil {
		return TrainingSummary{}, fmt.Errorf("threshold search: %w", err)
	}

	summary := TrainingSummary{
		Samples:   len(rows),
		Features:  nFeatures,
		FraudRate: float64(fraudCount) / float64(len(rows)),
		Threshold: opt.Epsilon,
		F1:        opt.F1,
		Precision: opt.Precision,
		Recall:    opt.Recall,
	}

	d.mu.Lock()
	d.state = &trainedState{
		builder:   builder,
		model:     model,
		normMean:  normMean,
		normStd:   normStd,
		threshold: opt.Epsilon,
		summary:   summary,
	}
	d.mu.Unlock()

	return summary, nil
}

// Predict scores rows with the stored pipeline. Rows whose features cannot
// be derived are reported in their RowResult; the batch never aborts on a
// bad row.
func (d *Detector) Predict(txs []domain.Transaction) ([]RowResult, error) {
	d.mu.RLock()
	st := d.state
	d.mu.RUnlock()
	if st == nil {
		return nil, ErrUntrained
	}

	results := make([]RowResult, len(txs))
	for i := range txs {
		results[i] = st.scoreOne(i, &txs[i])
	}
	return results, nil
}

// PredictOne scores a single transaction.
func (d *Detector) PredictOne(tx *domain.Transaction) (RowResult, error) {
	d.mu.RLock()
	st := d.state
	d.mu.RUnlock()
	if st == nil {
		return RowResult{}, ErrUntrained
	}
	res := st.scoreOne(0, tx)
	return res, res.Err
}

// Evaluate scores labeled rows and reports accuracy, precision, recall and
// F1 against the ground truth. Read-only: no model state changes. Rows that
// fail feature extraction are excluded from the counts.
func (d *Detector) Evaluate(rows []domain.LabeledTransaction) (EvalReport, error) {
	d.mu.RLock()
	st := d.state
	d.mu.RUnlock()
	if st == nil {
		return EvalReport{}, ErrUntrained
	}

	var report EvalReport
	for i := range rows {
		res := st.scoreOne(i, &rows[i].Transaction)
		if res.Err != nil {
			continue
		}
		report.Samples++
		switch {
		case res.Flagged && rows[i].IsFraud:
			report.TP++
		case res.Flagged && !rows[i].IsFraud:
			report.FP++
		case !res.Flagged && rows[i].IsFraud:
			report.FN++
		default:
			report.TN++
		}
	}
	if report.Samples > 0 {
		report.Accuracy = float64(report.TP+report.TN) / float64(report.Samples)
	}
	report.Precision, report.Recall, report.F1 = threshold.Metrics(report.TP, report.FP, report.FN)
	return report, nil
}

func (st *trainedState) scoreOne(index int, tx *domain.Transaction) RowResult {
	vec, err := st.builder.Transform(tx)
	if err != nil {
		return RowResult{Index: index, Err: err}
	}
	vec = normalize(vec, st.normMean, st.normStd)
	p, err := st.model.DensityOne(vec)
	if err != nil {
		return RowResult{Index: index, Err: err}
	}
	return RowResult{
		Index:       index,
		Flagged:     p < st.threshold,
		Probability: p,
	}
}

// normalizationStats returns per-column mean and standard deviation.
// Zero-variance columns get a unit deviation so they normalize to 0 instead
// of NaN.
func normalizationStats(X [][]float64) (mean, std []float64) {
	n := len(X[0])
	mean = make([]float64, n)
	std = make([]float64, n)
	col := make([]float64, len(X))
	for j := 0; j < n; j++ {
		for i := range X {
			col[i] = X[i][j]
		}
		m, s := stat.MeanStdDev(col, nil)
		if s == 0 || math.IsNaN(s) {
			s = 1
		}
		mean[j] = m
		std[j] = s
	}
	return mean, std
}

// normalize z-scores a vector, clamping any non-finite result to 0.
func normalize(vec, mean, std []float64) []float64 {
	out := make([]float64, len(vec))
	for j := range vec {
		z := (vec[j] - mean[j]) / std[j]
		if math.IsNaN(z) || math.IsInf(z, 0) {
			z = 0
		}
		out[j] = z
	}
	return out
}
