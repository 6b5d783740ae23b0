// Package threshold selects density cutoffs from labeled validation scores.
package threshold

import (
	"errors"
)

// gridSteps is the number of candidate cutoffs scanned between the minimum
// and maximum observed score.
const gridSteps = 1000

// ErrNoScores indicates an empty score set.
var ErrNoScores = errors.New("no scores to optimize over")

// Result holds the selected cutoff and the metrics it achieved.
type Result struct {
	Epsilon   float64 `json:"epsilon"`
	F1        float64 `json:"f1"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
}

// Optimal scans a uniform grid of candidate cutoffs over the observed score
// range and returns the one maximizing F1. A score is predicted anomalous
// iff it falls strictly below the cutoff. Ties keep the first (smallest)
// candidate encountered on the ascending scan.
func Optimal(labels []bool, scores []float64) (Result, error) {
	if len(scores) == 0 {
		return Result{}, ErrNoScores
	}
	if len(labels) != len(scores) {
		return Result{}, errors.New("labels and scores length mismatch")
	}

	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}

	if hi == lo {
		// Zero-width range degenerates to a single candidate. No score is
		// strictly below it, so nothing is predicted anomalous.
		p, r, f1 := evaluate(labels, scores, lo)
		return Result{Epsilon: lo, F1: f1, Precision: p, Recall: r}, nil
	}

	var best Result
	step := (hi - lo) / gridSteps
	for i := 0; i < gridSteps; i++ {
		eps := lo + float64(i)*step
		p, r, f1 := evaluate(labels, scores, eps)
		if f1 > best.F1 {
			best = Result{Epsilon: eps, F1: f1, Precision: p, Recall: r}
		}
	}
	return best, nil
}

// Metrics computes precision, recall and F1 from confusion counts. Any
// zero-denominator ratio is defined as 0.
func Metrics(tp, fp, fn int) (precision, recall, f1 float64) {
	if tp+fp > 0 {
		precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		recall = float64(tp) / float64(tp+fn)
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return precision, recall, f1
}

func evaluate(labels []bool, scores []float64, eps float64) (precision, recall, f1 float64) {
	var tp, fp, fn int
	for i, s := range scores {
		predicted := s < eps
		switch {
		case predicted && labels[i]:
			tp++
		case predicted && !labels[i]:
			fp++
		case !predicted && labels[i]:
			fn++
		}
	}
	return Metrics(tp, fp, fn)
}
