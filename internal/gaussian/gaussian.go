// Package gaussian implements the multivariate Gaussian density model used
// for anomaly scoring.
package gaussian

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// regularization is added to the covariance diagonal before factorization so
// near-singular matrices (constant features, collinear features) remain
// positive definite.
const regularization = 1e-6

// ErrDegenerateCovariance indicates the sample covariance cannot support a
// density model: too few rows, or a matrix that fails to factorize even
// after regularization.
var ErrDegenerateCovariance = errors.New("degenerate covariance matrix")

// Model holds the fitted parameters of a multivariate normal distribution.
// The Cholesky factorization and log-determinant of the regularized
// covariance are computed once and cached for scoring.
type Model struct {
	mean []float64
	cov  *mat.SymDense

	chol   mat.Cholesky
	logDet float64
	dim    int
}

// Fit estimates the mean vector and unbiased sample covariance from X,
// where rows are samples and columns are features. The number of rows must
// exceed the number of features or the covariance is rank-deficient.
func Fit(X [][]float64) (*Model, error) {
	m := len(X)
	if m == 0 {
		return nil, fmt.Errorf("%w: empty training matrix", ErrDegenerateCovariance)
	}
	n := len(X[0])
	if n == 0 {
		return nil, fmt.Errorf("%w: no features", ErrDegenerateCovariance)
	}
	if m <= n {
		return nil, fmt.Errorf("%w: %d samples for %d features", ErrDegenerateCovariance, m, n)
	}

	data := mat.NewDense(m, n, nil)
	for i, row := range X {
		if len(row) != n {
			return nil, fmt.Errorf("row %d has %d features, want %d", i, len(row), n)
		}
		data.SetRow(i, row)
	}

	mean := make([]float64, n)
	col := make([]float64, m)
	for j := 0; j < n; j++ {
		mat.Col(col, j, data)
		mean[j] = stat.Mean(col, nil)
	}

	cov := mat.NewSymDense(n, nil)
	stat.CovarianceMatrix(cov, data, nil)

	model := &Model{mean: mean, cov: cov, dim: n}
	if err := model.factorize(); err != nil {
		return nil, err
	}
	return model, nil
}

// New reconstructs a model from previously fitted parameters, typically a
// deserialized artifact. cov must be a square matrix matching len(mean).
func New(mean []float64, cov [][]float64) (*Model, error) {
	n := len(mean)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty mean vector", ErrDegenerateCovariance)
	}
	if len(cov) != n {
		return nil, fmt.Errorf("covariance has %d rows, mean has %d entries", len(cov), n)
	}
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		if len(cov[i]) != n {
			return nil, fmt.Errorf("covariance row %d has %d entries, want %d", i, len(cov[i]), n)
		}
		for j := i; j < n; j++ {
			sym.SetSym(i, j, cov[i][j])
		}
	}
	model := &Model{
		mean: append([]float64(nil), mean...),
		cov:  sym,
		dim:  n,
	}
	if err := model.factorize(); err != nil {
		return nil, err
	}
	return model, nil
}

// factorize regularizes the covariance and caches its Cholesky factorization.
// The log-determinant and the inverse both come from the same regularized
// matrix; mixing a raw determinant with a regularized inverse would skew the
// normalization constant.
func (g *Model) factorize() error {
	reg := mat.NewSymDense(g.dim, nil)
	reg.CopySym(g.cov)
	for i := 0; i < g.dim; i++ {
		reg.SetSym(i, i, reg.At(i, i)+regularization)
	}
	if ok := g.chol.Factorize(reg); !ok {
		return fmt.Errorf("%w: not positive definite after regularization", ErrDegenerateCovariance)
	}
	g.logDet = g.chol.LogDet()
	return nil
}

// Density returns p(x) for each row of X under the fitted distribution.
// Densities for points far from the mean may underflow to zero; callers
// compare scores against a learned threshold, never an absolute epsilon.
func (g *Model) Density(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, row := range X {
		p, err := g.DensityOne(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = p
	}
	return out, nil
}

// DensityOne returns p(x) for a single point.
func (g *Model) DensityOne(x []float64) (float64, error) {
	if len(x) != g.dim {
		return 0, fmt.Errorf("point has %d features, model has %d", len(x), g.dim)
	}

	diff := mat.NewVecDense(g.dim, nil)
	for j := range x {
		diff.SetVec(j, x[j]-g.mean[j])
	}

	var solved mat.VecDense
	if err := g.chol.SolveVecTo(&solved, diff); err != nil {
		return 0, fmt.Errorf("covariance solve: %w", err)
	}
	quad := mat.Dot(diff, &solved)

	logP := -0.5 * (float64(g.dim)*math.Log(2*math.Pi) + g.logDet + quad)
	return math.Exp(logP), nil
}

// Dim returns the number of features the model was fitted on.
func (g *Model) Dim() int { return g.dim }

// Mean returns a copy of the fitted mean vector.
func (g *Model) Mean() []float64 {
	return append([]float64(nil), g.mean...)
}

// Covariance returns a copy of the raw (unregularized) sample covariance as
// a row-major matrix, suitable for serialization.
func (g *Model) Covariance() [][]float64 {
	out := make([][]float64, g.dim)
	for i := 0; i < g.dim; i++ {
		out[i] = make([]float64, g.dim)
		for j := 0; j < g.dim; j++ {
			out[i][j] = g.cov.At(i, j)
		}
	}
	return out
}
