package gaussian

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

// synthetic two-feature cluster around (5, -3) with mild correlation.
func sampleCluster(n int, seed int64) [][]float64 {
	r := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	for i := range X {
		a := r.NormFloat64()
		b := r.NormFloat64()
		X[i] = []float64{5 + a, -3 + 0.5*a + 0.8*b}
	}
	return X
}

func TestFitAndDensity(t *testing.T) {
	X := sampleCluster(500, 1)
	model, err := Fit(X)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	t.Run("density peaks at mean", func(t *testing.T) {
		mean := model.Mean()
		atMean, err := model.DensityOne(mean)
		if err != nil {
			t.Fatalf("DensityOne failed: %v", err)
		}
		if atMean <= 0 {
			t.Fatalf("density at mean = %v, want > 0", atMean)
		}
		offsets := [][]float64{
			{mean[0] + 1, mean[1]},
			{mean[0], mean[1] + 1},
			{mean[0] - 2, mean[1] + 2},
		}
		for _, p := range offsets {
			d, err := model.DensityOne(p)
			if err != nil {
				t.Fatalf("DensityOne failed: %v", err)
			}
			if d >= atMean {
				t.Errorf("density at %v = %v, want below peak %v", p, d, atMean)
			}
		}
	})

	t.Run("far points underflow toward zero", func(t *testing.T) {
		d, err := model.DensityOne([]float64{1e6, -1e6})
		if err != nil {
			t.Fatalf("DensityOne failed: %v", err)
		}
		if d != 0 {
			t.Errorf("density at extreme point = %v, want underflow to 0", d)
		}
	})

	t.Run("batch matches single-point scoring", func(t *testing.T) {
		probe := X[:10]
		batch, err := model.Density(probe)
		if err != nil {
			t.Fatalf("Density failed: %v", err)
		}
		for i, row := range probe {
			single, err := model.DensityOne(row)
			if err != nil {
				t.Fatalf("DensityOne failed: %v", err)
			}
			if batch[i] != single {
				t.Errorf("row %d: batch=%v single=%v", i, batch[i], single)
			}
		}
	})
}

func TestFitConstantFeature(t *testing.T) {
	// One feature has zero variance; regularization must keep the matrix
	// factorizable and densities finite.
	X := make([][]float64, 100)
	r := rand.New(rand.NewSource(2))
	for i := range X {
		X[i] = []float64{r.NormFloat64(), 7.0}
	}

	model, err := Fit(X)
	if err != nil {
		t.Fatalf("Fit failed on constant feature: %v", err)
	}
	d, err := model.DensityOne([]float64{0, 7})
	if err != nil {
		t.Fatalf("DensityOne failed: %v", err)
	}
	if math.IsNaN(d) || math.IsInf(d, 0) {
		t.Fatalf("density = %v, want finite", d)
	}
	if d <= 0 {
		t.Fatalf("density = %v, want > 0 near the cluster", d)
	}
}

func TestFitErrors(t *testing.T) {
	t.Run("empty matrix", func(t *testing.T) {
		if _, err := Fit(nil); !errors.Is(err, ErrDegenerateCovariance) {
			t.Fatalf("err = %v, want ErrDegenerateCovariance", err)
		}
	})

	t.Run("fewer samples than features", func(t *testing.T) {
		X := [][]float64{
			{1, 2, 3},
			{4, 5, 6},
		}
		if _, err := Fit(X); !errors.Is(err, ErrDegenerateCovariance) {
			t.Fatalf("err = %v, want ErrDegenerateCovariance", err)
		}
	})

	t.Run("ragged rows", func(t *testing.T) {
		X := [][]float64{{1, 2}, {3}, {4, 5}, {6, 7}}
		if _, err := Fit(X); err == nil {
			t.Fatal("expected error for ragged input")
		}
	})
}

func TestDensityDimensionMismatch(t *testing.T) {
	model, err := Fit(sampleCluster(50, 3))
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if _, err := model.DensityOne([]float64{1, 2, 3}); err == nil {
		t.Fatal("expected error for wrong dimension")
	}
}

func TestReconstructedModelMatches(t *testing.T) {
	X := sampleCluster(300, 4)
	fitted, err := Fit(X)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	restored, err := New(fitted.Mean(), fitted.Covariance())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for _, x := range X[:20] {
		want, err := fitted.DensityOne(x)
		if err != nil {
			t.Fatalf("DensityOne failed: %v", err)
		}
		got, err := restored.DensityOne(x)
		if err != nil {
			t.Fatalf("DensityOne failed: %v", err)
		}
		if got != want {
			t.Errorf("restored density %v, want exactly %v", got, want)
		}
	}
}
