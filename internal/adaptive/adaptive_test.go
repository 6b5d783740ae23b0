package adaptive

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/opensource-finance/harrier/internal/detector"
	"github.com/opensource-finance/harrier/internal/domain"
)

func normalTx(r *rand.Rand) domain.Transaction {
	tx := domain.Transaction{
		Amount:    20 + r.Float64()*60,
		Date:      "2024-03-11",
		Time:      "13:10:00",
		Lat:       40 + r.Float64(),
		Long:      -74 + r.Float64(),
		Category:  "grocery_pos",
		Gender:    "F",
		BirthDate: "1985-01-15",
		CityPop:   50000 + r.Float64()*10000,
	}
	tx.MerchLat = tx.Lat + r.Float64()*0.05
	tx.MerchLong = tx.Long + r.Float64()*0.05
	return tx
}

func fraudTx(r *rand.Rand) domain.Transaction {
	tx := normalTx(r)
	tx.Amount = 2500 + r.Float64()*500
	tx.Time = "03:30:00"
	tx.MerchLat = tx.Lat + 9
	tx.MerchLong = tx.Long + 9
	return tx
}

func trainedBase(t *testing.T) *detector.Detector {
	t.Helper()
	r := rand.New(rand.NewSource(42))
	rows := make([]domain.LabeledTransaction, 0, 300)
	for i := 0; i < 300; i++ {
		if i%10 == 0 {
			rows = append(rows, domain.LabeledTransaction{Transaction: fraudTx(r), IsFraud: true})
		} else {
			rows = append(rows, domain.LabeledTransaction{Transaction: normalTx(r), IsFraud: false})
		}
	}
	base := detector.New()
	if _, err := base.Train(rows); err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	return base
}

func TestUntrainedBase(t *testing.T) {
	d, err := New(detector.New(), DefaultConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	tx := normalTx(rand.New(rand.NewSource(1)))
	if _, err := d.Process(&tx); !errors.Is(err, detector.ErrUntrained) {
		t.Fatalf("err = %v, want ErrUntrained", err)
	}
	if s := d.Stats(); s.Failures != 1 {
		t.Errorf("failures = %d, want 1", s.Failures)
	}
}

func TestInitialThresholdMultiplier(t *testing.T) {
	base := trainedBase(t)
	trained, _ := base.Threshold()

	cfg := DefaultConfig()
	cfg.ThresholdMultiplier = 10
	d, err := New(base, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// The threshold seeds from the trained cutoff on first use.
	tx := normalTx(rand.New(rand.NewSource(1)))
	res, err := d.Process(&tx)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if res.Threshold != trained*10 {
		t.Errorf("starting threshold = %v, want %v", res.Threshold, trained*10)
	}
	if got := d.Threshold(); got != trained*10 {
		t.Errorf("Threshold() = %v, want %v", got, trained*10)
	}
}

func TestCalibration(t *testing.T) {
	base := trainedBase(t)
	cfg := DefaultConfig()
	d, err := New(base, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	r := rand.New(rand.NewSource(7))
	txs := make([]domain.Transaction, cfg.CalibrationSize)
	scores := make([]float64, cfg.CalibrationSize)
	for i := range txs {
		txs[i] = normalTx(r)
		row, err := base.PredictOne(&txs[i])
		if err != nil {
			t.Fatalf("PredictOne failed: %v", err)
		}
		scores[i] = row.Probability
	}

	for i := 0; i < cfg.CalibrationSize-1; i++ {
		res, err := d.Process(&txs[i])
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}
		if res.Calibrated {
			t.Fatalf("calibrated after %d items, want %d", i+1, cfg.CalibrationSize)
		}
	}

	res, err := d.Process(&txs[cfg.CalibrationSize-1])
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !res.Calibrated {
		t.Fatal("not calibrated after the full buffer")
	}

	want := percentile(scores, cfg.TargetFlagRate*100)
	if res.Threshold != want {
		t.Errorf("calibrated threshold = %v, want buffer percentile %v", res.Threshold, want)
	}
	if d.Threshold() != want {
		t.Errorf("Threshold() = %v, want %v", d.Threshold(), want)
	}
}

func TestConfidence(t *testing.T) {
	base := trainedBase(t)
	d, err := New(base, DefaultConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// Seed the threshold from the trained cutoff.
	tx := normalTx(rand.New(rand.NewSource(1)))
	if _, err := d.Process(&tx); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	thr := d.Threshold()

	t.Run("zero at the threshold", func(t *testing.T) {
		if c := d.confidence(thr); c != 0 {
			t.Errorf("confidence at threshold = %v, want 0", c)
		}
	})

	t.Run("grows with log distance", func(t *testing.T) {
		near := d.confidence(thr / 2)
		far := d.confidence(thr / 100)
		if !(far > near) {
			t.Errorf("confidence not increasing: near=%v far=%v", near, far)
		}
	})

	t.Run("two decades saturate", func(t *testing.T) {
		if c := d.confidence(thr / 101); c != 1 {
			t.Errorf("confidence = %v, want clamp to 1", c)
		}
		if c := d.confidence(0); c != 1 {
			t.Errorf("confidence at underflow = %v, want 1", c)
		}
	})
}

func TestFlagGate(t *testing.T) {
	base := trainedBase(t)
	cfg := DefaultConfig()
	d, err := New(base, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// Calibrate on normal traffic first.
	r := rand.New(rand.NewSource(11))
	for i := 0; i < cfg.CalibrationSize; i++ {
		tx := normalTx(r)
		if _, err := d.Process(&tx); err != nil {
			t.Fatalf("Process failed: %v", err)
		}
	}

	t.Run("obvious fraud is flagged", func(t *testing.T) {
		tx := fraudTx(r)
		res, err := d.Process(&tx)
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}
		if !res.Flagged {
			t.Errorf("fraud not flagged: %+v", res)
		}
		if res.Probability >= res.Threshold {
			t.Errorf("probability %v not below threshold %v", res.Probability, res.Threshold)
		}
		if res.Confidence < cfg.MinConfidence {
			t.Errorf("confidence %v below gate %v", res.Confidence, cfg.MinConfidence)
		}
	})

	t.Run("score below threshold but near it is not flagged", func(t *testing.T) {
		// A score just under the cutoff has near-zero confidence, so the
		// two-part gate holds it back.
		thr := d.Threshold()
		p := thr * 0.99
		conf := d.confidence(p)
		if conf >= cfg.MinConfidence {
			t.Fatalf("test premise broken: confidence %v at 1%% below threshold", conf)
		}
		if p < thr && conf >= cfg.MinConfidence {
			t.Error("gate would flag a low-confidence score")
		}
	})
}

func TestRecalibration(t *testing.T) {
	base := trainedBase(t)
	cfg := DefaultConfig()
	d, err := New(base, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// Calibrate on normal traffic, then shift the stream to heavy fraud.
	// The empirical flag rate blows past target + tolerance, so the next
	// interval boundary must pull the threshold toward the new traffic.
	r := rand.New(rand.NewSource(13))
	for i := 0; i < cfg.CalibrationSize; i++ {
		tx := normalTx(r)
		if _, err := d.Process(&tx); err != nil {
			t.Fatalf("Process failed: %v", err)
		}
	}
	before := d.Threshold()

	for i := 0; i < 150; i++ {
		tx := fraudTx(r)
		if _, err := d.Process(&tx); err != nil {
			t.Fatalf("Process failed: %v", err)
		}
	}
	after := d.Threshold()
	if !(after < before) {
		t.Errorf("threshold did not drop under fraud-heavy traffic: before=%v after=%v", before, after)
	}

	stats := d.Stats()
	if !stats.Calibrated {
		t.Error("stats report uncalibrated")
	}
	if stats.Processed != uint64(cfg.CalibrationSize+150) {
		t.Errorf("processed = %d, want %d", stats.Processed, cfg.CalibrationSize+150)
	}
}

func TestStatsCounters(t *testing.T) {
	base := trainedBase(t)
	d, err := New(base, DefaultConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	r := rand.New(rand.NewSource(17))
	for i := 0; i < 10; i++ {
		tx := normalTx(r)
		if _, err := d.Process(&tx); err != nil {
			t.Fatalf("Process failed: %v", err)
		}
	}
	bad := domain.Transaction{} // missing date
	if _, err := d.Process(&bad); err == nil {
		t.Fatal("expected failure for empty transaction")
	}
	d.RecordFailure()

	s := d.Stats()
	if s.Processed != 10 {
		t.Errorf("processed = %d, want 10", s.Processed)
	}
	if s.Failures != 2 {
		t.Errorf("failures = %d, want 2", s.Failures)
	}
	if s.FlagRate != float64(s.Flagged)/float64(s.Processed) {
		t.Errorf("flag rate %v inconsistent with counters", s.FlagRate)
	}
}

func TestPercentileMatchesLinearInterpolation(t *testing.T) {
	vals := []float64{10, 20, 30, 40}
	// rank = 0.15 * 3 = 0.45 -> 10 + 0.45*10
	if got := percentile(vals, 15); math.Abs(got-14.5) > 1e-12 {
		t.Errorf("percentile(15) = %v, want 14.5", got)
	}
	if got := percentile(vals, 100); got != 40 {
		t.Errorf("percentile(100) = %v, want 40", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Errorf("percentile(empty) = %v, want 0", got)
	}
}
