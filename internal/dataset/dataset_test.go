package dataset

import (
	"errors"
	"strings"
	"testing"

	"github.com/opensource-finance/harrier/internal/domain"
)

const sampleCSV = `trans_date|trans_time|amt|lat|long|merch_lat|merch_long|category|gender|dob|city_pop|is_fraud
2024-03-15|14:30:00|127.40|40.7128|-74.0060|40.7580|-73.9855|grocery_pos|F|1990-06-01|8400000|0
2024-03-15|03:12:00|2850.00|40.7128|-74.0060|48.85|2.35|shopping_net|M|1985-01-20|8400000|1
2024-03-16|09:05:00|14.99|34.0522|-118.2437|34.10|-118.30|gas_transport|F|1972-11-03|3900000|0
`

func TestRead(t *testing.T) {
	rows, err := Read(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}

	first := rows[0]
	if first.Amount != 127.40 {
		t.Errorf("Amount = %v, want 127.40", first.Amount)
	}
	if first.Date != "2024-03-15" || first.Time != "14:30:00" {
		t.Errorf("timestamp = %s %s", first.Date, first.Time)
	}
	if first.Category != "grocery_pos" || first.Gender != "F" {
		t.Errorf("categoricals = %s %s", first.Category, first.Gender)
	}
	if first.CityPop != 8400000 {
		t.Errorf("CityPop = %v, want 8400000", first.CityPop)
	}
	if first.IsFraud {
		t.Error("first row should not be fraud")
	}
	if !rows[1].IsFraud {
		t.Error("second row should be fraud")
	}
}

func TestReadColumnOrder(t *testing.T) {
	// Columns by name, not position, with extras ignored.
	csv := `is_fraud|amt|cc_num|category
1|999.99|4111111111111111|misc_net
`
	rows, err := Read(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(rows) != 1 || !rows[0].IsFraud || rows[0].Amount != 999.99 {
		t.Errorf("unexpected row: %+v", rows[0])
	}
	if rows[0].Category != "misc_net" {
		t.Errorf("Category = %s", rows[0].Category)
	}
}

func TestReadErrors(t *testing.T) {
	t.Run("missing label column", func(t *testing.T) {
		csv := "trans_date|amt\n2024-03-15|12.00\n"
		_, err := Read(strings.NewReader(csv))
		if !errors.Is(err, ErrLabelColumnMissing) {
			t.Errorf("err = %v, want ErrLabelColumnMissing", err)
		}
	})

	t.Run("missing amount column", func(t *testing.T) {
		csv := "trans_date|is_fraud\n2024-03-15|0\n"
		if _, err := Read(strings.NewReader(csv)); err == nil {
			t.Error("expected error for missing amt column")
		}
	})

	t.Run("empty file", func(t *testing.T) {
		_, err := Read(strings.NewReader(""))
		if !errors.Is(err, ErrEmptyDataset) {
			t.Errorf("err = %v, want ErrEmptyDataset", err)
		}
	})

	t.Run("header only", func(t *testing.T) {
		_, err := Read(strings.NewReader("amt|is_fraud\n"))
		if !errors.Is(err, ErrEmptyDataset) {
			t.Errorf("err = %v, want ErrEmptyDataset", err)
		}
	})

	t.Run("bad number", func(t *testing.T) {
		csv := "amt|is_fraud\nabc|0\n"
		if _, err := Read(strings.NewReader(csv)); err == nil {
			t.Error("expected error for non-numeric amount")
		}
	})

	t.Run("bad label", func(t *testing.T) {
		csv := "amt|is_fraud\n10.00|yes\n"
		if _, err := Read(strings.NewReader(csv)); err == nil {
			t.Error("expected error for non-binary label")
		}
	})
}

func TestSplit(t *testing.T) {
	rows := make([]domain.LabeledTransaction, 100)
	for i := range rows {
		rows[i].Amount = float64(i)
	}

	cfg := DefaultSplitConfig()
	train, val, test, err := Split(rows, cfg)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	if len(train) != 70 || len(val) != 15 || len(test) != 15 {
		t.Errorf("split sizes = %d/%d/%d, want 70/15/15", len(train), len(val), len(test))
	}

	// Every input row lands in exactly one partition.
	seen := make(map[float64]int)
	for _, part := range [][]domain.LabeledTransaction{train, val, test} {
		for _, r := range part {
			seen[r.Amount]++
		}
	}
	if len(seen) != 100 {
		t.Errorf("partitions cover %d distinct rows, want 100", len(seen))
	}
	for amt, n := range seen {
		if n != 1 {
			t.Errorf("row %v appears %d times", amt, n)
		}
	}
}

func TestSplitReproducible(t *testing.T) {
	rows := make([]domain.LabeledTransaction, 50)
	for i := range rows {
		rows[i].Amount = float64(i)
	}

	cfg := DefaultSplitConfig()
	a1, _, _, err := Split(rows, cfg)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	a2, _, _, err := Split(rows, cfg)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	for i := range a1 {
		if a1[i].Amount != a2[i].Amount {
			t.Fatalf("same seed produced different orders at %d", i)
		}
	}

	cfg.Seed = 7
	a3, _, _, err := Split(rows, cfg)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	same := true
	for i := range a1 {
		if a1[i].Amount != a3[i].Amount {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds produced identical orders")
	}
}

func TestSplitRemainderToTest(t *testing.T) {
	rows := make([]domain.LabeledTransaction, 7)
	cfg := SplitConfig{TrainFrac: 0.70, ValFrac: 0.15, TestFrac: 0.15}

	train, val, test, err := Split(rows, cfg)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	// int(7*0.70)=4, int(7*0.15)=1, remainder 2 to test.
	if len(train) != 4 || len(val) != 1 || len(test) != 2 {
		t.Errorf("split sizes = %d/%d/%d, want 4/1/2", len(train), len(val), len(test))
	}
}

func TestSplitBadFractions(t *testing.T) {
	rows := make([]domain.LabeledTransaction, 10)
	cfg := SplitConfig{TrainFrac: 0.5, ValFrac: 0.2, TestFrac: 0.2}
	if _, _, _, err := Split(rows, cfg); err == nil {
		t.Error("expected error for fractions not summing to 1")
	}
}
