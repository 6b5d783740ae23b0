// Package dataset loads labeled transaction data from pipe-delimited CSV
// files and splits it into training, validation, and test partitions.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"strconv"

	"github.com/opensource-finance/harrier/internal/domain"
)

var (
	// ErrLabelColumnMissing indicates the CSV has no is_fraud column.
	ErrLabelColumnMissing = errors.New("dataset: label column is_fraud missing")

	// ErrEmptyDataset indicates the CSV contained no data rows.
	ErrEmptyDataset = errors.New("dataset: no data rows")
)

// Column names recognized in the CSV header. Files may carry extra
// columns; they are ignored.
const (
	colDate     = "trans_date"
	colTime     = "trans_time"
	colAmount   = "amt"
	colLat      = "lat"
	colLong     = "long"
	colMerchLat = "merch_lat"
	colMerchLng = "merch_long"
	colCategory = "category"
	colGender   = "gender"
	colDOB      = "dob"
	colCityPop  = "city_pop"
	colLabel    = "is_fraud"
)

// Load reads a pipe-delimited CSV of labeled transactions. The header
// row is required; columns are matched by name so extra columns and
// arbitrary ordering are fine. The is_fraud column must be present.
func Load(path string) ([]domain.LabeledTransaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: failed to open %s: %w", path, err)
	}
	defer f.Close()

	return Read(f)
}

// Read parses labeled transactions from pipe-delimited CSV data.
func Read(r io.Reader) ([]domain.LabeledTransaction, error) {
	cr := csv.NewReader(r)
	cr.Comma = '|'
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrEmptyDataset
	}
	if err != nil {
		return nil, fmt.Errorf("dataset: failed to read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[name] = i
	}
	if _, ok := idx[colLabel]; !ok {
		return nil, ErrLabelColumnMissing
	}
	if _, ok := idx[colAmount]; !ok {
		return nil, fmt.Errorf("dataset: required column %s missing", colAmount)
	}

	field := func(row []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}
	number := func(row []string, name string, line int) (float64, error) {
		s := field(row, name)
		if s == "" {
			return 0, nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("dataset: line %d: invalid %s %q", line, name, s)
		}
		return v, nil
	}

	var rows []domain.LabeledTransaction
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("dataset: line %d: %w", line, err)
		}

		var tx domain.LabeledTransaction
		tx.Date = field(record, colDate)
		tx.Time = field(record, colTime)
		tx.Category = field(record, colCategory)
		tx.Gender = field(record, colGender)
		tx.BirthDate = field(record, colDOB)

		if tx.Amount, err = number(record, colAmount, line); err != nil {
			return nil, err
		}
		if tx.Lat, err = number(record, colLat, line); err != nil {
			return nil, err
		}
		if tx.Long, err = number(record, colLong, line); err != nil {
			return nil, err
		}
		if tx.MerchLat, err = number(record, colMerchLat, line); err != nil {
			return nil, err
		}
		if tx.MerchLong, err = number(record, colMerchLng, line); err != nil {
			return nil, err
		}

		if tx.CityPop, err = number(record, colCityPop, line); err != nil {
			return nil, err
		}

		switch field(record, colLabel) {
		case "0", "":
			tx.IsFraud = false
		case "1":
			tx.IsFraud = true
		default:
			return nil, fmt.Errorf("dataset: line %d: invalid %s %q", line, colLabel, field(record, colLabel))
		}

		rows = append(rows, tx)
	}

	if len(rows) == 0 {
		return nil, ErrEmptyDataset
	}
	return rows, nil
}

// SplitConfig controls how Split partitions the data.
type SplitConfig struct {
	TrainFrac float64
	ValFrac   float64
	TestFrac  float64
	Shuffle   bool
	Seed      int64
}

// DefaultSplitConfig returns the standard 70/15/15 shuffled split.
func DefaultSplitConfig() SplitConfig {
	return SplitConfig{
		TrainFrac: 0.70,
		ValFrac:   0.15,
		TestFrac:  0.15,
		Shuffle:   true,
		Seed:      42,
	}
}

// Split partitions rows into train, validation, and test sets. The
// fractions must sum to 1; any rounding remainder lands in the test
// set. Shuffling is seeded so a given seed reproduces the same split.
func Split(rows []domain.LabeledTransaction, cfg SplitConfig) (train, val, test []domain.LabeledTransaction, err error) {
	if math.Abs(cfg.TrainFrac+cfg.ValFrac+cfg.TestFrac-1.0) > 1e-9 {
		return nil, nil, nil, fmt.Errorf("dataset: split fractions must sum to 1.0, got %.4f",
			cfg.TrainFrac+cfg.ValFrac+cfg.TestFrac)
	}

	shuffled := make([]domain.LabeledTransaction, len(rows))
	copy(shuffled, rows)
	if cfg.Shuffle {
		rng := rand.New(rand.NewSource(cfg.Seed))
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
	}

	n := len(shuffled)
	nTrain := int(float64(n) * cfg.TrainFrac)
	nVal := int(float64(n) * cfg.ValFrac)

	train = shuffled[:nTrain]
	val = shuffled[nTrain : nTrain+nVal]
	test = shuffled[nTrain+nVal:]
	return train, val, test, nil
}
