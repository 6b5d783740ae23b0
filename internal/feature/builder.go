// Package feature converts transactions into the fixed-order numeric
// vectors consumed by the density model.
package feature

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Fallbacks applied when an optional or malformed field cannot be derived.
const (
	defaultHour = 12
	defaultAge  = 35.0
)

// Feature column names, in the order produced at fit time.
const (
	colAmountLog  = "amt_log"
	colDistance   = "distance"
	colHour       = "hour"
	colDayOfWeek  = "day_of_week"
	colIsNight    = "is_night"
	colIsWeekend  = "is_weekend"
	colCategory   = "category"
	colGender     = "gender"
	colAge        = "age"
	colCityPopLog = "city_pop_log"
)

// ErrNotFitted indicates Transform was called before Fit.
var ErrNotFitted = errors.New("feature builder has not been fitted")

// ErrInvalidAmount indicates a negative transaction amount.
var ErrInvalidAmount = errors.New("amount must be non-negative")

// MissingFieldError reports a required transaction field that was absent.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", e.Field)
}

// Builder derives numeric feature vectors from transactions. Categorical
// vocabularies, magnitude caps and the output column order are frozen by
// Fit and reused unchanged for every later Transform.
type Builder struct {
	Columns    []string
	Encoders   map[string]*Encoder
	AmountCap  float64
	CityPopCap float64

	fitted bool
}

// NewBuilder returns an unfitted builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Restore reconstructs a fitted builder from persisted state.
func Restore(columns []string, vocabs map[string]map[string]int, amountCap, cityPopCap float64) *Builder {
	encoders := make(map[string]*Encoder, len(vocabs))
	for name, codes := range vocabs {
		encoders[name] = &Encoder{Codes: codes}
	}
	return &Builder{
		Columns:    append([]string(nil), columns...),
		Encoders:   encoders,
		AmountCap:  amountCap,
		CityPopCap: cityPopCap,
		fitted:     true,
	}
}

// Fitted reports whether the builder holds a frozen fit.
func (b *Builder) Fitted() bool { return b.fitted }

// Vocabularies returns the fitted encoder code tables, for persistence.
func (b *Builder) Vocabularies() map[string]map[string]int {
	out := make(map[string]map[string]int, len(b.Encoders))
	for name, enc := range b.Encoders {
		out[name] = enc.Codes
	}
	return out
}

// Fit learns categorical vocabularies and magnitude caps from the sample,
// freezes the column order, and returns the feature matrix for the sample.
func (b *Builder) Fit(txs []domain.Transaction) ([][]float64, error) {
	if len(txs) == 0 {
		return nil, errors.New("empty training sample")
	}

	categories := make([]string, len(txs))
	genders := make([]string, len(txs))
	amounts := make([]float64, len(txs))
	pops := make([]float64, len(txs))
	for i := range txs {
		categories[i] = txs[i].Category
		genders[i] = txs[i].Gender
		amounts[i] = txs[i].Amount
		pops[i] = txs[i].CityPop
	}

	b.Encoders = map[string]*Encoder{
		colCategory: FitEncoder(categories),
		colGender:   FitEncoder(genders),
	}
	// Heavy-tailed magnitudes are capped at their 99th percentile before the
	// log transform so a single outlier cannot stretch the scale.
	b.AmountCap = percentile(amounts, 99)
	b.CityPopCap = percentile(pops, 99)
	b.Columns = []string{
		colAmountLog, colDistance, colHour, colDayOfWeek,
		colIsNight, colIsWeekend, colCategory, colGender,
		colAge, colCityPopLog,
	}
	b.fitted = true

	X := make([][]float64, len(txs))
	for i := range txs {
		vec, err := b.Transform(&txs[i])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		X[i] = vec
	}
	return X, nil
}

// Transform produces the feature vector for one transaction using the
// fitted state. The output always follows the fit-time column order: a
// fitted column this build does not know is filled with 0, and any field
// outside the fitted set is simply never read.
func (b *Builder) Transform(tx *domain.Transaction) ([]float64, error) {
	if !b.fitted {
		return nil, ErrNotFitted
	}
	rc, err := newRecordContext(tx)
	if err != nil {
		return nil, err
	}

	vec := make([]float64, len(b.Columns))
	for i, col := range b.Columns {
		vec[i] = b.value(col, rc)
	}
	return vec, nil
}

// recordContext holds the per-record derived values shared by several
// feature columns.
type recordContext struct {
	tx        *domain.Transaction
	hour      int
	dayOfWeek int // Monday = 0 .. Sunday = 6
	age       float64
}

func newRecordContext(tx *domain.Transaction) (*recordContext, error) {
	if tx.Date == "" {
		return nil, &MissingFieldError{Field: "date"}
	}
	if tx.Time == "" {
		return nil, &MissingFieldError{Field: "time"}
	}
	if tx.Amount < 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, tx.Amount)
	}

	date, err := time.Parse("2006-01-02", tx.Date)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", tx.Date, err)
	}

	return &recordContext{
		tx:        tx,
		hour:      HourOf(tx.Time),
		dayOfWeek: (int(date.Weekday()) + 6) % 7,
		age:       ageAt(date, tx.BirthDate),
	}, nil
}

// HourOf extracts the hour from an HH:MM:SS string, falling back to midday
// when the value is malformed.
func HourOf(clock string) int {
	t, err := time.Parse("15:04:05", clock)
	if err != nil {
		return defaultHour
	}
	return t.Hour()
}

// ageAt returns the customer age in years at the transaction date, falling
// back to a population-typical constant when the birth date is absent or
// malformed.
func ageAt(txDate time.Time, birthDate string) float64 {
	if birthDate == "" {
		return defaultAge
	}
	dob, err := time.Parse("2006-01-02", birthDate)
	if err != nil {
		return defaultAge
	}
	return txDate.Sub(dob).Hours() / 24 / 365.25
}

func (b *Builder) value(col string, rc *recordContext) float64 {
	tx := rc.tx
	switch col {
	case colAmountLog:
		return math.Log1p(math.Min(tx.Amount, b.AmountCap))
	case colDistance:
		return Haversine(tx.Lat, tx.Long, tx.MerchLat, tx.MerchLong)
	case colHour:
		return float64(rc.hour)
	case colDayOfWeek:
		return float64(rc.dayOfWeek)
	case colIsNight:
		if rc.hour >= 22 || rc.hour <= 5 {
			return 1
		}
		return 0
	case colIsWeekend:
		if rc.dayOfWeek >= 5 {
			return 1
		}
		return 0
	case colCategory:
		return float64(b.Encoders[colCategory].Encode(tx.Category))
	case colGender:
		return float64(b.Encoders[colGender].Encode(tx.Gender))
	case colAge:
		return rc.age
	case colCityPopLog:
		return math.Log1p(math.Min(tx.CityPop, b.CityPopCap))
	default:
		// A fitted column this build cannot derive is zero-filled so the
		// vector keeps the model's expected shape.
		return 0
	}
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
