package domain

import (
	"time"
)

// Transaction represents a point-of-sale transaction submitted for scoring.
type Transaction struct {
	// Core identifiers
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	// Financial details
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency,omitempty"`

	// Temporal fields as captured by the terminal
	Date string `json:"date"` // YYYY-MM-DD
	Time string `json:"time"` // HH:MM:SS

	// Customer location
	Lat  float64 `json:"lat"`
	Long float64 `json:"long"`

	// Merchant location
	MerchLat  float64 `json:"merchLat"`
	MerchLong float64 `json:"merchLong"`

	// Optional categorical / demographic fields
	Category  string  `json:"category,omitempty"`
	Gender    string  `json:"gender,omitempty"`
	BirthDate string  `json:"birthDate,omitempty"` // YYYY-MM-DD
	CityPop   float64 `json:"cityPop,omitempty"`

	CreatedAt time.Time `json:"createdAt"`

	// Optional metadata passed through untouched
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// LabeledTransaction pairs a transaction with its ground-truth fraud label.
// Used by the offline training and evaluation paths only.
type LabeledTransaction struct {
	Transaction
	IsFraud bool `json:"isFraud"`
}
