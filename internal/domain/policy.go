package domain

import (
	"time"
)

// AlertPolicy is a CEL expression applied after scoring to decide whether a
// flagged transaction is escalated to the alert topic or suppressed.
type AlertPolicy struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`

	// Expression is a CEL expression over
	// {score, confidence, threshold, amount, category, hour}.
	// It must evaluate to a boolean.
	Expression string `json:"expression"`

	// Action taken when the expression matches: "escalate" or "suppress".
	Action string `json:"action"`

	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Alert policy actions
const (
	PolicyActionEscalate = "escalate"
	PolicyActionSuppress = "suppress"
)
