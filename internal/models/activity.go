package models

import "time"

// URLRisk is the tier assigned to a scanned URL.
type URLRisk string

const (
	URLRiskLow    URLRisk = "low"
	URLRiskMedium URLRisk = "medium"
	URLRiskHigh   URLRisk = "high"
)

// URLRisks lists tiers from least to most severe.
var URLRisks = []URLRisk{URLRiskLow, URLRiskMedium, URLRiskHigh}

// Valid reports whether r is one of the known tiers.
func (r URLRisk) Valid() bool {
	switch r {
	case URLRiskLow, URLRiskMedium, URLRiskHigh:
		return true
	}
	return false
}

// ActivityLog is one URL scan. Rows are append-only.
type ActivityLog struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	URL       string    `json:"url" db:"url"`
	RiskLevel URLRisk   `json:"risk_level" db:"risk_level"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// RiskDetails explains a medium-risk URL. It is never persisted.
type RiskDetails struct {
	Threats []string `json:"threats"`
	Tips    []string `json:"tips"`
}
