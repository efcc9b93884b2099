package models

import "time"

// ReportedNumber accumulates spam reports against a sender
type ReportedNumber struct {
	SenderNumber string    `json:"sender_number"`
	ReportCount  int       `json:"report_count"`
	ReportedBy   []string  `json:"reported_by"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasReporter reports whether number is in ReportedBy.
func (r *ReportedNumber) HasReporter(number string) bool {
	for _, n := range r.ReportedBy {
		if n == number {
			return true
		}
	}
	return false
}
