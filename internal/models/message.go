package models

import "time"

// RiskLevel is the verdict tier of an SMS message.
type RiskLevel string

const (
	RiskPending   RiskLevel = "pending"
	RiskSafe      RiskLevel = "safe"
	RiskDangerous RiskLevel = "dangerous"
	// RiskSuspicious is only produced by keyword-sniff fallback parsing.
	RiskSuspicious RiskLevel = "suspicious"
)

// IsFinal reports whether the level is a committed verdict.
func (l RiskLevel) IsFinal() bool {
	return l == RiskSafe || l == RiskDangerous || l == RiskSuspicious
}

// Message represents an SMS message moving through triage
type Message struct {
	ID             string     `json:"id" db:"id"`
	SenderNumber   string     `json:"sender_number" db:"sender_number"`
	ReceiverNumber string     `json:"receiver_number" db:"receiver_number"`
	MessageText    string     `json:"message_text" db:"message_text"`
	RiskLevel      RiskLevel  `json:"risk_level" db:"risk_level"`
	AIExplanation  *string    `json:"ai_explanation,omitempty" db:"ai_explanation"`
	SentAt         time.Time  `json:"sent_at" db:"sent_at"`
	AnalyzedAt     *time.Time `json:"analyzed_at,omitempty" db:"analyzed_at"`
}

// Clone returns a deep copy so callers can hand messages across goroutines.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	if m.AIExplanation != nil {
		e := *m.AIExplanation
		c.AIExplanation = &e
	}
	if m.AnalyzedAt != nil {
		t := *m.AnalyzedAt
		c.AnalyzedAt = &t
	}
	return &c
}

// Explanation returns the AI explanation or an empty string.
func (m *Message) Explanation() string {
	if m.AIExplanation == nil {
		return ""
	}
	return *m.AIExplanation
}

// Verdict is the outcome of classifying a message
type Verdict struct {
	RiskLevel   RiskLevel `json:"risk_level"`
	Explanation string    `json:"explanation"`
}
