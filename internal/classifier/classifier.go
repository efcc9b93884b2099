package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xaenox/shieldbot/internal/models"
)

// ErrNotConfigured is returned when no API key is set. It is not retryable;
// callers should prompt for setup rather than report a transient failure.
var ErrNotConfigured = errors.New("AI API key is not configured")

// TransportError wraps a failed call to the completion endpoint.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: completion request failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// MessageClassifier assigns a verdict to an SMS. It never fails; transport
// problems degrade to the configured failure policy.
type MessageClassifier interface {
	ClassifyMessage(ctx context.Context, sender, text string) models.Verdict
}

// URLExplainer elaborates why a URL was rated medium risk.
type URLExplainer interface {
	ExplainURL(ctx context.Context, url string) (*models.RiskDetails, error)
}

// Assistant powers the safety coach.
type Assistant interface {
	Chat(ctx context.Context, history []models.ChatMessage, activity []*models.ActivityLog) (string, error)
	SummarizeActivity(ctx context.Context, logs []*models.ActivityLog) (string, error)
}

// FallbackRiskDetails is returned whenever the model's explanation cannot be
// parsed.
func FallbackRiskDetails() *models.RiskDetails {
	return &models.RiskDetails{
		Threats: []string{"Potentially dangerous file type detected"},
		Tips: []string{
			"Verify the source before downloading",
			"Scan with antivirus software",
			"Only download from trusted websites",
		},
	}
}

// SniffVerdict is the keyword fallback used when the model ignores the JSON
// contract. The raw reply becomes the explanation.
func SniffVerdict(content string) models.Verdict {
	lower := strings.ToLower(content)
	switch {
	case strings.Contains(lower, "dangerous"):
		return models.Verdict{RiskLevel: models.RiskDangerous, Explanation: content}
	case strings.Contains(lower, "suspicious"):
		return models.Verdict{RiskLevel: models.RiskSuspicious, Explanation: content}
	default:
		return models.Verdict{RiskLevel: models.RiskSafe, Explanation: content}
	}
}
