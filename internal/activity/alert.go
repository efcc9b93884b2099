package activity

import (
	"fmt"
	"strings"

	"github.com/xaenox/shieldbot/internal/models"
)

// Alert is the banner shown after a scan.
type Alert struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// AlertFor builds the banner for a tier, naming detected threats when
// details are available.
func AlertFor(risk models.URLRisk, details *models.RiskDetails) Alert {
	switch risk {
	case models.URLRiskHigh:
		return Alert{
			Title:   "HIGH RISK DETECTED!",
			Message: "This URL appears to be dangerous. It may contain phishing, fraud, or malware. Do NOT proceed!",
		}
	case models.URLRiskMedium:
		if details != nil && len(details.Threats) > 0 {
			return Alert{
				Title:   "Medium Risk Detected",
				Message: fmt.Sprintf("We detected: %s. Review the safety tips below before proceeding.", strings.Join(details.Threats, ", ")),
			}
		}
		return Alert{
			Title:   "Medium Risk Detected",
			Message: "This URL may contain executable files or compressed archives. Proceed with caution.",
		}
	default:
		return Alert{
			Title:   "Safe to Proceed",
			Message: "This URL appears to be safe. No obvious threats detected.",
		}
	}
}
