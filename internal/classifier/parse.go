package classifier

import (
	"encoding/json"
	"strings"

	"github.com/xaenox/shieldbot/internal/models"
)

const noExplanation = "No explanation provided"

// extractJSON pulls a JSON object out of a model reply that may wrap it in
// prose or a fenced code block.
func extractJSON(content string) string {
	body := strings.TrimSpace(content)
	if i := strings.Index(body, "```"); i >= 0 {
		rest := body[i+3:]
		if j := strings.Index(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		body = rest
	}
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start >= 0 && end > start {
		return body[start : end+1]
	}
	return strings.TrimSpace(body)
}

type riskDetailsPayload struct {
	Threats []string `json:"threats"`
	Tips    []string `json:"tips"`
}

// parseRiskDetails validates the explanation payload. It reports false when
// the reply is not JSON, has the wrong shape, or carries no content.
func parseRiskDetails(content string) (*models.RiskDetails, bool) {
	var p riskDetailsPayload
	if err := json.Unmarshal([]byte(extractJSON(content)), &p); err != nil {
		return nil, false
	}
	d := &models.RiskDetails{Threats: nonBlank(p.Threats), Tips: nonBlank(p.Tips)}
	if len(d.Threats) == 0 && len(d.Tips) == 0 {
		return nil, false
	}
	return d, true
}

type verdictPayload struct {
	RiskLevel   string `json:"risk_level"`
	Explanation string `json:"explanation"`
}

// parseVerdict accepts only safe or dangerous from the JSON contract and
// falls back to keyword sniffing for anything else.
func parseVerdict(content string) models.Verdict {
	var p verdictPayload
	if err := json.Unmarshal([]byte(extractJSON(content)), &p); err == nil {
		level := models.RiskLevel(strings.ToLower(strings.TrimSpace(p.RiskLevel)))
		if level == models.RiskSafe || level == models.RiskDangerous {
			explanation := strings.TrimSpace(p.Explanation)
			if explanation == "" {
				explanation = noExplanation
			}
			return models.Verdict{RiskLevel: level, Explanation: explanation}
		}
	}

	v := SniffVerdict(content)
	if strings.TrimSpace(v.Explanation) == "" {
		v.Explanation = noExplanation
	}
	return v
}

func nonBlank(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
