package bot

import (
	"fmt"
	"strings"

	"github.com/xaenox/shieldbot/internal/activity"
	"github.com/xaenox/shieldbot/internal/liveview"
	"github.com/xaenox/shieldbot/internal/models"
)

var urlRiskIcons = map[models.URLRisk]string{
	models.URLRiskLow:    "✅",
	models.URLRiskMedium: "⚠️",
	models.URLRiskHigh:   "🚫",
}

var levelIcons = map[models.RiskLevel]string{
	models.RiskPending:    "⏳",
	models.RiskSafe:       "✅",
	models.RiskDangerous:  "🚨",
	models.RiskSuspicious: "⚠️",
}

// formatScan renders a scan result in MarkdownV2.
func formatScan(res *activity.ScanResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s *%s*\n", urlRiskIcons[res.Log.RiskLevel], escapeMarkdown(res.Alert.Title))
	sb.WriteString(escapeMarkdown(res.Alert.Message))
	sb.WriteString("\n")

	if res.Details != nil {
		if len(res.Details.Threats) > 0 {
			sb.WriteString("\n*Threats:*\n")
			for _, t := range res.Details.Threats {
				sb.WriteString(escapeMarkdown("• "+t) + "\n")
			}
		}
		if len(res.Details.Tips) > 0 {
			sb.WriteString("\n*Safety tips:*\n")
			for _, t := range res.Details.Tips {
				sb.WriteString(escapeMarkdown("• "+t) + "\n")
			}
		}
	}

	if !res.Previewable() {
		sb.WriteString("\n_Preview disabled for this link\\._")
	}
	return sb.String()
}

func formatMessage(m *models.Message) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s *%s* from %s\n", levelIcons[m.RiskLevel], escapeMarkdown(string(m.RiskLevel)), escapeMarkdown(m.SenderNumber))
	fmt.Fprintf(&sb, "_%s_\n", escapeMarkdown(m.MessageText))
	if e := m.Explanation(); e != "" {
		sb.WriteString(escapeMarkdown(e) + "\n")
	}
	fmt.Fprintf(&sb, "id: `%s`\n", escapeMarkdown(m.ID))
	return sb.String()
}

// formatMessages renders up to limit messages of a view.
func formatMessages(kind liveview.Kind, msgs []*models.Message, limit int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*Your %s* \\(%d\\)\n\n", escapeMarkdown(string(kind)), len(msgs))
	for i, m := range msgs {
		if i == limit {
			fmt.Fprintf(&sb, "%s\n", escapeMarkdown(fmt.Sprintf("…and %d more", len(msgs)-limit)))
			break
		}
		sb.WriteString(formatMessage(m))
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatDashboard(d *activity.Dashboard) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*Scans:* %d\n", d.Total)
	for _, r := range models.URLRisks {
		fmt.Fprintf(&sb, "%s %s: %d\n", urlRiskIcons[r], escapeMarkdown(string(r)), d.Counts[r])
	}

	sb.WriteString("\n*Last 7 days:*\n")
	for _, day := range d.Daily {
		line := fmt.Sprintf("%s  low %d, medium %d, high %d", day.Date, day.Low, day.Medium, day.High)
		sb.WriteString(escapeMarkdown(line) + "\n")
	}
	return sb.String()
}
