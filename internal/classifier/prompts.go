package classifier

import (
	"fmt"
	"strings"

	"github.com/xaenox/shieldbot/internal/models"
)

const messageSystemPrompt = `You are an SMS security analyst. Classify each SMS into exactly one of two categories.

"safe": legitimate messages from verified sources, such as bank transaction alerts from official numbers, OTPs from known services, delivery notifications from trusted companies, government updates from official channels and genuine promotions from known brands.

"dangerous": anything potentially harmful or fraudulent, including phishing links impersonating banks or government, fake OTP messages asking you to share codes, payment demands with threats, lottery or prize scams asking for fees or bank details, UPI fraud asking for PIN/CVV/OTP, KYC update scams, tax refund scams, work-from-home offers with registration fees, investment schemes with guaranteed returns, too-good-to-be-true deals, survey reward scams, unsolicited loan offers, and any request for money, credentials or personal information.

When in doubt, classify as "dangerous".

Respond ONLY with a JSON object in this exact format:
{"risk_level": "safe|dangerous", "explanation": "Brief 1-2 sentence reason"}`

const explainSystemPrompt = `You are a cybersecurity expert. Analyze medium-risk URLs and provide specific threat warnings and safety tips. Respond in JSON with "threats" (array of detected threats) and "tips" (array of safety recommendations).`

const adviceSystemPrompt = `You are a cybersecurity safety coach. Analyze the user's browsing activity and provide personalized security advice and recommendations.`

const chatSystemPrompt = `You are CyberShield AI, a friendly cybersecurity assistant. Help users understand online threats, answer security questions and give safety tips. Be conversational, helpful and educational.`

// maxContextEntries bounds the activity appended to the chat system prompt.
const maxContextEntries = 10

func messageUserPrompt(sender, text string) string {
	return fmt.Sprintf("Classify this SMS message:\n\nSender: %s\nMessage: %s\n\nAnalyze carefully and choose the correct risk level.", sender, text)
}

func explainUserPrompt(url string) string {
	return fmt.Sprintf(`Analyze this medium-risk URL and provide specific warnings: %s

Identify what makes it risky (executable files, archives, scripts, etc.) and provide 3-5 specific safety tips. Return ONLY valid JSON in this exact format:
{
  "threats": ["threat 1", "threat 2"],
  "tips": ["tip 1", "tip 2", "tip 3"]
}`, url)
}

func adviceUserPrompt(logs []*models.ActivityLog) string {
	var b strings.Builder
	for i, l := range logs {
		fmt.Fprintf(&b, "%d. URL: %s, Risk: %s, Time: %s\n", i+1, l.URL, l.RiskLevel, l.Timestamp.UTC().Format("2006-01-02T15:04:05Z"))
	}
	return fmt.Sprintf("Analyze this browsing activity and give security advice:\n\n%s\nProvide: 1) Overall security assessment 2) Specific risks identified 3) Actionable recommendations", b.String())
}

// chatSystemMessage appends up to maxContextEntries recent scans to the base
// prompt. activity is expected newest first.
func chatSystemMessage(activity []*models.ActivityLog) string {
	if len(activity) == 0 {
		return chatSystemPrompt
	}
	if len(activity) > maxContextEntries {
		activity = activity[:maxContextEntries]
	}
	entries := make([]string, 0, len(activity))
	for _, l := range activity {
		entries = append(entries, fmt.Sprintf("%s (%s risk)", l.URL, l.RiskLevel))
	}
	return chatSystemPrompt + "\n\nUser's recent activity: " + strings.Join(entries, ", ")
}
