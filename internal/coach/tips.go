package coach

import "math/rand"

var safetyTips = []string{
	"Never share your passwords with anyone, even if they claim to be from support.",
	"Always verify URLs before entering sensitive information - check for HTTPS and correct spelling.",
	"Enable two-factor authentication on all important accounts.",
	"Be skeptical of urgent messages asking for money or personal information.",
	"Keep your software and operating system up to date with security patches.",
	"Use strong, unique passwords for each account - consider a password manager.",
	"Don't click on suspicious links in emails or messages from unknown senders.",
	"Regularly backup your important data to prevent ransomware damage.",
	"Be cautious when downloading files - scan them with antivirus software first.",
	"Use a VPN when connecting to public Wi-Fi networks.",
}

var quickQuestions = []string{
	"What makes a URL dangerous?",
	"How can I identify phishing emails?",
	"What should I do if I clicked a suspicious link?",
	"How do I protect my passwords?",
	"What are the latest cyber threats?",
}

// SafetyTips returns the built-in tips.
func SafetyTips() []string {
	return append([]string(nil), safetyTips...)
}

// RandomTip picks one tip.
func RandomTip() string {
	return safetyTips[rand.Intn(len(safetyTips))]
}

// QuickQuestions are suggested conversation starters.
func QuickQuestions() []string {
	return append([]string(nil), quickQuestions...)
}
