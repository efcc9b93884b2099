package lifecycle

import (
	"strings"

	"github.com/xaenox/shieldbot/internal/models"
)

// Template is a canned message used to exercise the pipeline with synthetic
// traffic.
type Template struct {
	Name     string           `json:"name"`
	Expected models.RiskLevel `json:"expected"`
	Text     string           `json:"text"`
}

var templates = []Template{
	{
		Name:     "bank-alert",
		Expected: models.RiskDangerous,
		Text:     "URGENT: Your bank account has been compromised. Click here to verify-account immediately: http://secure-bank-verify.tk/verify-account?id=12345&token=XyZ789. Your account will be suspended-account in 24 hours.",
	},
	{
		Name:     "otp-fraud",
		Expected: models.RiskDangerous,
		Text:     "Your OTP for transaction is 849372. Do not share this with anyone. If you didn't request this, call us at +91-9876543210 immediately.",
	},
	{
		Name:     "lottery",
		Expected: models.RiskDangerous,
		Text:     "CONGRATULATIONS! You won ₹50,00,000 in lottery! To claim-prize visit: http://lottery-winner-claim.ml/claim-prize?ref=738291&you-won=true and pay processing fee of ₹5000.",
	},
	{
		Name:     "upi-phishing",
		Expected: models.RiskDangerous,
		Text:     "Dear customer, your UPI ID account-suspended due to unusual-activity. Re-activate now at http://upi-verify-payment.tk/account-verification?action-required=urgent or face permanent suspension.",
	},
	{
		Name:     "kyc",
		Expected: models.RiskDangerous,
		Text:     "Your Aadhaar linked mobile account-locked today. Update KYC at http://uidai-verify-account.ml/confirm-identity?mobile=XXX&verify-information=urgent or call 18001234567. -Govt of India",
	},
	{
		Name:     "job-offer",
		Expected: models.RiskDangerous,
		Text:     "Congratulations! Selected for work-from-home job with ₹25000/month salary. Pay registration at http://job-offer-registration.ml/fake-job?work-from-home-fake=registration. WhatsApp: 9123456789",
	},
	{
		Name:     "delivery",
		Expected: models.RiskDangerous,
		Text:     "Your parcel delivery failed. Track & reschedule at http://courier-verify-payment.ml/confirm-payment?action-required=urgent&verify-account=track. Pay ₹50 redelivery charge today.",
	},
	{
		Name:     "streaming-renewal",
		Expected: models.RiskDangerous,
		Text:     "Your Netflix account-suspended. Renew now at http://netfliix-verify-account.tk/update-payment?suspended-account=urgent to avoid permanent deletion. Pay ₹199 within 24 hours.",
	},
	{
		Name:     "bank-debit",
		Expected: models.RiskSafe,
		Text:     "Dear customer, your A/c XX1234 is debited by Rs.5000 on 24-Nov-24. Available balance: Rs.45,230. -HDFC Bank",
	},
	{
		Name:     "login-otp",
		Expected: models.RiskSafe,
		Text:     "Your OTP for login is 482931. Valid for 10 minutes. Never share this OTP with anyone. -Amazon",
	},
}

// Templates returns a copy of the built-in templates.
func Templates() []Template {
	return append([]Template(nil), templates...)
}

// TemplateByName looks a template up case-insensitively.
func TemplateByName(name string) (Template, bool) {
	for _, t := range templates {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return Template{}, false
}
