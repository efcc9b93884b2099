package rules

// Entries starting with "." are TLD-style suffixes.
var defaultTrustedDomains = []string{
	// global tech
	"google.com", "youtube.com", "facebook.com", "twitter.com", "x.com",
	"instagram.com", "linkedin.com", "github.com", "gitlab.com",
	"stackoverflow.com", "stackexchange.com", "microsoft.com", "apple.com",
	"amazon.com", "ebay.com", "wikipedia.org", "reddit.com", "medium.com",
	"netflix.com", "spotify.com", "dropbox.com", "zoom.us", "slack.com",
	"office.com", "live.com", "outlook.com", "bing.com", "yahoo.com",
	"duckduckgo.com", "cloudflare.com", "mozilla.org", "w3.org", "npmjs.com",
	"pypi.org",
	// productivity and AI
	"openai.com", "chatgpt.com", "anthropic.com", "claude.ai", "notion.so",
	"trello.com", "asana.com", "monday.com", "airtable.com", "canva.com",
	"figma.com", "adobe.com", "salesforce.com", "hubspot.com",
	// communication
	"discord.com", "telegram.org", "whatsapp.com", "signal.org", "webex.com",
	"skype.com",
	// cloud and development
	"azure.com", "vercel.com", "netlify.com", "heroku.com", "digitalocean.com",
	"linode.com", "docker.com", "kubernetes.io", "jenkins.io", "bitbucket.org",
	// commerce and payments
	"paypal.com", "stripe.com", "shopify.com", "etsy.com", "aliexpress.com",
	"wish.com",
	// news
	"bbc.com", "cnn.com", "nytimes.com", "theguardian.com", "reuters.com",
	"bloomberg.com", "techcrunch.com", "wired.com", "theverge.com",
	"engadget.com",
	// education
	"coursera.org", "udemy.com", "edx.org", "khanacademy.org", "duolingo.com",
	"codecademy.com", "freecodecamp.org", "w3schools.com",
	// India
	"flipkart.com", "amazon.in", "myntra.com", "paytm.com", "phonepe.com",
	"googlepay.com", "bharatpe.com", "cred.club", "zerodha.com", "groww.in",
	"upstox.com", "swiggy.com", "zomato.com", "ola.cab", "uber.com",
	"irctc.co.in", "makemytrip.com", "goibibo.com", "cleartrip.com",
	"yatra.com", "bookmyshow.com", "hotstar.com", "sonyliv.com", "zee5.com",
	"voot.com", "jiocinema.com", "ndtv.com", "thehindu.com",
	"timesofindia.com", "indianexpress.com", "hindustantimes.com",
	"moneycontrol.com", "livemint.com", "economictimes.com",
	"bharatmatrimony.com", "shaadi.com", "naukri.com", "shine.com",
	"monster.com", "indeed.com", "glassdoor.com", "justdial.com",
	"sulekha.com", "quikr.com", "olx.in", "99acres.com", "magicbricks.com",
	"housing.com", "policybazaar.com", "bankbazaar.com", "paisabazaar.com",
	"byju.com", "unacademy.com", "vedantu.com", "toppr.com", "extramarks.com",
	"meritnation.com", "aakash.ac.in", "allen.ac.in", "fiitjee.com",
	"resonance.ac.in", "nic.in", "gov.in", "esic.in", "sbi.co.in",
	"hdfcbank.com", "icicibank.com", "axisbank.com", "kotakbank.com", "pnb.in",
	"bankofbaroda.in", "canarabank.in", "unionbankofindia.co.in",
	"indianbank.in",
	// government and education TLDs
	".gov", ".gov.in", ".edu", ".edu.in", ".ac.in", ".mil",
}

var defaultHighRiskPatterns = []string{
	// account phishing
	"verify-account", "suspended-account", "account-suspended",
	"confirm-identity", "verify-payment", "update-billing", "confirm-account",
	"secure-login", "re-activate", "account-locked", "unusual-activity",
	"verify-information", "confirm-payment", "account-verification",
	"update-payment", "security-alert", "action-required", "suspended-notice",
	// financial
	"free-money", "claim-prize", "you-won", "lottery-winner", "cash-prize",
	"get-rich", "make-money-fast", "bitcoin-giveaway", "crypto-giveaway",
	"free-bitcoin", "double-your-money", "investment-opportunity",
	"guaranteed-profit", "easy-money", "work-from-home-scam",
	// malware
	"hack-tool", "crack-software", "keygen", "free-crack", "software-crack",
	"password-hack", "hack-account", "free-hack", "cheat-tool", "malware",
	"trojan", "ransomware", "spyware",
	// tech support
	"tech-support-scam", "virus-detected", "computer-infected", "call-support",
	"microsoft-support", "apple-support-scam", "critical-alert",
	"system-warning",
	// fake downloads
	"free-download-virus", "fake-update", "urgent-update", "flash-update",
	"java-update-scam", "codec-required", "player-required",
	// romance
	"romance-scam", "fake-dating", "catfish", "send-money-love",
	// pharma
	"cheap-viagra", "discount-pharmacy", "no-prescription", "fake-pills",
	"miracle-cure",
	// tax
	"irs-scam", "tax-refund-scam", "government-grant", "stimulus-check-scam",
	// gift cards
	"gift-card-scam", "pay-with-giftcard", "itunes-card-payment",
	"steam-card-scam", "google-play-scam",
	// jobs
	"fake-job", "job-scam", "work-from-home-fake", "pay-to-apply",
	"employment-scam", "pyramid-scheme", "mlm-scam",
	// known typosquats and lure prefixes
	"paypa1.com", "paypal-", "amazn.com", "amazon-", "g00gle", "micros0ft",
	"facebo0k", "netfliix", "netfl1x", "appl3.com", "app1e.com", "signin-",
	"login-", "secure-", "account-", "verify-", "update-",
	// urgency
	"click-here-now", "limited-time", "act-now", "dont-miss", "last-chance",
	"expires-today", "urgent-action", "immediate-response",
	// harvesting
	"survey-scam", "free-iphone", "free-gift-card", "claim-reward",
	"complete-survey", "win-prize", "congratulations-winner",
}

var defaultHighRiskTLDs = []string{".tk", ".ml", ".ga", ".cf", ".gq"}

var defaultBrands = []string{
	"google", "facebook", "amazon", "paypal", "netflix", "apple", "microsoft",
	"instagram", "twitter", "linkedin", "youtube",
}

var defaultRiskyExtensions = []string{
	// executables
	".exe", ".msi", ".bat", ".cmd", ".com", ".scr", ".pif",
	// scripts
	".vbs", ".vbe", ".wsf", ".wsh", ".ps1", ".psm1",
	// archives
	".zip", ".rar", ".7z", ".tar", ".gz", ".bz2", ".cab",
	// mobile packages
	".apk", ".ipa", ".deb", ".xap",
	// macro documents
	".docm", ".xlsm", ".pptm", ".dotm", ".xltm",
	// disk images
	".iso", ".img", ".dmg", ".toast", ".vcd",
	// java
	".jar", ".jnlp",
	// installers
	".pkg", ".rpm",
}

var defaultMediumRiskPatterns = []string{
	"/download", "download.", "/install", "/setup", "/crack", "/torrent",
	"/warez", "/nulled",
	"redirect", "goto.php", "out.php", "click.php", "track.php",
	"/xxx/", "/adult/", "/nsfw/",
}

var defaultShortenerHosts = []string{
	"bit.ly", "tinyurl.com", "goo.gl", "t.co", "ow.ly", "is.gd", "buff.ly",
	"adf.ly",
}

var defaultFileSharingHosts = []string{
	"mediafire.com", "mega.nz", "4shared.com", "rapidgator.net",
	"uploaded.net",
}
