package rules

import (
	"strings"

	"github.com/xaenox/shieldbot/internal/models"
)

// Rule names the branch that decided a verdict.
type Rule string

const (
	RuleTrustedDomain  Rule = "trusted_domain"
	RuleHighRiskTerm   Rule = "high_risk_pattern"
	RuleHighRiskTLD    Rule = "high_risk_tld"
	RuleTyposquat      Rule = "typosquat"
	RuleHostStructure  Rule = "host_structure"
	RuleRiskyExtension Rule = "risky_extension"
	RuleMediumRiskTerm Rule = "medium_risk_pattern"
	RuleShortener      Rule = "url_shortener"
	RuleFileSharing    Rule = "file_sharing_host"
	RuleObfuscation    Rule = "obfuscation"
	RuleDefault        Rule = "default"
)

// Result is the verdict plus the rule and matched token that produced it.
type Result struct {
	Risk  models.URLRisk `json:"risk_level"`
	Rule  Rule           `json:"rule"`
	Match string         `json:"match,omitempty"`
}

// Engine classifies URLs. It holds no mutable state and is safe for
// concurrent use.
type Engine struct {
	rules *Rules
}

// NewEngine builds an engine over r. A nil r uses the defaults.
func NewEngine(r *Rules) *Engine {
	if r == nil {
		r = DefaultRules()
	}
	return &Engine{rules: r.normalize()}
}

var defaultEngine = NewEngine(nil)

// Classify assigns a risk tier to rawURL using the built-in rules.
func Classify(rawURL string) models.URLRisk {
	return defaultEngine.Classify(rawURL)
}

// Classify assigns a risk tier to rawURL.
func (e *Engine) Classify(rawURL string) models.URLRisk {
	return e.Evaluate(rawURL).Risk
}

// Evaluate runs the rules in priority order and stops at the first match.
func (e *Engine) Evaluate(rawURL string) (res Result) {
	defer func() {
		if recover() != nil {
			res = Result{Risk: models.URLRiskLow, Rule: RuleDefault}
		}
	}()

	u := strings.ToLower(strings.TrimSpace(rawURL))
	if u == "" {
		return Result{Risk: models.URLRiskLow, Rule: RuleDefault}
	}
	host := hostname(u)

	for _, d := range e.rules.TrustedDomains {
		if domainMatches(host, d) {
			return Result{Risk: models.URLRiskLow, Rule: RuleTrustedDomain, Match: d}
		}
	}

	for _, p := range e.rules.HighRiskPatterns {
		if strings.Contains(u, p) {
			return Result{Risk: models.URLRiskHigh, Rule: RuleHighRiskTerm, Match: p}
		}
	}
	for _, tld := range e.rules.HighRiskTLDs {
		if strings.HasSuffix(host, tld) {
			return Result{Risk: models.URLRiskHigh, Rule: RuleHighRiskTLD, Match: tld}
		}
	}

	bare := strings.TrimPrefix(host, "www.")
	if brand, ok := e.typosquat(bare); ok {
		return Result{Risk: models.URLRiskHigh, Rule: RuleTyposquat, Match: brand}
	}

	if !isIPv4(bare) &&
		(strings.Count(bare, "-") >= e.rules.MinHostHyphens || countDigits(bare) >= e.rules.MinHostDigits) {
		return Result{Risk: models.URLRiskHigh, Rule: RuleHostStructure, Match: bare}
	}

	path := urlPath(u)
	for _, ext := range e.rules.RiskyExtensions {
		if strings.Contains(path, ext) {
			return Result{Risk: models.URLRiskMedium, Rule: RuleRiskyExtension, Match: ext}
		}
	}

	for _, p := range e.rules.MediumRiskPatterns {
		if strings.Contains(u, p) {
			return Result{Risk: models.URLRiskMedium, Rule: RuleMediumRiskTerm, Match: p}
		}
	}
	for _, d := range e.rules.ShortenerHosts {
		if domainMatches(host, d) {
			return Result{Risk: models.URLRiskMedium, Rule: RuleShortener, Match: d}
		}
	}
	for _, d := range e.rules.FileSharingHosts {
		if domainMatches(host, d) {
			return Result{Risk: models.URLRiskMedium, Rule: RuleFileSharing, Match: d}
		}
	}

	switch {
	case len(u) > e.rules.MaxURLLength:
		return Result{Risk: models.URLRiskMedium, Rule: RuleObfuscation, Match: "length"}
	case countEncodedOctets(u) > e.rules.MaxEncodedOctets:
		return Result{Risk: models.URLRiskMedium, Rule: RuleObfuscation, Match: "percent_encoding"}
	case strings.Count(host, ".") > e.rules.MaxHostDots:
		return Result{Risk: models.URLRiskMedium, Rule: RuleObfuscation, Match: "subdomains"}
	}

	return Result{Risk: models.URLRiskLow, Rule: RuleDefault}
}

// typosquat looks for a brand name hidden behind digit substitutions or
// glued to the host with a hyphen, on a host the brand does not own.
func (e *Engine) typosquat(host string) (string, bool) {
	forms := []string{host, stripDigits(host), leetAsL.Replace(host), leetAsI.Replace(host)}
	hasDigit := countDigits(host) > 0

	for _, brand := range e.rules.Brands {
		official := brand + ".com"
		if host == official || strings.HasSuffix(host, "."+official) {
			continue
		}
		for _, form := range forms {
			if !strings.Contains(form, brand) {
				continue
			}
			if hasDigit || strings.Contains(form, "-"+brand) || strings.Contains(form, brand+"-") {
				return brand, true
			}
		}
	}
	return "", false
}
